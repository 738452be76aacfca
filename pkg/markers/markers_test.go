package markers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testDir(t *testing.T) *Dir {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewDir(t.TempDir(), logger)
}

func TestHas(t *testing.T) {
	d := testDir(t)

	if err := os.WriteFile(filepath.Join(d.Path(), "gmp-6.2.1"), nil, 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}

	has, err := d.Has("gmp")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !has {
		t.Error("Expected gmp marker to be found")
	}

	has, err = d.Has("mpfr")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Error("Expected no mpfr marker")
	}

	// The match is on the `<name>-` prefix, so a bare prefix of another
	// package name must not match.
	has, err = d.Has("gm")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Error("Expected no marker for gm")
	}
}

func TestHasMissingDirectory(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	d := NewDir(filepath.Join(t.TempDir(), "does-not-exist"), logger)

	has, err := d.Has("gmp")
	if err != nil {
		t.Fatalf("Expected missing directory to be tolerated, got %v", err)
	}
	if has {
		t.Error("Expected no markers in missing directory")
	}
}

func TestList(t *testing.T) {
	d := testDir(t)

	entries := []string{"boost_cropped-1.81.0", "ecl-21.2.1-p1", "zlib-1.2.13"}
	for _, e := range entries {
		if err := os.WriteFile(filepath.Join(d.Path(), e), nil, 0644); err != nil {
			t.Fatalf("Failed to write marker: %v", err)
		}
	}

	markers, err := d.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("Expected 3 markers, got %d", len(markers))
	}

	if markers[0].Name != "boost_cropped" || markers[0].Version != "1.81.0" {
		t.Errorf("Expected boost_cropped 1.81.0, got %s %s", markers[0].Name, markers[0].Version)
	}
	if markers[1].Name != "ecl" || markers[1].Version != "21.2.1-p1" {
		t.Errorf("Expected ecl 21.2.1-p1, got %s %s", markers[1].Name, markers[1].Version)
	}
}

func TestListMissingDirectory(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	d := NewDir(filepath.Join(t.TempDir(), "does-not-exist"), logger)

	markers, err := d.List()
	if err != nil {
		t.Fatalf("Expected missing directory to be tolerated, got %v", err)
	}
	if len(markers) != 0 {
		t.Errorf("Expected no markers, got %d", len(markers))
	}
}

func TestRecord(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	d := NewDir(filepath.Join(t.TempDir(), "markers"), logger)

	if err := d.Record("gmp", "6.2.1"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	has, err := d.Has("gmp")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !has {
		t.Error("Expected recorded marker to be found")
	}
}

func TestRecordEmptyFields(t *testing.T) {
	d := testDir(t)

	if err := d.Record("", "1.0"); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := d.Record("gmp", ""); err == nil {
		t.Error("Expected error for empty version")
	}
}

func TestSplitMarker(t *testing.T) {
	tests := []struct {
		entry   string
		name    string
		version string
	}{
		{"gmp-6.2.1", "gmp", "6.2.1"},
		{"boost_cropped-1.81.0", "boost_cropped", "1.81.0"},
		{"ecl-21.2.1-p1", "ecl", "21.2.1-p1"},
		{"no-version-suffix", "no-version-suffix", ""},
		{"plain", "plain", ""},
	}

	for _, tt := range tests {
		name, version := splitMarker(tt.entry)
		if name != tt.name || version != tt.version {
			t.Errorf("splitMarker(%q): expected %s/%s, got %s/%s",
				tt.entry, tt.name, tt.version, name, version)
		}
	}
}
