package facts

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseOSRelease(t *testing.T) {
	content := `NAME="Debian GNU/Linux"
VERSION_ID="12"
VERSION="12 (bookworm)"
ID=debian
PRETTY_NAME="Debian GNU/Linux 12 (bookworm)"
# a comment
HOME_URL="https://www.debian.org/"
`
	rel := parseOSRelease(content)

	if rel["ID"] != "debian" {
		t.Errorf("Expected ID debian, got %s", rel["ID"])
	}
	if rel["VERSION_ID"] != "12" {
		t.Errorf("Expected VERSION_ID 12, got %s", rel["VERSION_ID"])
	}
	if rel["PRETTY_NAME"] != "Debian GNU/Linux 12 (bookworm)" {
		t.Errorf("Expected quotes stripped, got %s", rel["PRETTY_NAME"])
	}
	if _, ok := rel["# a comment"]; ok {
		t.Error("Expected comments to be skipped")
	}
}

func TestParseOSReleaseEmpty(t *testing.T) {
	rel := parseOSRelease("")
	if len(rel) != 0 {
		t.Errorf("Expected empty map, got %d entries", len(rel))
	}
}

func TestCollect(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	collector := NewCollector(logger)

	f, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("Failed to collect facts: %v", err)
	}

	if f.OS.Platform != runtime.GOOS {
		t.Errorf("Expected platform %s, got %s", runtime.GOOS, f.OS.Platform)
	}
	if f.OS.Arch != runtime.GOARCH {
		t.Errorf("Expected arch %s, got %s", runtime.GOARCH, f.OS.Arch)
	}
	if f.CPU.Count < 1 {
		t.Errorf("Expected at least one CPU, got %d", f.CPU.Count)
	}
	if f.CollectedAt.IsZero() {
		t.Error("Expected CollectedAt to be set")
	}
}

func TestCollectOSRelease(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	collector := NewCollector(logger)

	path := filepath.Join(t.TempDir(), "os-release")
	content := "ID=fedora\nVERSION_ID=40\nNAME=Fedora\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write os-release: %v", err)
	}
	collector.osReleasePath = path

	f, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("Failed to collect facts: %v", err)
	}

	if f.OS.ID != "fedora" {
		t.Errorf("Expected os id fedora, got %s", f.OS.ID)
	}
	if f.OS.Version != "40" {
		t.Errorf("Expected version 40, got %s", f.OS.Version)
	}
	if f.OS.Name != "Fedora" {
		t.Errorf("Expected name Fedora, got %s", f.OS.Name)
	}
}

func TestCollectCancelled(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	collector := NewCollector(logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := collector.Collect(ctx); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestMap(t *testing.T) {
	f := &Facts{
		OS: OSFacts{
			Platform: "linux",
			Arch:     "amd64",
			ID:       "debian",
		},
		CPU:   CPUFacts{Count: 8},
		Tools: ToolFacts{PkgConfig: "/usr/bin/pkg-config"},
	}

	m := f.Map()

	if m["os.platform"] != "linux" {
		t.Errorf("Expected os.platform linux, got %v", m["os.platform"])
	}
	if m["cpu.count"] != 8 {
		t.Errorf("Expected cpu.count 8, got %v", m["cpu.count"])
	}
	if m["tools.pkg_config"] != "/usr/bin/pkg-config" {
		t.Errorf("Expected pkg-config path, got %v", m["tools.pkg_config"])
	}
}
