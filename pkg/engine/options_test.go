package engine

import "testing"

func TestToggleFlag(t *testing.T) {
	toggle := Toggle{Package: "zlib", Default: UseSystem}
	want := "--with-system zlib=yes|no|force"
	if got := toggle.Flag(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRegisterToggleOrder(t *testing.T) {
	opts := NewOptions()
	opts.RegisterToggle("zlib", UseSystem, "compression")
	opts.RegisterToggle("gmp", UseBundled, "arbitrary precision arithmetic")
	opts.RegisterToggle("mpfr", UseSystem, "multiple-precision floats")

	toggles := opts.Toggles()
	if len(toggles) != 3 {
		t.Fatalf("Expected three toggles, got %d", len(toggles))
	}
	for i, pkg := range []string{"zlib", "gmp", "mpfr"} {
		if toggles[i].Package != pkg {
			t.Errorf("Expected %s at position %d, got %s", pkg, i, toggles[i].Package)
		}
	}
}

func TestRegisterToggleUpdatesInPlace(t *testing.T) {
	opts := NewOptions()
	opts.RegisterToggle("zlib", UseSystem, "old help")
	opts.RegisterToggle("gmp", UseSystem, "")
	opts.RegisterToggle("zlib", UseBundled, "new help")

	toggles := opts.Toggles()
	if len(toggles) != 2 {
		t.Fatalf("Expected re-registration not to grow the list, got %d entries", len(toggles))
	}
	if toggles[0].Package != "zlib" {
		t.Errorf("Expected zlib to keep its position, got %s", toggles[0].Package)
	}
	if toggles[0].Default != UseBundled || toggles[0].Help != "new help" {
		t.Errorf("Expected the entry updated, got %+v", toggles[0])
	}
}

func TestRegisterToggleEmptyDefault(t *testing.T) {
	opts := NewOptions()
	opts.RegisterToggle("zlib", "", "")

	if got := opts.Toggles()[0].Default; got != UseSystem {
		t.Errorf("Expected an empty default to normalize to system, got %s", got)
	}
}

func TestTogglesReturnsCopy(t *testing.T) {
	opts := NewOptions()
	opts.RegisterToggle("zlib", UseSystem, "")

	got := opts.Toggles()
	got[0].Package = "mutated"

	if opts.Toggles()[0].Package != "zlib" {
		t.Error("Expected mutation of the returned slice not to leak back")
	}
}

func TestOptionValues(t *testing.T) {
	opts := NewOptions()

	if _, ok := opts.Get("missing"); ok {
		t.Error("Expected a missing key to report not set")
	}

	opts.Set("gmp_header_dir", "/usr/include")
	v, ok := opts.Get("gmp_header_dir")
	if !ok || v != "/usr/include" {
		t.Errorf("Expected the stored value, got %q (set=%v)", v, ok)
	}

	opts.Set("gmp_header_dir", "/opt/include")
	if v, _ := opts.Get("gmp_header_dir"); v != "/opt/include" {
		t.Errorf("Expected the overwritten value, got %q", v)
	}
}

func TestValuesReturnsCopy(t *testing.T) {
	opts := NewOptions()
	opts.Set("key", "value")

	snapshot := opts.Values()
	snapshot["key"] = "mutated"
	snapshot["extra"] = "added"

	if v, _ := opts.Get("key"); v != "value" {
		t.Errorf("Expected the namespace untouched, got %q", v)
	}
	if _, ok := opts.Get("extra"); ok {
		t.Error("Expected additions to the copy not to leak back")
	}
}

func TestVerdictLifecycle(t *testing.T) {
	opts := NewOptions()

	if _, ok := opts.Verdict("zlib"); ok {
		t.Error("Expected no verdict before evaluation")
	}

	opts.publishVerdict("zlib", No)
	v, ok := opts.Verdict("zlib")
	if !ok || v != No {
		t.Errorf("Expected the published verdict, got %s (published=%v)", v, ok)
	}

	all := opts.Verdicts()
	if len(all) != 1 || all["zlib"] != No {
		t.Errorf("Expected one published verdict, got %v", all)
	}

	all["zlib"] = Yes
	if v, _ := opts.Verdict("zlib"); v != No {
		t.Error("Expected mutation of the verdict copy not to leak back")
	}
}
