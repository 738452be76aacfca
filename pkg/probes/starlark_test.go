package probes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

func TestStarlarkProbeBoolResult(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = kind == \"availability\"\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	res, err := run(context.Background(), availabilityRequest("zlib"))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("Expected found=true from the script")
	}
}

func TestStarlarkProbeDictResult(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("gmp", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = {\"found\": False, \"note\": \"header missing\"}\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	res, err := run(context.Background(), availabilityRequest("gmp"))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.Found == nil || *res.Found {
		t.Error("Expected found=false from the dict result")
	}
	if res.Note != "header missing" {
		t.Errorf("Expected note to carry through, got %q", res.Note)
	}
}

func TestStarlarkProbeReadsEnvironment(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("gmp", &catalog.ProbeSpec{
		Type: catalog.ProbeTypeStarlark,
		Script: "result = (package == \"gmp\" and\n" +
			"    facts.get(\"os.platform\") == \"linux\" and\n" +
			"    options.get(\"with_system_mpfr\") == \"yes\" and\n" +
			"    verdicts.get(\"zlib\") == \"no\")\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	req := &probeio.Request{
		Package:  "gmp",
		Kind:     KindAvailability,
		Facts:    map[string]interface{}{"os.platform": "linux"},
		Options:  map[string]string{"with_system_mpfr": "yes"},
		Verdicts: map[string]string{"zlib": "no"},
	}
	res, err := run(context.Background(), req)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("Expected the script to see package, facts, options, and verdicts")
	}
}

func TestStarlarkProbeFromFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "check.star")
	if err := os.WriteFile(script, []byte("result = True\n"), 0644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	r := testRegistry(t, Config{BaseDir: dir})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type: catalog.ProbeTypeStarlark,
		File: "check.star",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	res, err := run(context.Background(), availabilityRequest("zlib"))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if res.Found == nil || !*res.Found {
		t.Error("Expected found from the file script")
	}
}

func TestStarlarkProbeMissingFile(t *testing.T) {
	r := testRegistry(t, Config{BaseDir: t.TempDir()})
	_, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type: catalog.ProbeTypeStarlark,
		File: "absent.star",
	})
	if err == nil {
		t.Fatal("Expected a compile error for a missing script file")
	}
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected an EngineError, got %T", err)
	}
	if engErr.Code != engine.ErrCodeInvalidProbeSpec {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeInvalidProbeSpec, engErr.Code)
	}
}

func TestStarlarkProbeNoResult(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "x = 1\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	_, err = run(context.Background(), availabilityRequest("zlib"))
	if err == nil {
		t.Error("Expected an error when the script assigns no result")
	}
}

func TestStarlarkProbeRuntimeError(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = facts[\"no.such.key\"]\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	_, err = run(context.Background(), availabilityRequest("zlib"))
	if err == nil {
		t.Error("Expected a runtime error to surface")
	}
}

func TestStarlarkProbeCancelled(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "for i in range(100000000):\n    pass\nresult = True\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = run(ctx, availabilityRequest("zlib"))
	if err == nil {
		t.Error("Expected cancellation to stop the script")
	}
}

func TestStarlarkHookSetsOptions(t *testing.T) {
	r := testRegistry(t, Config{})
	hook, err := r.compileHook("mpfr", "pre", &catalog.HookSpec{
		Type:   catalog.HookTypeStarlark,
		Script: "set_option(\"seen_\" + package, preference)\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile hook: %v", err)
	}

	rec := &engine.ProvisioningRecord{Package: "mpfr", Preference: engine.UseBundled}
	opts := engine.NewOptions()
	if err := hook(context.Background(), rec, opts); err != nil {
		t.Fatalf("Hook failed: %v", err)
	}

	v, ok := opts.Get("seen_mpfr")
	if !ok {
		t.Fatal("Expected the hook to set an option")
	}
	if v != string(engine.UseBundled) {
		t.Errorf("Expected preference value, got %q", v)
	}
}

func TestStarlarkHookReadsOptions(t *testing.T) {
	r := testRegistry(t, Config{})
	hook, err := r.compileHook("mpfr", "post", &catalog.HookSpec{
		Type: catalog.HookTypeStarlark,
		Script: "v = get_option(\"threshold\")\n" +
			"set_option(\"echo\", v if v != None else \"unset\")\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile hook: %v", err)
	}

	rec := &engine.ProvisioningRecord{Package: "mpfr", Preference: engine.UseSystem}
	opts := engine.NewOptions()
	opts.Set("threshold", "128")
	if err := hook(context.Background(), rec, opts); err != nil {
		t.Fatalf("Hook failed: %v", err)
	}

	if v, _ := opts.Get("echo"); v != "128" {
		t.Errorf("Expected get_option to read the namespace, got %q", v)
	}
}

func TestStarlarkResultWrongType(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = 42\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	_, err = run(context.Background(), availabilityRequest("zlib"))
	if err == nil {
		t.Error("Expected an error for a non-bool, non-dict result")
	}
}

func TestStarlarkResultUnknownKey(t *testing.T) {
	r := testRegistry(t, Config{})
	run, err := r.compileStarlark("zlib", &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = {\"fond\": True}\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	_, err = run(context.Background(), availabilityRequest("zlib"))
	if err == nil {
		t.Error("Expected an error for an unknown result key")
	}
}
