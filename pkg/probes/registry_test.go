package probes

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

func TestCompileCatalogWiring(t *testing.T) {
	cat := &catalog.Catalog{
		Packages: []catalog.Descriptor{
			{
				Name:        "zlib",
				Description: "zlib compression library",
				Probes: catalog.ProbeSet{
					Availability: &catalog.ProbeSpec{Type: catalog.ProbeTypePkgConfig, Module: "zlib"},
				},
			},
			{
				Name:    "yasm",
				Default: "bundled",
				Probes: catalog.ProbeSet{
					Availability: &catalog.ProbeSpec{Type: catalog.ProbeTypeCommand, Command: []string{"yasm"}},
					Requirement:  &catalog.ProbeSpec{Type: catalog.ProbeTypePlatform, Arch: []string{"amd64"}},
				},
			},
			{
				Name: "gmp",
				Hooks: catalog.HookSet{
					Pre: &catalog.HookSpec{Type: catalog.HookTypeCommand, Command: []string{"true"}},
				},
			},
		},
	}

	r := testRegistry(t, Config{})
	flags := catalog.Preferences{"zlib": engine.ForceSystem}
	file := catalog.Preferences{"yasm": engine.UseSystem}

	evals, err := r.CompileCatalog(context.Background(), cat, flags, file)
	if err != nil {
		t.Fatalf("Failed to compile catalog: %v", err)
	}
	if len(evals) != 3 {
		t.Fatalf("Expected 3 evaluations, got %d", len(evals))
	}

	zlib := evals[0]
	if zlib.Package != "zlib" {
		t.Errorf("Expected catalog order preserved, got %s first", zlib.Package)
	}
	if zlib.Preference != engine.ForceSystem {
		t.Errorf("Expected the flag preference to win, got %s", zlib.Preference)
	}
	if zlib.AvailabilityProbe == nil {
		t.Error("Expected an availability probe for zlib")
	}
	if zlib.RequirementProbe != nil {
		t.Error("Expected no requirement probe for zlib")
	}
	if zlib.Help != "zlib compression library" {
		t.Errorf("Expected the description as help text, got %q", zlib.Help)
	}

	yasm := evals[1]
	if yasm.Preference != engine.UseSystem {
		t.Errorf("Expected the file preference, got %s", yasm.Preference)
	}
	if yasm.Default != engine.UseBundled {
		t.Errorf("Expected the descriptor default, got %s", yasm.Default)
	}
	if yasm.AvailabilityProbe == nil || yasm.RequirementProbe == nil {
		t.Error("Expected both probes for yasm")
	}

	gmp := evals[2]
	if gmp.Preference != engine.UseSystem {
		t.Errorf("Expected the fallback preference, got %s", gmp.Preference)
	}
	if gmp.AvailabilityProbe != nil || gmp.RequirementProbe != nil {
		t.Error("Expected no probes for gmp")
	}
	if gmp.PreHook == nil {
		t.Error("Expected a pre hook for gmp")
	}
	if gmp.PostHook != nil {
		t.Error("Expected no post hook for gmp")
	}
}

func TestCompileCatalogUnknownProbeType(t *testing.T) {
	cat := &catalog.Catalog{
		Packages: []catalog.Descriptor{
			{
				Name: "zlib",
				Probes: catalog.ProbeSet{
					Availability: &catalog.ProbeSpec{Type: "magic"},
				},
			},
		},
	}

	r := testRegistry(t, Config{})
	_, err := r.CompileCatalog(context.Background(), cat, nil, nil)
	if err == nil {
		t.Fatal("Expected an error for an unknown probe type")
	}
	if !engine.IsCatalogError(err) {
		t.Errorf("Expected a catalog error, got %v", err)
	}
}

func TestProbeMutatesRecord(t *testing.T) {
	r := testRegistry(t, Config{})

	probe, err := r.compileProbe(context.Background(), "zlib", KindAvailability, &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = True\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	rec := &engine.ProvisioningRecord{Package: "zlib", Preference: engine.UseSystem}
	if err := probe(context.Background(), rec, engine.NewOptions()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if rec.InstallFromSource != engine.No {
		t.Errorf("Expected a found system copy to resolve to no, got %s", rec.InstallFromSource)
	}

	probe, err = r.compileProbe(context.Background(), "gf2x", KindRequirement, &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = False\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	rec = &engine.ProvisioningRecord{Package: "gf2x", Preference: engine.UseSystem}
	if err := probe(context.Background(), rec, engine.NewOptions()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if rec.Required != engine.No {
		t.Errorf("Expected not required, got %s", rec.Required)
	}
	if rec.InstallFromSource != engine.Unset {
		t.Errorf("Expected the verdict untouched by a requirement probe, got %s", rec.InstallFromSource)
	}
}

func TestProbeWithoutKindFinding(t *testing.T) {
	r := testRegistry(t, Config{})

	probe, err := r.compileProbe(context.Background(), "zlib", KindAvailability, &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = {\"required\": True}\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	rec := &engine.ProvisioningRecord{Package: "zlib", Preference: engine.UseSystem}
	err = probe(context.Background(), rec, engine.NewOptions())
	if err == nil {
		t.Fatal("Expected an error when the probe reports the wrong field")
	}
	if !strings.Contains(err.Error(), "no availability finding") {
		t.Errorf("Expected a missing-finding error, got %v", err)
	}
}

func TestVerdictFlowAcrossPackages(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	r := testRegistry(t, Config{})

	gmpProbe, err := r.compileProbe(context.Background(), "gmp", KindAvailability, &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = True\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile gmp probe: %v", err)
	}
	probe, err := r.compileProbe(context.Background(), "mpfr", KindAvailability, &catalog.ProbeSpec{
		Type:   catalog.ProbeTypeStarlark,
		Script: "result = verdicts.get(\"gmp\") == \"no\"\n",
	})
	if err != nil {
		t.Fatalf("Failed to compile probe: %v", err)
	}

	ev := engine.NewEvaluator(nil, logger)
	opts := engine.NewOptions()

	gmp := &engine.Evaluation{
		Package:           "gmp",
		Preference:        engine.ForceSystem,
		AvailabilityProbe: gmpProbe,
	}
	dec, err := ev.Evaluate(context.Background(), gmp, opts)
	if err != nil {
		t.Fatalf("Failed to evaluate gmp: %v", err)
	}
	if dec.Verdict != engine.No {
		t.Fatalf("Expected gmp verdict no, got %s", dec.Verdict)
	}

	mpfr := &engine.Evaluation{
		Package:           "mpfr",
		Preference:        engine.UseSystem,
		AvailabilityProbe: probe,
	}
	dec, err = ev.Evaluate(context.Background(), mpfr, opts)
	if err != nil {
		t.Fatalf("Failed to evaluate mpfr: %v", err)
	}
	if dec.Verdict != engine.No {
		t.Errorf("Expected the probe to see gmp's verdict and find mpfr, got %s", dec.Verdict)
	}
}

func TestCommandHookEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable here")
	}
	out := filepath.Join(t.TempDir(), "hook.out")
	t.Setenv("HOOK_OUT", out)

	r := testRegistry(t, Config{})
	hook, err := r.compileHook("gmp", "pre", &catalog.HookSpec{
		Type: catalog.HookTypeCommand,
		Command: []string{"sh", "-c",
			`echo "$PROVISIO_PACKAGE:$PROVISIO_STAGE:$PROVISIO_PREFERENCE:$PROVISIO_VERDICT" > "$HOOK_OUT"`},
	})
	if err != nil {
		t.Fatalf("Failed to compile hook: %v", err)
	}

	rec := &engine.ProvisioningRecord{Package: "gmp", Preference: engine.UseSystem}
	if err := hook(context.Background(), rec, engine.NewOptions()); err != nil {
		t.Fatalf("Hook failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read hook output: %v", err)
	}
	got := strings.TrimSpace(string(data))
	if got != "gmp:pre:system:unset" {
		t.Errorf("Expected the record in the environment, got %q", got)
	}
}

func TestCommandHookFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable here")
	}
	r := testRegistry(t, Config{})
	hook, err := r.compileHook("gmp", "post", &catalog.HookSpec{
		Type:    catalog.HookTypeCommand,
		Command: []string{"sh", "-c", "exit 2"},
	})
	if err != nil {
		t.Fatalf("Failed to compile hook: %v", err)
	}

	rec := &engine.ProvisioningRecord{Package: "gmp", Preference: engine.UseSystem}
	if err := hook(context.Background(), rec, engine.NewOptions()); err == nil {
		t.Error("Expected a nonzero exit to surface as an error")
	}
}

func TestApplyResult(t *testing.T) {
	found := true
	notFound := false

	tests := []struct {
		name        string
		kind        string
		res         probeio.Result
		wantOutcome string
		wantErr     bool
	}{
		{
			name:        "availability found",
			kind:        KindAvailability,
			res:         probeio.Result{Found: &found},
			wantOutcome: "found",
		},
		{
			name:        "availability not found",
			kind:        KindAvailability,
			res:         probeio.Result{Found: &notFound},
			wantOutcome: "not_found",
		},
		{
			name:        "requirement required",
			kind:        KindRequirement,
			res:         probeio.Result{Required: &found},
			wantOutcome: "required",
		},
		{
			name:        "requirement not required",
			kind:        KindRequirement,
			res:         probeio.Result{Required: &notFound},
			wantOutcome: "not_required",
		},
		{
			name:    "availability with only requirement field",
			kind:    KindAvailability,
			res:     probeio.Result{Required: &found},
			wantErr: true,
		},
		{
			name:    "requirement with only availability field",
			kind:    KindRequirement,
			res:     probeio.Result{Found: &found},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &engine.ProvisioningRecord{Package: "x"}
			outcome, err := applyResult(tt.kind, &tt.res, rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyResult() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && outcome != tt.wantOutcome {
				t.Errorf("Expected outcome %s, got %s", tt.wantOutcome, outcome)
			}
		})
	}
}

func TestApplyResultFields(t *testing.T) {
	found := true
	rec := &engine.ProvisioningRecord{Package: "zlib"}

	if _, err := applyResult(KindAvailability, &probeio.Result{Found: &found}, rec); err != nil {
		t.Fatalf("applyResult failed: %v", err)
	}
	if rec.InstallFromSource != engine.No {
		t.Errorf("Expected found to mean use the system copy, got %s", rec.InstallFromSource)
	}

	notFound := false
	if _, err := applyResult(KindAvailability, &probeio.Result{Found: &notFound}, rec); err != nil {
		t.Fatalf("applyResult failed: %v", err)
	}
	if rec.InstallFromSource != engine.Yes {
		t.Errorf("Expected not-found to mean build from source, got %s", rec.InstallFromSource)
	}
}

func TestResultFromMap(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]interface{}
		wantErr bool
	}{
		{
			name: "found and note",
			in:   map[string]interface{}{"found": true, "note": "ok"},
		},
		{
			name: "required only",
			in:   map[string]interface{}{"required": false},
		},
		{
			name:    "wrong type",
			in:      map[string]interface{}{"found": "yes"},
			wantErr: true,
		},
		{
			name:    "unknown key",
			in:      map[string]interface{}{"fond": true},
			wantErr: true,
		},
		{
			name:    "empty",
			in:      map[string]interface{}{},
			wantErr: true,
		},
		{
			name:    "note only",
			in:      map[string]interface{}{"note": "no finding"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resultFromMap(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("resultFromMap() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	r := testRegistry(t, Config{BaseDir: "/etc/provisio"})
	if got := r.resolvePath("probes/zlib.star"); got != "/etc/provisio/probes/zlib.star" {
		t.Errorf("Expected the base dir prefix, got %s", got)
	}
	if got := r.resolvePath("/abs/zlib.star"); got != "/abs/zlib.star" {
		t.Errorf("Expected absolute paths untouched, got %s", got)
	}

	r = testRegistry(t, Config{})
	if got := r.resolvePath("zlib.star"); got != "zlib.star" {
		t.Errorf("Expected relative paths untouched without a base dir, got %s", got)
	}
}

func TestVerdictStrings(t *testing.T) {
	if verdictStrings(nil) != nil {
		t.Error("Expected nil for no verdicts")
	}
	got := verdictStrings(map[string]engine.TriState{"zlib": engine.No, "gmp": engine.Yes})
	if got["zlib"] != "no" || got["gmp"] != "yes" {
		t.Errorf("Expected string verdicts, got %v", got)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := testRegistry(t, Config{})
	if r.timeout != defaultProbeTimeout {
		t.Errorf("Expected the default timeout, got %s", r.timeout)
	}
	r = testRegistry(t, Config{Timeout: 5 * time.Second})
	if r.timeout != 5*time.Second {
		t.Errorf("Expected the configured timeout, got %s", r.timeout)
	}
}

func TestRegistryClose(t *testing.T) {
	r := testRegistry(t, Config{})
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close without a runtime failed: %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}
