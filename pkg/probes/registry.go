package probes

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/facts"
	"github.com/provisio/provisio/pkg/probes/probeio"
	"github.com/provisio/provisio/pkg/telemetry"
)

// defaultProbeTimeout bounds a single probe run.
const defaultProbeTimeout = 30 * time.Second

// Probe kinds, re-exported so callers need not import probeio.
const (
	KindAvailability = probeio.KindAvailability
	KindRequirement  = probeio.KindRequirement
)

// Config carries the registry's dependencies.
type Config struct {
	// BaseDir anchors relative script and module paths, usually the
	// directory of the catalog file.
	BaseDir string

	// Timeout bounds each probe run. Zero means defaultProbeTimeout.
	Timeout time.Duration

	// Facts is the host snapshot handed to every probe.
	Facts *facts.Facts

	// Metrics receives per-run counters when set.
	Metrics *telemetry.Metrics
}

// Registry compiles catalog probe and hook specs into the closures the
// engine runs. Compilation reads scripts, verifies checksums, and
// prepares policy queries once, so a bad spec fails the pass before any
// package is evaluated.
type Registry struct {
	logger  zerolog.Logger
	facts   map[string]interface{}
	metrics *telemetry.Metrics
	baseDir string
	timeout time.Duration

	wasmMu      sync.Mutex
	wasmRuntime wazero.Runtime
	wasmModules map[string]wazero.CompiledModule
}

// NewRegistry creates a probe registry.
func NewRegistry(cfg Config, logger zerolog.Logger) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	var factsMap map[string]interface{}
	if cfg.Facts != nil {
		factsMap = cfg.Facts.Map()
	}
	return &Registry{
		logger:      logger.With().Str("component", "probes").Logger(),
		facts:       factsMap,
		metrics:     cfg.Metrics,
		baseDir:     cfg.BaseDir,
		timeout:     timeout,
		wasmModules: make(map[string]wazero.CompiledModule),
	}
}

// CompileCatalog builds the engine inputs for every package in cat, in
// catalog order. Preferences resolve per package: flags beat the
// preference file, which beats the descriptor default. Any spec that
// fails to compile aborts the whole catalog.
func (r *Registry) CompileCatalog(ctx context.Context, cat *catalog.Catalog, flags, file catalog.Preferences) ([]engine.Evaluation, error) {
	evals := make([]engine.Evaluation, 0, len(cat.Packages))
	for i := range cat.Packages {
		ev, err := r.compilePackage(ctx, &cat.Packages[i], flags, file)
		if err != nil {
			return nil, err
		}
		evals = append(evals, *ev)
	}
	r.logger.Debug().
		Int("packages", len(evals)).
		Msg("catalog compiled")
	return evals, nil
}

func (r *Registry) compilePackage(ctx context.Context, d *catalog.Descriptor, flags, file catalog.Preferences) (*engine.Evaluation, error) {
	pref, err := catalog.ResolvePreference(d, flags, file)
	if err != nil {
		return nil, err
	}
	def, err := d.DefaultPreference()
	if err != nil {
		return nil, err
	}

	ev := &engine.Evaluation{
		Package:    d.Name,
		Preference: pref,
		Default:    def,
		Help:       d.Description,
	}

	if d.Probes.Availability != nil {
		p, err := r.compileProbe(ctx, d.Name, KindAvailability, d.Probes.Availability)
		if err != nil {
			return nil, err
		}
		ev.AvailabilityProbe = p
	}
	if d.Probes.Requirement != nil {
		p, err := r.compileProbe(ctx, d.Name, KindRequirement, d.Probes.Requirement)
		if err != nil {
			return nil, err
		}
		ev.RequirementProbe = p
	}
	if d.Hooks.Pre != nil {
		h, err := r.compileHook(d.Name, "pre", d.Hooks.Pre)
		if err != nil {
			return nil, err
		}
		ev.PreHook = h
	}
	if d.Hooks.Post != nil {
		h, err := r.compileHook(d.Name, "post", d.Hooks.Post)
		if err != nil {
			return nil, err
		}
		ev.PostHook = h
	}

	return ev, nil
}

// runFunc is the uniform runtime contract: every probe runtime takes
// the request and reports a finding or an error. Determinate negatives
// (tool missing, file absent, rule false) are findings, not errors.
type runFunc func(ctx context.Context, req *probeio.Request) (*probeio.Result, error)

func (r *Registry) compileProbe(ctx context.Context, pkg, kind string, spec *catalog.ProbeSpec) (engine.Probe, error) {
	var run runFunc
	var err error

	switch spec.Type {
	case catalog.ProbeTypeCommand:
		run = r.compileCommand(spec)
	case catalog.ProbeTypePkgConfig:
		run = r.compilePkgConfig(spec)
	case catalog.ProbeTypeFile:
		run = r.compileFile(spec)
	case catalog.ProbeTypePlatform:
		run = r.compilePlatform(spec)
	case catalog.ProbeTypeStarlark:
		run, err = r.compileStarlark(pkg, spec)
	case catalog.ProbeTypeRego:
		run, err = r.compileRego(ctx, pkg, spec)
	case catalog.ProbeTypeWasm:
		run, err = r.compileWasm(ctx, pkg, spec)
	default:
		err = engine.NewCatalogError(fmt.Sprintf("unknown probe type %s", spec.Type), nil).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}
	if err != nil {
		return nil, err
	}

	return r.adapt(pkg, kind, spec.Type, run), nil
}

// adapt wraps a runtime in the engine's probe contract: build the
// request, bound the run, and write the finding onto the field the kind
// owns. Runtime errors pass through so the engine can restore the
// pre-probe default and note the failure.
func (r *Registry) adapt(pkg, kind, runtime string, run runFunc) engine.Probe {
	logger := r.logger.With().
		Str("package", pkg).
		Str("probe", kind).
		Str("runtime", runtime).
		Logger()

	return func(ctx context.Context, rec *engine.ProvisioningRecord, opts *engine.Options) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		req := &probeio.Request{
			Package:  pkg,
			Kind:     kind,
			Facts:    r.facts,
			Options:  opts.Values(),
			Verdicts: verdictStrings(opts.Verdicts()),
			Timeout:  int(r.timeout.Seconds()),
		}

		started := time.Now()
		res, err := run(ctx, req)
		elapsed := time.Since(started)

		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordProbeRun(kind, runtime, "error", elapsed)
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("probe timed out after %s: %w", r.timeout, err)
			}
			return err
		}

		outcome, err := applyResult(kind, res, rec)
		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordProbeRun(kind, runtime, "error", elapsed)
			}
			return err
		}
		if r.metrics != nil {
			r.metrics.RecordProbeRun(kind, runtime, outcome, elapsed)
		}

		evt := logger.Debug().
			Str("outcome", outcome).
			Dur("duration", elapsed)
		if res.Note != "" {
			evt = evt.Str("note", res.Note)
		}
		evt.Msg("probe finished")

		return nil
	}
}

// applyResult maps a finding onto the field its kind owns. A result
// carrying only the other kind's field is a runtime defect and counts
// as a probe failure.
func applyResult(kind string, res *probeio.Result, rec *engine.ProvisioningRecord) (string, error) {
	switch kind {
	case KindAvailability:
		if res.Found == nil {
			return "", fmt.Errorf("probe returned no availability finding")
		}
		if *res.Found {
			rec.InstallFromSource = engine.No
			return "found", nil
		}
		rec.InstallFromSource = engine.Yes
		return "not_found", nil

	case KindRequirement:
		if res.Required == nil {
			return "", fmt.Errorf("probe returned no requirement finding")
		}
		if *res.Required {
			rec.Required = engine.Yes
			return "required", nil
		}
		rec.Required = engine.No
		return "not_required", nil
	}
	return "", fmt.Errorf("unknown probe kind %s", kind)
}

// kindResult builds the finding for a boolean runtime, on the field the
// request's kind owns.
func kindResult(kind string, positive bool) *probeio.Result {
	v := positive
	res := &probeio.Result{}
	if kind == KindRequirement {
		res.Required = &v
	} else {
		res.Found = &v
	}
	return res
}

// resultFromMap converts a script's mapping result into a finding.
// Recognized keys are found, required, and note.
func resultFromMap(m map[string]interface{}) (*probeio.Result, error) {
	res := &probeio.Result{}
	for key, raw := range m {
		switch key {
		case "found":
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("result key found must be a bool, got %T", raw)
			}
			res.Found = &b
		case "required":
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("result key required must be a bool, got %T", raw)
			}
			res.Required = &b
		case "note":
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("result key note must be a string, got %T", raw)
			}
			res.Note = s
		default:
			return nil, fmt.Errorf("unknown result key %q", key)
		}
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func verdictStrings(verdicts map[string]engine.TriState) map[string]string {
	if len(verdicts) == 0 {
		return nil
	}
	out := make(map[string]string, len(verdicts))
	for pkg, v := range verdicts {
		out[pkg] = v.String()
	}
	return out
}

// resolvePath anchors relative script and module paths at the catalog
// directory so catalogs stay relocatable.
func (r *Registry) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || r.baseDir == "" {
		return p
	}
	return filepath.Join(r.baseDir, p)
}

// Close releases the shared WASM runtime. Safe to call when no wasm
// probe was ever compiled.
func (r *Registry) Close(ctx context.Context) error {
	r.wasmMu.Lock()
	defer r.wasmMu.Unlock()
	if r.wasmRuntime == nil {
		return nil
	}
	err := r.wasmRuntime.Close(ctx)
	r.wasmRuntime = nil
	r.wasmModules = make(map[string]wazero.CompiledModule)
	return err
}
