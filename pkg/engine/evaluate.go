package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Probe is an opaque policy fragment supplied by the catalog. A
// requirement probe may set rec.Required; an availability probe may set
// rec.InstallFromSource after inspecting the host. Probes read but never
// write options belonging to other packages' evaluations.
type Probe func(ctx context.Context, rec *ProvisioningRecord, opts *Options) error

// Hook is a side-effecting action with no bearing on the verdict, run
// unconditionally at a fixed point of the evaluation.
type Hook func(ctx context.Context, rec *ProvisioningRecord, opts *Options) error

// MarkerSource reports whether a prior configuration pass installed a
// package's bundled build in this tree. The engine only reads markers;
// creating and clearing them belongs to the build step.
type MarkerSource interface {
	Has(pkg string) (bool, error)
}

// Evaluation carries one package's inputs to the engine.
type Evaluation struct {
	// Package is the non-empty catalog identifier.
	Package string

	// Preference is the user's resolved intent for this pass.
	// Empty normalizes to UseSystem.
	Preference Preference

	// Default is the documented default of the package's configure
	// toggle, registered in the option namespace at entry.
	Default Preference

	// Help is the toggle's one-line description.
	Help string

	// AvailabilityProbe checks the host for an adequate system copy.
	// Absent means there is no way to detect one.
	AvailabilityProbe Probe

	// RequirementProbe decides whether the package is needed on this
	// platform. Absent means the package is always required.
	RequirementProbe Probe

	// PreHook and PostHook run unconditionally at entry and exit.
	PreHook  Hook
	PostHook Hook
}

// Evaluator computes per-package provisioning verdicts.
type Evaluator struct {
	markers MarkerSource
	logger  zerolog.Logger
}

// NewEvaluator creates an evaluator reading build markers from src.
// A nil src means no package is ever considered already built.
func NewEvaluator(src MarkerSource, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		markers: src,
		logger:  logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate runs the decision algorithm for one package and returns its
// Decision. The verdict merges the user preference, the prior-build
// marker, the requirement probe, and the availability probe:
//
//  1. The pre-hook runs.
//  2. If a build marker exists, the verdict is Yes, the preference is
//     treated as UseBundled from here on, and no probe runs.
//  3. The verdict defaults to No when an availability probe exists
//     (a determination is expected) and Yes when none does (bundling is
//     the only safe choice).
//  4. Required defaults to No when a requirement probe exists, then the
//     probe may flip it; with no probe the package is always required.
//  5. UseBundled forces the verdict to Yes. Otherwise a required
//     package's availability probe runs now and its outcome stands;
//     a package that is not required resolves to No.
//  6. ForceSystem with a Yes verdict is a fatal conflict.
//  7. The post-hook runs, on the conflict path too, before any error
//     is returned.
//
// A probe error is recoverable: the affected field reverts to its
// pre-probe default and the failure is noted on the decision. The only
// error Evaluate returns is the step-6 conflict.
func (e *Evaluator) Evaluate(ctx context.Context, ev *Evaluation, opts *Options) (*Decision, error) {
	if ev == nil {
		return nil, NewInternalError("evaluation is nil", nil).WithCode(ErrCodeInternal)
	}
	if ev.Package == "" {
		return nil, NewCatalogError("package name is empty", nil).
			WithCode(ErrCodeEmptyPackageName).
			WithOperation("evaluate")
	}
	if opts == nil {
		opts = NewOptions()
	}

	started := time.Now()
	rec := newRecord(ev.Package, ev.Preference)
	dec := &Decision{Package: ev.Package}

	e.logger.Info().
		Str("package", ev.Package).
		Str("preference", string(rec.Preference)).
		Msg("deciding provisioning source")

	opts.RegisterToggle(ev.Package, ev.Default, ev.Help)

	e.runHook(ctx, "pre", ev.PreHook, rec, opts)

	if e.hasMarker(ev.Package) {
		rec.AlreadyBuilt = true
		rec.InstallFromSource = Yes
		rec.Preference = UseBundled
	} else {
		if ev.AvailabilityProbe != nil {
			rec.InstallFromSource = No
		} else {
			rec.InstallFromSource = Yes
		}

		if ev.RequirementProbe != nil {
			rec.Required = No
			e.runProbe(ctx, "requirement", ev.RequirementProbe, rec, opts, dec, func(snap ProvisioningRecord) {
				rec.Required = snap.Required
			})
		} else {
			rec.Required = Yes
		}

		switch {
		case rec.Preference == UseBundled:
			rec.InstallFromSource = Yes
		case rec.Required == Yes:
			if ev.AvailabilityProbe != nil {
				e.runProbe(ctx, "availability", ev.AvailabilityProbe, rec, opts, dec, func(snap ProvisioningRecord) {
					rec.InstallFromSource = snap.InstallFromSource
				})
			}
		default:
			rec.InstallFromSource = No
		}
	}

	var evalErr error
	if rec.Preference == ForceSystem && rec.InstallFromSource == Yes {
		evalErr = NewConflictError(ev.Package,
			fmt.Sprintf("no adequate system copy of %s found, but --with-system %s=force was given", ev.Package, ev.Package)).
			WithCode(ErrCodeForcedSystemUnsatisfied).
			WithOperation("evaluate")
	}

	e.runHook(ctx, "post", ev.PostHook, rec, opts)

	opts.publishVerdict(ev.Package, rec.InstallFromSource)

	dec.Verdict = rec.InstallFromSource
	dec.Preference = rec.Preference
	dec.Required = rec.Required
	dec.AlreadyBuilt = rec.AlreadyBuilt
	dec.Duration = time.Since(started)

	if evalErr != nil {
		e.logger.Error().
			Str("package", ev.Package).
			Msg("explicit system-only request could not be satisfied")
		return dec, evalErr
	}

	e.logger.Debug().
		Str("package", ev.Package).
		Str("verdict", rec.InstallFromSource.String()).
		Dur("duration", dec.Duration).
		Msg("provisioning verdict resolved")

	return dec, nil
}

// hasMarker consults the marker source. Lookup failures count as no
// marker so a damaged records directory cannot block configuration.
func (e *Evaluator) hasMarker(pkg string) bool {
	if e.markers == nil {
		return false
	}
	ok, err := e.markers.Has(pkg)
	if err != nil {
		e.logger.Warn().
			Str("package", pkg).
			Err(err).
			Msg("marker lookup failed, treating package as not built")
		return false
	}
	return ok
}

// runProbe invokes a probe and degrades its failure to the pre-probe
// state: restore receives a snapshot taken before the call and puts the
// affected field back. The failure is noted on the decision for audit.
func (e *Evaluator) runProbe(ctx context.Context, kind string, probe Probe, rec *ProvisioningRecord, opts *Options, dec *Decision, restore func(snap ProvisioningRecord)) {
	snap := *rec
	if err := probe(ctx, rec, opts); err != nil {
		restore(snap)
		perr := NewProbeError(fmt.Sprintf("%s probe failed", kind), err).WithPackage(rec.Package)
		if ctx.Err() != nil {
			perr = perr.WithCode(ErrCodeProbeTimeout)
		}
		dec.Notes = append(dec.Notes, fmt.Sprintf("%s probe failed: %v", kind, err))
		e.logger.Warn().
			Str("package", rec.Package).
			Str("probe", kind).
			Err(perr).
			Msg("probe failed, falling back to default")
	}
}

// runHook invokes a hook when present. Hook errors are logged and
// dropped; hooks cannot change the verdict.
func (e *Evaluator) runHook(ctx context.Context, kind string, hook Hook, rec *ProvisioningRecord, opts *Options) {
	if hook == nil {
		return
	}
	if err := hook(ctx, rec, opts); err != nil {
		e.logger.Warn().
			Str("package", rec.Package).
			Str("hook", kind).
			Err(err).
			Msg("hook failed")
	}
}
