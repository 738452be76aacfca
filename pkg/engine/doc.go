// Package engine implements the provisioning decision core: for each
// package in a catalog, decide whether to build the bundled copy from
// source or rely on a copy already present on the host system.
//
// # Overview
//
// A configuration pass walks the catalog in declaration order and runs one
// evaluation per package. Each evaluation merges four independent signals
// into a single verdict:
//
//  1. User preference - use-system (default), use-bundled, or force-system
//  2. Prior-build marker - the package was already built from source by an
//     earlier pass on this tree
//  3. Requirement probe - is the package needed on this platform at all
//  4. Availability probe - does the host carry an adequate system copy
//
// The verdict is recorded on a ProvisioningRecord and reported as a
// Decision; a Report collects the decisions of one pass.
//
// # Core Domain Types
//
//   - ProvisioningRecord: per-package decision state for a single pass
//   - Preference: the user's declared intent for a package
//   - TriState: yes/no with an explicit unset zero value
//   - Evaluation: one package's inputs (probes, hooks, preference)
//   - Options: the shared option namespace threaded through a pass
//   - Decision / Report: the audited outcome of an evaluation / a pass
//
// # Probes and Hooks
//
// Probes and hooks are opaque policy fragments supplied by the catalog:
//
//	type Probe func(ctx context.Context, rec *ProvisioningRecord, opts *Options) error
//	type Hook  func(ctx context.Context, rec *ProvisioningRecord, opts *Options) error
//
// A requirement probe may set rec.Required; an availability probe may set
// rec.InstallFromSource. Hooks run unconditionally at fixed points and
// never influence the verdict. A probe error is recoverable: the engine
// falls back to the record's pre-probe default and continues.
//
// # Error Classification
//
//   - Conflict: a force-system directive could not be satisfied; aborts
//     the whole pass
//   - Probe: a probe failed to execute; degraded locally, never fatal
//   - Catalog: malformed catalog input, rejected at load time
//   - Store: history persistence failure
//   - Internal: engine invariant violation
//
// Use the helper predicates to classify errors:
//
//	if engine.IsConflict(err) {
//	    // the pass was aborted, exit non-zero
//	}
//
// # Sequencing
//
// Evaluations are strictly sequential in catalog order. Each evaluation's
// side effects (option registration, verdict publication) are visible to
// every later package's probes. Nothing in this package is safe for
// concurrent use; exclusivity is guaranteed by the single-threaded pass.
package engine
