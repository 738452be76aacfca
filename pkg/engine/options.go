package engine

import "fmt"

// Toggle is the per-package configure switch registered at evaluation
// entry. Its default and help text feed the generated option listing.
type Toggle struct {
	// Package is the package the toggle controls.
	Package string `json:"package"`

	// Default is the preference applied when the user passes nothing.
	Default Preference `json:"default"`

	// Help is the one-line description shown in the option listing.
	Help string `json:"help,omitempty"`
}

// Flag returns the toggle's configure-surface spelling.
func (t Toggle) Flag() string {
	return fmt.Sprintf("--with-system %s=yes|no|force", t.Package)
}

// Options is the shared option namespace for one configuration pass.
// It replaces the ambient process-wide variables of classic configure
// scripts with an explicit object threaded through every evaluation:
// toggles are registered in catalog order, arbitrary string options can
// be set by hooks and read by later probes, and each package's verdict
// is published for packages declared after it.
//
// Options is not safe for concurrent use. The sequential pass is the
// only writer, so no locking is needed.
type Options struct {
	toggles   []Toggle
	toggleIdx map[string]int
	values    map[string]string
	verdicts  map[string]TriState
}

// NewOptions creates an empty option namespace for a pass.
func NewOptions() *Options {
	return &Options{
		toggleIdx: make(map[string]int),
		values:    make(map[string]string),
		verdicts:  make(map[string]TriState),
	}
}

// RegisterToggle records the per-package switch with its documented
// default. Re-registering a package updates the existing entry in place
// so the catalog-order position is kept.
func (o *Options) RegisterToggle(pkg string, def Preference, help string) {
	if def == "" {
		def = UseSystem
	}
	t := Toggle{Package: pkg, Default: def, Help: help}
	if i, ok := o.toggleIdx[pkg]; ok {
		o.toggles[i] = t
		return
	}
	o.toggleIdx[pkg] = len(o.toggles)
	o.toggles = append(o.toggles, t)
}

// Toggles returns the registered switches in registration order.
func (o *Options) Toggles() []Toggle {
	out := make([]Toggle, len(o.toggles))
	copy(out, o.toggles)
	return out
}

// Set stores an arbitrary option value. Later packages' probes and hooks
// observe values set by earlier ones.
func (o *Options) Set(key, value string) {
	o.values[key] = value
}

// Get returns an option value and whether it was set.
func (o *Options) Get(key string) (string, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Values returns a copy of all option values, for probe runtimes that
// hand the namespace to scripts as a read-only mapping.
func (o *Options) Values() map[string]string {
	out := make(map[string]string, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// Verdicts returns a copy of the published verdicts keyed by package.
func (o *Options) Verdicts() map[string]TriState {
	out := make(map[string]TriState, len(o.verdicts))
	for k, v := range o.verdicts {
		out[k] = v
	}
	return out
}

// publishVerdict records a package's resolved verdict for later packages.
func (o *Options) publishVerdict(pkg string, verdict TriState) {
	o.verdicts[pkg] = verdict
}

// Verdict returns the published verdict of an earlier package. The
// second return is false for packages not yet evaluated, so probes can
// distinguish "decided No" from "not decided".
func (o *Options) Verdict(pkg string) (TriState, bool) {
	v, ok := o.verdicts[pkg]
	return v, ok
}
