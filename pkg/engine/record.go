package engine

import "fmt"

// Preference represents the user's declared intent for a package.
type Preference string

const (
	// UseSystem prefers an adequate system copy when one can be found.
	// This is the default for every package.
	UseSystem Preference = "system"

	// UseBundled always builds the bundled copy from source, skipping
	// system probing entirely.
	UseBundled Preference = "bundled"

	// ForceSystem demands the system copy; if no adequate copy is found
	// the configuration pass aborts with a conflict.
	ForceSystem Preference = "force-system"
)

// Valid reports whether p is one of the three known preferences.
func (p Preference) Valid() bool {
	switch p {
	case UseSystem, UseBundled, ForceSystem:
		return true
	}
	return false
}

// ParsePreference maps a configure-surface toggle value to a Preference.
// The surface values follow the established convention: "yes" prefers the
// system copy, "no" the bundled copy, and "force" demands the system copy.
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "yes", "system":
		return UseSystem, nil
	case "no", "bundled":
		return UseBundled, nil
	case "force", "force-system":
		return ForceSystem, nil
	}
	return "", fmt.Errorf("unknown preference %q (want yes, no, or force)", s)
}

// TriState is a three-valued flag whose zero value is explicitly unset.
type TriState string

const (
	// Unset means the field has not been resolved yet. Records leave the
	// engine with no Unset fields.
	Unset TriState = ""

	// Yes and No are the resolved states.
	Yes TriState = "yes"
	No  TriState = "no"
)

// String returns a printable form, rendering the unset state explicitly.
func (t TriState) String() string {
	if t == Unset {
		return "unset"
	}
	return string(t)
}

// ProvisioningRecord is the in-memory decision state for one package
// during a single configuration pass. A record is created fresh for each
// evaluation, populated by the four signal sources, and discarded once
// its decision has been reported. Only the build marker persists across
// passes, as external filesystem state owned by the build step.
type ProvisioningRecord struct {
	// Package is the catalog identifier, unique across the catalog.
	Package string `json:"package"`

	// Preference is the user's intent, possibly overridden to UseBundled
	// for the rest of the evaluation when a build marker is found.
	Preference Preference `json:"preference"`

	// Required says whether the package is needed at all on this
	// platform. Resolved by the requirement probe, or defaulted.
	Required TriState `json:"required"`

	// InstallFromSource is the verdict: Yes builds the bundled copy,
	// No relies on the system copy. Unset only mid-evaluation.
	InstallFromSource TriState `json:"install_from_source"`

	// AlreadyBuilt is set when a marker from a prior pass shows this
	// package was previously built from source in this tree.
	AlreadyBuilt bool `json:"already_built"`
}

// newRecord creates the record for one evaluation. An empty preference
// normalizes to UseSystem, the documented default.
func newRecord(pkg string, pref Preference) *ProvisioningRecord {
	if pref == "" {
		pref = UseSystem
	}
	return &ProvisioningRecord{
		Package:    pkg,
		Preference: pref,
	}
}
