package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PassStatus represents the outcome of a configuration pass.
type PassStatus string

const (
	PassStatusCompleted PassStatus = "completed"
	PassStatusFailed    PassStatus = "failed"
)

// Decision is the audited outcome of one package evaluation.
type Decision struct {
	// Package is the catalog identifier.
	Package string `json:"package"`

	// Verdict is the resolved install decision: Yes builds the bundled
	// copy, No uses the system copy.
	Verdict TriState `json:"verdict"`

	// Preference is the effective preference; a build marker rewrites
	// it to UseBundled.
	Preference Preference `json:"preference"`

	// Required is the resolved platform requirement. It stays unset
	// when a marker short-circuited the evaluation.
	Required TriState `json:"required,omitempty"`

	// AlreadyBuilt records that a prior-pass marker decided the verdict.
	AlreadyBuilt bool `json:"already_built"`

	// Notes carries probe failures and other audit remarks.
	Notes []string `json:"notes,omitempty"`

	// Duration is the evaluation wall time.
	Duration time.Duration `json:"duration"`
}

// Report collects the decisions of one configuration pass.
type Report struct {
	// ID is the pass identifier.
	ID string `json:"id"`

	// CatalogPath is the catalog the pass evaluated.
	CatalogPath string `json:"catalog_path,omitempty"`

	// StartedAt and CompletedAt bound the pass.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Status is completed or failed.
	Status PassStatus `json:"status"`

	// Decisions are the resolved packages in catalog order. On a failed
	// pass they include every package up to and including the one that
	// conflicted; later packages were never evaluated.
	Decisions []Decision `json:"decisions"`

	// Failure is the fatal error that aborted the pass, if any.
	Failure *EngineError `json:"failure,omitempty"`

	// Summary counts the verdicts.
	Summary ReportSummary `json:"summary"`
}

// ReportSummary provides statistics about a pass.
type ReportSummary struct {
	// Total is the number of packages evaluated.
	Total int `json:"total"`

	// FromSource is the number of Yes verdicts.
	FromSource int `json:"from_source"`

	// FromSystem is the number of No verdicts.
	FromSystem int `json:"from_system"`

	// AlreadyBuilt is the number of marker-decided packages.
	AlreadyBuilt int `json:"already_built"`
}

// add appends a decision and updates the summary.
func (r *Report) add(dec Decision) {
	r.Decisions = append(r.Decisions, dec)
	r.Summary.Total++
	switch dec.Verdict {
	case Yes:
		r.Summary.FromSource++
	case No:
		r.Summary.FromSystem++
	}
	if dec.AlreadyBuilt {
		r.Summary.AlreadyBuilt++
	}
}

// RenderTable formats the report as aligned text for terminal output.
func (r *Report) RenderTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-12s %-14s %s\n", "PACKAGE", "VERDICT", "PREFERENCE", "NOTES")
	for _, d := range r.Decisions {
		verdict := "use system"
		if d.Verdict == Yes {
			verdict = "build"
		}
		var notes []string
		if d.AlreadyBuilt {
			notes = append(notes, "already built")
		}
		if d.Required == No {
			notes = append(notes, "not required")
		}
		notes = append(notes, d.Notes...)
		fmt.Fprintf(&b, "%-24s %-12s %-14s %s\n", d.Package, verdict, d.Preference, strings.Join(notes, "; "))
	}
	fmt.Fprintf(&b, "\n%d packages: %d from source, %d from system (%d already built)\n",
		r.Summary.Total, r.Summary.FromSource, r.Summary.FromSystem, r.Summary.AlreadyBuilt)
	if r.Failure != nil {
		fmt.Fprintf(&b, "configuration failed: %s\n", r.Failure.Error())
	}
	return b.String()
}

// RenderJSON formats the report as indented JSON.
func (r *Report) RenderJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
