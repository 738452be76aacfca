package catalog

import (
	"fmt"
	"time"

	"github.com/provisio/provisio/pkg/engine"
)

// Catalog is a loaded, validated package catalog. Packages keep their
// declaration order; that order is the evaluation order of a pass.
type Catalog struct {
	// Path is the file the catalog was loaded from.
	Path string `json:"path"`

	// Packages are the descriptors in declaration order.
	Packages []Descriptor `json:"packages"`

	// LoadedAt is when the catalog was parsed.
	LoadedAt time.Time `json:"loaded_at"`
}

// Package returns the descriptor with the given name.
func (c *Catalog) Package(name string) (*Descriptor, bool) {
	for i := range c.Packages {
		if c.Packages[i].Name == name {
			return &c.Packages[i], true
		}
	}
	return nil, false
}

// Names returns the package names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Packages))
	for i := range c.Packages {
		names[i] = c.Packages[i].Name
	}
	return names
}

// Descriptor describes one package: how to detect a system copy, whether
// the package is needed at all, and what to run around the decision.
type Descriptor struct {
	// Name is the unique catalog identifier (e.g., "zlib").
	Name string `json:"name" yaml:"name" validate:"required"`

	// Description is the one-line help text of the package's toggle.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Default is the package's default preference when neither flag nor
	// prefs file names it. Accepts yes/no/force and their long forms
	// system/bundled/force-system. Empty means system.
	Default string `json:"default,omitempty" yaml:"default,omitempty" validate:"omitempty,oneof=yes no force system bundled force-system"`

	// Probes holds the optional availability and requirement probes.
	Probes ProbeSet `json:"probes,omitempty" yaml:"probes,omitempty"`

	// Hooks holds the optional pre and post evaluation hooks.
	Hooks HookSet `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// DefaultPreference resolves the descriptor's default preference token.
func (d *Descriptor) DefaultPreference() (engine.Preference, error) {
	if d.Default == "" {
		return engine.UseSystem, nil
	}
	return engine.ParsePreference(d.Default)
}

// ProbeSet groups a package's probes by role.
type ProbeSet struct {
	// Availability checks the host for an adequate system copy.
	Availability *ProbeSpec `json:"availability,omitempty" yaml:"availability,omitempty"`

	// Requirement decides whether the package is needed on this platform.
	Requirement *ProbeSpec `json:"requirement,omitempty" yaml:"requirement,omitempty"`
}

// HookSet groups a package's hooks by position.
type HookSet struct {
	Pre  *HookSpec `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post *HookSpec `json:"post,omitempty" yaml:"post,omitempty"`
}

// Probe spec types.
const (
	ProbeTypeCommand   = "command"
	ProbeTypePkgConfig = "pkgconfig"
	ProbeTypeFile      = "file"
	ProbeTypePlatform  = "platform"
	ProbeTypeStarlark  = "starlark"
	ProbeTypeRego      = "rego"
	ProbeTypeWasm      = "wasm"
)

// ProbeSpec is a tagged union selected by Type. Only the fields of the
// selected type are meaningful.
type ProbeSpec struct {
	// Type selects the probe runtime.
	Type string `json:"type" yaml:"type" validate:"required,oneof=command pkgconfig file platform starlark rego wasm"`

	// Command is the argv for command probes. The first element is looked
	// up in PATH; with more than one element the command is also run and
	// success means exit status zero.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Module and MinVersion configure pkgconfig probes.
	Module     string `json:"module,omitempty" yaml:"module,omitempty"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty"`

	// Paths and Match configure file probes. Match is "any" (default) or
	// "all".
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Match string   `json:"match,omitempty" yaml:"match,omitempty" validate:"omitempty,oneof=any all"`

	// OS and Arch configure platform probes; empty lists match everything.
	OS   []string `json:"os,omitempty" yaml:"os,omitempty"`
	Arch []string `json:"arch,omitempty" yaml:"arch,omitempty"`

	// Script is inline source for starlark probes; File is a script,
	// policy, or module path for starlark, rego, and wasm probes.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`

	// Rule is the rego rule to query (e.g., "data.provisio.found").
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`

	// Checksum is the required hex sha256 of a wasm module.
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`
}

// validateFields checks that the fields of the selected type are present.
func (p *ProbeSpec) validateFields() error {
	switch p.Type {
	case ProbeTypeCommand:
		if len(p.Command) == 0 {
			return fmt.Errorf("command probe needs a non-empty command")
		}
	case ProbeTypePkgConfig:
		if p.Module == "" {
			return fmt.Errorf("pkgconfig probe needs a module")
		}
	case ProbeTypeFile:
		if len(p.Paths) == 0 {
			return fmt.Errorf("file probe needs at least one path")
		}
	case ProbeTypePlatform:
		if len(p.OS) == 0 && len(p.Arch) == 0 {
			return fmt.Errorf("platform probe needs an os or arch list")
		}
	case ProbeTypeStarlark:
		if p.Script == "" && p.File == "" {
			return fmt.Errorf("starlark probe needs a script or file")
		}
		if p.Script != "" && p.File != "" {
			return fmt.Errorf("starlark probe takes script or file, not both")
		}
	case ProbeTypeRego:
		if p.File == "" {
			return fmt.Errorf("rego probe needs a policy file")
		}
	case ProbeTypeWasm:
		if p.File == "" {
			return fmt.Errorf("wasm probe needs a module file")
		}
		if p.Checksum == "" {
			return fmt.Errorf("wasm probe needs a sha256 checksum")
		}
	default:
		return fmt.Errorf("unknown probe type %q", p.Type)
	}
	return nil
}

// Hook spec types.
const (
	HookTypeCommand  = "command"
	HookTypeStarlark = "starlark"
)

// HookSpec describes a pre or post evaluation hook.
type HookSpec struct {
	// Type selects the hook runtime.
	Type string `json:"type" yaml:"type" validate:"required,oneof=command starlark"`

	// Command is the argv for command hooks.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Script is inline source for starlark hooks; File is a script path.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// validateFields checks that the fields of the selected type are present.
func (h *HookSpec) validateFields() error {
	switch h.Type {
	case HookTypeCommand:
		if len(h.Command) == 0 {
			return fmt.Errorf("command hook needs a non-empty command")
		}
	case HookTypeStarlark:
		if h.Script == "" && h.File == "" {
			return fmt.Errorf("starlark hook needs a script or file")
		}
	default:
		return fmt.Errorf("unknown hook type %q", h.Type)
	}
	return nil
}

// ValidationError pinpoints one problem in a catalog file.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// catalogDocument is the on-disk shape shared by the YAML and CUE forms.
type catalogDocument struct {
	Packages []Descriptor `json:"packages" yaml:"packages"`
}
