// Package main implements the linux.sysdep probe for provisio.
// This probe decides availability and requirement for common system
// dependencies from distro facts alone and compiles to WASM for
// sandboxed, portable execution: it never touches the host, everything
// it needs rides in on the request.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/provisio/provisio/pkg/probes/probeio"
)

// Rule describes when a dependency is needed and when the distro's own
// copy can be trusted.
type Rule struct {
	// Platforms where the package is needed at all. Empty means needed
	// everywhere.
	Platforms []string

	// Distros whose system packages are trusted for this dependency.
	// Empty means no distro is trusted by default.
	Distros []string

	// Tools are fact keys under tools. that must be present for a
	// system copy to be usable, e.g. pkg_config to locate it.
	Tools []string
}

// defaultRules covers the dependencies this probe knows. Distro lists
// name os-release ids.
var defaultRules = map[string]Rule{
	"zlib": {
		Distros: []string{"debian", "ubuntu", "fedora", "arch", "opensuse-leap"},
		Tools:   []string{"pkg_config"},
	},
	"bzip2": {
		Distros: []string{"debian", "ubuntu", "fedora", "arch"},
		Tools:   []string{"cc"},
	},
	"sqlite3": {
		Distros: []string{"debian", "ubuntu", "fedora"},
		Tools:   []string{"pkg_config"},
	},
	"openssl": {
		Distros: []string{"debian", "ubuntu", "fedora"},
		Tools:   []string{"pkg_config"},
	},
	// Exact-arithmetic stack: distro builds lag and ABI breaks ripple,
	// so no distro copy is trusted.
	"gmp":  {},
	"mpfr": {},
	"mpc":  {},
	// Hand-tuned assembly only exists for these platforms; elsewhere the
	// generic bundled code is not worth building.
	"gf2x": {
		Platforms: []string{"linux"},
	},
}

// trustOption names the request option that extends every rule's
// trusted distro list, comma-separated.
const trustOption = "linux-sysdep.trust"

// Probe answers availability and requirement requests from a rule
// table.
type Probe struct {
	rules map[string]Rule
}

// NewProbe creates a probe with the built-in rules.
func NewProbe() *Probe {
	return &Probe{rules: defaultRules}
}

// Answer evaluates one request. Unknown packages get conservative
// findings: required everywhere, no trusted system copy.
func (p *Probe) Answer(req *probeio.Request) *probeio.Result {
	var positive bool
	var note string

	switch req.Kind {
	case probeio.KindRequirement:
		positive, note = p.required(req)
	default:
		positive, note = p.available(req)
	}

	v := positive
	res := &probeio.Result{Note: note}
	if req.Kind == probeio.KindRequirement {
		res.Required = &v
	} else {
		res.Found = &v
	}
	return res
}

func (p *Probe) required(req *probeio.Request) (bool, string) {
	rule, known := p.rules[req.Package]
	if !known {
		return true, fmt.Sprintf("no rule for %s, assuming required", req.Package)
	}
	if len(rule.Platforms) == 0 {
		return true, ""
	}

	platform := factString(req, "os.platform")
	for _, want := range rule.Platforms {
		if platform == want {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s is only needed on %s, host is %s",
		req.Package, strings.Join(rule.Platforms, ", "), platform)
}

func (p *Probe) available(req *probeio.Request) (bool, string) {
	rule, known := p.rules[req.Package]
	if !known {
		return false, fmt.Sprintf("no rule for %s", req.Package)
	}

	distros := rule.Distros
	if extra := req.Options[trustOption]; extra != "" {
		distros = append([]string(nil), rule.Distros...)
		for _, id := range strings.Split(extra, ",") {
			if id = strings.TrimSpace(id); id != "" {
				distros = append(distros, id)
			}
		}
	}
	if len(distros) == 0 {
		return false, fmt.Sprintf("no distro copy of %s is trusted", req.Package)
	}

	id := factString(req, "os.id")
	trusted := false
	for _, want := range distros {
		if id == want {
			trusted = true
			break
		}
	}
	if !trusted {
		return false, fmt.Sprintf("distro %q is not trusted for %s", id, req.Package)
	}

	for _, tool := range rule.Tools {
		key := "tools." + tool
		if factString(req, key) == "" {
			return false, fmt.Sprintf("%s needed to use the system %s is missing", key, req.Package)
		}
	}

	return true, fmt.Sprintf("system %s from %s", req.Package, id)
}

// factString reads a fact as a string. Facts carry mixed value types;
// non-strings compare by their printed form.
func factString(req *probeio.Request, key string) string {
	v, ok := req.Facts[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// main serves requests from stdin until it closes. Run as a WASI
// command the module sees exactly one request per instantiation; run
// natively it serves a whole session.
func main() {
	probe := NewProbe()
	encoder := probeio.NewEncoder(os.Stdout)
	decoder := probeio.NewDecoder(os.Stdin)

	for {
		req, err := decoder.DecodeRequest()
		if err == io.EOF {
			return
		}
		if err != nil {
			_ = encoder.EncodeError(&probeio.ErrorReply{
				Code:    "BAD_REQUEST",
				Message: err.Error(),
			})
			os.Exit(1)
		}

		if err := encoder.EncodeResult(probe.Answer(req)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
			os.Exit(1)
		}
	}
}
