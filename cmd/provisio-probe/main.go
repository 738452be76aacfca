// Package main implements the provisio probe harness binary.
// This is a minimal, self-contained binary that answers probe requests
// received via JSON-over-stdio: one REQ line in, one RESULT or ERROR
// line out, until stdin closes. It is the reference implementation of
// the guest side of the probe wire protocol, used to develop and test
// out-of-process probes without a catalog.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/provisio/provisio/pkg/probes/probeio"
)

const (
	version = "1.0.0"
	ttl     = 10 * time.Minute
)

type harness struct {
	encoder *probeio.Encoder
	decoder *probeio.Decoder
	checks  *checkSet
	served  int
}

func main() {
	checks, err := parseChecks(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if checks.showVersion {
		fmt.Printf("provisio-probe %s\n", version)
		os.Exit(0)
	}

	h := &harness{
		encoder: probeio.NewEncoder(os.Stdout),
		decoder: probeio.NewDecoder(os.Stdin),
		checks:  checks,
	}
	os.Exit(h.run())
}

// run serves requests until stdin closes or the TTL expires. The TTL
// keeps an abandoned harness from outliving its caller.
func (h *harness) run() int {
	deadline := time.Now().Add(ttl)

	for {
		if time.Now().After(deadline) {
			return 0
		}

		req, err := h.decoder.DecodeRequest()
		if errors.Is(err, io.EOF) {
			return 0
		}
		if err != nil {
			h.sendError("BAD_REQUEST", err.Error())
			return 1
		}
		h.served++

		if err := h.encoder.EncodeResult(h.checks.evaluate(req)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
			return 1
		}
	}
}

func (h *harness) sendError(code, message string) {
	_ = h.encoder.EncodeError(&probeio.ErrorReply{
		Code:    code,
		Message: message,
	})
}

// checkSet is the flag-configured verdict logic: every configured check
// must hold against the request for the finding to be positive. With no
// checks configured every request succeeds, which makes the bare
// harness an always-yes probe for protocol wiring tests.
type checkSet struct {
	platforms   stringList
	archs       stringList
	distros     stringList
	tools       stringList
	facts       stringList
	options     stringList
	negate      bool
	note        string
	showVersion bool
}

func parseChecks(args []string, errOut io.Writer) (*checkSet, error) {
	cs := &checkSet{}

	fs := flag.NewFlagSet("provisio-probe", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, "Usage: provisio-probe [checks]")
		fmt.Fprintln(errOut)
		fmt.Fprintln(errOut, "Reads probe requests as JSON lines on stdin and answers each on")
		fmt.Fprintln(errOut, "stdout. The finding is positive when every configured check holds.")
		fmt.Fprintln(errOut, "Availability requests answer with found, requirement requests with")
		fmt.Fprintln(errOut, "required.")
		fmt.Fprintln(errOut)
		fs.PrintDefaults()
	}

	fs.Var(&cs.platforms, "platform", "accepted os.platform values (repeatable, comma-separated)")
	fs.Var(&cs.archs, "arch", "accepted os.arch values (repeatable, comma-separated)")
	fs.Var(&cs.distros, "distro", "accepted os.id values (repeatable, comma-separated)")
	fs.Var(&cs.tools, "tool", "toolchain fact that must be present, e.g. cc or pkg_config (repeatable)")
	fs.Var(&cs.facts, "fact", "fact that must hold: key=value for equality, key for presence (repeatable)")
	fs.Var(&cs.options, "option", "option that must hold: key=value for equality, key for presence (repeatable)")
	fs.BoolVar(&cs.negate, "negate", false, "invert the finding")
	fs.StringVar(&cs.note, "note", "", "note to attach to every finding")
	fs.BoolVar(&cs.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(errOut, "unexpected argument %q\n", fs.Arg(0))
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return cs, nil
}

// evaluate applies the checks to one request. Checks are total: a
// missing fact fails its check, it never errors.
func (cs *checkSet) evaluate(req *probeio.Request) *probeio.Result {
	positive, reason := cs.apply(req)
	if cs.negate {
		positive = !positive
	}

	note := cs.note
	if note == "" {
		note = reason
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

// apply runs the checks in a fixed order and reports the first failure.
func (cs *checkSet) apply(req *probeio.Request) (bool, string) {
	if ok, reason := cs.matchFactList(req, "os.platform", cs.platforms); !ok {
		return false, reason
	}
	if ok, reason := cs.matchFactList(req, "os.arch", cs.archs); !ok {
		return false, reason
	}
	if ok, reason := cs.matchFactList(req, "os.id", cs.distros); !ok {
		return false, reason
	}

	for _, tool := range cs.tools {
		key := "tools." + tool
		if factString(req, key) == "" {
			return false, fmt.Sprintf("%s not present", key)
		}
	}

	for _, spec := range cs.facts {
		key, want, exact := strings.Cut(spec, "=")
		got := factString(req, key)
		if exact {
			if got != want {
				return false, fmt.Sprintf("%s is %q, want %q", key, got, want)
			}
		} else if got == "" {
			return false, fmt.Sprintf("%s not present", key)
		}
	}

	for _, spec := range cs.options {
		key, want, exact := strings.Cut(spec, "=")
		got := req.Options[key]
		if exact {
			if got != want {
				return false, fmt.Sprintf("option %s is %q, want %q", key, got, want)
			}
		} else if got == "" {
			return false, fmt.Sprintf("option %s not set", key)
		}
	}

	return true, ""
}

func (cs *checkSet) matchFactList(req *probeio.Request, key string, accepted stringList) (bool, string) {
	if len(accepted) == 0 {
		return true, ""
	}
	got := factString(req, key)
	for _, want := range accepted {
		if got == want {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s is %q, want one of %s", key, got, strings.Join(accepted, ", "))
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

// stringList is a repeatable flag that also splits comma-separated
// values.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		*l = append(*l, part)
	}
	return nil
}
