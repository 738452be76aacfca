package probes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

// compileCommand builds a command probe. A single-element argv checks
// for the executable on PATH; a longer argv runs it and reads the exit
// status. A missing executable or nonzero exit is a determinate
// negative, not an error.
func (r *Registry) compileCommand(spec *catalog.ProbeSpec) runFunc {
	argv := append([]string(nil), spec.Command...)

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		path, err := exec.LookPath(argv[0])
		if err != nil {
			res := kindResult(req.Kind, false)
			res.Note = fmt.Sprintf("%s not on PATH", argv[0])
			return res, nil
		}

		if len(argv) == 1 {
			res := kindResult(req.Kind, true)
			res.Note = fmt.Sprintf("found %s", path)
			return res, nil
		}

		cmd := exec.CommandContext(ctx, path, argv[1:]...)
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res := kindResult(req.Kind, false)
				res.Note = fmt.Sprintf("%s exited %d", argv[0], exitErr.ExitCode())
				return res, nil
			}
			return nil, fmt.Errorf("run %s: %w", argv[0], err)
		}

		res := kindResult(req.Kind, true)
		res.Note = fmt.Sprintf("%s succeeded", argv[0])
		return res, nil
	}
}

// compilePkgConfig builds a pkg-config probe. The host without
// pkg-config cannot vouch for any module, so a missing binary is a
// determinate negative.
func (r *Registry) compilePkgConfig(spec *catalog.ProbeSpec) runFunc {
	module := spec.Module
	minVersion := spec.MinVersion

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		path, err := exec.LookPath("pkg-config")
		if err != nil {
			res := kindResult(req.Kind, false)
			res.Note = "pkg-config not on PATH"
			return res, nil
		}

		args := []string{"--exists", module}
		if minVersion != "" {
			args = []string{"--atleast-version=" + minVersion, module}
		}

		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res := kindResult(req.Kind, false)
				if minVersion != "" {
					res.Note = fmt.Sprintf("%s >= %s not satisfied", module, minVersion)
				} else {
					res.Note = fmt.Sprintf("%s not registered with pkg-config", module)
				}
				return res, nil
			}
			return nil, fmt.Errorf("run pkg-config: %w", err)
		}

		res := kindResult(req.Kind, true)
		res.Note = fmt.Sprintf("pkg-config reports %s%s", module, moduleVersion(ctx, path, module))
		return res, nil
	}
}

// moduleVersion asks pkg-config for the module version, for the audit
// note only. Failures yield an empty suffix.
func moduleVersion(ctx context.Context, pkgConfig, module string) string {
	out, err := exec.CommandContext(ctx, pkgConfig, "--modversion", module).Output()
	if err != nil {
		return ""
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return ""
	}
	return " " + v
}

// compileFile builds a file probe: stat each path and combine per the
// match mode, "any" by default.
func (r *Registry) compileFile(spec *catalog.ProbeSpec) runFunc {
	paths := append([]string(nil), spec.Paths...)
	wantAll := spec.Match == "all"

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		var found, missing []string
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				found = append(found, p)
			} else {
				missing = append(missing, p)
			}
		}

		ok := len(found) > 0
		if wantAll {
			ok = len(missing) == 0
		}

		res := kindResult(req.Kind, ok)
		if ok {
			res.Note = "found " + strings.Join(found, ", ")
		} else if wantAll {
			res.Note = "missing " + strings.Join(missing, ", ")
		} else {
			res.Note = "none of " + strings.Join(paths, ", ") + " exist"
		}
		return res, nil
	}
}

// compilePlatform builds a platform probe: match the host's platform
// and architecture facts against the descriptor's lists. An empty list
// matches everything. Platform probes usually gate requirement, marking
// a package as needed only on the named targets.
func (r *Registry) compilePlatform(spec *catalog.ProbeSpec) runFunc {
	oses := append([]string(nil), spec.OS...)
	arches := append([]string(nil), spec.Arch...)

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		platform := runtime.GOOS
		arch := runtime.GOARCH
		if v, ok := req.Facts["os.platform"].(string); ok && v != "" {
			platform = v
		}
		if v, ok := req.Facts["os.arch"].(string); ok && v != "" {
			arch = v
		}

		ok := matchList(oses, platform) && matchList(arches, arch)
		res := kindResult(req.Kind, ok)
		res.Note = fmt.Sprintf("host is %s/%s", platform, arch)
		return res, nil
	}
}

func matchList(want []string, have string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if strings.EqualFold(w, have) {
			return true
		}
	}
	return false
}
