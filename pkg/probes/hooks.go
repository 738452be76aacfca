package probes

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.starlark.net/starlark"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

// compileHook builds a pre or post hook. Hooks observe the record and
// may write shared options; they cannot change the verdict.
func (r *Registry) compileHook(pkg, stage string, spec *catalog.HookSpec) (engine.Hook, error) {
	switch spec.Type {
	case catalog.HookTypeCommand:
		return r.commandHook(stage, spec), nil
	case catalog.HookTypeStarlark:
		return r.starlarkHook(pkg, stage, spec)
	default:
		return nil, engine.NewCatalogError(fmt.Sprintf("unknown hook type %s", spec.Type), nil).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}
}

// commandHook runs an external command with the record exposed through
// the environment. In the pre stage the verdict reads unset.
func (r *Registry) commandHook(stage string, spec *catalog.HookSpec) engine.Hook {
	argv := append([]string(nil), spec.Command...)

	return func(ctx context.Context, rec *engine.ProvisioningRecord, opts *engine.Options) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		cmd.Env = append(os.Environ(),
			"PROVISIO_PACKAGE="+rec.Package,
			"PROVISIO_STAGE="+stage,
			"PROVISIO_PREFERENCE="+string(rec.Preference),
			"PROVISIO_VERDICT="+rec.InstallFromSource.String(),
		)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hook %s: %w", argv[0], err)
		}
		return nil
	}
}

// starlarkHook runs a script with get_option and set_option in scope on
// top of the probe environment. Pre hooks commonly seed options that
// later packages' probes read.
func (r *Registry) starlarkHook(pkg, stage string, spec *catalog.HookSpec) (engine.Hook, error) {
	source, name, err := r.loadScript(pkg, spec.Script, spec.File)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, rec *engine.ProvisioningRecord, opts *engine.Options) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		req := &probeio.Request{
			Package:  rec.Package,
			Kind:     stage,
			Facts:    r.facts,
			Options:  opts.Values(),
			Verdicts: verdictStrings(opts.Verdicts()),
		}

		extra := optionBuiltins(opts)
		extra["preference"] = starlark.String(string(rec.Preference))
		extra["verdict"] = starlark.String(rec.InstallFromSource.String())

		_, err := r.execStarlark(ctx, name, source, req, extra)
		return err
	}, nil
}

// optionBuiltins exposes the shared option namespace to hook scripts.
func optionBuiltins(opts *engine.Options) starlark.StringDict {
	get := starlark.NewBuiltin("get_option", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var key string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
			return nil, err
		}
		v, ok := opts.Get(key)
		if !ok {
			return starlark.None, nil
		}
		return starlark.String(v), nil
	})

	set := starlark.NewBuiltin("set_option", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var key, value string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "value", &value); err != nil {
			return nil, err
		}
		opts.Set(key, value)
		return starlark.None, nil
	})

	return starlark.StringDict{
		"get_option": get,
		"set_option": set,
	}
}
