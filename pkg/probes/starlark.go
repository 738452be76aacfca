package probes

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

// compileStarlark builds a Starlark probe. Inline scripts come from the
// spec; file scripts are read once at compile time. The script sees
// package, kind, facts, options, and verdicts predeclared and must
// assign its finding to a global named result: a bool for the request's
// kind, or a dict with found, required, and note keys.
func (r *Registry) compileStarlark(pkg string, spec *catalog.ProbeSpec) (runFunc, error) {
	source, name, err := r.loadScript(pkg, spec.Script, spec.File)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		globals, err := r.execStarlark(ctx, name, source, req, nil)
		if err != nil {
			return nil, err
		}
		return starlarkResult(req.Kind, globals)
	}, nil
}

// loadScript returns the script source and a display name for
// diagnostics. The catalog loader guarantees exactly one of script and
// file is set.
func (r *Registry) loadScript(pkg, script, file string) (string, string, error) {
	if script != "" {
		return script, pkg + ".star", nil
	}
	path := r.resolvePath(file)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", engine.NewCatalogError(fmt.Sprintf("read script %s", path), err).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}
	return string(data), path, nil
}

// execStarlark runs one script to completion. Context cancellation maps
// to the thread's cancel flag so a hung loop stops at the next
// instruction instead of outliving the probe deadline.
func (r *Registry) execStarlark(ctx context.Context, name, source string, req *probeio.Request, extra starlark.StringDict) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			r.logger.Debug().Str("script", name).Msg(msg)
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	factsVal, err := toStarlarkValue(req.Facts)
	if err != nil {
		return nil, fmt.Errorf("convert facts: %w", err)
	}
	optionsVal, err := stringDict(req.Options)
	if err != nil {
		return nil, fmt.Errorf("convert options: %w", err)
	}
	verdictsVal, err := stringDict(req.Verdicts)
	if err != nil {
		return nil, fmt.Errorf("convert verdicts: %w", err)
	}

	predeclared := starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"package":  starlark.String(req.Package),
		"kind":     starlark.String(req.Kind),
		"facts":    factsVal,
		"options":  optionsVal,
		"verdicts": verdictsVal,
	}
	for k, v := range extra {
		predeclared[k] = v
	}

	globals, err := starlark.ExecFile(thread, name, source, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("starlark: %s", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("starlark: %w", err)
	}
	return globals, nil
}

// starlarkResult reads the script's result global.
func starlarkResult(kind string, globals starlark.StringDict) (*probeio.Result, error) {
	val, ok := globals["result"]
	if !ok {
		return nil, fmt.Errorf("script did not assign result")
	}

	switch v := val.(type) {
	case starlark.Bool:
		return kindResult(kind, bool(v)), nil
	case *starlark.Dict, *starlarkstruct.Struct:
		converted, err := fromStarlarkValue(v)
		if err != nil {
			return nil, err
		}
		m, ok := converted.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("result must convert to a mapping, got %T", converted)
		}
		return resultFromMap(m)
	default:
		return nil, fmt.Errorf("result must be a bool or dict, got %s", val.Type())
	}
}

func stringDict(m map[string]string) (*starlark.Dict, error) {
	dict := starlark.NewDict(len(m))
	for k, v := range m {
		if err := dict.SetKey(starlark.String(k), starlark.String(v)); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
