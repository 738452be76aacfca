package probes

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

// wasmMemoryLimitPages caps guest memory at 16MB.
const wasmMemoryLimitPages = 256

// compileWasm builds a WASM probe. The module file is read, its sha256
// checked against the catalog's checksum, and the module compiled once. Each run
// instantiates it as a WASI command speaking the probeio protocol: one
// REQ line on stdin, one RESULT or ERROR line on stdout.
func (r *Registry) compileWasm(ctx context.Context, pkg string, spec *catalog.ProbeSpec) (runFunc, error) {
	path := r.resolvePath(spec.File)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewCatalogError(fmt.Sprintf("read module %s", path), err).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}

	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, spec.Checksum) {
		return nil, engine.NewCatalogError(
			fmt.Sprintf("wasm module checksum mismatch: expected %s, got %s", spec.Checksum, actual), nil).
			WithPackage(pkg).
			WithCode(engine.ErrCodeChecksumMismatch).
			WithDetail("module", path)
	}

	compiled, err := r.compiledModule(ctx, path, data)
	if err != nil {
		return nil, engine.NewCatalogError(fmt.Sprintf("compile module %s", path), err).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		return r.runWasm(ctx, compiled, req)
	}, nil
}

// compiledModule returns the compiled form of a module, compiling at
// most once per path. The shared runtime is created lazily on the first
// wasm probe so catalogs without one never pay for it.
func (r *Registry) compiledModule(ctx context.Context, path string, data []byte) (wazero.CompiledModule, error) {
	r.wasmMu.Lock()
	defer r.wasmMu.Unlock()

	if r.wasmRuntime == nil {
		cfg := wazero.NewRuntimeConfig().
			WithMemoryLimitPages(wasmMemoryLimitPages).
			WithCloseOnContextDone(true)
		rt := wazero.NewRuntimeWithConfig(ctx, cfg)
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("instantiate WASI: %w", err)
		}
		r.wasmRuntime = rt
	}

	if mod, ok := r.wasmModules[path]; ok {
		return mod, nil
	}
	mod, err := r.wasmRuntime.CompileModule(ctx, data)
	if err != nil {
		return nil, err
	}
	r.wasmModules[path] = mod
	return mod, nil
}

// runWasm instantiates the module for this one request. Instantiation
// runs the command's _start; proc_exit(0) is normal completion.
func (r *Registry) runWasm(ctx context.Context, compiled wazero.CompiledModule, req *probeio.Request) (*probeio.Result, error) {
	r.wasmMu.Lock()
	rt := r.wasmRuntime
	r.wasmMu.Unlock()
	if rt == nil {
		return nil, fmt.Errorf("probe registry closed")
	}

	var stdin, stdout, stderr bytes.Buffer
	if err := probeio.NewEncoder(&stdin).EncodeRequest(req); err != nil {
		return nil, err
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(&stdin).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs("probe")

	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("instantiate module: %w", err)
		}
		if exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("module exited %d: %s", exitErr.ExitCode(), stderrTail(stderr.String()))
		}
	}
	if mod != nil {
		mod.Close(ctx)
	}

	return probeio.NewDecoder(&stdout).DecodeResult()
}

// stderrTail returns the last stderr line for error context.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no stderr"
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
