package probes

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/provisio/provisio/pkg/catalog"
	"github.com/provisio/provisio/pkg/engine"
	"github.com/provisio/provisio/pkg/probes/probeio"
)

// compileRego builds a Rego probe. The policy file is read and prepared
// once at compile time; each run evaluates the prepared query against
// an input document carrying package, kind, facts, options, and
// verdicts. The queried rule may yield a bool, or an object with found,
// required, and note keys.
func (r *Registry) compileRego(ctx context.Context, pkg string, spec *catalog.ProbeSpec) (runFunc, error) {
	path := r.resolvePath(spec.File)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewCatalogError(fmt.Sprintf("read policy %s", path), err).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}
	source := string(data)

	query := spec.Rule
	if query == "" {
		query, err = defaultRegoQuery(path, source)
		if err != nil {
			return nil, engine.NewCatalogError(fmt.Sprintf("parse policy %s", path), err).
				WithPackage(pkg).
				WithCode(engine.ErrCodeInvalidProbeSpec)
		}
	}

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(path, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, engine.NewCatalogError(fmt.Sprintf("prepare policy %s", path), err).
			WithPackage(pkg).
			WithCode(engine.ErrCodeInvalidProbeSpec)
	}

	return func(ctx context.Context, req *probeio.Request) (*probeio.Result, error) {
		input := map[string]interface{}{
			"package":  req.Package,
			"kind":     req.Kind,
			"facts":    req.Facts,
			"options":  req.Options,
			"verdicts": req.Verdicts,
		}

		results, err := prepared.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("rego: %w", err)
		}
		if len(results) == 0 || len(results[0].Expressions) == 0 {
			return nil, fmt.Errorf("rego: query %s yielded no result", query)
		}

		switch v := results[0].Expressions[0].Value.(type) {
		case bool:
			return kindResult(req.Kind, v), nil
		case map[string]interface{}:
			return resultFromMap(v)
		default:
			return nil, fmt.Errorf("rego: query must yield a bool or object, got %T", v)
		}
	}, nil
}

// defaultRegoQuery derives the query from the module's package clause:
// data.<package>.result.
func defaultRegoQuery(filename, source string) (string, error) {
	module, err := ast.ParseModule(filename, source)
	if err != nil {
		return "", err
	}
	return module.Package.Path.String() + ".result", nil
}
