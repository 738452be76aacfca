package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/provisio/provisio/pkg/engine"
)

// Loader parses catalog files and optionally watches them for changes.
type Loader struct {
	cueCtx    *cue.Context
	schema    cue.Value
	validator *validator.Validate
	logger    zerolog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	debounce *time.Timer
}

// NewLoader creates a catalog loader with the embedded schema compiled.
func NewLoader(logger zerolog.Logger) (*Loader, error) {
	cueCtx, schema, err := newSchemaContext()
	if err != nil {
		return nil, engine.NewInternalError("catalog schema failed to compile", err)
	}

	return &Loader{
		cueCtx:    cueCtx,
		schema:    schema,
		validator: validator.New(),
		logger:    logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Load reads, parses, and validates the catalog at path. The format is
// picked by extension: .cue, .yaml, or .yml. Any problem is fatal and
// comes back as a catalog-class error.
func (l *Loader) Load(ctx context.Context, path string) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewCatalogError(fmt.Sprintf("reading catalog %s", path), err)
	}

	var doc catalogDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		err = l.decodeCUE(path, data, &doc)
	case ".yaml", ".yml":
		err = l.decodeYAML(path, data, &doc)
	default:
		return nil, engine.NewCatalogError(fmt.Sprintf("unsupported catalog format %q", filepath.Ext(path)), nil).
			WithDetail("path", path)
	}
	if err != nil {
		return nil, err
	}

	if err := l.validateDocument(&doc, path); err != nil {
		return nil, err
	}

	cat := &Catalog{
		Path:     path,
		Packages: doc.Packages,
		LoadedAt: time.Now(),
	}

	l.logger.Info().
		Str("path", path).
		Int("packages", len(cat.Packages)).
		Msg("Catalog loaded")

	return cat, nil
}

// decodeCUE compiles the file, unifies it with the embedded schema, and
// decodes the result.
func (l *Loader) decodeCUE(path string, data []byte, doc *catalogDocument) error {
	val := l.cueCtx.CompileString(string(data), cue.Filename(path))
	if err := val.Err(); err != nil {
		return catalogCUEError(path, "catalog does not parse", err)
	}

	unified := l.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return catalogCUEError(path, "catalog does not match schema", err)
	}

	if err := unified.Decode(doc); err != nil {
		return engine.NewCatalogError("decoding catalog", err).
			WithCode(engine.ErrCodeValidation).
			WithDetail("path", path)
	}
	return nil
}

// decodeYAML decodes the file with unknown keys rejected. An empty file
// is an empty catalog.
func (l *Loader) decodeYAML(path string, data []byte, doc *catalogDocument) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return engine.NewCatalogError("catalog does not parse", err).
			WithCode(engine.ErrCodeValidation).
			WithDetail("path", path)
	}
	return nil
}

// validateDocument enforces the catalog-level rules that the schema
// cannot: unique non-empty names, parseable defaults, and complete probe
// and hook specs.
func (l *Loader) validateDocument(doc *catalogDocument, path string) error {
	if len(doc.Packages) == 0 {
		l.logger.Warn().Str("path", path).Msg("Catalog has no packages")
		return nil
	}

	seen := make(map[string]int, len(doc.Packages))
	for i := range doc.Packages {
		d := &doc.Packages[i]

		if d.Name == "" {
			return engine.NewCatalogError(fmt.Sprintf("package at index %d has an empty name", i), nil).
				WithCode(engine.ErrCodeEmptyPackageName).
				WithDetail("path", path)
		}
		if prev, dup := seen[d.Name]; dup {
			return engine.NewCatalogError(fmt.Sprintf("package %s declared twice (entries %d and %d)", d.Name, prev, i), nil).
				WithCode(engine.ErrCodeDuplicatePackage).
				WithPackage(d.Name).
				WithDetail("path", path)
		}
		seen[d.Name] = i

		if err := l.validator.Struct(d); err != nil {
			return engine.NewCatalogError(fmt.Sprintf("package %s fails validation", d.Name), err).
				WithCode(engine.ErrCodeValidation).
				WithPackage(d.Name).
				WithDetail("path", path)
		}
		if _, err := d.DefaultPreference(); err != nil {
			return engine.NewCatalogError(fmt.Sprintf("package %s has a bad default", d.Name), err).
				WithCode(engine.ErrCodeValidation).
				WithPackage(d.Name)
		}

		if err := validateProbeSet(&d.Probes); err != nil {
			return engine.NewCatalogError(fmt.Sprintf("package %s: %v", d.Name, err), nil).
				WithCode(engine.ErrCodeInvalidProbeSpec).
				WithPackage(d.Name).
				WithDetail("path", path)
		}
		if err := validateHookSet(&d.Hooks); err != nil {
			return engine.NewCatalogError(fmt.Sprintf("package %s: %v", d.Name, err), nil).
				WithCode(engine.ErrCodeInvalidProbeSpec).
				WithPackage(d.Name).
				WithDetail("path", path)
		}
	}
	return nil
}

func validateProbeSet(ps *ProbeSet) error {
	if ps.Availability != nil {
		if err := ps.Availability.validateFields(); err != nil {
			return fmt.Errorf("availability probe: %w", err)
		}
	}
	if ps.Requirement != nil {
		if err := ps.Requirement.validateFields(); err != nil {
			return fmt.Errorf("requirement probe: %w", err)
		}
	}
	return nil
}

func validateHookSet(hs *HookSet) error {
	if hs.Pre != nil {
		if err := hs.Pre.validateFields(); err != nil {
			return fmt.Errorf("pre hook: %w", err)
		}
	}
	if hs.Post != nil {
		if err := hs.Post.validateFields(); err != nil {
			return fmt.Errorf("post hook: %w", err)
		}
	}
	return nil
}

// catalogCUEError wraps a CUE error with per-position issue details.
func catalogCUEError(path, message string, err error) *engine.EngineError {
	e := engine.NewCatalogError(message, err).
		WithCode(engine.ErrCodeValidation).
		WithDetail("path", path)
	if issues := convertCUEErrors(err); len(issues) > 0 {
		e = e.WithDetail("issues", issues)
	}
	return e
}

// convertCUEErrors flattens a CUE error list into per-position issues.
func convertCUEErrors(err error) []ValidationError {
	var issues []ValidationError
	for _, e := range cueerrors.Errors(err) {
		pos := cueerrors.Positions(e)
		issue := ValidationError{Message: cueerrors.Details(e, nil)}
		if len(pos) > 0 {
			issue.File = pos[0].Filename()
			issue.Line = pos[0].Line()
			issue.Column = pos[0].Column()
		}
		issues = append(issues, issue)
	}
	return issues
}
