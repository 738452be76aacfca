package catalog

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// catalogSchema is the CUE schema every .cue catalog is unified with
// before decoding. YAML catalogs get the equivalent checks from struct
// validation after decode.
const catalogSchema = `
#Probe: {
	type: "command" | "pkgconfig" | "file" | "platform" | "starlark" | "rego" | "wasm"
	command?: [...string]
	module?:      string
	min_version?: string
	paths?: [...string]
	match?: "any" | "all"
	os?: [...string]
	arch?: [...string]
	script?:   string
	file?:     string
	rule?:     string
	checksum?: string & =~"^[0-9a-fA-F]{64}$"
}

#Hook: {
	type: "command" | "starlark"
	command?: [...string]
	script?: string
	file?:   string
}

#Package: {
	name:         string & != ""
	description?: string
	default?:     "yes" | "no" | "force" | "system" | "bundled" | "force-system"
	probes?: {
		availability?: #Probe
		requirement?:  #Probe
	}
	hooks?: {
		pre?:  #Hook
		post?: #Hook
	}
}

#Catalog: {
	packages: [...#Package]
}
`

// compileSchema compiles the embedded catalog schema and returns the
// #Catalog definition.
func compileSchema(ctx *cue.Context) (cue.Value, error) {
	val := ctx.CompileString(catalogSchema, cue.Filename("catalog-schema.cue"))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling catalog schema: %w", err)
	}

	def := val.LookupPath(cue.ParsePath("#Catalog"))
	if err := def.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("looking up #Catalog: %w", err)
	}
	return def, nil
}

// newSchemaContext builds the shared CUE context and compiled schema.
func newSchemaContext() (*cue.Context, cue.Value, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, cue.Value{}, err
	}
	return ctx, schema, nil
}
