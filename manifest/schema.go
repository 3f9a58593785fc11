package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Schema is the CUE definition every manifest document must satisfy.
const Schema = `
#Name: =~"^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$"

#Manifest: {
	namespace?: #Name
	include?: [...string]

	compile?: {
		"hash-trials"?:         int & >=1
		"hash-max-extra-bits"?: int & >=0 & <=30
		seed?:                  int & >=0
	}

	class?: [...{
		name:      #Name
		abstract?: bool
		bases?: [...#Name]
		id?: int & >=1
	}]

	function?: [...{
		name:  #Name
		arity: int & >=1
		virtual: [int & >=0, ...int & >=0]
		bounds?: [...#Name]
	}]

	override?: [...{
		function: #Name
		classes: [#Name, ...#Name]
		result?: _
		next?:   bool
		impl?:   string
	}]
}
`

// Validate checks a generically decoded document against Schema.
func Validate(doc map[string]any) error {
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(Schema, cue.Filename("manifest.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidManifest, cueerrors.Details(err, nil))
	}
	return nil
}
