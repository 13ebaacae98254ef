package ops

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// schema compiles schema.cue once. cue values are not safe for concurrent
// use, so every check holds mu.
var schema struct {
	mu   sync.Mutex
	once sync.Once
	val  cue.Value
	err  error
}

func loadSchema() (cue.Value, error) {
	schema.once.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schema.err = fmt.Errorf("compile operation schema: %w", err)
			return
		}
		schema.val = v
	})
	return schema.val, schema.err
}

// checkSchema validates params against the definition for tag.
func checkSchema(tag Tag, params ir.Object) error {
	data, err := ir.MarshalCanonical(params)
	if err != nil {
		return errs.InvalidArgument("params: %v", err).WithOp(string(tag))
	}

	schema.mu.Lock()
	defer schema.mu.Unlock()

	s, err := loadSchema()
	if err != nil {
		return err
	}
	def := s.LookupPath(cue.ParsePath("#" + string(tag)))
	if !def.Exists() {
		return errs.InvalidArgument("unknown operation %q", tag)
	}
	v := s.Context().CompileBytes(data, cue.Filename(string(tag)+".json"))
	if err := v.Err(); err != nil {
		return errs.InvalidArgument("params: %s", firstCUEError(err)).WithOp(string(tag))
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return errs.InvalidArgument("%s", firstCUEError(err)).WithOp(string(tag))
	}
	return nil
}

// firstCUEError keeps the first of possibly many unification errors.
func firstCUEError(err error) string {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err.Error()
	}
	return list[0].Error()
}
