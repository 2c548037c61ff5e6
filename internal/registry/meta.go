package registry

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed card.cue
var metaSchemaSource string

// metaChecker holds the compiled #OperationCard definition. A cue.Context
// is not safe for concurrent use, so each Load builds its own.
type metaChecker struct {
	ctx *cue.Context
	def cue.Value
}

func newMetaChecker() (*metaChecker, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(metaSchemaSource, cue.Filename("card.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile card meta-schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#OperationCard"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup #OperationCard: %w", err)
	}
	return &metaChecker{ctx: ctx, def: def}, nil
}

// check unifies a decoded card document with #OperationCard and returns one
// issue per CUE error.
func (m *metaChecker) check(file string, doc map[string]any) []Issue {
	v := m.def.Unify(m.ctx.Encode(doc))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issues = append(issues, Issue{
			Code:    ErrMetaSchema,
			File:    file,
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Code: ErrMetaSchema, File: file, Message: err.Error()})
	}
	return issues
}
