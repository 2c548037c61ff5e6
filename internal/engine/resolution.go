package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aryeko/ghx-router-sub004/internal/cache"
	"github.com/aryeko/ghx-router-sub004/internal/gql"
	"github.com/aryeko/ghx-router-sub004/internal/resolve"
)

// ResolutionResult holds each step's lookup payload, wrapped as
// {rootField: data} so inject paths read the same as the document, and the
// error GitHub attributed to a step's lookup, both keyed by step index.
type ResolutionResult struct {
	Payloads map[int]map[string]any
	Errors   map[int]*Error
}

// pendingLookup is one lookup to fetch, shared by every step with the same
// cache key.
type pendingLookup struct {
	name     string
	alias    string
	key      string
	document string
	indexes  []int
}

// resolveSteps runs the lookups of every step that declares resolution.
// Cached lookups are served from c; the rest go out as one batched query.
// Steps whose lookup returned nothing are absent from the result; lookups
// GitHub answered with an error are recorded under Errors and never cached.
// A transport error is returned as-is: there is no partial result to
// attribute.
func (e *Engine) resolveSteps(ctx context.Context, steps []ClassifiedStep, c *cache.Cache) (ResolutionResult, error) {
	result := ResolutionResult{Payloads: map[int]map[string]any{}, Errors: map[int]*Error{}}
	byKey := map[string]*pendingLookup{}
	var ops []gql.Operation
	var pending []*pendingLookup

	for _, s := range steps {
		if s.Card.GraphQL == nil || s.Card.GraphQL.Resolution == nil {
			continue
		}
		lookup := s.Card.GraphQL.Resolution.Lookup
		vars, missing := resolve.LookupVars(lookup.Vars, s.Request.Input)
		if len(missing) > 0 {
			continue
		}
		key, err := cache.Key(lookup.OperationName, vars)
		if err != nil {
			return ResolutionResult{}, fmt.Errorf("lookup key for step %d: %w", s.Index, err)
		}
		if c != nil {
			if v, ok := c.Get(key); ok {
				if wrapped, ok := v.(map[string]any); ok {
					result.Payloads[s.Index] = wrapped
					continue
				}
			}
		}
		if p, ok := byKey[key]; ok {
			p.indexes = append(p.indexes, s.Index)
			continue
		}
		p := &pendingLookup{
			name:     lookup.OperationName,
			alias:    fmt.Sprintf("step%d", s.Index),
			key:      key,
			document: lookup.Document,
			indexes:  []int{s.Index},
		}
		byKey[key] = p
		pending = append(pending, p)
		ops = append(ops, gql.Operation{Alias: p.alias, Document: lookup.Document, Variables: vars})
	}

	if len(ops) == 0 {
		return result, nil
	}
	if e.gql == nil {
		return ResolutionResult{}, NewError(CodeAdapterUnsupported, "resolution needs a graphql client")
	}

	batch, err := gql.BuildBatchQuery(ops)
	if err != nil {
		return ResolutionResult{}, &Error{Code: CodeResolutionFailed, Message: fmt.Sprintf("build lookup batch: %v", err), Err: err}
	}

	e.logger.Debug("resolution batch", "lookups", len(ops))
	data, err := e.gql.Execute(ctx, batch.Document, batch.Variables)
	if err != nil && data == nil {
		return ResolutionResult{}, err
	}

	var partial *PartialResponseError
	errors.As(err, &partial)

	sort.Slice(pending, func(i, j int) bool { return pending[i].indexes[0] < pending[j].indexes[0] })
	for _, p := range pending {
		if partial != nil {
			if fes := partial.ForKey(p.alias); len(fes) > 0 {
				lerr := &Error{
					Code:    fes[0].Code,
					Message: fmt.Sprintf("lookup %s: %s", p.name, fes[0].Message),
					Details: map[string]any{"alias": p.alias},
				}
				for _, idx := range p.indexes {
					result.Errors[idx] = lerr
				}
				continue
			}
		}
		raw, ok := data[p.alias]
		if !ok || raw == nil {
			e.logger.Warn("lookup result missing", "alias", p.alias, "steps", p.indexes)
			continue
		}
		root, ok := gql.ExtractRootFieldName(p.document)
		if !ok {
			e.logger.Warn("lookup document has no root field", "alias", p.alias)
			continue
		}
		wrapped := map[string]any{root: raw}
		for _, idx := range p.indexes {
			result.Payloads[idx] = wrapped
		}
		if c != nil {
			c.Set(p.key, wrapped)
		}
	}
	return result, nil
}
