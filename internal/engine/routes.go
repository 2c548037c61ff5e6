package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/composite"
	"github.com/aryeko/ghx-router-sub004/internal/gql"
	"github.com/aryeko/ghx-router-sub004/internal/resolve"
)

// graphqlRoute runs a single card over GraphQL: resolution, injection, one
// call, then output projection. Composite cards expand into one batched
// mutation.
func (e *Engine) graphqlRoute(ctx context.Context, c *card.OperationCard, input map[string]any, rc RouteContext) (any, error) {
	if e.gql == nil {
		return nil, NewError(CodeAdapterUnsupported, "no graphql client configured")
	}
	if c.Composite != nil {
		return e.compositeRoute(ctx, c, input)
	}

	g := c.GraphQL
	var resolved map[string]any
	if g.Resolution != nil {
		step := ClassifiedStep{Index: 0, Request: Request{Task: c.CapabilityID, Input: input}, Card: c, Route: StepMutation}
		lookups, err := e.resolveSteps(ctx, []ClassifiedStep{step}, e.cacheFor(rc))
		if err != nil {
			return nil, finalError{err}
		}
		resolved, err = inject(c, lookups, 0, input)
		if err != nil {
			return nil, err
		}
	}

	vars, err := resolve.BuildMutationVars(g.Document, input, resolved)
	if err != nil {
		return nil, NewError(CodeUnknown, "build variables: %v", err)
	}
	data, err := e.gql.Execute(ctx, g.Document, vars)
	if err != nil {
		return nil, err
	}
	return project(data, g.OutputPath)
}

// finalError ends the attempts on the current route whatever its code.
// Lookups are fetched once; a failed lookup moves on to the next route.
type finalError struct{ err error }

func (f finalError) Error() string { return f.err.Error() }
func (f finalError) Unwrap() error { return f.err }

// inject applies the card's inject specs to the step's lookup result.
func inject(c *card.OperationCard, lookups ResolutionResult, index int, input map[string]any) (map[string]any, error) {
	res := c.GraphQL.Resolution
	if lerr, ok := lookups.Errors[index]; ok {
		return nil, lerr
	}
	lookup, ok := lookups.Payloads[index]
	if !ok {
		return nil, NewError(CodeResolutionFailed, "lookup %s returned no data", res.Lookup.OperationName)
	}
	resolved, err := resolve.ApplyAll(res.Inject, lookup, input)
	if err != nil {
		return nil, &Error{Code: CodeResolutionFailed, Message: err.Error(), Err: err}
	}
	return resolved, nil
}

// project selects the dotted output path from a response. A missing or
// null value means the addressed object does not exist.
func project(data map[string]any, path string) (any, error) {
	if path == "" {
		return data, nil
	}
	v, ok := resolve.Path(data, path)
	if !ok || v == nil {
		return nil, NewError(CodeNotFound, "response has no value at %s", path)
	}
	return v, nil
}

// compositeRoute expands c and executes the operations as one mutation.
func (e *Engine) compositeRoute(ctx context.Context, c *card.OperationCard, input map[string]any) (any, error) {
	ops, err := e.expander.Expand(c.Composite, input)
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}
	if len(ops) == 0 {
		return combine(c.Composite.OutputStrategy, nil, nil), nil
	}

	gops := make([]gql.Operation, len(ops))
	for i, op := range ops {
		gops[i] = op.GQL()
	}
	batch, err := gql.BuildBatchMutation(gops)
	if err != nil {
		return nil, NewError(CodeUnknown, "build composite batch: %v", err)
	}
	data, err := e.gql.Execute(ctx, batch.Document, batch.Variables)
	if err != nil {
		return nil, err
	}

	outputs := make([]any, len(ops))
	for i, op := range ops {
		out, err := e.extractOperation(data, nil, op.Alias, op.Document, op.CapabilityID)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	return combine(c.Composite.OutputStrategy, ops, outputs), nil
}

// extractOperation pulls one aliased operation out of a batched response,
// re-wraps it under its root field and applies the step card's output path.
func (e *Engine) extractOperation(data map[string]any, partial *PartialResponseError, alias, document, capabilityID string) (any, error) {
	if partial != nil {
		if errs := partial.ForKey(alias); len(errs) > 0 {
			return nil, &Error{Code: errs[0].Code, Message: errs[0].Message, Details: map[string]any{"alias": alias}}
		}
	}
	raw, ok := data[alias]
	if !ok {
		e.logger.Warn("batched result missing", "alias", alias, "capability", capabilityID)
		return nil, &Error{Code: CodeUnknown, Message: fmt.Sprintf("no result for %s in batched response", alias), Details: map[string]any{"alias": alias}}
	}
	root, ok := gql.ExtractRootFieldName(document)
	if !ok {
		return nil, NewError(CodeUnknown, "document for %s has no root field", capabilityID)
	}
	wrapped := map[string]any{root: raw}

	outputPath := ""
	if c, ok := e.registry.Get(capabilityID); ok && c.GraphQL != nil {
		outputPath = c.GraphQL.OutputPath
	}
	return project(wrapped, outputPath)
}

// combine merges composite outputs. merge folds object outputs into one
// object (later keys win; non-objects are keyed by alias); last keeps the
// final output; array, the default, keeps them all in order.
func combine(strategy string, ops []composite.Operation, outputs []any) any {
	switch strategy {
	case card.OutputMerge:
		merged := map[string]any{}
		for i, out := range outputs {
			if obj, ok := out.(map[string]any); ok {
				for k, v := range obj {
					merged[k] = v
				}
				continue
			}
			merged[ops[i].Alias] = out
		}
		return merged
	case card.OutputLast:
		if len(outputs) == 0 {
			return nil
		}
		return outputs[len(outputs)-1]
	}
	if outputs == nil {
		return []any{}
	}
	return outputs
}

// cliRoute renders the card's gh arguments and runs them.
func (e *Engine) cliRoute(ctx context.Context, c *card.OperationCard, input map[string]any, _ RouteContext) (any, error) {
	if e.runner == nil {
		return nil, NewError(CodeAdapterUnsupported, "no command runner configured")
	}
	args, err := c.CLI.RenderArgs(input)
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}
	timeout := DefaultCLITimeout
	if c.CLI.TimeoutMs > 0 {
		timeout = time.Duration(c.CLI.TimeoutMs) * time.Millisecond
	}

	res, err := e.runner.Run(ctx, "gh", args, timeout)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("gh exited with code %d", res.ExitCode)
		}
		return nil, &Error{
			Code:    ClassifyMessage(msg),
			Message: msg,
			Details: map[string]any{"exit_code": res.ExitCode},
		}
	}

	if c.CLI.Output == "json" {
		var out any
		if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
			return nil, NewError(CodeUnknown, "gh output is not JSON: %v", err)
		}
		return out, nil
	}
	return map[string]any{"output": strings.TrimSpace(res.Stdout)}, nil
}

// restRoute calls the card's first endpoint. Non-GET methods send the input
// as the request body.
func (e *Engine) restRoute(ctx context.Context, c *card.OperationCard, input map[string]any, _ RouteContext) (any, error) {
	if e.rest == nil {
		return nil, NewError(CodeAdapterUnsupported, "no rest client configured")
	}
	ep := c.REST.Endpoints[0]
	path, err := card.Render("path", ep.Path, input)
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("render rest path: %v", err), Err: err}
	}
	var body any
	if ep.Method != http.MethodGet {
		body = input
	}
	return e.rest.Do(ctx, ep.Method, path, body)
}
