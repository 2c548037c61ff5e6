package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/composite"
	"github.com/aryeko/ghx-router-sub004/internal/gql"
	"github.com/aryeko/ghx-router-sub004/internal/resolve"
)

// batchOp is one aliased operation inside a batched call. Composite steps
// contribute several.
type batchOp struct {
	step         ClassifiedStep
	alias        string
	document     string
	capabilityID string
	variables    map[string]any
	compositeOp  *composite.Operation
}

// ExecuteTasks runs a batch of requests. A single request takes the
// ExecuteTask path. Larger batches make at most one lookup call, one query
// call and one mutation call; CLI-only steps run through ExecuteRoute, as
// does every step when the graphql route fails its preflight. Batched calls
// are not retried.
func (e *Engine) ExecuteTasks(ctx context.Context, reqs []Request, rc RouteContext) BatchResult {
	if len(reqs) == 0 {
		return summarize([]Envelope{})
	}
	if len(reqs) == 1 {
		return summarize([]Envelope{e.ExecuteTask(ctx, reqs[0], rc)})
	}

	batchID := e.ids.Generate()
	ctx, span := e.tracer.Start(ctx, "ghx.execute_tasks", trace.WithAttributes(
		attribute.Int("ghx.batch_size", len(reqs)),
		attribute.String("ghx.batch_id", batchID),
	))
	defer span.End()

	rc.Cache = e.cacheFor(rc)
	results := make([]Envelope, len(reqs))

	pre := e.Preflight(reqs)
	for _, f := range pre.Failures {
		results[f.Index] = failure(f.CapabilityID, f.Err, pre.RouteUsed, "", nil)
	}

	// Without a token every step runs its own route chain.
	gqlReady := routePreflight(card.RouteGraphQL, rc) == nil
	if !gqlReady {
		e.logger.Debug("graphql batch skipped", "batch_id", batchID, "reason", "no GitHub token")
	}

	var gqlSteps []ClassifiedStep
	for _, s := range pre.Steps {
		if s.Route == StepCLI || !gqlReady {
			results[s.Index] = ExecuteRoute(ctx, s.Card, s.Request.Input, rc, e.routes, e.routeOptions(s.Card.CapabilityID))
			continue
		}
		gqlSteps = append(gqlSteps, s)
	}

	if len(gqlSteps) > 0 {
		e.executeGraphQLSteps(ctx, gqlSteps, rc, results)
	}

	for i := range results {
		results[i].Meta.RequestID = e.ids.Generate()
		e.record(ctx, batchID, results[i])
	}

	out := summarize(results)
	span.SetAttributes(
		attribute.String("ghx.batch_status", string(out.Status)),
		attribute.Int("ghx.succeeded", out.Meta.Succeeded),
	)
	e.logger.Info("batch executed",
		"batch_id", batchID,
		"status", out.Status,
		"total", out.Meta.Total,
		"succeeded", out.Meta.Succeeded,
		"failed", out.Meta.Failed,
	)
	return out
}

func (e *Engine) executeGraphQLSteps(ctx context.Context, steps []ClassifiedStep, rc RouteContext, results []Envelope) {
	fail := func(s ClassifiedStep, err *Error) {
		results[s.Index] = failure(s.Card.CapabilityID, err, card.RouteGraphQL, batchReason(s, rc),
			[]Attempt{{Route: card.RouteGraphQL, Status: AttemptError, ErrorCode: err.Code}})
	}

	if e.gql == nil {
		for _, s := range steps {
			fail(s, NewError(CodeAdapterUnsupported, "no graphql client configured"))
		}
		return
	}

	lookups, resErr := e.resolveSteps(ctx, steps, rc.Cache)
	if resErr != nil {
		e.logger.Warn("resolution batch failed", "error", resErr)
	}

	var queries, mutations []batchOp
	for _, s := range steps {
		ops, err := e.prepareStep(s, lookups, resErr)
		if err != nil {
			fail(s, err)
			continue
		}
		if s.Route == StepQuery {
			queries = append(queries, ops...)
		} else {
			mutations = append(mutations, ops...)
		}
	}

	e.runBatch(ctx, queries, false, rc, results)
	e.runBatch(ctx, mutations, true, rc, results)
}

// prepareStep turns a step into its aliased operations, injecting resolved
// values. Steps whose lookup failed in transport fail with that error.
func (e *Engine) prepareStep(s ClassifiedStep, lookups ResolutionResult, resErr error) ([]batchOp, *Error) {
	input := s.Request.Input
	alias := fmt.Sprintf("step%d", s.Index)

	if s.Card.Composite != nil {
		ops, err := e.expander.Expand(s.Card.Composite, input)
		if err != nil {
			return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
		}
		out := make([]batchOp, len(ops))
		for i := range ops {
			op := ops[i]
			out[i] = batchOp{
				step:         s,
				alias:        alias + "_" + op.Alias,
				document:     op.Document,
				capabilityID: op.CapabilityID,
				variables:    op.Variables,
				compositeOp:  &op,
			}
		}
		return out, nil
	}

	g := s.Card.GraphQL
	var resolved map[string]any
	if g.Resolution != nil {
		if resErr != nil {
			return nil, Normalize(resErr)
		}
		var err error
		resolved, err = inject(s.Card, lookups, s.Index, input)
		if err != nil {
			return nil, Normalize(err)
		}
	}
	vars, err := resolve.BuildMutationVars(g.Document, input, resolved)
	if err != nil {
		return nil, NewError(CodeUnknown, "build variables: %v", err)
	}
	return []batchOp{{
		step:         s,
		alias:        alias,
		document:     g.Document,
		capabilityID: s.Card.CapabilityID,
		variables:    vars,
	}}, nil
}

// runBatch executes ops as one query or one mutation and fills results for
// every step involved.
func (e *Engine) runBatch(ctx context.Context, ops []batchOp, mutation bool, rc RouteContext, results []Envelope) {
	if len(ops) == 0 {
		return
	}

	gops := make([]gql.Operation, len(ops))
	for i, op := range ops {
		gops[i] = gql.Operation{Alias: op.alias, Document: op.document, Variables: op.variables}
	}
	build := gql.BuildBatchQuery
	if mutation {
		build = gql.BuildBatchMutation
	}

	var (
		data    map[string]any
		callErr *Error
		partial *PartialResponseError
	)
	batch, err := build(gops)
	if err != nil {
		callErr = NewError(CodeUnknown, "build batch: %v", err)
	} else {
		e.logger.Debug("graphql batch", "mutation", mutation, "operations", len(ops))
		var execErr error
		data, execErr = e.gql.Execute(ctx, batch.Document, batch.Variables)
		if execErr != nil {
			if !errors.As(execErr, &partial) || data == nil {
				callErr = Normalize(execErr)
				partial = nil
			}
		}
	}

	// Steps in input order; composite steps gather several outputs.
	type stepOutputs struct {
		step    ClassifiedStep
		ops     []composite.Operation
		outputs []any
		err     *Error
	}
	byIndex := map[int]*stepOutputs{}
	var order []int
	for _, op := range ops {
		so, ok := byIndex[op.step.Index]
		if !ok {
			so = &stepOutputs{step: op.step}
			byIndex[op.step.Index] = so
			order = append(order, op.step.Index)
		}
		if so.err != nil {
			continue
		}
		if callErr != nil {
			so.err = callErr
			continue
		}
		out, err := e.extractOperation(data, partial, op.alias, op.document, op.capabilityID)
		if err != nil {
			so.err = Normalize(err)
			continue
		}
		if op.compositeOp != nil {
			so.ops = append(so.ops, *op.compositeOp)
		}
		so.outputs = append(so.outputs, out)
	}

	for _, idx := range order {
		so := byIndex[idx]
		s := so.step
		reason := batchReason(s, rc)
		if so.err != nil {
			results[idx] = failure(s.Card.CapabilityID, so.err, card.RouteGraphQL, reason,
				[]Attempt{{Route: card.RouteGraphQL, Status: AttemptError, ErrorCode: so.err.Code}})
			continue
		}

		var payload any
		if s.Card.Composite != nil {
			payload = combine(s.Card.Composite.OutputStrategy, so.ops, so.outputs)
		} else {
			payload = so.outputs[0]
		}

		if out := e.registry.OutputSchema(s.Card.CapabilityID); out != nil {
			if verr := out.Validate(payload); verr != nil {
				ve := Normalize(verr)
				ve.Message = "output validation failed: " + ve.Message
				results[idx] = failure(s.Card.CapabilityID, ve, card.RouteGraphQL, reason,
					[]Attempt{{Route: card.RouteGraphQL, Status: AttemptError, ErrorCode: ve.Code}})
				continue
			}
		}
		results[idx] = success(s.Card.CapabilityID, payload, card.RouteGraphQL, reason,
			[]Attempt{{Route: card.RouteGraphQL, Status: AttemptOK}})
	}
}

// batchReason explains why a batched step ran on graphql: the card prefers
// it, or batching policy chose it over the card's preference.
func batchReason(s ClassifiedStep, rc RouteContext) string {
	if rc.ReasonOverride != "" {
		return rc.ReasonOverride
	}
	if s.Card.Routing.Preferred == card.RouteGraphQL {
		return ReasonCardPreferred
	}
	return ReasonDefaultPolicy
}
