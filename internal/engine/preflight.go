package engine

import (
	"errors"
	"sort"
	"strings"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/resolve"
	"github.com/aryeko/ghx-router-sub004/internal/schema"
)

// StepRoute is how a batch step will be executed.
type StepRoute string

const (
	StepCLI      StepRoute = "cli"
	StepQuery    StepRoute = "gql-query"
	StepMutation StepRoute = "gql-mutation"
)

// ClassifiedStep is a request that passed preflight. Index is the request's
// position in the batch.
type ClassifiedStep struct {
	Index   int
	Request Request
	Card    *card.OperationCard
	Route   StepRoute
}

// StepFailure is a request that failed preflight.
type StepFailure struct {
	Index        int
	CapabilityID string
	Err          *Error
}

// PreflightResult partitions a batch into runnable steps and failures.
// Every request index appears in exactly one of Steps and Failures.
type PreflightResult struct {
	OK       bool
	Steps    []ClassifiedStep
	Failures []StepFailure
	// RouteUsed is cli when every classified step is CLI-only, graphql
	// otherwise.
	RouteUsed card.Route
}

// Preflight validates every request without touching the network.
func (e *Engine) Preflight(reqs []Request) PreflightResult {
	res := PreflightResult{RouteUsed: card.RouteGraphQL}
	allCLI := true

	for i, req := range reqs {
		step, err := e.preflightOne(i, req)
		if err != nil {
			res.Failures = append(res.Failures, StepFailure{Index: i, CapabilityID: req.Task, Err: err})
			continue
		}
		if step.Route != StepCLI {
			allCLI = false
		}
		res.Steps = append(res.Steps, step)
	}

	res.OK = len(res.Failures) == 0
	if len(res.Steps) > 0 && allCLI {
		res.RouteUsed = card.RouteCLI
	}
	return res
}

func (e *Engine) preflightOne(i int, req Request) (ClassifiedStep, *Error) {
	c, ok := e.registry.Get(req.Task)
	if !ok {
		return ClassifiedStep{}, NewError(CodeValidation, "unknown capability %q", req.Task)
	}
	input := req.Input
	if input == nil {
		input = map[string]any{}
	}

	if in := e.registry.InputSchema(c.CapabilityID); in != nil {
		if err := in.Validate(input); err != nil {
			verr := Normalize(err)
			var sv *schema.ValidationError
			if errors.As(err, &sv) {
				verr.Message = "input validation failed: " + issueSummary(sv)
			}
			return ClassifiedStep{}, verr
		}
	}

	var route StepRoute
	switch {
	case c.Composite != nil:
		route = StepMutation
	case c.GraphQL != nil && c.GraphQL.IsMutation():
		route = StepMutation
	case c.GraphQL != nil:
		route = StepQuery
	case c.CLI != nil:
		route = StepCLI
	default:
		return ClassifiedStep{}, NewError(CodeAdapterUnsupported, "%s has no graphql or cli route", c.CapabilityID)
	}

	if c.GraphQL != nil && c.GraphQL.Resolution != nil {
		if _, missing := resolve.LookupVars(c.GraphQL.Resolution.Lookup.Vars, input); len(missing) > 0 {
			sort.Strings(missing)
			return ClassifiedStep{}, &Error{
				Code:    CodeResolutionFailed,
				Message: "resolution pre-flight failed: lookup " + c.GraphQL.Resolution.Lookup.OperationName + " needs input field(s) " + strings.Join(missing, ", "),
				Details: map[string]any{"missing": toAny(missing)},
			}
		}
	}

	return ClassifiedStep{
		Index:   i,
		Request: Request{Task: req.Task, Input: input},
		Card:    c,
		Route:   route,
	}, nil
}

func issueSummary(verr *schema.ValidationError) string {
	parts := make([]string, len(verr.Issues))
	for i, is := range verr.Issues {
		p := is.Path
		if p == "" {
			p = "/"
		}
		parts[i] = p + ": " + is.Message
	}
	return strings.Join(parts, "; ")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
