package engine

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/schema"
)

// RouteFunc executes a card on one route and returns its output.
type RouteFunc func(ctx context.Context, c *card.OperationCard, input map[string]any, rc RouteContext) (any, error)

// Routes holds one implementation per route. A nil field means the route
// is unsupported.
type Routes struct {
	GraphQL RouteFunc
	CLI     RouteFunc
	REST    RouteFunc
}

// For returns the implementation of route.
func (r Routes) For(route card.Route) RouteFunc {
	switch route {
	case card.RouteGraphQL:
		return r.GraphQL
	case card.RouteCLI:
		return r.CLI
	case card.RouteREST:
		return r.REST
	}
	return nil
}

// RouteOptions tunes ExecuteRoute.
type RouteOptions struct {
	// MaxAttemptsPerRoute caps attempts per route for retryable errors.
	// Zero means DefaultMaxAttemptsPerRoute.
	MaxAttemptsPerRoute int

	// OutputSchema, when set, must accept the route's output.
	OutputSchema *schema.Schema

	Logger *slog.Logger
	Tracer trace.Tracer
}

// ExecuteRoute runs c on its preferred route and then its fallbacks until
// one succeeds. Input is assumed to have passed preflight.
//
// A route is skipped when it has no implementation or configuration, or
// when its environment check fails (graphql and rest need a credential,
// cli needs gh installed and authenticated unless rc.SkipCLIPreflight).
// Retryable errors are retried up to MaxAttemptsPerRoute times on the same
// route; any other error falls through to the next route immediately.
func ExecuteRoute(ctx context.Context, c *card.OperationCard, input map[string]any, rc RouteContext, routes Routes, opts RouteOptions) Envelope {
	maxAttempts := opts.MaxAttemptsPerRoute
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttemptsPerRoute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/aryeko/ghx-router-sub004/internal/engine")
	}

	var (
		attempts  []Attempt
		lastErr   *Error
		lastRoute card.Route
		lastIdx   int
	)

routes:
	for i, route := range c.Routing.Order() {
		impl := routes.For(route)
		if impl == nil || !c.Configured(route) {
			attempts = append(attempts, Attempt{Route: route, Status: AttemptSkipped, ErrorCode: CodeAdapterUnsupported})
			if lastErr == nil || lastErr.Code == CodeAdapterUnsupported {
				lastErr = NewError(CodeAdapterUnsupported, "route %s is not supported for %s", route, c.CapabilityID)
			}
			continue
		}
		if perr := routePreflight(route, rc); perr != nil {
			logger.Debug("route skipped", "capability", c.CapabilityID, "route", route, "reason", perr.Message)
			attempts = append(attempts, Attempt{Route: route, Status: AttemptSkipped, ErrorCode: perr.Code})
			if lastErr == nil || lastErr.Code == CodeAdapterUnsupported {
				lastErr = perr
				lastRoute, lastIdx = route, i
			}
			continue
		}

		for n := 1; n <= maxAttempts; n++ {
			data, err := runAttempt(ctx, tracer, impl, c, input, rc, route, n)
			if err == nil {
				if opts.OutputSchema != nil {
					if verr := opts.OutputSchema.Validate(data); verr != nil {
						e := Normalize(verr)
						e.Message = "output validation failed: " + e.Message
						attempts = append(attempts, Attempt{Route: route, Status: AttemptError, ErrorCode: e.Code})
						logger.Warn("output schema mismatch", "capability", c.CapabilityID, "route", route, "error", verr)
						return failure(c.CapabilityID, e, route, reasonFor(i, rc), attempts)
					}
				}
				attempts = append(attempts, Attempt{Route: route, Status: AttemptOK})
				return success(c.CapabilityID, data, route, reasonFor(i, rc), attempts)
			}

			e := Normalize(err)
			attempts = append(attempts, Attempt{Route: route, Status: AttemptError, ErrorCode: e.Code})
			// An unconfigured adapter does not hide a real failure from an
			// earlier route.
			if lastErr == nil || e.Code != CodeAdapterUnsupported || lastErr.Code == CodeAdapterUnsupported {
				lastErr, lastRoute, lastIdx = e, route, i
			}
			logger.Debug("route attempt failed",
				"capability", c.CapabilityID, "route", route, "attempt", n, "code", e.Code, "error", e.Message)

			if ctx.Err() != nil {
				break routes
			}
			var final finalError
			if !e.Code.Retryable() || errors.As(err, &final) {
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = NewError(CodeAdapterUnsupported, "no route available for %s", c.CapabilityID)
	}
	reason := ""
	if lastRoute != "" {
		reason = reasonFor(lastIdx, rc)
	}
	return failure(c.CapabilityID, lastErr, lastRoute, reason, attempts)
}

func runAttempt(ctx context.Context, tracer trace.Tracer, impl RouteFunc, c *card.OperationCard, input map[string]any, rc RouteContext, route card.Route, n int) (any, error) {
	ctx, span := tracer.Start(ctx, "ghx.route_attempt", trace.WithAttributes(
		attribute.String("ghx.capability_id", c.CapabilityID),
		attribute.String("ghx.route", string(route)),
		attribute.Int("ghx.attempt", n),
	))
	defer span.End()

	data, err := impl(ctx, c, input, rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return data, err
}

// routePreflight checks the environment a route needs.
func routePreflight(route card.Route, rc RouteContext) *Error {
	switch route {
	case card.RouteGraphQL, card.RouteREST:
		if !rc.HasCredential {
			return NewError(CodeAuth, "%s route requires a GitHub token", route)
		}
	case card.RouteCLI:
		if rc.SkipCLIPreflight {
			return nil
		}
		if !rc.CLIAvailable {
			return NewError(CodeAdapterUnsupported, "gh is not installed")
		}
		if !rc.CLIAuthenticated {
			return NewError(CodeAuth, "gh is not authenticated (run gh auth login)")
		}
	}
	return nil
}

func reasonFor(i int, rc RouteContext) string {
	if rc.ReasonOverride != "" {
		return rc.ReasonOverride
	}
	if i == 0 {
		return ReasonCardPreferred
	}
	return ReasonCardFallback
}
