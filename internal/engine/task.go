package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryeko/ghx-router-sub004/internal/store"
)

// ExecuteTask runs one request with the full retry and fallback policy.
func (e *Engine) ExecuteTask(ctx context.Context, req Request, rc RouteContext) Envelope {
	ctx, span := e.tracer.Start(ctx, "ghx.execute_task", trace.WithAttributes(
		attribute.String("ghx.capability_id", req.Task),
	))
	defer span.End()

	env := e.executeTask(ctx, req, rc)
	env.Meta.RequestID = e.ids.Generate()
	finishSpan(span, env)

	e.logger.Info("task executed",
		"capability", req.Task,
		"ok", env.OK,
		"route", env.Meta.RouteUsed,
		"request_id", env.Meta.RequestID,
	)
	e.record(ctx, "", env)
	return env
}

func (e *Engine) executeTask(ctx context.Context, req Request, rc RouteContext) Envelope {
	pre := e.Preflight([]Request{req})
	if !pre.OK {
		f := pre.Failures[0]
		return failure(f.CapabilityID, f.Err, pre.RouteUsed, "", nil)
	}
	step := pre.Steps[0]
	rc.Cache = e.cacheFor(rc)
	return ExecuteRoute(ctx, step.Card, step.Request.Input, rc, e.routes, e.routeOptions(step.Card.CapabilityID))
}

func finishSpan(span trace.Span, env Envelope) {
	span.SetAttributes(
		attribute.Bool("ghx.ok", env.OK),
		attribute.String("ghx.route_used", string(env.Meta.RouteUsed)),
		attribute.String("ghx.request_id", env.Meta.RequestID),
	)
	if env.Error != nil {
		span.SetStatus(codes.Error, string(env.Error.Code)+": "+env.Error.Message)
	}
}

// record writes env to the recorder. Recording failures are logged and
// never change the envelope.
func (e *Engine) record(ctx context.Context, batchID string, env Envelope) {
	if e.recorder == nil {
		return
	}
	data, err := store.MarshalEnvelope(env)
	if err != nil {
		e.logger.Warn("encode envelope for trace", "request_id", env.Meta.RequestID, "error", err)
		return
	}
	exec := store.Execution{
		ID:           env.Meta.RequestID,
		BatchID:      batchID,
		CapabilityID: env.Meta.CapabilityID,
		OK:           env.OK,
		RouteUsed:    string(env.Meta.RouteUsed),
		Reason:       env.Meta.Reason,
		Envelope:     data,
	}
	if env.Error != nil {
		exec.ErrorCode = string(env.Error.Code)
	}
	for _, a := range env.Meta.Attempts {
		exec.Attempts = append(exec.Attempts, store.Attempt{
			Route:     string(a.Route),
			Status:    string(a.Status),
			ErrorCode: string(a.ErrorCode),
		})
	}
	if err := e.recorder.WriteExecution(ctx, exec); err != nil {
		e.logger.Warn("record execution", "request_id", env.Meta.RequestID, "error", err)
	}
}
