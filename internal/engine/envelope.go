package engine

import "github.com/aryeko/ghx-router-sub004/internal/card"

// Routing reasons reported in Meta.Reason.
const (
	ReasonCardPreferred = "CARD_PREFERRED"
	ReasonCardFallback  = "CARD_FALLBACK"
	ReasonDefaultPolicy = "DEFAULT_POLICY"
)

// Request is one {task, input} submission.
type Request struct {
	Task  string         `json:"task" yaml:"task"`
	Input map[string]any `json:"input" yaml:"input"`
}

// Envelope is the uniform result of one request.
type Envelope struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Error *EnvelopeError `json:"error,omitempty"`
	Meta  Meta           `json:"meta"`
}

// EnvelopeError is the failure half of an envelope. Message is safe to
// display; Details are diagnostic and not stable.
type EnvelopeError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Meta describes how an envelope was produced.
type Meta struct {
	CapabilityID string     `json:"capability_id"`
	RouteUsed    card.Route `json:"route_used,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Attempts     []Attempt  `json:"attempts,omitempty"`
	RequestID    string     `json:"request_id,omitempty"`
}

// AttemptStatus is the outcome of one route attempt.
type AttemptStatus string

const (
	AttemptOK      AttemptStatus = "ok"
	AttemptError   AttemptStatus = "error"
	AttemptSkipped AttemptStatus = "skipped"
)

// Attempt records one try of one route.
type Attempt struct {
	Route     card.Route    `json:"route"`
	Status    AttemptStatus `json:"status"`
	ErrorCode ErrorCode     `json:"error_code,omitempty"`
}

// BatchStatus summarizes a batch.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailed  BatchStatus = "failed"
)

// BatchResult is the result of ExecuteTasks. Results[i] answers request i.
type BatchResult struct {
	Status  BatchStatus `json:"status"`
	Results []Envelope  `json:"results"`
	Meta    BatchMeta   `json:"meta"`
}

// BatchMeta counts batch outcomes.
type BatchMeta struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func success(capabilityID string, data any, route card.Route, reason string, attempts []Attempt) Envelope {
	return Envelope{
		OK:   true,
		Data: data,
		Meta: Meta{CapabilityID: capabilityID, RouteUsed: route, Reason: reason, Attempts: attempts},
	}
}

func failure(capabilityID string, err *Error, route card.Route, reason string, attempts []Attempt) Envelope {
	return Envelope{
		OK: false,
		Error: &EnvelopeError{
			Code:      err.Code,
			Message:   err.Message,
			Retryable: err.Code.Retryable(),
			Details:   err.Details,
		},
		Meta: Meta{CapabilityID: capabilityID, RouteUsed: route, Reason: reason, Attempts: attempts},
	}
}

// summarize builds a BatchResult around results.
func summarize(results []Envelope) BatchResult {
	meta := BatchMeta{Total: len(results)}
	for _, r := range results {
		if r.OK {
			meta.Succeeded++
		} else {
			meta.Failed++
		}
	}
	status := BatchPartial
	switch {
	case meta.Failed == 0:
		status = BatchSuccess
	case meta.Succeeded == 0:
		status = BatchFailed
	}
	return BatchResult{Status: status, Results: results, Meta: meta}
}
