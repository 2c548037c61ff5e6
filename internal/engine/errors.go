package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/aryeko/ghx-router-sub004/internal/resolve"
	"github.com/aryeko/ghx-router-sub004/internal/schema"
)

// ErrorCode categorizes failures in envelopes.
type ErrorCode string

const (
	// CodeValidation indicates input or output did not satisfy the card schema.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeResolutionFailed indicates a lookup or injection could not produce
	// a value the operation needs.
	CodeResolutionFailed ErrorCode = "RESOLUTION_FAILED"

	// CodeAdapterUnsupported indicates no usable implementation for a route.
	CodeAdapterUnsupported ErrorCode = "ADAPTER_UNSUPPORTED"

	// CodeNetwork indicates a transient transport failure.
	CodeNetwork ErrorCode = "NETWORK"

	// CodeRateLimit indicates the remote rate limit was hit.
	CodeRateLimit ErrorCode = "RATE_LIMIT"

	// CodeAuth indicates a credential or permission problem.
	CodeAuth ErrorCode = "AUTH"

	// CodeNotFound indicates the addressed object does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeServer indicates a remote-side failure.
	CodeServer ErrorCode = "SERVER"

	// CodeUnknown is everything else.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Retryable reports whether another attempt on the same route may succeed.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeNetwork, CodeRateLimit, CodeServer:
		return true
	}
	return false
}

// Error is a classified failure.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// ErrorCode implements CodedError.
func (e *Error) ErrorCode() ErrorCode { return e.Code }

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodedError is implemented by errors that know their classification.
// Transports return such errors so Normalize need not guess.
type CodedError interface {
	error
	ErrorCode() ErrorCode
}

type statusCoder interface {
	StatusCode() int
}

// FieldError is one GraphQL error attributed to a top-level response key.
type FieldError struct {
	Key     string
	Code    ErrorCode
	Message string
}

// PartialResponseError is returned by a GraphQLClient when a response
// carries usable data alongside errors. The data is returned with it.
type PartialResponseError struct {
	Errors []FieldError
}

func (e *PartialResponseError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Message
	}
	return "graphql errors: " + strings.Join(msgs, "; ")
}

// ErrorCode returns the code of the first error.
func (e *PartialResponseError) ErrorCode() ErrorCode {
	if len(e.Errors) == 0 {
		return CodeUnknown
	}
	return e.Errors[0].Code
}

// ForKey returns the errors attributed to key.
func (e *PartialResponseError) ForKey(key string) []FieldError {
	var out []FieldError
	for _, fe := range e.Errors {
		if fe.Key == key {
			out = append(out, fe)
		}
	}
	return out
}

// Normalize classifies err. Typed errors win over status codes, status
// codes over network conditions, and message heuristics come last.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return &Error{Code: coded.ErrorCode(), Message: err.Error(), Err: err}
	}

	var rerr *resolve.Error
	if errors.As(err, &rerr) {
		return &Error{Code: CodeResolutionFailed, Message: rerr.Error(), Err: err}
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return &Error{Code: CodeValidation, Message: verr.Error(), Details: issueDetails(verr), Err: err}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return &Error{Code: ClassifyStatus(sc.StatusCode(), err.Error()), Message: err.Error(), Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Code: CodeUnknown, Message: "request canceled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeNetwork, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
	}

	return &Error{Code: ClassifyMessage(err.Error()), Message: err.Error(), Err: err}
}

// ClassifyStatus maps an HTTP status to an ErrorCode. GitHub reports
// exhausted rate limits as 403, so the body is consulted for those.
func ClassifyStatus(status int, body string) ErrorCode {
	switch {
	case status == 429:
		return CodeRateLimit
	case status == 401:
		return CodeAuth
	case status == 403:
		if ClassifyMessage(body) == CodeRateLimit {
			return CodeRateLimit
		}
		return CodeAuth
	case status == 404:
		return CodeNotFound
	case status == 400 || status == 422:
		return CodeValidation
	case status >= 500:
		return CodeServer
	}
	return CodeUnknown
}

var messageRules = []struct {
	code    ErrorCode
	needles []string
	pattern *regexp.Regexp
}{
	{code: CodeRateLimit, needles: []string{"rate limit", "secondary rate", "abuse detection", "too many requests"}},
	{
		code:    CodeAuth,
		needles: []string{"bad credentials", "unauthorized", "forbidden", "authentication", "gh auth login", "not logged in", "permission"},
		pattern: statusPattern("40[13]"),
	},
	{code: CodeNotFound, needles: []string{"not found", "could not resolve to"}, pattern: statusPattern("404")},
	{
		code:    CodeNetwork,
		needles: []string{"timeout", "timed out", "connection refused", "connection reset", "no such host", "network is unreachable", "tls handshake"},
		pattern: regexp.MustCompile(`\beof\b`),
	},
	{
		code:    CodeServer,
		needles: []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout"},
		pattern: statusPattern("50[0-4]"),
	},
}

// statusPattern matches a status code only where it is reported as one
// ("HTTP 404", "status 503", "status code: 401"), never inside ids or
// issue numbers.
func statusPattern(codes string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:http|status(?: code)?)[\s:]*(?:` + codes + `)\b`)
}

// ClassifyMessage applies text heuristics to an error message, for
// transports (like the gh CLI) that only report text.
func ClassifyMessage(msg string) ErrorCode {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.code
			}
		}
		if rule.pattern != nil && rule.pattern.MatchString(lower) {
			return rule.code
		}
	}
	return CodeUnknown
}

func issueDetails(verr *schema.ValidationError) map[string]any {
	issues := make([]any, len(verr.Issues))
	for i, is := range verr.Issues {
		issues[i] = map[string]any{"path": is.Path, "message": is.Message}
	}
	return map[string]any{"issues": issues}
}
