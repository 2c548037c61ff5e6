// Package transport holds the concrete collaborators the engine talks to:
// a GitHub API client serving both the GraphQL and the REST route, and a
// runner for the gh command line tool.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// APIVersion is sent as X-GitHub-Api-Version on REST calls.
const APIVersion = "2022-11-28"

// APIError is a non-2xx response.
type APIError struct {
	Operation   string
	Status      int
	Body        string
	RateLimited bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// ErrorCode classifies the response. An exhausted rate limit is reported
// through headers even when the status is a plain 403.
func (e *APIError) ErrorCode() engine.ErrorCode {
	if e.RateLimited {
		return engine.CodeRateLimit
	}
	return engine.ClassifyStatus(e.Status, e.Body)
}

// Client calls the GitHub API with a bearer token. It implements both
// engine.GraphQLClient and engine.RESTClient.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. GitHub
// Enterprise or a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client. Default: 30s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client authenticating with token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		userAgent:  "ghx",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   map[string]any `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Path    []any  `json:"path"`
}

// Execute posts one GraphQL document. When the response carries errors
// next to data, the data is returned together with an
// *engine.PartialResponseError attributing each error to its top-level
// response key.
func (c *Client) Execute(ctx context.Context, document string, variables map[string]any) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodPost, "/graphql", graphqlRequest{Query: document, Variables: variables})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("graphql", resp)
	}

	var out graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(out.Errors) == 0 {
		return out.Data, nil
	}

	perr := &engine.PartialResponseError{Errors: make([]engine.FieldError, len(out.Errors))}
	for i, ge := range out.Errors {
		perr.Errors[i] = engine.FieldError{Key: responseKey(ge.Path), Code: graphqlErrorCode(ge), Message: ge.Message}
	}
	if len(out.Data) == 0 {
		return nil, perr
	}
	return out.Data, perr
}

// Do performs one REST call against path and decodes the JSON body. An
// empty body decodes to an empty object.
func (c *Client) Do(ctx context.Context, method, path string, body any) (any, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(method+" "+path, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Debug("github api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

func apiError(operation string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s HTTP %d and read body failed: %w", operation, resp.StatusCode, err)
	}
	return &APIError{
		Operation:   operation,
		Status:      resp.StatusCode,
		Body:        string(body),
		RateLimited: resp.Header.Get("X-RateLimit-Remaining") == "0",
	}
}

// responseKey is the first path segment, which for batched documents is the
// operation alias.
func responseKey(path []any) string {
	if len(path) == 0 {
		return ""
	}
	key, _ := path[0].(string)
	return key
}

func graphqlErrorCode(ge graphqlError) engine.ErrorCode {
	switch ge.Type {
	case "NOT_FOUND":
		return engine.CodeNotFound
	case "FORBIDDEN", "INSUFFICIENT_SCOPES":
		return engine.CodeAuth
	case "RATE_LIMITED":
		return engine.CodeRateLimit
	}
	return engine.ClassifyMessage(ge.Message)
}
