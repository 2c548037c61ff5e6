package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryeko/ghx-router-sub004/internal/cache"
	"github.com/aryeko/ghx-router-sub004/internal/composite"
	"github.com/aryeko/ghx-router-sub004/internal/registry"
	"github.com/aryeko/ghx-router-sub004/internal/store"
)

// DefaultMaxAttemptsPerRoute is how many times a route is tried for
// retryable errors before falling back.
const DefaultMaxAttemptsPerRoute = 2

// DefaultCLITimeout applies to cli routes whose card sets no timeout.
const DefaultCLITimeout = 30 * time.Second

// GraphQLClient executes one GraphQL document. A response with data and
// errors returns the data together with a *PartialResponseError.
type GraphQLClient interface {
	Execute(ctx context.Context, document string, variables map[string]any) (map[string]any, error)
}

// CommandResult is the outcome of one command run.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs the gh command line tool.
type CommandRunner interface {
	Run(ctx context.Context, command string, args []string, timeout time.Duration) (CommandResult, error)
}

// RESTClient performs one REST call and returns the decoded body.
type RESTClient interface {
	Do(ctx context.Context, method, path string, body any) (any, error)
}

// Recorder persists envelopes. *store.Store implements it.
type Recorder interface {
	WriteExecution(ctx context.Context, exec store.Execution) error
}

// RouteContext carries per-call facts about the environment.
type RouteContext struct {
	// HasCredential reports a GitHub token is available to the graphql and
	// rest routes.
	HasCredential bool

	// CLIAvailable and CLIAuthenticated describe the gh installation.
	CLIAvailable     bool
	CLIAuthenticated bool

	// SkipCLIPreflight trusts the cli route without checking the two flags
	// above, for environments where detection itself is unsafe.
	SkipCLIPreflight bool

	// ReasonOverride replaces Meta.Reason on every envelope when set.
	ReasonOverride string

	// Cache shares lookup results across calls. Nil uses the engine's cache.
	Cache *cache.Cache
}

// Engine executes capability requests against a card registry.
//
// Thread-safety: an Engine holds no per-call state and may be shared; the
// resolution cache it uses is safe for concurrent use.
type Engine struct {
	registry    *registry.Registry
	expander    *composite.Expander
	gql         GraphQLClient
	runner      CommandRunner
	rest        RESTClient
	recorder    Recorder
	cache       *cache.Cache
	ids         IDGenerator
	logger      *slog.Logger
	tracer      trace.Tracer
	maxAttempts int
	routes      Routes
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithMaxAttemptsPerRoute sets the per-route attempt cap.
//
// Default: 2 (DefaultMaxAttemptsPerRoute). Values below 1 are ignored.
func WithMaxAttemptsPerRoute(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

// WithGraphQLClient sets the transport for the graphql route and for
// resolution lookups.
func WithGraphQLClient(c GraphQLClient) Option {
	return func(e *Engine) { e.gql = c }
}

// WithCommandRunner sets the runner for the cli route.
func WithCommandRunner(r CommandRunner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithRESTClient sets the client for the rest route.
func WithRESTClient(c RESTClient) Option {
	return func(e *Engine) { e.rest = c }
}

// WithRecorder records every envelope, e.g. into a *store.Store.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithCache sets the default resolution cache.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithIDGenerator sets the request id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer. Default: the global otel tracer provider,
// which is a no-op until one is installed.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithRoutes replaces individual route implementations. Nil fields keep
// the built-in implementation.
func WithRoutes(r Routes) Option {
	return func(e *Engine) { e.routes = r }
}

// New creates an Engine over reg.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		expander:    composite.NewExpander(reg.Builders()),
		cache:       cache.New(),
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/aryeko/ghx-router-sub004/internal/engine"),
		maxAttempts: DefaultMaxAttemptsPerRoute,
	}

	for _, opt := range opts {
		opt(e)
	}

	builtin := Routes{GraphQL: e.graphqlRoute, CLI: e.cliRoute, REST: e.restRoute}
	if e.routes.GraphQL == nil {
		e.routes.GraphQL = builtin.GraphQL
	}
	if e.routes.CLI == nil {
		e.routes.CLI = builtin.CLI
	}
	if e.routes.REST == nil {
		e.routes.REST = builtin.REST
	}

	return e
}

// Registry returns the engine's card registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// CacheStats reports the default cache's counters.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

func (e *Engine) cacheFor(rc RouteContext) *cache.Cache {
	if rc.Cache != nil {
		return rc.Cache
	}
	return e.cache
}

func (e *Engine) routeOptions(id string) RouteOptions {
	return RouteOptions{
		MaxAttemptsPerRoute: e.maxAttempts,
		OutputSchema:        e.registry.OutputSchema(id),
		Logger:              e.logger,
		Tracer:              e.tracer,
	}
}
