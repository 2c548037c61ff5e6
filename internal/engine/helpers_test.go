package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aryeko/ghx-router-sub004/internal/registry"
	"github.com/aryeko/ghx-router-sub004/internal/store"
	"github.com/aryeko/ghx-router-sub004/internal/testutil"
)

// fullAccess is an environment where every route passes its checks.
var fullAccess = RouteContext{HasCredential: true, CLIAvailable: true, CLIAuthenticated: true}

// tokenOnly has a credential but no gh installation.
var tokenOnly = RouteContext{HasCredential: true}

type gqlCall struct {
	Document  string
	Variables map[string]any
}

// fakeGQL records calls and answers with respond. Without respond every
// call returns empty data.
type fakeGQL struct {
	mu      sync.Mutex
	calls   []gqlCall
	respond func(n int, document string, vars map[string]any) (map[string]any, error)
}

func (f *fakeGQL) Execute(_ context.Context, document string, variables map[string]any) (map[string]any, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, gqlCall{Document: document, Variables: variables})
	f.mu.Unlock()
	if f.respond == nil {
		return map[string]any{}, nil
	}
	return f.respond(n, document, variables)
}

func (f *fakeGQL) Calls() []gqlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gqlCall(nil), f.calls...)
}

// replyWith answers every call with data.
func replyWith(data map[string]any) *fakeGQL {
	return &fakeGQL{respond: func(int, string, map[string]any) (map[string]any, error) { return data, nil }}
}

// failWith answers every call with err.
func failWith(err error) *fakeGQL {
	return &fakeGQL{respond: func(int, string, map[string]any) (map[string]any, error) { return nil, err }}
}

func isMutation(document string) bool {
	return strings.HasPrefix(strings.TrimSpace(document), "mutation")
}

type runCall struct {
	Command string
	Args    []string
	Timeout time.Duration
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	result CommandResult
	err    error
}

func (f *fakeRunner) Run(_ context.Context, command string, args []string, timeout time.Duration) (CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{Command: command, Args: args, Timeout: timeout})
	return f.result, f.err
}

func (f *fakeRunner) Calls() []runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runCall(nil), f.calls...)
}

type fakeRESTClient struct {
	method, path string
	body         any
	result       any
	err          error
}

func (f *fakeRESTClient) Do(_ context.Context, method, path string, body any) (any, error) {
	f.method, f.path, f.body = method, path, body
	return f.result, f.err
}

type memRecorder struct {
	mu    sync.Mutex
	execs []store.Execution
}

func (m *memRecorder) WriteExecution(_ context.Context, exec store.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, exec)
	return nil
}

// newTestEngine builds an engine over the built-in cards with quiet logs
// and request ids req-1, req-2 and so on.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return newEngineFor(t, testutil.Registry(t), opts...)
}

func newEngineFor(t *testing.T, reg *registry.Registry, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(testutil.QuietLogger()),
		WithIDGenerator(NewSequenceGenerator("req")),
	}
	return New(reg, append(base, opts...)...)
}
