package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryeko/ghx-router-sub004/internal/card"
)

func closeReq(id string) Request {
	return Request{Task: "issue.close", Input: map[string]any{"issueId": id}}
}

func TestExecuteTasks_Empty(t *testing.T) {
	e := newTestEngine(t)

	res := e.ExecuteTasks(context.Background(), nil, fullAccess)

	assert.Equal(t, BatchSuccess, res.Status)
	assert.Equal(t, BatchMeta{}, res.Meta)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
}

func TestExecuteTasks_SingleRequestUsesTaskPath(t *testing.T) {
	gql := replyWith(map[string]any{
		"closeIssue": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
	})
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{closeReq("I_1")}, fullAccess)

	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, "req-1", res.Results[0].Meta.RequestID)
	assert.Equal(t, BatchMeta{Total: 1, Succeeded: 1}, res.Meta)
	calls := gql.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Document, "BatchMutation")
}

func TestExecuteTasks_MutationsShareOneCall(t *testing.T) {
	gql := replyWith(map[string]any{
		"step0": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
		"step1": map[string]any{"commentEdge": map[string]any{"node": map[string]any{"id": "C_1"}}},
	})
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{
		closeReq("I_1"),
		{Task: "issue.comments.create", Input: map[string]any{"issueId": "I_2", "body": "hello"}},
	}, fullAccess)

	assert.Equal(t, BatchSuccess, res.Status)
	assert.Equal(t, BatchMeta{Total: 2, Succeeded: 2}, res.Meta)

	calls := gql.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Document, "BatchMutation")
	assert.Equal(t, map[string]any{
		"step0_issueId": "I_1",
		"step1_issueId": "I_2",
		"step1_body":    "hello",
	}, calls[0].Variables)

	require.Len(t, res.Results, 2)
	assert.Equal(t, map[string]any{"id": "I_1", "state": "CLOSED"}, res.Results[0].Data)
	assert.Equal(t, map[string]any{"id": "C_1"}, res.Results[1].Data)
	for _, r := range res.Results {
		assert.Equal(t, card.RouteGraphQL, r.Meta.RouteUsed)
		assert.Equal(t, ReasonCardPreferred, r.Meta.Reason)
		assert.Equal(t, []Attempt{{Route: card.RouteGraphQL, Status: AttemptOK}}, r.Meta.Attempts)
	}
	// req-1 is the batch id.
	assert.Equal(t, "req-2", res.Results[0].Meta.RequestID)
	assert.Equal(t, "req-3", res.Results[1].Meta.RequestID)
}

func TestExecuteTasks_PreservesOrderAcrossRoutes(t *testing.T) {
	gql := &fakeGQL{respond: func(_ int, document string, _ map[string]any) (map[string]any, error) {
		if isMutation(document) {
			return map[string]any{
				"step1": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
			}, nil
		}
		return map[string]any{
			"step0": map[string]any{"issue": map[string]any{"number": 4, "title": "Flaky test", "state": "OPEN"}},
		}, nil
	}}
	runner := &fakeRunner{result: CommandResult{Stdout: "merged"}}
	e := newTestEngine(t, WithGraphQLClient(gql), WithCommandRunner(runner))

	res := e.ExecuteTasks(context.Background(), []Request{
		{Task: "issue.view", Input: map[string]any{"owner": "o", "name": "r", "issueNumber": 4}},
		closeReq("I_1"),
		{Task: "pr.merge", Input: map[string]any{"owner": "o", "name": "r", "prNumber": 2}},
		{Task: "issue.teleport", Input: map[string]any{}},
	}, fullAccess)

	assert.Equal(t, BatchPartial, res.Status)
	assert.Equal(t, BatchMeta{Total: 4, Succeeded: 3, Failed: 1}, res.Meta)
	require.Len(t, res.Results, 4)

	ids := make([]string, len(res.Results))
	for i, r := range res.Results {
		ids[i] = r.Meta.CapabilityID
	}
	assert.Equal(t, []string{"issue.view", "issue.close", "pr.merge", "issue.teleport"}, ids)

	assert.Equal(t, "Flaky test", res.Results[0].Data.(map[string]any)["title"])
	assert.Equal(t, card.RouteCLI, res.Results[2].Meta.RouteUsed)
	assert.Equal(t, map[string]any{"output": "merged"}, res.Results[2].Data)
	assert.Equal(t, CodeValidation, res.Results[3].Error.Code)

	assert.Len(t, gql.Calls(), 2, "one query and one mutation")
	assert.Len(t, runner.Calls(), 1)
}

func TestExecuteTasks_ResolutionFailureIsolated(t *testing.T) {
	gql := &fakeGQL{respond: func(_ int, document string, _ map[string]any) (map[string]any, error) {
		if isMutation(document) {
			return map[string]any{
				"step1": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
			}, nil
		}
		return map[string]any{"step0": map[string]any{
			"issue": map[string]any{"id": "I_7"},
			"labels": map[string]any{
				"nodes":    []any{map[string]any{"id": "L1", "name": "bug"}},
				"pageInfo": map[string]any{"hasNextPage": true},
			},
		}}, nil
	}}
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{
		{Task: "issue.labels.add", Input: map[string]any{"owner": "o", "name": "r", "issueNumber": 7, "labels": []any{"bug"}}},
		closeReq("I_1"),
	}, fullAccess)

	assert.Equal(t, BatchPartial, res.Status)
	require.False(t, res.Results[0].OK)
	assert.Equal(t, CodeResolutionFailed, res.Results[0].Error.Code)
	assert.Contains(t, res.Results[0].Error.Message, "hasNextPage")
	assert.True(t, res.Results[1].OK)

	calls := gql.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[1].Variables, "step0_labelIds", "failed step is left out of the mutation")
}

func TestExecuteTasks_LookupCacheDeduplicates(t *testing.T) {
	gql := &fakeGQL{respond: func(_ int, document string, _ map[string]any) (map[string]any, error) {
		if isMutation(document) {
			return map[string]any{
				"step0": map[string]any{"issue": map[string]any{"id": "I_9", "milestone": nil}},
				"step1": map[string]any{"issue": map[string]any{"id": "I_9", "milestone": nil}},
			}, nil
		}
		return map[string]any{"step0": map[string]any{"issue": map[string]any{"id": "I_9"}}}, nil
	}}
	e := newTestEngine(t, WithGraphQLClient(gql))
	clear := Request{Task: "issue.milestone.clear", Input: map[string]any{"owner": "o", "name": "r", "issueNumber": 9}}

	res := e.ExecuteTasks(context.Background(), []Request{clear, clear}, fullAccess)

	require.Equal(t, BatchSuccess, res.Status, "results: %+v", res.Results)
	calls := gql.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0].Document, "step1", "identical lookups are fetched once")
	assert.Equal(t, "I_9", calls[1].Variables["step0_issueId"])
	assert.Equal(t, "I_9", calls[1].Variables["step1_issueId"])
	assert.Equal(t, 1, e.CacheStats().Entries)

	res = e.ExecuteTasks(context.Background(), []Request{clear, clear}, fullAccess)

	require.Equal(t, BatchSuccess, res.Status)
	calls = gql.Calls()
	require.Len(t, calls, 3, "the second batch only sends the mutation")
	assert.True(t, isMutation(calls[2].Document))
	assert.GreaterOrEqual(t, e.CacheStats().Hits, int64(2))
}

func TestExecuteTasks_TransportErrorFailsWholeCall(t *testing.T) {
	gql := failWith(NewError(CodeNetwork, "connection reset by peer"))
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{closeReq("I_1"), closeReq("I_2")}, fullAccess)

	assert.Equal(t, BatchFailed, res.Status)
	assert.Len(t, gql.Calls(), 1, "batched calls are not retried")
	for _, r := range res.Results {
		require.False(t, r.OK)
		assert.Equal(t, CodeNetwork, r.Error.Code)
		assert.True(t, r.Error.Retryable)
		assert.Equal(t, []Attempt{{Route: card.RouteGraphQL, Status: AttemptError, ErrorCode: CodeNetwork}}, r.Meta.Attempts)
	}
}

func TestExecuteTasks_PartialResponse(t *testing.T) {
	gql := &fakeGQL{respond: func(int, string, map[string]any) (map[string]any, error) {
		return map[string]any{
				"step0": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
				"step1": nil,
			}, &PartialResponseError{Errors: []FieldError{
				{Key: "step1", Code: CodeNotFound, Message: "Could not resolve to a node with the global id of 'I_2'"},
			}}
	}}
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{closeReq("I_1"), closeReq("I_2")}, fullAccess)

	assert.Equal(t, BatchPartial, res.Status)
	assert.True(t, res.Results[0].OK)
	require.False(t, res.Results[1].OK)
	assert.Equal(t, CodeNotFound, res.Results[1].Error.Code)
	assert.Equal(t, "step1", res.Results[1].Error.Details["alias"])
}

func TestExecuteTasks_MissingAliasInResponse(t *testing.T) {
	gql := replyWith(map[string]any{
		"step0": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
	})
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{closeReq("I_1"), closeReq("I_2")}, fullAccess)

	assert.True(t, res.Results[0].OK)
	require.False(t, res.Results[1].OK)
	assert.Equal(t, CodeUnknown, res.Results[1].Error.Code)
}

func TestExecuteTasks_NoGraphQLClient(t *testing.T) {
	e := newTestEngine(t)

	res := e.ExecuteTasks(context.Background(), []Request{closeReq("I_1"), closeReq("I_2")}, fullAccess)

	assert.Equal(t, BatchFailed, res.Status)
	for _, r := range res.Results {
		assert.Equal(t, CodeAdapterUnsupported, r.Error.Code)
	}
}

func TestExecuteTasks_CompositeJoinsTheMutation(t *testing.T) {
	gql := replyWith(map[string]any{
		"step0_pr_thread_resolve_0": map[string]any{"thread": map[string]any{"id": "T1", "isResolved": true}},
		"step1":                     map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
	})
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{
		{Task: "pr.threads.composite", Input: map[string]any{
			"threads": []any{map[string]any{"threadId": "T1", "action": "resolve"}},
		}},
		closeReq("I_1"),
	}, fullAccess)

	require.Equal(t, BatchSuccess, res.Status, "results: %+v", res.Results)
	assert.Equal(t, []any{map[string]any{"id": "T1", "isResolved": true}}, res.Results[0].Data)

	calls := gql.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "T1", calls[0].Variables["step0_pr_thread_resolve_0_threadId"])
}

func TestExecuteTasks_RecordsBatchID(t *testing.T) {
	rec := &memRecorder{}
	gql := replyWith(map[string]any{
		"step0": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
		"step1": map[string]any{"issue": map[string]any{"id": "I_2", "state": "CLOSED"}},
	})
	e := newTestEngine(t, WithGraphQLClient(gql), WithRecorder(rec))

	e.ExecuteTasks(context.Background(), []Request{closeReq("I_1"), closeReq("I_2")}, fullAccess)

	require.Len(t, rec.execs, 2)
	for _, exec := range rec.execs {
		assert.Equal(t, "req-1", exec.BatchID)
		assert.True(t, strings.HasPrefix(exec.ID, "req-"))
	}
}

func TestPreflight(t *testing.T) {
	e := newTestEngine(t)

	res := e.Preflight([]Request{
		{Task: "issue.view", Input: map[string]any{"owner": "o", "name": "r", "issueNumber": 1}},
		closeReq("I_1"),
		{Task: "pr.merge", Input: map[string]any{"owner": "o", "name": "r", "prNumber": 1}},
		{Task: "pr.threads.composite", Input: map[string]any{"threads": []any{map[string]any{"threadId": "T", "action": "resolve"}}}},
		{Task: "issue.close", Input: map[string]any{"issueId": ""}},
	})

	assert.False(t, res.OK)
	require.Len(t, res.Steps, 4)
	routes := make([]StepRoute, len(res.Steps))
	for i, s := range res.Steps {
		routes[i] = s.Route
		assert.Equal(t, i, s.Index)
	}
	assert.Equal(t, []StepRoute{StepQuery, StepMutation, StepCLI, StepMutation}, routes)
	assert.Equal(t, card.RouteGraphQL, res.RouteUsed)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 4, res.Failures[0].Index)
	assert.Equal(t, CodeValidation, res.Failures[0].Err.Code)
}

func TestPreflight_AllCLI(t *testing.T) {
	e := newTestEngine(t)

	res := e.Preflight([]Request{
		{Task: "pr.merge", Input: map[string]any{"owner": "o", "name": "r", "prNumber": 1}},
		{Task: "pr.merge", Input: map[string]any{"owner": "o", "name": "r", "prNumber": 2}},
	})

	assert.True(t, res.OK)
	assert.Equal(t, card.RouteCLI, res.RouteUsed)
}

func TestPreflight_NilInputIsEmptyObject(t *testing.T) {
	e := newTestEngine(t)

	res := e.Preflight([]Request{{Task: "issue.close"}})

	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Err.Message, "issueId")
}

func TestExecuteTasks_NoTokenFallsBackPerStep(t *testing.T) {
	gql := &fakeGQL{}
	runner := &fakeRunner{result: CommandResult{Stdout: `{"name":"r","nameWithOwner":"o/r","url":"https://github.com/o/r"}`}}
	e := newTestEngine(t, WithGraphQLClient(gql), WithCommandRunner(runner))

	res := e.ExecuteTasks(context.Background(), []Request{
		{Task: "repo.view", Input: map[string]any{"owner": "o", "name": "r"}},
		{Task: "repo.view", Input: map[string]any{"owner": "o", "name": "r"}},
	}, RouteContext{CLIAvailable: true, CLIAuthenticated: true})

	assert.Equal(t, BatchSuccess, res.Status)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		require.True(t, r.OK, "error: %+v", r.Error)
		assert.Equal(t, card.RouteCLI, r.Meta.RouteUsed)
		assert.Equal(t, ReasonCardFallback, r.Meta.Reason)
		assert.Equal(t, []Attempt{
			{Route: card.RouteGraphQL, Status: AttemptSkipped, ErrorCode: CodeAuth},
			{Route: card.RouteCLI, Status: AttemptOK},
		}, r.Meta.Attempts)
	}
	assert.Empty(t, gql.Calls(), "no unauthenticated graphql call")
	assert.Len(t, runner.Calls(), 2)
}

func TestExecuteTasks_PreflightFailureCarriesBatchRoute(t *testing.T) {
	runner := &fakeRunner{result: CommandResult{Stdout: "merged"}}
	e := newTestEngine(t, WithCommandRunner(runner))

	res := e.ExecuteTasks(context.Background(), []Request{
		{Task: "pr.merge", Input: map[string]any{"owner": "o", "name": "r", "prNumber": 1}},
		{Task: "issue.teleport", Input: map[string]any{}},
	}, fullAccess)

	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].OK)
	require.False(t, res.Results[1].OK)
	assert.Equal(t, CodeValidation, res.Results[1].Error.Code)
	assert.Equal(t, card.RouteCLI, res.Results[1].Meta.RouteUsed)
	assert.Empty(t, res.Results[1].Meta.Attempts)
}

func TestExecuteTasks_LookupErrorKeepsCodeAndSkipsCache(t *testing.T) {
	gql := &fakeGQL{respond: func(_ int, document string, _ map[string]any) (map[string]any, error) {
		if isMutation(document) {
			return map[string]any{
				"step1": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
			}, nil
		}
		return map[string]any{"step0": map[string]any{"issue": nil}}, &PartialResponseError{Errors: []FieldError{
			{Key: "step0", Code: CodeNotFound, Message: "Could not resolve to an Issue with the number of 4031."},
		}}
	}}
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{
		{Task: "issue.milestone.clear", Input: map[string]any{"owner": "o", "name": "r", "issueNumber": 4031}},
		closeReq("I_1"),
	}, fullAccess)

	assert.Equal(t, BatchPartial, res.Status)
	require.False(t, res.Results[0].OK)
	assert.Equal(t, CodeNotFound, res.Results[0].Error.Code)
	assert.Contains(t, res.Results[0].Error.Message, "number of 4031")
	assert.True(t, res.Results[1].OK)
	assert.Equal(t, 0, e.CacheStats().Entries, "failed lookups are not cached")

	calls := gql.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[1].Variables, "step0_issueId")
}
