package engine

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/aryeko/ghx-router-sub004/internal/canonical"
)

// assertGolden compares the canonical encoding of v with
// testdata/golden/<name>.golden. Run with -update to rewrite.
func assertGolden(t *testing.T, name string, v any) {
	t.Helper()
	data, err := canonical.MarshalAny(v)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, append(data, '\n'))
}

func TestGolden_PartialBatch(t *testing.T) {
	gql := replyWith(map[string]any{
		"step0": map[string]any{"issue": map[string]any{"id": "I_1", "state": "CLOSED"}},
	})
	e := newTestEngine(t, WithGraphQLClient(gql))

	res := e.ExecuteTasks(context.Background(), []Request{
		closeReq("I_1"),
		{Task: "issue.teleport", Input: map[string]any{}},
	}, fullAccess)

	assertGolden(t, "batch_partial", res)
}

func TestGolden_AllRoutesSkipped(t *testing.T) {
	e := newTestEngine(t, WithGraphQLClient(&fakeGQL{}))

	env := e.ExecuteTask(context.Background(), Request{Task: "repo.view", Input: map[string]any{"owner": "o", "name": "r"}}, RouteContext{})

	assertGolden(t, "all_routes_skipped", env)
}
