package cli

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/spf13/cobra"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
	"github.com/aryeko/ghx-router-sub004/internal/testutil"
	"github.com/aryeko/ghx-router-sub004/internal/transport"
)

// testEnv points the real API client at a recording GraphQL server. The
// gh CLI is reported missing so no command ever runs.
func testEnv(t *testing.T, h testutil.GraphQLHandler) (*Environment, *testutil.GraphQLServer) {
	t.Helper()
	srv := testutil.NewGraphQLServer(t, h)
	client := transport.NewClient("test-token",
		transport.WithBaseURL(srv.URL),
		transport.WithLogger(testutil.QuietLogger()))
	return &Environment{
		GraphQL: client,
		REST:    client,
		Route:   engine.RouteContext{HasCredential: true},
		IDs:     engine.NewSequenceGenerator("req"),
	}, srv
}

// offlineEnv fails the test if anything reaches the network.
func offlineEnv(t *testing.T) *Environment {
	t.Helper()
	env, _ := testEnv(t, func(req testutil.GraphQLRequest) (int, any) {
		t.Errorf("unexpected GraphQL request: %s", req.Query)
		return http.StatusInternalServerError, nil
	})
	return env
}

func closedIssue(id string) map[string]any {
	return map[string]any{"issue": map[string]any{"id": id, "state": "CLOSED"}}
}

// execute runs cmd with args and returns what it wrote to stdout and
// stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
