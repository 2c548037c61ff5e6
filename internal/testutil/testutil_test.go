package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadsBuiltinCards(t *testing.T) {
	r := Registry(t)
	_, ok := r.Get("issue.close")
	assert.True(t, ok)
}

func TestRegistryFrom(t *testing.T) {
	r := RegistryFrom(t, map[string]string{
		"ping.yaml": `
capability_id: meta.ping
version: "1"
description: Ping.
input_schema: {}
output_schema: {}
routing: {preferred: cli, fallbacks: []}
cli: {command: api /zen}
`,
	})
	assert.Equal(t, 1, r.Len())
}

func TestGraphQLServer_RecordsRequests(t *testing.T) {
	srv := NewGraphQLServer(t, func(req GraphQLRequest) (int, any) {
		return Data(map[string]any{"echo": req.Variables["x"]})
	})

	body, err := json.Marshal(map[string]any{"query": "query Q($x: Int) { echo(x: $x) }", "variables": map[string]any{"x": 1}})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "bearer t0ken")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, map[string]any{"data": map[string]any{"echo": float64(1)}}, got)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "bearer t0ken", reqs[0].Authorization)
	assert.Equal(t, "query Q($x: Int) { echo(x: $x) }", reqs[0].Query)
}

func TestGraphQLServer_RejectsGet(t *testing.T) {
	srv := NewGraphQLServer(t, func(GraphQLRequest) (int, any) { return Data(nil) })
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Empty(t, srv.Requests())
}
