package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
	"github.com/aryeko/ghx-router-sub004/internal/testutil"
)

func TestClient_Execute(t *testing.T) {
	srv := testutil.NewGraphQLServer(t, func(req testutil.GraphQLRequest) (int, any) {
		return testutil.Data(map[string]any{"viewer": map[string]any{"login": "octocat"}})
	})
	c := NewClient("t0ken", WithBaseURL(srv.URL), WithLogger(testutil.QuietLogger()))

	data, err := c.Execute(context.Background(), "query { viewer { login } }", map[string]any{"x": "y"})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"viewer": map[string]any{"login": "octocat"}}, data)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer t0ken", reqs[0].Authorization)
	assert.Equal(t, "query { viewer { login } }", reqs[0].Query)
	assert.Equal(t, map[string]any{"x": "y"}, reqs[0].Variables)
}

func TestClient_ExecutePartialResponse(t *testing.T) {
	srv := testutil.NewGraphQLServer(t, func(testutil.GraphQLRequest) (int, any) {
		return http.StatusOK, map[string]any{
			"data": map[string]any{"step0": map[string]any{"id": "I_1"}, "step1": nil},
			"errors": []any{map[string]any{
				"type":    "NOT_FOUND",
				"message": "Could not resolve to a node with the global id of 'I_2'",
				"path":    []any{"step1"},
			}},
		}
	})
	c := NewClient("t", WithBaseURL(srv.URL), WithLogger(testutil.QuietLogger()))

	data, err := c.Execute(context.Background(), "mutation { x }", nil)

	require.Error(t, err)
	var perr *engine.PartialResponseError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Errors, 1)
	assert.Equal(t, engine.FieldError{Key: "step1", Code: engine.CodeNotFound, Message: "Could not resolve to a node with the global id of 'I_2'"}, perr.Errors[0])
	assert.Equal(t, map[string]any{"id": "I_1"}, data["step0"])
}

func TestClient_ExecuteErrorsWithoutData(t *testing.T) {
	srv := testutil.NewGraphQLServer(t, func(testutil.GraphQLRequest) (int, any) {
		return http.StatusOK, map[string]any{
			"data":   nil,
			"errors": []any{map[string]any{"message": "API rate limit exceeded for user ID 1."}},
		}
	})
	c := NewClient("t", WithBaseURL(srv.URL), WithLogger(testutil.QuietLogger()))

	data, err := c.Execute(context.Background(), "query { x }", nil)

	assert.Nil(t, data)
	assert.Equal(t, engine.CodeRateLimit, engine.Normalize(err).Code)
}

func TestClient_ExecuteHTTPStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    engine.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, nil, engine.CodeAuth},
		{"forbidden", http.StatusForbidden, nil, engine.CodeAuth},
		{"rate limit headers", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, engine.CodeRateLimit},
		{"bad gateway", http.StatusBadGateway, nil, engine.CodeServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()
			c := NewClient("t", WithBaseURL(srv.URL), WithLogger(testutil.QuietLogger()))

			_, err := c.Execute(context.Background(), "query { x }", nil)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode())
			assert.Equal(t, tt.want, engine.Normalize(err).Code)
		})
	}
}

func TestClient_Do(t *testing.T) {
	var gotMethod, gotPath, gotVersion string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"r","full_name":"o/r"}`))
	}))
	defer srv.Close()
	c := NewClient("t", WithBaseURL(srv.URL+"/"), WithLogger(testutil.QuietLogger()))

	out, err := c.Do(context.Background(), http.MethodPatch, "/repos/o/r", map[string]any{"description": "d"})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "r", "full_name": "o/r"}, out)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/repos/o/r", gotPath)
	assert.Equal(t, APIVersion, gotVersion)
	assert.Equal(t, map[string]any{"description": "d"}, gotBody)
}

func TestClient_DoNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := NewClient("t", WithBaseURL(srv.URL), WithLogger(testutil.QuietLogger()))

	out, err := c.Do(context.Background(), http.MethodDelete, "/repos/o/r/issues/1/lock", nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out)
}

func TestClient_DoNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()
	c := NewClient("t", WithBaseURL(srv.URL), WithLogger(testutil.QuietLogger()))

	_, err := c.Do(context.Background(), http.MethodGet, "/repos/o/missing", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /repos/o/missing HTTP 404")
	assert.Equal(t, engine.CodeNotFound, engine.Normalize(err).Code)
}
