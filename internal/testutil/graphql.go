package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// GraphQLRequest is one request received by a GraphQLServer.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	Authorization string         `json:"-"`
}

// GraphQLHandler answers one request with a status and a JSON body.
type GraphQLHandler func(req GraphQLRequest) (status int, body any)

// GraphQLServer is an httptest server speaking the GraphQL-over-HTTP POST
// protocol. It records every request it receives.
type GraphQLServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []GraphQLRequest
}

// NewGraphQLServer starts a server answering with h. It is closed when the
// test ends.
func NewGraphQLServer(t testing.TB, h GraphQLHandler) *GraphQLServer {
	t.Helper()
	s := &GraphQLServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req GraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Authorization = r.Header.Get("Authorization")

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		status, body := h(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns a copy of the requests received so far.
func (s *GraphQLServer) Requests() []GraphQLRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GraphQLRequest(nil), s.requests...)
}

// Data wraps data in a successful GraphQL response body.
func Data(data map[string]any) (int, any) {
	return http.StatusOK, map[string]any{"data": data}
}
