package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestExecution creates an execution with minimal required fields.
func createTestExecution(id, capabilityID string, ok bool) Execution {
	return Execution{
		ID:           id,
		CapabilityID: capabilityID,
		OK:           ok,
		RouteUsed:    "graphql",
		Reason:       "CARD_PREFERRED",
		Envelope:     json.RawMessage(`{"ok":true}`),
		Attempts:     []Attempt{{Route: "graphql", Status: "ok"}},
	}
}
