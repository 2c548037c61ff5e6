package store

import (
	"encoding/json"
	"fmt"

	"github.com/aryeko/ghx-router-sub004/internal/canonical"
)

// MarshalEnvelope encodes an envelope as canonical JSON for storage.
func MarshalEnvelope(v any) (json.RawMessage, error) {
	data, err := canonical.MarshalAny(v)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
