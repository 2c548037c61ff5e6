package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Execution is one recorded envelope.
type Execution struct {
	Seq          int64           `json:"seq"`
	ID           string          `json:"id"`
	BatchID      string          `json:"batch_id,omitempty"`
	CapabilityID string          `json:"capability_id"`
	OK           bool            `json:"ok"`
	RouteUsed    string          `json:"route_used,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	Envelope     json.RawMessage `json:"envelope"`
	Attempts     []Attempt       `json:"attempts"`
}

// Attempt is one route attempt behind an execution.
type Attempt struct {
	Route     string `json:"route"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
}

// WriteExecution inserts an execution and its attempts in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-recording the same
// request id is silently ignored, attempts included.
func (s *Store) WriteExecution(ctx context.Context, exec Execution) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if exec.ID == "" {
		return fmt.Errorf("write execution: id is required")
	}
	if len(exec.Envelope) == 0 {
		return fmt.Errorf("write execution %s: envelope is required", exec.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write execution: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO executions
		(id, batch_id, capability_id, ok, route_used, reason, error_code, envelope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		exec.ID,
		exec.BatchID,
		exec.CapabilityID,
		boolToInt(exec.OK),
		exec.RouteUsed,
		exec.Reason,
		exec.ErrorCode,
		string(exec.Envelope),
	)
	if err != nil {
		return fmt.Errorf("write execution: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("write execution: rows affected: %w", err)
	} else if n == 0 {
		return nil
	}

	for i, a := range exec.Attempts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attempts (execution_id, ordinal, route, status, error_code)
			VALUES (?, ?, ?, ?, ?)
		`, exec.ID, i, a.Route, a.Status, a.ErrorCode)
		if err != nil {
			return fmt.Errorf("write attempt %d of %s: %w", i, exec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write execution: commit: %w", err)
	}
	return nil
}
