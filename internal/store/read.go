package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ListOptions filters ListExecutions.
type ListOptions struct {
	CapabilityID string
	BatchID      string
	FailedOnly   bool
	// Limit caps the result to the most recent executions. Zero means 50.
	Limit int
}

// ReadExecution returns one execution with its attempts.
// Returns ErrNotFound if no execution has the id.
func (s *Store) ReadExecution(ctx context.Context, id string) (Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, batch_id, capability_id, ok, route_used, reason, error_code, envelope
		FROM executions
		WHERE id = ?
	`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Execution{}, err
	}
	exec.Attempts, err = s.readAttempts(ctx, id)
	if err != nil {
		return Execution{}, err
	}
	return exec, nil
}

// ListExecutions returns matching executions, oldest first, limited to the
// most recent opts.Limit.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListExecutions(ctx context.Context, opts ListOptions) ([]Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []any
	if opts.CapabilityID != "" {
		where = append(where, "capability_id = ?")
		args = append(args, opts.CapabilityID)
	}
	if opts.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, opts.BatchID)
	}
	if opts.FailedOnly {
		where = append(where, "ok = 0")
	}
	query := `SELECT seq, id, batch_id, capability_id, ok, route_used, reason, error_code, envelope FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	execs := []Execution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}

	for i := range execs {
		execs[i].Attempts, err = s.readAttempts(ctx, execs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return execs, nil
}

func (s *Store) readAttempts(ctx context.Context, executionID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route, status, error_code
		FROM attempts
		WHERE execution_id = ?
		ORDER BY ordinal ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.Route, &a.Status, &a.ErrorCode); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (Execution, error) {
	var (
		exec     Execution
		ok       int
		envelope string
	)
	err := row.Scan(&exec.Seq, &exec.ID, &exec.BatchID, &exec.CapabilityID, &ok,
		&exec.RouteUsed, &exec.Reason, &exec.ErrorCode, &envelope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Execution{}, err
		}
		return Execution{}, fmt.Errorf("scan execution: %w", err)
	}
	exec.OK = ok == 1
	exec.Envelope = []byte(envelope)
	return exec, nil
}
