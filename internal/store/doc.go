// Package store provides SQLite-backed storage for the execution trace log.
//
// Every envelope the engine returns can be recorded together with its route
// attempts, so failed runs can be inspected after the fact with
// `ghx trace`. The log is append-only:
//   - Executions: one row per envelope, keyed by request id
//   - Attempts: the route attempts behind an execution, in order
//
// # Ordering
//
// Executions are ordered by seq, an autoincrement column, never by wall
// time. Attempts are ordered by their ordinal within the execution.
//
// # Database Configuration
//
//   - WAL mode, so ghx trace can read while a run is recording
//   - synchronous=NORMAL
//   - busy_timeout=5000 unless WithBusyTimeout says otherwise
//   - foreign_keys=ON
//
// ReadOnly opens skip schema setup and refuse writes.
//
// Envelopes are stored as canonical JSON (internal/canonical) so identical
// envelopes are byte-identical on disk.
package store
