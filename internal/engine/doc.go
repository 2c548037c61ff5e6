// Package engine routes capability requests to GitHub and returns uniform
// result envelopes.
//
// ARCHITECTURE:
//
// Single request (ExecuteTask):
// 1. Preflight: card lookup, input schema, usable route, lookup variables
// 2. ExecuteRoute: preferred route, then fallbacks in card order
// 3. Each route gets up to MaxAttemptsPerRoute attempts for retryable errors
// 4. Output is checked against the card's output schema
//
// Batch (ExecuteTasks):
// 1. Preflight every request; failures become envelopes, siblings continue
// 2. Resolution phase: every lookup needed by the batch in one query
// 3. Injection per step
// 4. One batched query call and one batched mutation call
// 5. CLI-only steps run through ExecuteRoute
//
// Batching is the concurrency strategy: nothing here starts goroutines.
// Results are written by request index, so results[i] always answers
// requests[i].
//
// ERRORS:
//
// Every failure becomes an Envelope with a stable ErrorCode; no error
// escapes ExecuteTask or ExecuteTasks. Transport errors are classified by
// Normalize.
package engine
