// Package store provides a SQLite cache of LRS fetches.
//
// A run is one pass over the LRS: its statements in stream order, the agent
// profiles of scored students and the activity profiles of scored courses.
// The feature pass can then be replayed from a run without network access.
//
// # Ordering
//
//   - Statements are keyed by (run_id, seq) where seq is the position in
//     the statement stream; reads are ORDER BY seq ASC.
//   - Profiles carry the seq of their fetch and are read in that order.
//   - Runs are ordered by insertion; LatestRun returns the newest
//     completed one.
//
// # Completion
//
// A fetch writes its run row first and calls CompleteRun last. A run left
// without completed_at (the fetch failed partway) is skipped by LatestRun
// and rejected by ReadRun with *IncompleteRunError.
//
// # Idempotency
//
// Every insert uses ON CONFLICT DO NOTHING, so re-writing a run (for
// example after an interrupted fetch) keeps the first copy of each row.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Rows must reference an existing run
package store
