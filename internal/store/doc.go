// Package store provides SQLite-backed durable storage for the palabria usage ledger.
//
// The store implements two append-only logs and their owners:
//   - Usage events: login, heartbeat, session and upload markers per user
//   - Metrics: named per-document values, resolved by last-writer-wins
//   - Documents and users: the rows the logs are scoped by
//
// # Critical Patterns
//
// Logical Time
//   - All ordering uses seq INTEGER PRIMARY KEY AUTOINCREMENT, never created_at
//   - created_at is stamped by the ledger clock and used only for calendar bucketing
//
// Session-Close Idempotency
//   - UNIQUE(anchor_seq) WHERE kind = 'session_duration'
//   - A login_ts can be closed at most once, even across processes
//
// Atomic Batches
//   - Multi-row appends run in one BEGIN IMMEDIATE transaction
//   - Every row of a batch carries the same batch token
//
// Deterministic Query Results
//   - All multi-row queries include ORDER BY seq ASC (or the owning id)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Transactions take the write lock on BEGIN
package store
