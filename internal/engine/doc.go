// Package engine implements usage reconciliation and aggregation for palabria.
//
// The engine turns the append-only usage ledger kept by package store into
// closed sessions, per-user overview statistics and a weekly activity report.
//
// SESSION RECONCILIATION:
//
// A login appends login, login_ts and heartbeat in one batch. The login_ts
// opens a session; Reconcile closes it by appending a session_duration
// anchored to the login_ts and a logout marker. Reconcile runs after every
// heartbeat (best effort) and on logout.
//
// The close is a check-then-act sequence. It is serialized three ways:
//   - a per-user mutex inside the process
//   - an immediate SQLite transaction around the read and the append
//   - a unique index allowing one session_duration per login_ts
//
// A second close of the same session is the AlreadyClosed outcome, never an error.
//
// ORDERING:
//
// The ledger seq is authoritative for "latest". created_at is used only to
// bucket session durations into UTC calendar days.
package engine
