// Package model provides the ledger record types shared by every palabria package.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Ordering is by ledger sequence (Seq), never by CreatedAt
//   - Records are append-only; there is no update path for a single row
//   - All JSON tags use snake_case
package model
