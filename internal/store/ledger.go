package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coder/quartz"
)

// timeLayout is fixed-width UTC so lexical order equals chronological order
// and the first ten bytes are the calendar date.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger exposes the append and read operations of the store.
//
// A Ledger obtained from Store operates on the connection directly; each
// multi-row write opens its own transaction. A Ledger passed to an Update
// callback runs every statement inside that callback's transaction and
// stamps every appended event with the same batch token.
type Ledger struct {
	q       dbtx
	db      *sql.DB // nil inside a transaction
	clock   quartz.Clock
	batches BatchGenerator
	batch   string // fixed for the life of a transaction
}

// Update runs fn inside a single immediate transaction.
// The transaction commits if fn returns nil and rolls back otherwise.
// Nested calls reuse the enclosing transaction.
func (l *Ledger) Update(ctx context.Context, fn func(*Ledger) error) error {
	if l.db == nil {
		return fn(l)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	inner := &Ledger{
		q:       tx,
		clock:   l.clock,
		batches: l.batches,
		batch:   l.batches.Generate(),
	}
	if err := fn(inner); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Now returns the ledger clock's current time in UTC.
func (l *Ledger) Now() time.Time {
	return l.clock.Now().UTC()
}

func (l *Ledger) batchToken() string {
	if l.batch != "" {
		return l.batch
	}
	return l.batches.Generate()
}

func (l *Ledger) stamp() string {
	return formatTime(l.Now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
