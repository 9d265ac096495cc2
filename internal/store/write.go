package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/palabria/internal/model"
)

// AppendEvent appends a usage event and returns its ledger sequence.
//
// Seq, Batch and CreatedAt on ev are ignored: the ledger assigns all three.
// AnchorSeq is stored only for session_duration events.
func (l *Ledger) AppendEvent(ctx context.Context, ev model.UsageEvent) (int64, error) {
	if !ev.Kind.Valid() {
		return 0, fmt.Errorf("append event: unknown kind %q", ev.Kind)
	}

	var value sql.NullFloat64
	if ev.Value != nil {
		value = sql.NullFloat64{Float64: *ev.Value, Valid: true}
	}
	var anchor sql.NullInt64
	if ev.Kind == model.KindSessionDuration && ev.AnchorSeq > 0 {
		anchor = sql.NullInt64{Int64: ev.AnchorSeq, Valid: true}
	}

	res, err := l.q.ExecContext(ctx, `
		INSERT INTO usage_events
		(user_id, kind, value, anchor_seq, batch, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.UserID,
		string(ev.Kind),
		value,
		anchor,
		l.batchToken(),
		l.stamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event: last insert id: %w", err)
	}
	return seq, nil
}

// AppendEvents appends all events in one transaction and returns their
// sequences in input order. Either every event is appended or none is.
func (l *Ledger) AppendEvents(ctx context.Context, evs ...model.UsageEvent) ([]int64, error) {
	seqs := make([]int64, 0, len(evs))
	err := l.Update(ctx, func(tx *Ledger) error {
		for _, ev := range evs {
			seq, err := tx.AppendEvent(ctx, ev)
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seqs, nil
}

// SessionClose describes the derived session recorded by CloseSession.
type SessionClose struct {
	UserID      int64
	LoginSeq    int64   // seq of the login_ts being closed
	DurationSec float64 // already clamped
}

// CloseSession appends the session_duration and logout pair for a login.
//
// The session_duration row claims the login's close slot through the
// unique index on anchor_seq. If the slot is already taken the call is a
// no-op and returns inserted=false; the logout is written only when the
// claim succeeded, and both rows commit together.
func (l *Ledger) CloseSession(ctx context.Context, sc SessionClose) (inserted bool, err error) {
	if sc.LoginSeq <= 0 {
		return false, fmt.Errorf("close session: login seq required")
	}

	err = l.Update(ctx, func(tx *Ledger) error {
		// Step 1: claim the close slot
		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO usage_events
			(user_id, kind, value, anchor_seq, batch, created_at)
			VALUES (?, 'session_duration', ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			sc.UserID,
			sc.DurationSec,
			sc.LoginSeq,
			tx.batchToken(),
			tx.stamp(),
		)
		if err != nil {
			return fmt.Errorf("close session: insert duration: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("close session: rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		// Step 2: logout marker
		if _, err := tx.AppendEvent(ctx, model.UsageEvent{
			UserID: sc.UserID,
			Kind:   model.KindLogout,
		}); err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}
