package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/roach88/palabria/internal/model"
)

const eventColumns = `seq, user_id, kind, value, anchor_seq, batch, created_at`

// LatestEvent returns the greatest-seq event of kind for the user.
// found is false when the user has no such event.
func (l *Ledger) LatestEvent(ctx context.Context, userID int64, kind model.EventKind) (ev model.UsageEvent, found bool, err error) {
	return l.LatestEventFrom(ctx, userID, kind, 0)
}

// LatestEventFrom returns the greatest-seq event of kind with seq >= minSeq.
func (l *Ledger) LatestEventFrom(ctx context.Context, userID int64, kind model.EventKind, minSeq int64) (model.UsageEvent, bool, error) {
	row := l.q.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM usage_events
		WHERE user_id = ? AND kind = ? AND seq >= ?
		ORDER BY seq DESC
		LIMIT 1
	`, userID, string(kind), minSeq)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UsageEvent{}, false, nil
	}
	if err != nil {
		return model.UsageEvent{}, false, fmt.Errorf("latest %s: %w", kind, err)
	}
	return ev, true, nil
}

// HasEventAfter reports whether the user has an event of kind with seq > afterSeq.
func (l *Ledger) HasEventAfter(ctx context.Context, userID int64, kind model.EventKind, afterSeq int64) (bool, error) {
	var exists int
	err := l.q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM usage_events
			WHERE user_id = ? AND kind = ? AND seq > ?
		)
	`, userID, string(kind), afterSeq).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s after %d: %w", kind, afterSeq, err)
	}
	return exists == 1, nil
}

// RangeEvents yields the user's events with seq > afterSeq in ascending seq order.
// An empty kind yields every kind.
//
// Rows are read lazily. The store holds a single connection, so the caller
// must not issue other queries on the same Store until iteration stops.
func (l *Ledger) RangeEvents(ctx context.Context, userID int64, kind model.EventKind, afterSeq int64) iter.Seq2[model.UsageEvent, error] {
	return func(yield func(model.UsageEvent, error) bool) {
		rows, err := l.q.QueryContext(ctx, `
			SELECT `+eventColumns+`
			FROM usage_events
			WHERE user_id = ? AND (? = '' OR kind = ?) AND seq > ?
			ORDER BY seq ASC
		`, userID, string(kind), string(kind), afterSeq)
		if err != nil {
			yield(model.UsageEvent{}, fmt.Errorf("range events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				yield(model.UsageEvent{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.UsageEvent{}, fmt.Errorf("iterate events: %w", err))
		}
	}
}

// ReadEvents collects RangeEvents into a slice.
// Returns an empty slice (not nil) if no events match.
func (l *Ledger) ReadEvents(ctx context.Context, userID int64, kind model.EventKind, afterSeq int64) ([]model.UsageEvent, error) {
	events := []model.UsageEvent{}
	for ev, err := range l.RangeEvents(ctx, userID, kind, afterSeq) {
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// EventsSince returns the user's events of kind created at or after since,
// ordered by seq.
func (l *Ledger) EventsSince(ctx context.Context, userID int64, kind model.EventKind, since time.Time) ([]model.UsageEvent, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM usage_events
		WHERE user_id = ? AND kind = ? AND created_at >= ?
		ORDER BY seq ASC
	`, userID, string(kind), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query %s since %s: %w", kind, since.Format(time.DateOnly), err)
	}
	defer rows.Close()

	events := []model.UsageEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans a row selected with eventColumns.
func scanEvent(r rowScanner) (model.UsageEvent, error) {
	var (
		ev        model.UsageEvent
		kind      string
		value     sql.NullFloat64
		anchor    sql.NullInt64
		createdAt string
	)
	if err := r.Scan(&ev.Seq, &ev.UserID, &kind, &value, &anchor, &ev.Batch, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UsageEvent{}, err
		}
		return model.UsageEvent{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Kind = model.EventKind(kind)
	if value.Valid {
		ev.Value = model.Float(value.Float64)
	}
	if anchor.Valid {
		ev.AnchorSeq = anchor.Int64
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return model.UsageEvent{}, err
	}
	ev.CreatedAt = t
	return ev, nil
}
