package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/palabria/internal/model"
)

// Session is a login_ts together with the session_duration that closed it, if any.
type Session struct {
	UserID      int64    `json:"user_id"`
	LoginSeq    int64    `json:"login_seq"`
	LoginAt     float64  `json:"login_at"` // epoch seconds carried by the login_ts
	Closed      bool     `json:"closed"`
	CloseSeq    int64    `json:"close_seq,omitempty"`
	DurationSec *float64 `json:"duration_sec"`
}

// Sessions returns every login_ts of the user in seq order, joined with the
// session_duration anchored to it.
func (l *Ledger) Sessions(ctx context.Context, userID int64) ([]Session, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT lt.user_id, lt.seq, lt.value, sd.seq, sd.value
		FROM usage_events lt
		LEFT JOIN usage_events sd
		  ON sd.kind = 'session_duration' AND sd.anchor_seq = lt.seq
		WHERE lt.user_id = ? AND lt.kind = 'login_ts'
		ORDER BY lt.seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

// OpenSessions returns, for every user whose latest login_ts has not been
// closed, that login_ts. Results are ordered by user id.
//
// A reconciliation sweep uses this to find sessions left open by clients
// that never sent a heartbeat or logout after the process restarted.
func (l *Ledger) OpenSessions(ctx context.Context) ([]Session, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT lt.user_id, lt.seq, lt.value, NULL, NULL
		FROM usage_events lt
		JOIN (
			SELECT user_id, MAX(seq) AS max_seq
			FROM usage_events
			WHERE kind = 'login_ts'
			GROUP BY user_id
		) latest ON latest.max_seq = lt.seq
		WHERE NOT EXISTS (
			SELECT 1 FROM usage_events sd
			WHERE sd.kind = 'session_duration' AND sd.anchor_seq = lt.seq
		)
		ORDER BY lt.user_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	sessions := []Session{}
	for rows.Next() {
		var (
			s        Session
			loginAt  sql.NullFloat64
			closeSeq sql.NullInt64
			duration sql.NullFloat64
		)
		if err := rows.Scan(&s.UserID, &s.LoginSeq, &loginAt, &closeSeq, &duration); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.LoginAt = loginAt.Float64
		if closeSeq.Valid {
			s.Closed = true
			s.CloseSeq = closeSeq.Int64
		}
		if duration.Valid {
			s.DurationSec = model.Float(duration.Float64)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
