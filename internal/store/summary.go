package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/palabria/internal/model"
)

// KindStat is the count and mean value of one event kind for a user.
// Avg is nil when no event of the kind carries a value.
type KindStat struct {
	Kind  model.EventKind `json:"kind"`
	Count int64           `json:"count"`
	Avg   *float64        `json:"avg"`
}

// UsageSummary returns count and mean value per event kind, ordered by kind.
func (l *Ledger) UsageSummary(ctx context.Context, userID int64) ([]KindStat, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT kind, COUNT(*), AVG(value)
		FROM usage_events
		WHERE user_id = ?
		GROUP BY kind
		ORDER BY kind ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	stats := []KindStat{}
	for rows.Next() {
		var (
			st   KindStat
			kind string
			avg  sql.NullFloat64
		)
		if err := rows.Scan(&kind, &st.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		st.Kind = model.EventKind(kind)
		if avg.Valid {
			st.Avg = model.Float(avg.Float64)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return stats, nil
}

// DistinctDays counts the distinct UTC calendar dates of the user's events of kind.
func (l *Ledger) DistinctDays(ctx context.Context, userID int64, kind model.EventKind) (int, error) {
	var days int
	err := l.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT substr(created_at, 1, 10))
		FROM usage_events
		WHERE user_id = ? AND kind = ?
	`, userID, string(kind)).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("distinct %s days: %w", kind, err)
	}
	return days, nil
}

// AverageValue returns the mean value of the user's events of kind.
// ok is false when no such event carries a value.
func (l *Ledger) AverageValue(ctx context.Context, userID int64, kind model.EventKind) (avg float64, ok bool, err error) {
	var v sql.NullFloat64
	err = l.q.QueryRowContext(ctx, `
		SELECT AVG(value)
		FROM usage_events
		WHERE user_id = ? AND kind = ?
	`, userID, string(kind)).Scan(&v)
	if err != nil {
		return 0, false, fmt.Errorf("average %s: %w", kind, err)
	}
	return v.Float64, v.Valid, nil
}
