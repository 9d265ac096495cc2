package engine

import (
	"context"
	"time"

	"github.com/roach88/palabria/internal/model"
)

// Activity labels for a day's total session time.
const (
	LabelNoSession   = "no session"
	LabelUpTo5Min    = "up to 5 min"
	LabelUpTo15Min   = "up to 15 min"
	LabelUpTo30Min   = "up to 30 min"
	LabelMoreThan30m = "more than 30 min"
)

// WeekDays is the number of entries in a weekly report.
const WeekDays = 7

// DayBucket is one UTC calendar day of the weekly activity report.
type DayBucket struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	TotalSeconds float64 `json:"total_seconds"`
	Label        string  `json:"label"`
}

// ActivityLabel classifies a day's total seconds. Upper bounds are inclusive.
func ActivityLabel(total float64) string {
	switch {
	case total <= 0:
		return LabelNoSession
	case total <= 300:
		return LabelUpTo5Min
	case total <= 900:
		return LabelUpTo15Min
	case total <= 1800:
		return LabelUpTo30Min
	default:
		return LabelMoreThan30m
	}
}

// WeeklyActivity returns exactly seven buckets for [today-6, today] in UTC,
// oldest first. Each sums the session_duration values created on that date;
// days without sessions are present with zero.
func (e *Engine) WeeklyActivity(ctx context.Context, userID int64) ([]DayBucket, error) {
	const op = "weekly_activity"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return nil, err
	}

	now := e.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(WeekDays - 1))

	events, err := e.store.EventsSince(ctx, userID, model.KindSessionDuration, start)
	if err != nil {
		return nil, classify(op, err)
	}

	totals := make(map[string]float64, WeekDays)
	for _, ev := range events {
		totals[ev.CreatedAt.UTC().Format(time.DateOnly)] += ev.ValueOr(0)
	}

	buckets := make([]DayBucket, 0, WeekDays)
	for i := range WeekDays {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		total := totals[date]
		buckets = append(buckets, DayBucket{
			Date:         date,
			TotalSeconds: total,
			Label:        ActivityLabel(total),
		})
	}
	return buckets, nil
}
