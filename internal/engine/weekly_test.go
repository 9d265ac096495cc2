package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLabel(t *testing.T) {
	tests := []struct {
		total float64
		want  string
	}{
		{0, LabelNoSession},
		{1, LabelUpTo5Min},
		{300, LabelUpTo5Min},
		{301, LabelUpTo15Min},
		{900, LabelUpTo15Min},
		{901, LabelUpTo30Min},
		{1800, LabelUpTo30Min},
		{1801, LabelMoreThan30m},
		{43200, LabelMoreThan30m},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ActivityLabel(tt.total), "total=%v", tt.total)
	}
}

func TestWeeklyActivity_Dense(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.RecordHeartbeat(ctx, u.ID, at(200))
	require.NoError(t, err)

	// Session recorded on 2025-03-10; today becomes 2025-03-13
	env.clock.Advance(3 * 24 * time.Hour)

	buckets, err := env.engine.WeeklyActivity(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, buckets, WeekDays)

	wantDates := []string{
		"2025-03-07", "2025-03-08", "2025-03-09", "2025-03-10",
		"2025-03-11", "2025-03-12", "2025-03-13",
	}
	for i, b := range buckets {
		assert.Equal(t, wantDates[i], b.Date)
		if b.Date == "2025-03-10" {
			assert.Equal(t, 200.0, b.TotalSeconds)
			assert.Equal(t, LabelUpTo5Min, b.Label)
			continue
		}
		assert.Equal(t, 0.0, b.TotalSeconds, b.Date)
		assert.Equal(t, LabelNoSession, b.Label, b.Date)
	}
}

func TestWeeklyActivity_SumsSameDay(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.RecordHeartbeat(ctx, u.ID, at(600))
	require.NoError(t, err)
	require.NoError(t, env.engine.RecordLogin(ctx, u.ID, at(3600)))
	_, err = env.engine.RecordHeartbeat(ctx, u.ID, at(3600+700))
	require.NoError(t, err)

	buckets, err := env.engine.WeeklyActivity(ctx, u.ID)
	require.NoError(t, err)

	last := buckets[WeekDays-1]
	assert.Equal(t, "2025-03-10", last.Date)
	assert.Equal(t, 1300.0, last.TotalSeconds)
	assert.Equal(t, LabelUpTo30Min, last.Label)
}

func TestWeeklyActivity_WindowExcludesOlderDays(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.RecordHeartbeat(ctx, u.ID, at(200))
	require.NoError(t, err)

	env.clock.Advance(7 * 24 * time.Hour)

	buckets, err := env.engine.WeeklyActivity(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, buckets, WeekDays)
	assert.Equal(t, "2025-03-11", buckets[0].Date)
	for _, b := range buckets {
		assert.Equal(t, 0.0, b.TotalSeconds, b.Date)
	}
}

func TestWeeklyActivity_UnknownUser(t *testing.T) {
	env := setupTestEngine(t)

	_, err := env.engine.WeeklyActivity(context.Background(), 3)
	assert.True(t, IsNotFound(err), "got %v", err)
}
