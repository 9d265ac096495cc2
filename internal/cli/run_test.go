package cli

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/palabria/internal/store"
)

func TestRunSweeper_ClosesIdleSessions(t *testing.T) {
	db := testDB(t)
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mustExecute(t, db, "user", "create", "ana", "--at", start.Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	mClock.Set(start)
	trap := mClock.Trap().TickerFunc(sweeperTag)
	defer trap.Close()

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Interval:    time.Hour,
		Clock:       mClock,
	}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.Flags().String("db", "", "")
	require.NoError(t, cmd.Flags().Set("db", db))
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	cmd.SetContext(runCtx)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() {
		done <- runSweeper(opts, cmd)
	}()

	// Make sure the ticker has been registered before advancing the clock.
	trap.MustWait(ctx).MustRelease(ctx)
	mClock.Advance(time.Hour).MustWait(ctx)

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("sweeper did not stop")
	}

	var sessions []store.Session
	decodeData(t, mustExecute(t, db, "sessions", "ana", "--format", "json"), &sessions)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Closed)
	require.NotNil(t, sessions[0].DurationSec)
	assert.InDelta(t, 3600, *sessions[0].DurationSec, 1e-6)
}

func TestRunSweeper_RejectsNonPositiveInterval(t *testing.T) {
	db := testDB(t)
	_, err := execute(t, db, "run", "--interval", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--interval must be positive")
}
