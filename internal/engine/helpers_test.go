package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// t0 is the mock clock's starting time. Offsets in tests are seconds after t0.
var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

type testEnv struct {
	engine *Engine
	store  *store.Store
	clock  *quartz.Mock
}

func setupTestEngine(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(t0)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithClock(clock),
		store.WithBatchGenerator(store.NewSequenceGenerator("")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := New(s, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return &testEnv{engine: e, store: s, clock: clock}
}

// loggedInUser creates a user whose latest login is at t0.
func (env *testEnv) loggedInUser(t *testing.T, name string) model.User {
	t.Helper()
	u, err := env.engine.CreateUser(context.Background(), name, t0)
	require.NoError(t, err)
	return u
}

func (env *testEnv) events(t *testing.T, userID int64, kind model.EventKind) []model.UsageEvent {
	t.Helper()
	evs, err := env.store.ReadEvents(context.Background(), userID, kind, 0)
	require.NoError(t, err)
	return evs
}

func (env *testEnv) durations(t *testing.T, userID int64) []float64 {
	t.Helper()
	var out []float64
	for _, ev := range env.events(t, userID, model.KindSessionDuration) {
		out = append(out, ev.ValueOr(-1))
	}
	return out
}
