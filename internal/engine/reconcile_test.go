package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

func TestReconcile_NoLogin(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	// A user row without any login events
	u, err := env.store.CreateUser(ctx, "ghost")
	require.NoError(t, err)

	outcome, err := env.engine.Reconcile(ctx, u.ID, at(10))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoLogin, outcome)
	assert.Empty(t, env.durations(t, u.ID))
}

func TestReconcile_Idempotent(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	first, err := env.engine.Reconcile(ctx, u.ID, at(60))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, first)

	second, err := env.engine.Reconcile(ctx, u.ID, at(60))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyClosed, second)

	third, err := env.engine.Reconcile(ctx, u.ID, at(9000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyClosed, third)

	assert.Len(t, env.durations(t, u.ID), 1)
	assert.Len(t, env.events(t, u.ID, model.KindLogout), 1)
}

func TestReconcile_FloorClamp(t *testing.T) {
	env := setupTestEngine(t, WithReconcileOnHeartbeat(false))
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.RecordHeartbeat(ctx, u.ID, at(5))
	require.NoError(t, err)
	_, err = env.engine.Reconcile(ctx, u.ID, at(5))
	require.NoError(t, err)

	assert.Equal(t, []float64{10}, env.durations(t, u.ID))
}

func TestReconcile_Cap(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.Reconcile(ctx, u.ID, at(100000))
	require.NoError(t, err)

	assert.Equal(t, []float64{43200}, env.durations(t, u.ID))
}

func TestReconcile_IdleGraceEndsAtHeartbeat(t *testing.T) {
	env := setupTestEngine(t, WithReconcileOnHeartbeat(false))
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.RecordHeartbeat(ctx, u.ID, at(100))
	require.NoError(t, err)
	_, err = env.engine.Reconcile(ctx, u.ID, at(1000))
	require.NoError(t, err)

	assert.Equal(t, []float64{100}, env.durations(t, u.ID))
}

func TestReconcile_BeyondGraceEndsAtNow(t *testing.T) {
	env := setupTestEngine(t, WithReconcileOnHeartbeat(false))
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.RecordHeartbeat(ctx, u.ID, at(100))
	require.NoError(t, err)
	_, err = env.engine.Reconcile(ctx, u.ID, at(5000))
	require.NoError(t, err)

	assert.Equal(t, []float64{5000}, env.durations(t, u.ID))
}

func TestReconcile_IgnoresHeartbeatsBeforeLogin(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u, err := env.store.CreateUser(ctx, "ana")
	require.NoError(t, err)

	// A stale heartbeat, then a login_ts with no paired heartbeat
	_, err = env.store.AppendEvent(ctx, model.UsageEvent{UserID: u.ID, Kind: model.KindHeartbeat, Value: model.Float(epochSeconds(at(1000)))})
	require.NoError(t, err)
	_, err = env.store.AppendEvent(ctx, model.UsageEvent{UserID: u.ID, Kind: model.KindLoginTS, Value: model.Float(epochSeconds(at(2000)))})
	require.NoError(t, err)

	_, err = env.engine.Reconcile(ctx, u.ID, at(2300))
	require.NoError(t, err)

	// The heartbeat at 1000 predates the login, so the session ends at now
	assert.Equal(t, []float64{300}, env.durations(t, u.ID))
}

func TestReconcile_AnchorsLatestLogin(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")
	require.NoError(t, env.engine.RecordLogin(ctx, u.ID, at(300)))

	_, err := env.engine.Reconcile(ctx, u.ID, at(400))
	require.NoError(t, err)

	logins := env.events(t, u.ID, model.KindLoginTS)
	require.Len(t, logins, 2)
	closes := env.events(t, u.ID, model.KindSessionDuration)
	require.Len(t, closes, 1)
	assert.Equal(t, logins[1].Seq, closes[0].AnchorSeq)
	assert.Equal(t, 10.0, closes[0].ValueOr(-1)) // heartbeat 300, login 300
}

func TestReconcile_DurationAndLogoutShareBatch(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	_, err := env.engine.Reconcile(ctx, u.ID, at(120))
	require.NoError(t, err)

	d := env.events(t, u.ID, model.KindSessionDuration)
	l := env.events(t, u.ID, model.KindLogout)
	require.Len(t, d, 1)
	require.Len(t, l, 1)
	assert.Equal(t, d[0].Batch, l[0].Batch)
	assert.Equal(t, d[0].Seq+1, l[0].Seq)
	assert.False(t, l[0].HasValue())
}

func TestReconcile_UnknownUser(t *testing.T) {
	env := setupTestEngine(t)

	_, err := env.engine.Reconcile(context.Background(), 404, at(0))
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = env.engine.Reconcile(context.Background(), 0, at(0))
	assert.True(t, IsInvalidInput(err), "got %v", err)
}

func TestReconcile_ConcurrentRaceClosesOnce(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	const n = 16
	var (
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			outcome, err := env.engine.Reconcile(gctx, u.ID, at(600+i))
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, outcomes[OutcomeClosed])
	assert.Equal(t, n-1, outcomes[OutcomeAlreadyClosed])
	assert.Len(t, env.durations(t, u.ID), 1)
	assert.Len(t, env.events(t, u.ID, model.KindLogout), 1)
	assert.Equal(t, 0, env.engine.locks.Len())
}

func TestReconcile_HeartbeatLogoutRace(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := env.engine.RecordHeartbeat(gctx, u.ID, at(90))
		return err
	})
	g.Go(func() error {
		_, err := env.engine.RecordLogout(gctx, u.ID, at(90))
		return err
	})
	require.NoError(t, g.Wait())

	assert.Len(t, env.durations(t, u.ID), 1)
}

func TestReconcile_StoreLevelGuard(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	u := env.loggedInUser(t, "ana")

	login, found, err := env.store.LatestEvent(ctx, u.ID, model.KindLoginTS)
	require.NoError(t, err)
	require.True(t, found)

	// Another process closed the session behind the engine's back
	inserted, err := env.store.CloseSession(ctx, store.SessionClose{UserID: u.ID, LoginSeq: login.Seq, DurationSec: 42})
	require.NoError(t, err)
	require.True(t, inserted)

	outcome, err := env.engine.Reconcile(ctx, u.ID, at(100))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyClosed, outcome)
	assert.Equal(t, []float64{42}, env.durations(t, u.ID))
}

func TestReconcileOpen(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()
	ana := env.loggedInUser(t, "ana")
	bo := env.loggedInUser(t, "bo")
	cy := env.loggedInUser(t, "cy")

	_, err := env.engine.RecordLogout(ctx, bo.ID, at(30))
	require.NoError(t, err)

	results, err := env.engine.ReconcileOpen(ctx, at(60))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ana.ID, results[0].UserID)
	assert.Equal(t, cy.ID, results[1].UserID)
	for _, r := range results {
		assert.Equal(t, OutcomeClosed, r.Outcome)
	}

	again, err := env.engine.ReconcileOpen(ctx, at(90))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestReconcileIdle_LeavesActiveSessionsOpen(t *testing.T) {
	env := setupTestEngine(t, WithReconcileOnHeartbeat(false))
	ctx := context.Background()
	ana := env.loggedInUser(t, "ana")
	bo := env.loggedInUser(t, "bo")

	outcome, err := env.engine.RecordHeartbeat(ctx, ana.ID, at(1000))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)

	results, err := env.engine.ReconcileIdle(ctx, at(2000))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, bo.ID, results[0].UserID)
	assert.Equal(t, OutcomeClosed, results[0].Outcome)
	assert.Equal(t, []float64{2000}, env.durations(t, bo.ID))
	assert.Empty(t, env.durations(t, ana.ID))

	// Once ana's heartbeat is past grace and slack the session ends at now.
	results, err = env.engine.ReconcileIdle(ctx, at(2806))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ana.ID, results[0].UserID)
	assert.Equal(t, []float64{2806}, env.durations(t, ana.ID))
}
