package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// Outcome is the result of a reconciliation attempt.
type Outcome string

const (
	// OutcomeNoLogin means the user has never logged in; nothing to close.
	OutcomeNoLogin Outcome = "no_login"

	// OutcomeAlreadyClosed means the latest login already has its session_duration.
	OutcomeAlreadyClosed Outcome = "already_closed"

	// OutcomeClosed means this call appended session_duration and logout.
	OutcomeClosed Outcome = "closed"

	// OutcomeSkipped means RecordHeartbeat did not attempt reconciliation.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means a heartbeat-triggered reconciliation failed.
	OutcomeFailed Outcome = "failed"
)

// sweepLimit bounds concurrent reconciliations in ReconcileOpen.
const sweepLimit = 4

// Reconcile closes the user's open session, if any, as of now.
//
// The latest login_ts is the open session unless a session_duration with a
// greater seq exists. The session ends at the latest heartbeat at or after
// the login when that heartbeat is within the policy's grace of now, and at
// now otherwise. The clamped duration and a logout are appended together.
func (e *Engine) Reconcile(ctx context.Context, userID int64, now time.Time) (Outcome, error) {
	const op = "reconcile"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return "", err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	var (
		outcome  Outcome
		duration float64
	)
	err := e.store.Update(ctx, func(tx *store.Ledger) error {
		login, found, err := tx.LatestEvent(ctx, userID, model.KindLoginTS)
		if err != nil {
			return err
		}
		if !found {
			outcome = OutcomeNoLogin
			return nil
		}

		closed, err := tx.HasEventAfter(ctx, userID, model.KindSessionDuration, login.Seq)
		if err != nil {
			return err
		}
		if closed {
			outcome = OutcomeAlreadyClosed
			return nil
		}

		var heartbeat *float64
		hb, found, err := tx.LatestEventFrom(ctx, userID, model.KindHeartbeat, login.Seq)
		if err != nil {
			return err
		}
		if found {
			heartbeat = hb.Value
		}

		duration = e.policy.Duration(login.ValueOr(0), heartbeat, epochSeconds(now))
		inserted, err := tx.CloseSession(ctx, store.SessionClose{
			UserID:      userID,
			LoginSeq:    login.Seq,
			DurationSec: duration,
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeAlreadyClosed
			return nil
		}
		outcome = OutcomeClosed
		return nil
	})
	e.metrics.recordReconcile(outcome, duration, err)
	if err != nil {
		return "", classify(op, err)
	}

	switch outcome {
	case OutcomeClosed:
		e.logger.Info("session closed",
			"user_id", userID,
			"duration_sec", duration,
		)
	case OutcomeAlreadyClosed:
		e.logger.Debug("session already closed", "user_id", userID)
	}
	return outcome, nil
}

// SweepResult is the reconciliation outcome for one user in ReconcileOpen.
type SweepResult struct {
	UserID   int64   `json:"user_id"`
	LoginSeq int64   `json:"login_seq"`
	Outcome  Outcome `json:"outcome"`
}

// ReconcileOpen reconciles every user whose latest login is still open.
// Results are ordered by user id. The first failure cancels the sweep.
func (e *Engine) ReconcileOpen(ctx context.Context, now time.Time) ([]SweepResult, error) {
	open, err := e.store.OpenSessions(ctx)
	if err != nil {
		return nil, classify("reconcile_open", err)
	}
	return e.sweep(ctx, open, now)
}

// ReconcileIdle reconciles only the open sessions that have been silent for
// longer than the policy's grace+slack at now. Sessions with a recent login
// or heartbeat are left open.
func (e *Engine) ReconcileIdle(ctx context.Context, now time.Time) ([]SweepResult, error) {
	const op = "reconcile_idle"
	open, err := e.store.OpenSessions(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	idle := open[:0]
	for _, s := range open {
		var heartbeat *float64
		hb, found, err := e.store.LatestEventFrom(ctx, s.UserID, model.KindHeartbeat, s.LoginSeq)
		if err != nil {
			return nil, classify(op, err)
		}
		if found {
			heartbeat = hb.Value
		}
		if e.policy.Idle(s.LoginAt, heartbeat, epochSeconds(now)) {
			idle = append(idle, s)
		}
	}
	return e.sweep(ctx, idle, now)
}

func (e *Engine) sweep(ctx context.Context, open []store.Session, now time.Time) ([]SweepResult, error) {
	results := make([]SweepResult, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepLimit)
	for i, s := range open {
		g.Go(func() error {
			outcome, err := e.Reconcile(gctx, s.UserID, now)
			if err != nil {
				return err
			}
			results[i] = SweepResult{UserID: s.UserID, LoginSeq: s.LoginSeq, Outcome: outcome}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("open sessions reconciled", "count", len(results))
	return results, nil
}
