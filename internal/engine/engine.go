package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// Engine records usage events and derives sessions and reports from them.
//
// Thread-safety: all methods are safe for concurrent use. Reconciliation for
// a given user is serialized; different users never contend in the engine
// (the SQLite store still serializes their writes).
type Engine struct {
	store  *store.Store
	clock  quartz.Clock
	logger *slog.Logger
	policy SessionPolicy
	locks  *userLocks

	metrics  *Metrics
	registry prometheus.Registerer

	reconcileOnHeartbeat bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock used for "today" in the weekly report and for
// Now. Defaults to the real clock.
func WithClock(c quartz.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPolicy sets the session policy. Defaults to DefaultSessionPolicy.
func WithPolicy(p SessionPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithMetrics registers the engine collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithReconcileOnHeartbeat controls whether RecordHeartbeat attempts to
// close the open session. Defaults to true.
func WithReconcileOnHeartbeat(enabled bool) Option {
	return func(e *Engine) {
		e.reconcileOnHeartbeat = enabled
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:                s,
		clock:                quartz.NewReal(),
		logger:               slog.New(slog.DiscardHandler),
		policy:               DefaultSessionPolicy(),
		locks:                newUserLocks(),
		reconcileOnHeartbeat: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.policy.Validate(); err != nil {
		return nil, fmt.Errorf("session policy: %w", err)
	}

	m, err := NewMetrics(e.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	e.metrics = m

	return e, nil
}

// Now returns the engine clock's current time in UTC.
func (e *Engine) Now() time.Time {
	return e.clock.Now().UTC()
}

// Policy returns the session policy in effect.
func (e *Engine) Policy() SessionPolicy {
	return e.policy
}

// CreateUser registers username and records its first login at now, as a
// fresh account is signed in on creation.
func (e *Engine) CreateUser(ctx context.Context, username string, now time.Time) (model.User, error) {
	const op = "create_user"
	name, err := model.SanitizeUsername(username)
	if err != nil {
		return model.User{}, &Error{Code: ErrCodeInvalidInput, Op: op, Err: err}
	}

	var user model.User
	err = e.store.Update(ctx, func(tx *store.Ledger) error {
		var err error
		if user, err = tx.CreateUser(ctx, name); err != nil {
			return err
		}
		_, err = tx.AppendEvents(ctx, loginEvents(user.ID, now)...)
		return err
	})
	if err != nil {
		return model.User{}, classify(op, err)
	}

	e.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// ResolveUser returns the user registered under username.
func (e *Engine) ResolveUser(ctx context.Context, username string) (model.User, error) {
	const op = "resolve_user"
	name, err := model.SanitizeUsername(username)
	if err != nil {
		return model.User{}, &Error{Code: ErrCodeInvalidInput, Op: op, Err: err}
	}
	u, err := e.store.UserByName(ctx, name)
	if err != nil {
		return model.User{}, classify(op, err)
	}
	return u, nil
}

// RecordLogin opens a session: login (counted for login days), login_ts
// (anchors reconciliation) and a heartbeat equal to the login time, all in
// one batch.
func (e *Engine) RecordLogin(ctx context.Context, userID int64, now time.Time) error {
	const op = "record_login"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return err
	}
	if _, err := e.store.AppendEvents(ctx, loginEvents(userID, now)...); err != nil {
		return classify(op, err)
	}
	e.logger.Debug("login recorded", "user_id", userID, "at", now)
	return nil
}

// RecordHeartbeat appends a heartbeat at now and then, if enabled, tries to
// reconcile the open session.
//
// A failed reconciliation is logged and reported as OutcomeFailed; the
// heartbeat itself stays recorded and no error is returned for it.
func (e *Engine) RecordHeartbeat(ctx context.Context, userID int64, now time.Time) (Outcome, error) {
	const op = "record_heartbeat"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return "", err
	}
	if _, err := e.store.AppendEvent(ctx, model.UsageEvent{
		UserID: userID,
		Kind:   model.KindHeartbeat,
		Value:  model.Float(epochSeconds(now)),
	}); err != nil {
		return "", classify(op, err)
	}

	if !e.reconcileOnHeartbeat {
		return OutcomeSkipped, nil
	}

	outcome, err := e.Reconcile(ctx, userID, now)
	if err != nil {
		e.metrics.heartbeatErrors.Inc()
		e.logger.Warn("reconcile failed",
			"user_id", userID,
			"trigger", "heartbeat",
			"error", err,
		)
		return OutcomeFailed, nil
	}
	return outcome, nil
}

// RecordLogout reconciles the open session. Errors propagate.
func (e *Engine) RecordLogout(ctx context.Context, userID int64, now time.Time) (Outcome, error) {
	outcome, err := e.Reconcile(ctx, userID, now)
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// UserEvents returns the user's ledger in seq order, optionally filtered by kind.
func (e *Engine) UserEvents(ctx context.Context, userID int64, kind model.EventKind) ([]model.UsageEvent, error) {
	const op = "user_events"
	if kind != "" && !kind.Valid() {
		return nil, invalidInput(op, "unknown event kind %q", kind)
	}
	if err := e.checkUser(ctx, op, userID); err != nil {
		return nil, err
	}
	events, err := e.store.ReadEvents(ctx, userID, kind, 0)
	if err != nil {
		return nil, classify(op, err)
	}
	return events, nil
}

// Sessions returns every login_ts of the user with the duration that closed it.
func (e *Engine) Sessions(ctx context.Context, userID int64) ([]store.Session, error) {
	const op = "sessions"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return nil, err
	}
	sessions, err := e.store.Sessions(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return sessions, nil
}

// checkUser rejects non-positive ids and unknown users.
func (e *Engine) checkUser(ctx context.Context, op string, userID int64) error {
	if userID <= 0 {
		return invalidInput(op, "user id must be positive, got %d", userID)
	}
	ok, err := e.store.UserExists(ctx, userID)
	if err != nil {
		return classify(op, err)
	}
	if !ok {
		return notFound(op, "user %d", userID)
	}
	return nil
}

func loginEvents(userID int64, now time.Time) []model.UsageEvent {
	ts := epochSeconds(now)
	return []model.UsageEvent{
		{UserID: userID, Kind: model.KindLogin},
		{UserID: userID, Kind: model.KindLoginTS, Value: model.Float(ts)},
		{UserID: userID, Kind: model.KindHeartbeat, Value: model.Float(ts)},
	}
}
