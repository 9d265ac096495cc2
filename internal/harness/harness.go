package harness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/palabria/internal/engine"
	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
	"github.com/roach88/palabria/internal/testutil"
)

// Harness executes one scenario. Users and documents are referred to by
// scenario names; the harness maps them to ledger ids.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	clock     *testutil.StepClock
	start     time.Time
	users     map[string]int64
	usernames map[int64]string
	documents map[string]int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. The step
// clock and sequential batch tokens make the resulting trace reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Execute steps in order, checking each expect clause
// 3. Read the final ledger as the trace
// 4. Evaluate assertions and return result with pass/fail, steps, trace, and errors
//
// A step that fails with an unexpected engine error fails the result; an
// error that is not an engine error aborts the run.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewStepClock(scenario.Start)

	st, err := store.Open(":memory:",
		store.WithClock(clock),
		store.WithBatchGenerator(store.NewSequenceGenerator("")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts := []engine.Option{
		engine.WithClock(clock),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in scenarios
	}
	if scenario.ReconcileOnHeartbeat != nil {
		opts = append(opts, engine.WithReconcileOnHeartbeat(*scenario.ReconcileOnHeartbeat))
	}
	eng, err := engine.New(st, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:     st,
		engine:    eng,
		clock:     clock,
		start:     scenario.Start,
		users:     make(map[string]int64),
		usernames: make(map[int64]string),
		documents: make(map[string]int64),
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	trace, err := h.trace(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.Trace = trace

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs a single step at Start+At and records its result.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	now := h.start.Add(time.Duration(step.At * float64(time.Second)))
	h.clock.Set(now)

	sr := StepResult{
		Index:    index,
		At:       step.At,
		Op:       step.Op,
		User:     step.User,
		Document: step.Document,
	}

	outcome, closed, err := h.apply(ctx, step, now)
	sr.Outcome = outcome
	sr.Closed = closed

	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			return err
		}
		sr.Error = string(code)
	}
	result.AddStep(sr)

	switch {
	case step.Expect == nil && sr.Error != "":
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, step.Op, err))
	case step.Expect == nil:
	case step.Expect.Error != "" && step.Expect.Error != sr.Error:
		result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %q", index, step.Op, step.Expect.Error, sr.Error))
	case step.Expect.Error == "" && sr.Error != "":
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, step.Op, err))
	case step.Expect.Outcome != "" && step.Expect.Outcome != sr.Outcome:
		result.AddError(fmt.Sprintf("step %d (%s): expected outcome %s, got %q", index, step.Op, step.Expect.Outcome, sr.Outcome))
	}
	return nil
}

// apply performs the step's operation. It returns the step outcome, the
// users closed by a sweep, and the operation error.
func (h *Harness) apply(ctx context.Context, step Step, now time.Time) (string, []string, error) {
	switch step.Op {
	case OpCreateUser:
		u, err := h.engine.CreateUser(ctx, step.User, now)
		if err != nil {
			return "", nil, err
		}
		h.users[step.User] = u.ID
		h.usernames[u.ID] = step.User
		return "", nil, nil

	case OpLogin:
		id, err := h.userID(ctx, step.User)
		if err != nil {
			return "", nil, err
		}
		return "", nil, h.engine.RecordLogin(ctx, id, now)

	case OpHeartbeat, OpLogout, OpReconcile:
		id, err := h.userID(ctx, step.User)
		if err != nil {
			return "", nil, err
		}
		var outcome engine.Outcome
		switch step.Op {
		case OpHeartbeat:
			outcome, err = h.engine.RecordHeartbeat(ctx, id, now)
		case OpLogout:
			outcome, err = h.engine.RecordLogout(ctx, id, now)
		default:
			outcome, err = h.engine.Reconcile(ctx, id, now)
		}
		return string(outcome), nil, err

	case OpReconcileAll, OpReconcileIdle:
		var (
			results []engine.SweepResult
			err     error
		)
		if step.Op == OpReconcileAll {
			results, err = h.engine.ReconcileOpen(ctx, now)
		} else {
			results, err = h.engine.ReconcileIdle(ctx, now)
		}
		if err != nil {
			return "", nil, err
		}
		var closed []string
		for _, r := range results {
			if r.Outcome == engine.OutcomeClosed {
				closed = append(closed, h.usernames[r.UserID])
			}
		}
		return fmt.Sprintf("%d closed", len(closed)), closed, nil

	case OpSubmitDocument:
		id, err := h.userID(ctx, step.User)
		if err != nil {
			return "", nil, err
		}
		doc, err := h.engine.SubmitDocument(ctx, engine.SubmitDocument{
			UserID:   id,
			Filename: cmp.Or(step.Filename, step.Document+".txt"),
			Text:     step.Text,
			Source:   step.Source,
			Metrics:  metricValues(step.Metrics),
		})
		if err != nil {
			return "", nil, err
		}
		h.documents[step.Document] = doc.ID
		return "", nil, nil

	case OpAddMetric:
		id, err := h.documentID(step.Op, step.Document)
		if err != nil {
			return "", nil, err
		}
		_, err = h.engine.AddMetric(ctx, id, step.Metric, step.Value)
		return "", nil, err

	case OpUserChanges:
		id, err := h.documentID(step.Op, step.Document)
		if err != nil {
			return "", nil, err
		}
		_, err = h.engine.RecordUserChanges(ctx, id, step.Changes)
		return "", nil, err

	case OpDeleteDocument:
		id, err := h.documentID(step.Op, step.Document)
		if err != nil {
			return "", nil, err
		}
		deleted, err := h.engine.DeleteDocument(ctx, id)
		if err != nil {
			return "", nil, err
		}
		if deleted {
			return "deleted", nil, nil
		}
		return "missing", nil, nil
	}
	return "", nil, fmt.Errorf("unknown op %q", step.Op)
}

// userID maps a scenario username to its ledger id. Names never created in
// the scenario are resolved through the engine so they fail like real
// lookups do.
func (h *Harness) userID(ctx context.Context, name string) (int64, error) {
	if id, ok := h.users[name]; ok {
		return id, nil
	}
	u, err := h.engine.ResolveUser(ctx, name)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (h *Harness) documentID(op, label string) (int64, error) {
	if id, ok := h.documents[label]; ok {
		return id, nil
	}
	return 0, &engine.Error{
		Code:    engine.ErrCodeNotFound,
		Op:      op,
		Message: fmt.Sprintf("document %q was never submitted", label),
	}
}

// metricValues orders a metric map by name so batches are deterministic.
func metricValues(m map[string]float64) []store.MetricValue {
	out := make([]store.MetricValue, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out = append(out, store.MetricValue{Name: name, Value: m[name]})
	}
	return out
}

// trace reads every user's ledger and merges it into seq order.
func (h *Harness) trace(ctx context.Context) ([]TraceEvent, error) {
	var events []model.UsageEvent
	for _, id := range slices.Sorted(maps.Values(h.users)) {
		evs, err := h.store.ReadEvents(ctx, id, "", 0)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	slices.SortFunc(events, func(a, b model.UsageEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	batches := make(map[string]string)
	trace := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		batch, ok := batches[ev.Batch]
		if !ok {
			batch = fmt.Sprintf("b%d", len(batches)+1)
			batches[ev.Batch] = batch
		}
		trace = append(trace, TraceEvent{
			Seq:       ev.Seq,
			User:      h.usernames[ev.UserID],
			Kind:      string(ev.Kind),
			Value:     ev.Value,
			AnchorSeq: ev.AnchorSeq,
			Batch:     batch,
			At:        ev.CreatedAt.Sub(h.start).Seconds(),
		})
	}
	return trace, nil
}

// errNoUser is returned by assertions naming a user the scenario never created.
var errNoUser = errors.New("user not created in scenario")

func (h *Harness) knownUser(name string) (int64, error) {
	id, ok := h.users[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errNoUser, name)
	}
	return id, nil
}
