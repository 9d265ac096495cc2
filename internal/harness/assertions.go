package harness

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/roach88/palabria/internal/model"
)

// floatTolerance absorbs rounding in epoch-second arithmetic.
const floatTolerance = 1e-6

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.User, ev.Kind)
			if ev.Value != nil {
				fmt.Fprintf(&buf, " %g", *ev.Value)
			}
			fmt.Fprintf(&buf, " (%s, at %gs)\n", ev.Batch, ev.At)
		}
	}

	return buf.String()
}

// AssertionContext provides engine access for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if actx == nil || actx.Harness == nil {
			err = fmt.Errorf("assertion[%d]: %s requires a harness context", i, assertion.Type)
		} else {
			err = evaluate(actx, result.Trace, assertion)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func evaluate(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		return assertEventCount(actx, trace, a)
	case AssertSessionCount:
		return assertSessionCount(actx, trace, a)
	case AssertSessionDurations:
		return assertSessionDurations(actx, trace, a)
	case AssertDocumentMetric:
		return assertDocumentMetric(actx, a)
	case AssertOverview:
		return assertOverview(actx, a)
	case AssertWeekly:
		return assertWeekly(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEventCount checks the user has exactly Count events of Kind.
func assertEventCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	id, err := actx.Harness.knownUser(a.User)
	if err != nil {
		return err
	}
	events, err := actx.Harness.engine.UserEvents(actx.Ctx, id, model.EventKind(a.Kind))
	if err != nil {
		return fmt.Errorf("event_count: %w", err)
	}
	if len(events) != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events for %s", a.Count, a.Kind, a.User),
			Actual:   fmt.Sprintf("%d events", len(events)),
			Trace:    trace,
		}
	}
	return nil
}

// assertSessionCount checks the number of login_ts rows, open or closed.
func assertSessionCount(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	id, err := actx.Harness.knownUser(a.User)
	if err != nil {
		return err
	}
	sessions, err := actx.Harness.engine.Sessions(actx.Ctx, id)
	if err != nil {
		return fmt.Errorf("session_count: %w", err)
	}
	if len(sessions) != a.Count {
		return &AssertionError{
			Type:     AssertSessionCount,
			Expected: fmt.Sprintf("%d sessions for %s", a.Count, a.User),
			Actual:   fmt.Sprintf("%d sessions", len(sessions)),
			Trace:    trace,
		}
	}
	return nil
}

// assertSessionDurations checks the closed session durations in login order.
func assertSessionDurations(actx *AssertionContext, trace []TraceEvent, a Assertion) error {
	id, err := actx.Harness.knownUser(a.User)
	if err != nil {
		return err
	}
	sessions, err := actx.Harness.engine.Sessions(actx.Ctx, id)
	if err != nil {
		return fmt.Errorf("session_durations: %w", err)
	}

	actual := []float64{}
	for _, s := range sessions {
		if s.Closed && s.DurationSec != nil {
			actual = append(actual, *s.DurationSec)
		}
	}
	expected := a.Durations
	if expected == nil {
		expected = []float64{}
	}

	if !slices.EqualFunc(actual, expected, floatsEqual) {
		return &AssertionError{
			Type:     AssertSessionDurations,
			Expected: fmt.Sprintf("durations %v for %s", expected, a.User),
			Actual:   fmt.Sprintf("durations %v", actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertDocumentMetric checks the latest value of a document metric.
func assertDocumentMetric(actx *AssertionContext, a Assertion) error {
	docID, ok := actx.Harness.documents[a.Document]
	if !ok {
		return fmt.Errorf("document_metric: document %q was never submitted", a.Document)
	}
	value, found, err := actx.Harness.store.LatestMetric(actx.Ctx, docID, a.Metric)
	if err != nil {
		return fmt.Errorf("document_metric: %w", err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertDocumentMetric,
			Expected: fmt.Sprintf("%s.%s = %g", a.Document, a.Metric, *a.Value),
			Actual:   "metric not recorded",
		}
	}
	if !floatsEqual(value, *a.Value) {
		return &AssertionError{
			Type:     AssertDocumentMetric,
			Expected: fmt.Sprintf("%s.%s = %g", a.Document, a.Metric, *a.Value),
			Actual:   fmt.Sprintf("%s.%s = %g", a.Document, a.Metric, value),
		}
	}
	return nil
}

// assertOverview checks the fields set in the OverviewExpect.
func assertOverview(actx *AssertionContext, a Assertion) error {
	id, err := actx.Harness.knownUser(a.User)
	if err != nil {
		return err
	}
	report, err := actx.Harness.engine.Overview(actx.Ctx, id)
	if err != nil {
		return fmt.Errorf("overview: %w", err)
	}

	exp := a.Overview
	var mismatches []string
	if exp.Documents != nil && *exp.Documents != report.Documents {
		mismatches = append(mismatches, fmt.Sprintf("documents: want %d, got %d", *exp.Documents, report.Documents))
	}
	if exp.LoginDays != nil && *exp.LoginDays != report.LoginDays {
		mismatches = append(mismatches, fmt.Sprintf("login_days: want %d, got %d", *exp.LoginDays, report.LoginDays))
	}
	if exp.NoSessions && report.AvgSessionSeconds != nil {
		mismatches = append(mismatches, fmt.Sprintf("avg_session_seconds: want none, got %g", *report.AvgSessionSeconds))
	}
	if exp.AvgSessionSeconds != nil {
		switch {
		case report.AvgSessionSeconds == nil:
			mismatches = append(mismatches, fmt.Sprintf("avg_session_seconds: want %g, got none", *exp.AvgSessionSeconds))
		case !floatsEqual(*exp.AvgSessionSeconds, *report.AvgSessionSeconds):
			mismatches = append(mismatches, fmt.Sprintf("avg_session_seconds: want %g, got %g", *exp.AvgSessionSeconds, *report.AvgSessionSeconds))
		}
	}
	if exp.DocsWithTuPercent != nil && !floatsEqual(*exp.DocsWithTuPercent, report.DocsWithTuPercent) {
		mismatches = append(mismatches, fmt.Sprintf("docs_with_tu_percent: want %g, got %g", *exp.DocsWithTuPercent, report.DocsWithTuPercent))
	}
	if exp.DocsNoChangesPercent != nil && !floatsEqual(*exp.DocsNoChangesPercent, report.DocsNoChangesPercent) {
		mismatches = append(mismatches, fmt.Sprintf("docs_no_changes_percent: want %g, got %g", *exp.DocsNoChangesPercent, report.DocsNoChangesPercent))
	}
	for _, name := range slices.Sorted(maps.Keys(exp.MetricAverages)) {
		want := exp.MetricAverages[name]
		got, ok := report.MetricAverages[name]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("metric_averages[%s]: want %g, got none", name, want))
			continue
		}
		if !floatsEqual(want, got) {
			mismatches = append(mismatches, fmt.Sprintf("metric_averages[%s]: want %g, got %g", name, want, got))
		}
	}

	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertOverview,
			Expected: fmt.Sprintf("overview of %s to match", a.User),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

// assertWeekly checks the seven activity labels, oldest first.
func assertWeekly(actx *AssertionContext, a Assertion) error {
	id, err := actx.Harness.knownUser(a.User)
	if err != nil {
		return err
	}
	buckets, err := actx.Harness.engine.WeeklyActivity(actx.Ctx, id)
	if err != nil {
		return fmt.Errorf("weekly: %w", err)
	}

	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}
	if !slices.Equal(labels, a.Labels) {
		return &AssertionError{
			Type:     AssertWeekly,
			Expected: fmt.Sprintf("labels %q for %s", a.Labels, a.User),
			Actual:   fmt.Sprintf("labels %q", labels),
		}
	}
	return nil
}

func floatsEqual(a, b float64) bool {
	return math.Abs(a-b) <= floatTolerance
}
