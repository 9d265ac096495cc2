package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/palabria/internal/engine"
	"github.com/roach88/palabria/internal/model"
)

func ptr[T any](v T) *T { return &v }

// docScenario submits one document with the given initial metrics.
func docScenario(metrics map[string]float64, assertions ...Assertion) *Scenario {
	return scenario(
		[]Step{
			{At: 0, Op: OpCreateUser, User: "ana"},
			{At: 10, Op: OpSubmitDocument, User: "ana", Document: "essay", Text: "hola", Metrics: metrics},
		},
		assertions...,
	)
}

func TestAssertions_Pass(t *testing.T) {
	result, err := Run(docScenario(
		map[string]float64{model.MetricImpersonalTu: 0, model.MetricTotalSentences: 8},
		Assertion{Type: AssertEventCount, User: "ana", Kind: "text_uploaded", Count: 1},
		Assertion{Type: AssertDocumentMetric, Document: "essay", Metric: model.MetricTotalSentences, Value: ptr(8.0)},
		Assertion{Type: AssertOverview, User: "ana", Overview: &OverviewExpect{
			Documents:            ptr(1),
			LoginDays:            ptr(1),
			NoSessions:           true,
			DocsWithTuPercent:    ptr(0.0),
			DocsNoChangesPercent: ptr(100.0),
		}},
		Assertion{Type: AssertWeekly, User: "ana", Labels: []string{
			engine.LabelNoSession, engine.LabelNoSession, engine.LabelNoSession, engine.LabelNoSession,
			engine.LabelNoSession, engine.LabelNoSession, engine.LabelNoSession,
		}},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "event count",
			assertion: Assertion{Type: AssertEventCount, User: "ana", Kind: "login", Count: 2},
			want:      "2 login events for ana",
		},
		{
			name:      "session count",
			assertion: Assertion{Type: AssertSessionCount, User: "ana", Count: 3},
			want:      "Actual: 1 sessions",
		},
		{
			name:      "durations",
			assertion: Assertion{Type: AssertSessionDurations, User: "ana", Durations: []float64{60}},
			want:      "durations []",
		},
		{
			name:      "metric value",
			assertion: Assertion{Type: AssertDocumentMetric, Document: "essay", Metric: model.MetricTotalSentences, Value: ptr(9.0)},
			want:      "essay.total_frases = 8",
		},
		{
			name:      "metric missing",
			assertion: Assertion{Type: AssertDocumentMetric, Document: "essay", Metric: model.MetricUserChanges, Value: ptr(0.0)},
			want:      "metric not recorded",
		},
		{
			name:      "unknown document",
			assertion: Assertion{Type: AssertDocumentMetric, Document: "other", Metric: model.MetricUserChanges, Value: ptr(0.0)},
			want:      `document "other" was never submitted`,
		},
		{
			name: "overview",
			assertion: Assertion{Type: AssertOverview, User: "ana", Overview: &OverviewExpect{
				Documents:         ptr(2),
				AvgSessionSeconds: ptr(30.0),
				MetricAverages:    map[string]float64{model.MetricModelChanges: 1},
			}},
			want: "documents: want 2, got 1; avg_session_seconds: want 30, got none; metric_averages[cambios_propuestos_modelo]: want 1, got none",
		},
		{
			name: "weekly",
			assertion: Assertion{Type: AssertWeekly, User: "ana", Labels: []string{
				"a", "b", "c", "d", "e", "f", "g",
			}},
			want: `labels ["no session"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(docScenario(map[string]float64{model.MetricTotalSentences: 8}, tt.assertion))
			require.NoError(t, err)

			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEventCount,
		Expected: "1 logout",
		Actual:   "0 events",
		Trace: []TraceEvent{
			{Seq: 1, User: "ana", Kind: "login", Batch: "b1"},
			{Seq: 2, User: "ana", Kind: "login_ts", Value: ptr(1741608000.0), Batch: "b1"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: event_count")
	assert.Contains(t, msg, "Expected: 1 logout")
	assert.Contains(t, msg, "[1] ana login (b1, at 0s)")
	assert.Contains(t, msg, "[2] ana login_ts 1.741608e+09 (b1, at 0s)")
}

func TestEvaluateAssertions_NilContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertSessionCount, User: "ana"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires a harness context")
}
