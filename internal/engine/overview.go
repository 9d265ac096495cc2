package engine

import (
	"context"
	"math"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// OverviewReport summarises a user's documents and usage.
type OverviewReport struct {
	UserID int64 `json:"user_id"`

	// Documents is the number of documents the user owns.
	Documents int `json:"documents"`

	// MetricAverages maps every metric name recorded on the user's documents
	// to the mean of each document's latest value.
	MetricAverages map[string]float64 `json:"metric_averages"`

	// Usage is the count and mean value per event kind, ordered by kind.
	Usage []store.KindStat `json:"usage"`

	// LoginDays counts distinct UTC dates with a login event.
	LoginDays int `json:"login_days"`

	// AvgSessionSeconds is the mean session_duration, nil with no closed sessions.
	AvgSessionSeconds *float64 `json:"avg_session_seconds"`

	// DocsWithTuPercent is the share of documents whose latest
	// frases_con_tu_impersonal is above zero.
	DocsWithTuPercent float64 `json:"docs_with_tu_percent"`

	// DocsNoChangesPercent is the share of documents whose latest
	// cambios_realizados_usuario is zero. A missing metric counts as zero.
	DocsNoChangesPercent float64 `json:"docs_no_changes_percent"`
}

// Overview builds the user's OverviewReport. It never writes to the ledger.
func (e *Engine) Overview(ctx context.Context, userID int64) (OverviewReport, error) {
	const op = "overview"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return OverviewReport{}, err
	}

	report := OverviewReport{UserID: userID}
	var err error

	if report.Documents, err = e.store.CountDocuments(ctx, userID); err != nil {
		return OverviewReport{}, classify(op, err)
	}
	if report.MetricAverages, err = e.store.LatestMetricAverages(ctx, userID); err != nil {
		return OverviewReport{}, classify(op, err)
	}
	if report.Usage, err = e.store.UsageSummary(ctx, userID); err != nil {
		return OverviewReport{}, classify(op, err)
	}
	if report.LoginDays, err = e.store.DistinctDays(ctx, userID, model.KindLogin); err != nil {
		return OverviewReport{}, classify(op, err)
	}

	avg, ok, err := e.store.AverageValue(ctx, userID, model.KindSessionDuration)
	if err != nil {
		return OverviewReport{}, classify(op, err)
	}
	if ok {
		report.AvgSessionSeconds = model.Float(avg)
	}

	tu, err := e.store.LatestMetricsForUser(ctx, userID, model.MetricImpersonalTu)
	if err != nil {
		return OverviewReport{}, classify(op, err)
	}
	withTu := countWhere(tu, func(v float64) bool { return v > 0 })
	report.DocsWithTuPercent = percent(withTu, report.Documents)

	changes, err := e.store.LatestMetricsForUser(ctx, userID, model.MetricUserChanges)
	if err != nil {
		return OverviewReport{}, classify(op, err)
	}
	changed := countWhere(changes, func(v float64) bool { return v != 0 })
	report.DocsNoChangesPercent = percent(report.Documents-changed, report.Documents)

	return report, nil
}

func countWhere(values []model.DocumentValue, pred func(float64) bool) int {
	n := 0
	for _, dv := range values {
		if pred(dv.Value) {
			n++
		}
	}
	return n
}

// percent returns 100*part/whole rounded to one decimal, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(1000*float64(part)/float64(whole)) / 10
}
