package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/palabria/internal/model"
)

// MetricValue is a named value to append to a document's metric log.
type MetricValue struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// normalizeMetricName trims and NFC-normalises so visually identical names
// share one last-writer-wins key.
func normalizeMetricName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// AppendMetric appends a new metric record for the document. Existing
// records are never overwritten; the new row becomes the latest value.
// Returns ErrNotFound if the document does not exist.
func (l *Ledger) AppendMetric(ctx context.Context, documentID int64, name string, value float64) (model.MetricRecord, error) {
	name = normalizeMetricName(name)
	if err := model.ValidateMetricName(name); err != nil {
		return model.MetricRecord{}, fmt.Errorf("append metric: %w", err)
	}
	if err := model.ValidateMetricValue(value); err != nil {
		return model.MetricRecord{}, fmt.Errorf("append metric: %w", err)
	}

	var rec model.MetricRecord
	err := l.Update(ctx, func(tx *Ledger) error {
		if _, err := tx.GetDocument(ctx, documentID); err != nil {
			return err
		}
		var err error
		rec, err = tx.insertMetric(ctx, documentID, name, value)
		return err
	})
	if err != nil {
		return model.MetricRecord{}, fmt.Errorf("append metric: %w", err)
	}
	return rec, nil
}

func (l *Ledger) insertMetric(ctx context.Context, documentID int64, name string, value float64) (model.MetricRecord, error) {
	now := l.Now()
	res, err := l.q.ExecContext(ctx, `
		INSERT INTO metrics
		(document_id, metric_name, metric_value, created_at)
		VALUES (?, ?, ?, ?)
	`, documentID, name, value, formatTime(now))
	if err != nil {
		return model.MetricRecord{}, fmt.Errorf("insert metric %q: %w", name, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return model.MetricRecord{}, fmt.Errorf("insert metric %q: last insert id: %w", name, err)
	}
	return model.MetricRecord{
		Seq:        seq,
		DocumentID: documentID,
		Name:       name,
		Value:      value,
		CreatedAt:  now,
	}, nil
}

// LatestMetric returns the value of the greatest-seq record for (documentID, name).
// ok is false if the document has no such metric.
func (l *Ledger) LatestMetric(ctx context.Context, documentID int64, name string) (value float64, ok bool, err error) {
	err = l.q.QueryRowContext(ctx, `
		SELECT metric_value
		FROM metrics
		WHERE document_id = ? AND metric_name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, documentID, normalizeMetricName(name)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest metric %q: %w", name, err)
	}
	return value, true, nil
}

// LatestMetricsForUser returns, for every document of the user that has the
// metric, its latest value. Documents without the metric are omitted.
// Results are ordered by document id.
func (l *Ledger) LatestMetricsForUser(ctx context.Context, userID int64, name string) ([]model.DocumentValue, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT m.document_id, m.metric_value
		FROM metrics m
		JOIN (
			SELECT mm.document_id, MAX(mm.seq) AS max_seq
			FROM metrics mm
			JOIN documents d ON d.id = mm.document_id
			WHERE d.user_id = ? AND mm.metric_name = ?
			GROUP BY mm.document_id
		) mx ON mx.max_seq = m.seq
		ORDER BY m.document_id ASC
	`, userID, normalizeMetricName(name))
	if err != nil {
		return nil, fmt.Errorf("latest %q for user: %w", name, err)
	}
	defer rows.Close()

	values := []model.DocumentValue{}
	for rows.Next() {
		var dv model.DocumentValue
		if err := rows.Scan(&dv.DocumentID, &dv.Value); err != nil {
			return nil, fmt.Errorf("scan latest metric: %w", err)
		}
		values = append(values, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest metrics: %w", err)
	}
	return values, nil
}

// LatestMetricAverages returns, per metric name ever recorded for the user's
// documents, the mean of each document's latest value.
func (l *Ledger) LatestMetricAverages(ctx context.Context, userID int64) (map[string]float64, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT m.metric_name, AVG(m.metric_value)
		FROM metrics m
		JOIN (
			SELECT mm.document_id, mm.metric_name, MAX(mm.seq) AS max_seq
			FROM metrics mm
			JOIN documents d ON d.id = mm.document_id
			WHERE d.user_id = ?
			GROUP BY mm.document_id, mm.metric_name
		) mx ON mx.max_seq = m.seq
		GROUP BY m.metric_name
		ORDER BY m.metric_name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("latest metric averages: %w", err)
	}
	defer rows.Close()

	avgs := map[string]float64{}
	for rows.Next() {
		var (
			name string
			avg  float64
		)
		if err := rows.Scan(&name, &avg); err != nil {
			return nil, fmt.Errorf("scan metric average: %w", err)
		}
		avgs[name] = avg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric averages: %w", err)
	}
	return avgs, nil
}

// DocumentMetrics returns every metric record of the document in seq order.
// Returns an empty slice (not nil) if the document has no metrics.
func (l *Ledger) DocumentMetrics(ctx context.Context, documentID int64) ([]model.MetricRecord, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT seq, document_id, metric_name, metric_value, created_at
		FROM metrics
		WHERE document_id = ?
		ORDER BY seq ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query document metrics: %w", err)
	}
	defer rows.Close()

	records := []model.MetricRecord{}
	for rows.Next() {
		var (
			rec       model.MetricRecord
			createdAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.DocumentID, &rec.Name, &rec.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return records, nil
}
