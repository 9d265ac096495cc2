package engine

import "github.com/prometheus/client_golang/prometheus"

// Reconcile outcome label values.
const (
	outcomeLabelClosed        = "closed"
	outcomeLabelAlreadyClosed = "already_closed"
	outcomeLabelNoLogin       = "no_login"
	outcomeLabelError         = "error"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	reconciles      *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	heartbeatErrors prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "palabria",
			Name:      "reconcile_total",
			Help:      "Total number of session reconciliation attempts by outcome.",
		}, []string{"outcome"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "palabria",
			Name:      "session_duration_seconds",
			Help:      "Clamped duration of sessions closed by reconciliation.",
			Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 14400, 43200},
		}),
		heartbeatErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "palabria",
			Name:      "heartbeat_reconcile_errors_total",
			Help:      "Reconciliations piggybacked on a heartbeat that failed without failing the heartbeat.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.reconciles, m.sessionDuration, m.heartbeatErrors} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) recordReconcile(outcome Outcome, duration float64, err error) {
	label := outcomeLabelError
	if err == nil {
		switch outcome {
		case OutcomeClosed:
			label = outcomeLabelClosed
			m.sessionDuration.Observe(duration)
		case OutcomeAlreadyClosed:
			label = outcomeLabelAlreadyClosed
		case OutcomeNoLogin:
			label = outcomeLabelNoLogin
		}
	}
	m.reconciles.WithLabelValues(label).Inc()
}
