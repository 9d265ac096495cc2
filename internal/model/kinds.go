package model

import "fmt"

// EventKind names a usage event in the ledger.
type EventKind string

const (
	// KindLogin is the marker counted for distinct login days.
	KindLogin EventKind = "login"
	// KindLoginTS carries the login epoch seconds and anchors session reconciliation.
	KindLoginTS EventKind = "login_ts"
	// KindHeartbeat carries the epoch seconds of the last sign of life.
	KindHeartbeat EventKind = "heartbeat"
	// KindSessionDuration carries the clamped duration in seconds of a closed session.
	KindSessionDuration EventKind = "session_duration"
	// KindLogout marks the end of a reconciled session. It carries no value.
	KindLogout EventKind = "logout"
	// KindPDFUploaded is recorded when a PDF document is analysed.
	KindPDFUploaded EventKind = "pdf_uploaded"
	// KindTextUploaded is recorded when pasted text is analysed.
	KindTextUploaded EventKind = "text_uploaded"
)

// AllKinds lists every event kind in declaration order.
var AllKinds = []EventKind{
	KindLogin,
	KindLoginTS,
	KindHeartbeat,
	KindSessionDuration,
	KindLogout,
	KindPDFUploaded,
	KindTextUploaded,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseEventKind converts s to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Metric names written by the document analysis pipeline.
const (
	MetricTotalSentences = "total_frases"
	MetricImpersonalTu   = "frases_con_tu_impersonal"
	MetricModelChanges   = "cambios_propuestos_modelo"
	MetricUserChanges    = "cambios_realizados_usuario"
)

// InitialMetrics lists the metrics every analysed document starts with.
var InitialMetrics = []string{
	MetricTotalSentences,
	MetricImpersonalTu,
	MetricModelChanges,
	MetricUserChanges,
}
