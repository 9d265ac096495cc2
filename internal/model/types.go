package model

import "time"

// UsageEvent is one row of the per-user usage ledger.
type UsageEvent struct {
	Seq       int64     `json:"seq"` // Ledger-assigned logical clock
	UserID    int64     `json:"user_id"`
	Kind      EventKind `json:"kind"`
	Value     *float64  `json:"value"`                // nil for marker events
	AnchorSeq int64     `json:"anchor_seq,omitempty"` // login_ts seq closed by a session_duration
	Batch     string    `json:"batch"`                // shared by events appended atomically
	CreatedAt time.Time `json:"created_at"`
}

// HasValue reports whether the event carries a numeric value.
func (e UsageEvent) HasValue() bool {
	return e.Value != nil
}

// ValueOr returns the event value, or def when the event has none.
func (e UsageEvent) ValueOr(def float64) float64 {
	if e.Value == nil {
		return def
	}
	return *e.Value
}

// MetricRecord is one row of the per-document metric log.
// For a (DocumentID, Name) pair the record with the greatest Seq is current.
type MetricRecord struct {
	Seq        int64     `json:"seq"`
	DocumentID int64     `json:"document_id"`
	Name       string    `json:"metric_name"`
	Value      float64   `json:"metric_value"`
	CreatedAt  time.Time `json:"created_at"`
}

// Document is an analysed text owned by a user.
type Document struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Filename    string    `json:"filename"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Fingerprint string    `json:"content_fingerprint"`
}

// User is the identity row the ledger is scoped by.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentValue pairs a document with the current value of one metric.
type DocumentValue struct {
	DocumentID int64   `json:"document_id"`
	Value      float64 `json:"value"`
}

// Float returns a pointer to v. Used to build event values.
func Float(v float64) *float64 {
	return &v
}
