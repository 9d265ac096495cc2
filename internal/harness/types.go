package harness

// StepResult records what one scenario step did.
type StepResult struct {
	Index    int     `json:"index"`
	At       float64 `json:"at"`
	Op       string  `json:"op"`
	User     string  `json:"user,omitempty"`
	Document string  `json:"document,omitempty"`
	Outcome  string  `json:"outcome,omitempty"`
	// Closed lists the users whose sessions a sweep closed, in user id order.
	Closed []string `json:"closed,omitempty"`
	// Error is the engine error code the step failed with, if any.
	Error string `json:"error,omitempty"`
}

// TraceEvent is one ledger row as seen by the harness.
type TraceEvent struct {
	Seq       int64    `json:"seq"`
	User      string   `json:"user"`
	Kind      string   `json:"kind"`
	Value     *float64 `json:"value,omitempty"`
	AnchorSeq int64    `json:"anchor_seq,omitempty"`
	// Batch is renumbered b1, b2, ... by first appearance.
	Batch string `json:"batch"`
	// At is created_at in seconds after the scenario start.
	At float64 `json:"at"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expect clause and every
	// assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per executed step.
	Steps []StepResult `json:"steps"`

	// Trace is the full ledger after the last step, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step result.
func (r *Result) AddStep(step StepResult) {
	r.Steps = append(r.Steps, step)
}
