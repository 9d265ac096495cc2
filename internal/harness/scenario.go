package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/palabria/internal/engine"
	"github.com/roach88/palabria/internal/model"
)

// DefaultStart is the scenario start when none is given.
var DefaultStart = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// Scenario defines a usage scenario: timed operations and the assertions
// that must hold once they have all run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the wall-clock time of offset 0. Defaults to DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// ReconcileOnHeartbeat overrides the engine default (true) when set.
	ReconcileOnHeartbeat *bool `yaml:"reconcile_on_heartbeat,omitempty"`

	// Steps run in order. Each step's clock reading is Start + At.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final ledger and reports.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single operation at a point in scenario time.
type Step struct {
	// At is the offset in seconds from the scenario start.
	At float64 `yaml:"at"`

	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// User is the username the op acts on.
	User string `yaml:"user,omitempty"`

	// Document is a scenario-local label for a submitted document.
	Document string `yaml:"document,omitempty"`

	// Filename, Text and Source describe a submit_document.
	Filename string `yaml:"filename,omitempty"`
	Text     string `yaml:"text,omitempty"`
	Source   string `yaml:"source,omitempty"`

	// Metrics is the initial metric batch of a submit_document.
	Metrics map[string]float64 `yaml:"metrics,omitempty"`

	// Metric and Value describe an add_metric.
	Metric string  `yaml:"metric,omitempty"`
	Value  float64 `yaml:"value,omitempty"`

	// Changes is the count recorded by user_changes.
	Changes int `yaml:"changes,omitempty"`

	// Expect validates the step's outcome. If nil the step must not fail.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected result of a step.
type StepExpect struct {
	// Outcome is the reconcile outcome (closed, already_closed, ...) or,
	// for delete_document, deleted or missing.
	Outcome string `yaml:"outcome,omitempty"`

	// Error is the expected engine error code (NOT_FOUND, INVALID_INPUT, ...).
	Error string `yaml:"error,omitempty"`
}

// OverviewExpect lists the overview fields to check. Nil fields are skipped.
type OverviewExpect struct {
	Documents            *int     `yaml:"documents,omitempty"`
	LoginDays            *int     `yaml:"login_days,omitempty"`
	AvgSessionSeconds    *float64 `yaml:"avg_session_seconds,omitempty"`
	NoSessions           bool     `yaml:"no_sessions,omitempty"`
	DocsWithTuPercent    *float64 `yaml:"docs_with_tu_percent,omitempty"`
	DocsNoChangesPercent *float64 `yaml:"docs_no_changes_percent,omitempty"`

	// MetricAverages is a subset match on the per-metric averages.
	MetricAverages map[string]float64 `yaml:"metric_averages,omitempty"`
}

// Assertion validates the final ledger or a report.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// User scopes every assertion except document_metric.
	User string `yaml:"user,omitempty"`

	// Kind is the event kind (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of events or sessions.
	Count int `yaml:"count,omitempty"`

	// Durations are the expected closed session durations (session_durations).
	Durations []float64 `yaml:"durations,omitempty"`

	// Document, Metric and Value describe a document_metric assertion.
	Document string   `yaml:"document,omitempty"`
	Metric   string   `yaml:"metric,omitempty"`
	Value    *float64 `yaml:"value,omitempty"`

	// Overview holds the expected overview fields.
	Overview *OverviewExpect `yaml:"overview,omitempty"`

	// Labels are the seven expected weekly labels, oldest first.
	Labels []string `yaml:"labels,omitempty"`
}

// Step operations.
const (
	OpCreateUser     = "create_user"
	OpLogin          = "login"
	OpHeartbeat      = "heartbeat"
	OpLogout         = "logout"
	OpReconcile      = "reconcile"
	OpReconcileAll   = "reconcile_all"
	OpReconcileIdle  = "reconcile_idle"
	OpSubmitDocument = "submit_document"
	OpAddMetric      = "add_metric"
	OpUserChanges    = "user_changes"
	OpDeleteDocument = "delete_document"
)

// Assertion type constants.
const (
	AssertEventCount       = "event_count"
	AssertSessionCount     = "session_count"
	AssertSessionDurations = "session_durations"
	AssertDocumentMetric   = "document_metric"
	AssertOverview         = "overview"
	AssertWeekly           = "weekly"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Start.IsZero() {
		scenario.Start = DefaultStart
	}
	scenario.Start = scenario.Start.UTC()

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	if st.At < 0 {
		return fmt.Errorf("steps[%d]: at must be non-negative", index)
	}

	switch st.Op {
	case OpCreateUser, OpLogin, OpHeartbeat, OpLogout, OpReconcile:
		if st.User == "" {
			return fmt.Errorf("steps[%d]: user is required for %s", index, st.Op)
		}
	case OpReconcileAll, OpReconcileIdle:
	case OpSubmitDocument:
		if st.User == "" || st.Document == "" {
			return fmt.Errorf("steps[%d]: user and document are required for %s", index, st.Op)
		}
	case OpAddMetric:
		if st.Document == "" || st.Metric == "" {
			return fmt.Errorf("steps[%d]: document and metric are required for %s", index, st.Op)
		}
	case OpUserChanges, OpDeleteDocument:
		if st.Document == "" {
			return fmt.Errorf("steps[%d]: document is required for %s", index, st.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.Expect != nil && st.Expect.Outcome == "" && st.Expect.Error == "" {
		return fmt.Errorf("steps[%d].expect: outcome or error is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Type != AssertDocumentMetric && a.User == "" {
		return fmt.Errorf("assertions[%d]: user is required for %s", index, a.Type)
	}

	switch a.Type {
	case AssertEventCount:
		if _, err := model.ParseEventKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertSessionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for session_count", index)
		}
	case AssertSessionDurations:
	case AssertDocumentMetric:
		if a.Document == "" || a.Metric == "" || a.Value == nil {
			return fmt.Errorf("assertions[%d]: document, metric and value are required for document_metric", index)
		}
	case AssertOverview:
		if a.Overview == nil {
			return fmt.Errorf("assertions[%d]: overview is required for overview", index)
		}
	case AssertWeekly:
		if len(a.Labels) != engine.WeekDays {
			return fmt.Errorf("assertions[%d]: weekly needs exactly %d labels, got %d", index, engine.WeekDays, len(a.Labels))
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
