// Package workflow implements the schema-driven workflow engine: schema
// loading and validation, instance lifecycle, transition validation, and
// enforcement with audited deviations.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Enforcement modes.
const (
	ModeStrict      = "strict"
	ModeRecommended = "recommended"
	ModeOptional    = "optional"
)

// Instance statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbandoned  = "abandoned"
)

// Deviation types.
const (
	DeviationSkipForward  = "skip_forward"
	DeviationSkipBackward = "skip_backward"
	DeviationGateSkip     = "gate_skip"
)

// Rule kinds.
const (
	RuleSequentialProgression  = "sequential_progression"
	RuleConditionalRequirement = "conditional_requirement"
)

// Complexity ordinals for conditional gates.
const (
	ComplexityMinimal     = "minimal"
	ComplexityModerate    = "moderate"
	ComplexitySubstantial = "substantial"
)

// Errors surfaced by the engine.
var (
	// ErrInstanceNotFound is returned when no instance file matches an id.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInvalidInstanceID is returned for ids failing the path-safety check.
	ErrInvalidInstanceID = errors.New("invalid instance id")

	// ErrSchemaInvalid is returned when the workflow schema fails validation.
	ErrSchemaInvalid = errors.New("workflow schema invalid")
)

// Triad is one ordered phase of a workflow.
type Triad struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required"`
}

// Enforcement configures how transitions are policed.
type Enforcement struct {
	Mode              string            `json:"mode"`
	PerTriadOverrides map[string]string `json:"per_triad_overrides,omitempty"`
}

// ContentCreatedCondition gates on the amount of content produced.
type ContentCreatedCondition struct {
	Threshold int    `json:"threshold"`
	Units     string `json:"units"`
}

// ConditionMetrics are the thresholds a conditional gate compares against.
// All comparisons are meets-or-exceeds.
type ConditionMetrics struct {
	ContentCreated     *ContentCreatedCondition `json:"content_created,omitempty"`
	ComponentsModified *int                     `json:"components_modified,omitempty"`
	Complexity         string                   `json:"complexity,omitempty"`
}

// Condition is the significance test attached to a conditional rule.
type Condition struct {
	Type    string           `json:"type"`
	Metrics ConditionMetrics `json:"metrics"`
}

// Rule is one workflow rule: sequential progression tracking or a
// conditional gate requirement.
type Rule struct {
	Type          string     `json:"type"`
	GateTriad     string     `json:"gate_triad,omitempty"`
	BeforeTriad   string     `json:"before_triad,omitempty"`
	Condition     *Condition `json:"condition,omitempty"`
	BypassAllowed bool       `json:"bypass_allowed,omitempty"`
}

// Schema is a workflow definition: ordered triads, enforcement policy,
// rules.
type Schema struct {
	WorkflowType string      `json:"workflow_type"`
	Triads       []Triad     `json:"triads"`
	Enforcement  Enforcement `json:"enforcement"`
	Rules        []Rule      `json:"rules,omitempty"`
}

// TriadIndex returns the position of a triad id, or -1.
func (s *Schema) TriadIndex(id string) int {
	for i, t := range s.Triads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// TriadByID returns the triad with the given id, or nil.
func (s *Schema) TriadByID(id string) *Triad {
	if i := s.TriadIndex(id); i >= 0 {
		return &s.Triads[i]
	}
	return nil
}

// EffectiveMode returns the enforcement mode for a triad, honoring
// per-triad overrides.
func (s *Schema) EffectiveMode(triadID string) string {
	if mode, ok := s.Enforcement.PerTriadOverrides[triadID]; ok {
		return mode
	}
	return s.Enforcement.Mode
}

// CompletedTriad records one finished phase.
type CompletedTriad struct {
	TriadID         string    `json:"triad_id"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationMinutes float64   `json:"duration_minutes,omitempty"`
}

// SkippedTriad records one skipped phase.
type SkippedTriad struct {
	TriadID   string    `json:"triad_id"`
	SkippedAt time.Time `json:"skipped_at"`
	Reason    string    `json:"reason,omitempty"`
}

// Progress tracks where an instance is in its workflow.
type Progress struct {
	CurrentTriad    string           `json:"current_triad,omitempty"`
	CompletedTriads []CompletedTriad `json:"completed_triads"`
	SkippedTriads   []SkippedTriad   `json:"skipped_triads"`
}

// Deviation is an audited departure from the sequential rules. The list
// on an instance is append-only.
type Deviation struct {
	Type      string    `json:"type"`
	FromTriad string    `json:"from_triad,omitempty"`
	ToTriad   string    `json:"to_triad"`
	Skipped   []string  `json:"skipped,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	User      string    `json:"user,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata is the instance's descriptive header.
type Metadata struct {
	Title         string     `json:"title"`
	StartedBy     string     `json:"started_by,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	Status        string     `json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	AbandonedAt   *time.Time `json:"abandoned_at,omitempty"`
	AbandonReason string     `json:"abandon_reason,omitempty"`
}

// Instance is one live execution of a workflow.
type Instance struct {
	InstanceID          string         `json:"instance_id"`
	WorkflowType        string         `json:"workflow_type"`
	Metadata            Metadata       `json:"metadata"`
	Progress            Progress       `json:"workflow_progress"`
	Deviations          []Deviation    `json:"workflow_deviations"`
	SignificanceMetrics map[string]any `json:"significance_metrics,omitempty"`
}

// CompletedIndex returns the highest schema index among completed triads,
// or -1 when nothing is completed.
func (inst *Instance) CompletedIndex(schema *Schema) int {
	latest := -1
	for _, c := range inst.Progress.CompletedTriads {
		if idx := schema.TriadIndex(c.TriadID); idx > latest {
			latest = idx
		}
	}
	return latest
}

// HasCompleted reports whether a triad is in the completed list.
func (inst *Instance) HasCompleted(triadID string) bool {
	for _, c := range inst.Progress.CompletedTriads {
		if c.TriadID == triadID {
			return true
		}
	}
	return false
}

// Violation is one blocking problem found during validation.
type Violation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ValidationResult is the validator's verdict on a requested transition.
type ValidationResult struct {
	Valid           bool        `json:"valid"`
	Violations      []Violation `json:"violations,omitempty"`
	Warnings        []string    `json:"warnings,omitempty"`
	SkippedTriads   []string    `json:"skipped_triads,omitempty"`
	RequiredTriad   string      `json:"required_triad,omitempty"`
	EnforcementMode string      `json:"enforcement_mode"`
}

// EnforcementResult is the enforcer's decision for a requested transition.
type EnforcementResult struct {
	Allowed           bool       `json:"allowed"`
	Message           string     `json:"message"`
	RequiresReason    bool       `json:"requires_reason"`
	RecordedDeviation *Deviation `json:"recorded_deviation,omitempty"`
}

// Metrics is the externally-supplied significance record evaluated by
// conditional gates.
type Metrics struct {
	ContentCreated     *ContentMetric `json:"content_created,omitempty"`
	ComponentsModified *int           `json:"components_modified,omitempty"`
	Complexity         string         `json:"complexity,omitempty"`
}

// ContentMetric is the observed amount of created content.
type ContentMetric struct {
	Quantity int    `json:"quantity"`
	Units    string `json:"units"`
}

// complexityRank orders the complexity ordinals.
func complexityRank(c string) int {
	switch c {
	case ComplexityMinimal:
		return 1
	case ComplexityModerate:
		return 2
	case ComplexitySubstantial:
		return 3
	}
	return 0
}

// ValidMode reports whether mode is a recognized enforcement mode.
func ValidMode(mode string) bool {
	switch mode {
	case ModeStrict, ModeRecommended, ModeOptional:
		return true
	}
	return false
}

func notFoundErr(id string) error {
	return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
}
