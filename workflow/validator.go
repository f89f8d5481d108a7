package workflow

import "fmt"

// Violation types emitted by the validator.
const (
	ViolationUnknownTriad  = "unknown_triad"
	ViolationMissingTriad  = "missing_triad"
	ViolationGateUnmet     = "gate_not_satisfied"
	ViolationInvalidSchema = "invalid_schema"
)

// Validator checks requested triad transitions against the workflow
// schema and the instance's progress.
type Validator struct {
	schema    *Schema
	discovery *Discovery
}

// NewValidator creates a Validator. discovery may be nil, in which case
// the filesystem existence check is skipped.
func NewValidator(schema *Schema, discovery *Discovery) *Validator {
	return &Validator{schema: schema, discovery: discovery}
}

// Validate evaluates a requested transition. metrics may be nil;
// conditional gates then never fire.
func (v *Validator) Validate(inst *Instance, requestedTriad string, metrics *Metrics) ValidationResult {
	result := ValidationResult{
		Valid:           true,
		EnforcementMode: v.schema.Enforcement.Mode,
	}

	requestedIdx := v.schema.TriadIndex(requestedTriad)
	if requestedIdx < 0 {
		result.Valid = false
		result.Violations = append(result.Violations, Violation{
			Type:    ViolationUnknownTriad,
			Message: fmt.Sprintf("triad %q is not part of workflow %q", requestedTriad, v.schema.WorkflowType),
		})
		return result
	}
	result.EnforcementMode = v.schema.EffectiveMode(requestedTriad)

	if v.discovery != nil && !v.discovery.Exists(requestedTriad) {
		result.Valid = false
		result.Violations = append(result.Violations, Violation{
			Type:    ViolationMissingTriad,
			Message: fmt.Sprintf("triad %q has no agents on disk", requestedTriad),
		})
	}

	completedIdx := inst.CompletedIndex(v.schema)

	// Required triads strictly between the latest completed phase and the
	// requested one that have not been completed yet.
	for i := completedIdx + 1; i < requestedIdx; i++ {
		t := v.schema.Triads[i]
		if !t.Required || inst.HasCompleted(t.ID) {
			continue
		}
		result.SkippedTriads = append(result.SkippedTriads, t.ID)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("skipping required triad %q", t.ID))
	}

	if completedIdx >= 0 && requestedIdx < completedIdx {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("moving backward from %q to %q", v.schema.Triads[completedIdx].ID, requestedTriad))
	}

	for _, rule := range v.schema.Rules {
		if rule.Type != RuleConditionalRequirement || rule.BeforeTriad != requestedTriad {
			continue
		}
		if inst.HasCompleted(rule.GateTriad) {
			continue
		}
		if !conditionMet(rule.Condition, metrics) {
			continue
		}
		result.Valid = false
		result.RequiredTriad = rule.GateTriad
		result.Violations = append(result.Violations, Violation{
			Type:    ViolationGateUnmet,
			Message: fmt.Sprintf("triad %q is required before %q", rule.GateTriad, requestedTriad),
		})
	}

	return result
}

// conditionMet reports whether the significance condition fires for the
// observed metrics. All threshold comparisons are meets-or-exceeds.
// Absent metrics never fire a gate.
func conditionMet(cond *Condition, metrics *Metrics) bool {
	if cond == nil || metrics == nil {
		return false
	}

	if c := cond.Metrics.ContentCreated; c != nil {
		if m := metrics.ContentCreated; m != nil && m.Units == c.Units && m.Quantity >= c.Threshold {
			return true
		}
	}
	if c := cond.Metrics.ComponentsModified; c != nil {
		if m := metrics.ComponentsModified; m != nil && *m >= *c {
			return true
		}
	}
	if c := cond.Metrics.Complexity; c != "" {
		if m := metrics.Complexity; m != "" && complexityRank(m) >= complexityRank(c) {
			return true
		}
	}
	return false
}
