package workflow

import (
	"fmt"
	"strings"
	"time"
)

// minOverrideReasonLen is the minimum justification length for a strict
// mode emergency override.
const minOverrideReasonLen = 20

// Enforcer turns a validation verdict into an allow/block decision,
// recording deviations on the instance when a departure is permitted.
type Enforcer struct {
	manager *Manager
}

// NewEnforcer creates an Enforcer backed by the instance manager.
func NewEnforcer(manager *Manager) *Enforcer {
	return &Enforcer{manager: manager}
}

// Enforce decides a requested transition. skipReason and forceSkip are
// call-site hints; recorded deviations are persisted to the instance.
func (e *Enforcer) Enforce(inst *Instance, requestedTriad string, result ValidationResult, skipReason string, forceSkip bool) (EnforcementResult, error) {
	clean := result.Valid && len(result.SkippedTriads) == 0 && len(result.Warnings) == 0
	if clean {
		return EnforcementResult{
			Allowed: true,
			Message: fmt.Sprintf("transition to %q follows the workflow", requestedTriad),
		}, nil
	}

	reason := strings.TrimSpace(skipReason)

	switch result.EnforcementMode {
	case ModeStrict:
		if forceSkip && len(reason) >= minOverrideReasonLen {
			dev, err := e.record(inst, requestedTriad, result, "emergency override: "+reason)
			if err != nil {
				return EnforcementResult{}, err
			}
			return EnforcementResult{
				Allowed:           true,
				Message:           fmt.Sprintf("emergency override recorded for %q", requestedTriad),
				RecordedDeviation: dev,
			}, nil
		}
		msg := e.blockMessage(requestedTriad, result)
		if forceSkip {
			msg = fmt.Sprintf("override justification must be at least %d characters", minOverrideReasonLen)
		}
		return EnforcementResult{
			Allowed:        false,
			Message:        msg,
			RequiresReason: true,
		}, nil

	case ModeRecommended:
		if reason == "" {
			return EnforcementResult{
				Allowed:        false,
				Message:        e.blockMessage(requestedTriad, result) + "; provide a skip reason to proceed",
				RequiresReason: true,
			}, nil
		}
		dev, err := e.record(inst, requestedTriad, result, reason)
		if err != nil {
			return EnforcementResult{}, err
		}
		return EnforcementResult{
			Allowed:           true,
			Message:           fmt.Sprintf("transition to %q allowed with recorded deviation", requestedTriad),
			RecordedDeviation: dev,
		}, nil

	case ModeOptional:
		res := EnforcementResult{
			Allowed: true,
			Message: fmt.Sprintf("transition to %q allowed", requestedTriad),
		}
		if len(result.SkippedTriads) > 0 || result.RequiredTriad != "" {
			dev, err := e.record(inst, requestedTriad, result, reason)
			if err != nil {
				return EnforcementResult{}, err
			}
			res.RecordedDeviation = dev
		}
		return res, nil
	}

	return EnforcementResult{
		Allowed: false,
		Message: fmt.Sprintf("unknown enforcement mode %q", result.EnforcementMode),
	}, nil
}

func (e *Enforcer) blockMessage(requestedTriad string, result ValidationResult) string {
	if result.RequiredTriad != "" {
		return fmt.Sprintf("triad %q must be completed before %q", result.RequiredTriad, requestedTriad)
	}
	if len(result.SkippedTriads) > 0 {
		return fmt.Sprintf("transition to %q skips required triads: %s",
			requestedTriad, strings.Join(result.SkippedTriads, ", "))
	}
	if len(result.Violations) > 0 {
		return result.Violations[0].Message
	}
	return fmt.Sprintf("transition to %q deviates from the workflow", requestedTriad)
}

// record classifies and persists a deviation, returning the stored copy.
func (e *Enforcer) record(inst *Instance, requestedTriad string, result ValidationResult, reason string) (*Deviation, error) {
	dev := Deviation{
		Type:      classifyDeviation(result),
		FromTriad: inst.Progress.CurrentTriad,
		ToTriad:   requestedTriad,
		Skipped:   result.SkippedTriads,
		Reason:    reason,
		User:      inst.Metadata.StartedBy,
		Timestamp: time.Now().UTC(),
	}

	updated, err := e.manager.AddDeviation(inst.InstanceID, dev)
	if err != nil {
		return nil, fmt.Errorf("record deviation: %w", err)
	}
	*inst = *updated
	return &inst.Deviations[len(inst.Deviations)-1], nil
}

func classifyDeviation(result ValidationResult) string {
	if result.RequiredTriad != "" {
		return DeviationGateSkip
	}
	for _, w := range result.Warnings {
		if strings.HasPrefix(w, "moving backward") {
			return DeviationSkipBackward
		}
	}
	return DeviationSkipForward
}
