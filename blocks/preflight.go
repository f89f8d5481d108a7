package blocks

import (
	"strings"
)

// Checklist item verdicts.
const (
	CheckPass    = "PASS"
	CheckFail    = "FAIL"
	CheckUnknown = "UNKNOWN"
)

// ChecklistStatus is the verdict for one pre-flight checklist item.
type ChecklistStatus struct {
	Status string
	Detail string
}

// PreFlightCheck is one parsed [PRE_FLIGHT_CHECK] block: an author-provided
// attestation that a graph update meets quality criteria.
type PreFlightCheck struct {
	NodeID             string
	VerificationStatus string
	ChecklistItems     map[string]ChecklistStatus
}

// Passed reports whether the overall verification status claims PASSED.
func (p *PreFlightCheck) Passed() bool {
	return strings.EqualFold(p.VerificationStatus, "PASSED")
}

// FailedItems returns the names of checklist items marked failed.
func (p *PreFlightCheck) FailedItems() []string {
	var failed []string
	for name, status := range p.ChecklistItems {
		if status.Status == CheckFail {
			failed = append(failed, name)
		}
	}
	return failed
}

// ExtractPreFlightChecks parses every [PRE_FLIGHT_CHECK] block in text.
// Blocks without a node_id are skipped.
func ExtractPreFlightChecks(text string) []PreFlightCheck {
	var checks []PreFlightCheck
	for _, raw := range rawBlocks(text, TagPreFlightCheck) {
		if c, ok := parsePreFlightCheck(raw); ok {
			checks = append(checks, c)
		}
	}
	return checks
}

func parsePreFlightCheck(raw string) (PreFlightCheck, bool) {
	check := PreFlightCheck{ChecklistItems: map[string]ChecklistStatus{}}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Checklist items are indented "- name: text" lines with a
		// PASS/FAIL marker on the value.
		if item, ok := listItemText(line); ok && isIndented(line) {
			name, value, ok := parseKeyValue(item)
			if !ok {
				continue
			}
			status, detail := parseVerdict(value)
			check.ChecklistItems[name] = ChecklistStatus{Status: status, Detail: detail}
			continue
		}

		key, value, ok := parseKeyValue(trimmed)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "node_id":
			check.NodeID = value
		case "verification_status":
			check.VerificationStatus = strings.ToUpper(value)
		}
	}

	if check.NodeID == "" {
		return PreFlightCheck{}, false
	}
	return check, true
}

// parseVerdict interprets a checklist value: a ✅ or ❌ marker anywhere in
// the value decides PASS/FAIL, and the remaining text is the detail.
func parseVerdict(value string) (status, detail string) {
	status = CheckUnknown
	switch {
	case strings.Contains(value, "✅"):
		status = CheckPass
		value = strings.ReplaceAll(value, "✅", "")
	case strings.Contains(value, "❌"):
		status = CheckFail
		value = strings.ReplaceAll(value, "❌", "")
	}
	return status, strings.TrimSpace(value)
}
