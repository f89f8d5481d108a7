package knowledge

import "github.com/triadworks/triads/graph"

// ActiveConfidenceThreshold separates active knowledge from knowledge
// awaiting validation.
const ActiveConfidenceThreshold = 0.75

// Confidence mapping bounds.
const (
	minInitialConfidence = 0.50
	maxInitialConfidence = 0.99
)

// InitialConfidence derives a node's starting confidence from how the
// lesson was detected, its priority, and how often it has recurred. The
// mapping is deterministic: a base per source, a small priority bump,
// a repetition bump capped at three occurrences, clamped to
// [0.50, 0.99].
func InitialConfidence(source string, priority graph.Priority, repetitionCount int) float64 {
	base := 0.60
	switch source {
	case SourceExplicit:
		base = 0.80
	case SourceUserCorrection:
		base = 0.90
	case SourceRepeatedMistake:
		base = 0.75
	}

	switch priority {
	case graph.PriorityCritical:
		base += 0.05
	case graph.PriorityHigh:
		base += 0.02
	}

	if repetitionCount > 3 {
		repetitionCount = 3
	}
	base += 0.03 * float64(repetitionCount)

	if base < minInitialConfidence {
		return minInitialConfidence
	}
	if base > maxInitialConfidence {
		return maxInitialConfidence
	}
	return base
}

// StatusForConfidence maps confidence to the node lifecycle status.
func StatusForConfidence(confidence float64) graph.NodeStatus {
	if confidence >= ActiveConfidenceThreshold {
		return graph.StatusActive
	}
	return graph.StatusNeedsValidation
}
