package knowledge

import (
	"fmt"
	"time"

	"github.com/triadworks/triads/graph"
)

// Outcome kinds accepted by RecordOutcome.
const (
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
	OutcomeConfirmation  = "confirmation"
	OutcomeContradiction = "contradiction"
)

// Auto-deprecation fires when a node keeps failing: at least this many
// failures and more than twice as many failures as successes.
const deprecationFailureFloor = 3

// outcomeHistoryLimit bounds the per-node history.
const outcomeHistoryLimit = 20

// RecordOutcome registers external feedback on a ProcessKnowledge node
// and deprecates it when the failure pattern is persistent.
func (h *Handler) RecordOutcome(triad, nodeID, outcome string) (*graph.Node, error) {
	g, err := h.store.Load(triad)
	if err != nil {
		return nil, fmt.Errorf("load graph for triad %q: %w", triad, err)
	}

	node := g.FindNode(nodeID)
	if node == nil {
		return nil, fmt.Errorf("node %q not found in triad %q", nodeID, triad)
	}

	now := time.Now().UTC()
	switch outcome {
	case OutcomeSuccess:
		node.SuccessCount++
	case OutcomeFailure:
		node.FailureCount++
	case OutcomeConfirmation:
		node.ConfirmationCount++
	case OutcomeContradiction:
		node.ContradictionCount++
	default:
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
	node.LastOutcome = outcome
	node.OutcomeHistory = append(node.OutcomeHistory, graph.OutcomeRecord{
		Outcome:   outcome,
		Timestamp: now,
	})
	if len(node.OutcomeHistory) > outcomeHistoryLimit {
		node.OutcomeHistory = node.OutcomeHistory[len(node.OutcomeHistory)-outcomeHistoryLimit:]
	}

	if node.Status != graph.StatusDeprecated &&
		node.FailureCount >= deprecationFailureFloor &&
		node.FailureCount > 2*node.SuccessCount {
		node.Status = graph.StatusDeprecated
		node.DeprecatedAt = &now
		node.DeprecatedReason = fmt.Sprintf("%d failures against %d successes", node.FailureCount, node.SuccessCount)
		h.logger.Info("process knowledge deprecated",
			"triad", triad, "node_id", nodeID, "reason", node.DeprecatedReason)
	}

	node.UpdatedAt = now
	g.Touch()

	if err := h.store.Save(triad, g); err != nil {
		return nil, fmt.Errorf("save graph for triad %q: %w", triad, err)
	}
	return node, nil
}

// RecordInjection bumps a node's injection counter. Best effort: the
// caller treats errors as non-fatal.
func (h *Handler) RecordInjection(triad string, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	g, err := h.store.Load(triad)
	if err != nil {
		return fmt.Errorf("load graph for triad %q: %w", triad, err)
	}
	touched := false
	for _, id := range nodeIDs {
		if node := g.FindNode(id); node != nil {
			node.InjectionCount++
			touched = true
		}
	}
	if !touched {
		return nil
	}
	g.Touch()
	if err := h.store.Save(triad, g); err != nil {
		return fmt.Errorf("save graph for triad %q: %w", triad, err)
	}
	return nil
}
