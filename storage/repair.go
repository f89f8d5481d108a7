package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/triadworks/triads/graph"
)

// CheckResult reports the health of one triad's graph file.
type CheckResult struct {
	Triad      string                 `json:"triad"`
	Exists     bool                   `json:"exists"`
	Corrupt    bool                   `json:"corrupt"`
	CorruptErr string                 `json:"corrupt_error,omitempty"`
	Validation graph.ValidationResult `json:"validation"`
}

// Healthy reports whether the graph is present-or-absent and valid.
func (c CheckResult) Healthy() bool {
	return !c.Corrupt && c.Validation.Valid
}

// Check validates a triad's on-disk graph without modifying it.
func (s *Store) Check(triad string) (CheckResult, error) {
	if err := validateTriad(triad); err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{Triad: triad, Validation: graph.ValidationResult{Valid: true}}

	data, err := os.ReadFile(s.GraphPath(triad))
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, storageErr("read", s.GraphPath(triad), err)
	}
	result.Exists = true

	g, err := decodeGraph(data)
	if err != nil {
		result.Corrupt = true
		result.CorruptErr = err.Error()
		result.Validation.Valid = false
		return result, nil
	}

	result.Validation = g.Validate()
	return result, nil
}

// CheckAll validates every graph in the store directory.
func (s *Store) CheckAll() ([]CheckResult, error) {
	triads, err := s.Triads()
	if err != nil {
		return nil, err
	}
	results := make([]CheckResult, 0, len(triads))
	for _, triad := range triads {
		r, err := s.Check(triad)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// RepairResult reports the actions a repair pass took.
type RepairResult struct {
	Triad        string   `json:"triad"`
	Repaired     bool     `json:"repaired"`
	DroppedNodes int      `json:"dropped_nodes"`
	DroppedEdges int      `json:"dropped_edges"`
	Actions      []string `json:"actions,omitempty"`
}

// Repair fixes a triad's graph in place, best-effort: nodes missing required
// fields are dropped, edges with unresolvable endpoints are dropped, and the
// meta counters are rewritten. A graph that cannot be parsed at all is not
// repairable here; restore from backup instead.
func (s *Store) Repair(triad string) (RepairResult, error) {
	if err := validateTriad(triad); err != nil {
		return RepairResult{}, err
	}

	result := RepairResult{Triad: triad}

	data, err := os.ReadFile(s.GraphPath(triad))
	if err != nil {
		if os.IsNotExist(err) {
			result.Actions = append(result.Actions, "no graph file; nothing to repair")
			return result, nil
		}
		return result, storageErr("read", s.GraphPath(triad), err)
	}

	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return result, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	repaired := repairGraph(&g, &result)
	if !repaired {
		result.Actions = append(result.Actions, "graph already valid")
		return result, nil
	}

	if err := s.Save(triad, &g); err != nil {
		return result, err
	}
	result.Repaired = true
	return result, nil
}

// repairGraph mutates g into a valid graph, recording actions. Returns true
// when anything changed.
func repairGraph(g *graph.Graph, result *RepairResult) bool {
	changed := false

	if !g.Directed {
		g.Directed = true
		result.Actions = append(result.Actions, "set directed=true")
		changed = true
	}

	// Drop nodes missing required fields or repeating an id.
	kept := g.Nodes[:0]
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		switch {
		case n.ID == "" || n.Label == "" || n.Type == "":
			result.DroppedNodes++
			result.Actions = append(result.Actions,
				fmt.Sprintf("dropped node %q: missing required fields", n.ID))
			changed = true
		case !graph.AllowedNodeTypes[n.Type]:
			result.DroppedNodes++
			result.Actions = append(result.Actions,
				fmt.Sprintf("dropped node %q: unknown type %q", n.ID, n.Type))
			changed = true
		case seen[n.ID]:
			result.DroppedNodes++
			result.Actions = append(result.Actions,
				fmt.Sprintf("dropped node %q: duplicate id", n.ID))
			changed = true
		default:
			if n.Confidence < 0 {
				n.Confidence = 0
				result.Actions = append(result.Actions,
					fmt.Sprintf("clamped node %q confidence to 0", n.ID))
				changed = true
			} else if n.Confidence > 1 {
				n.Confidence = 1
				result.Actions = append(result.Actions,
					fmt.Sprintf("clamped node %q confidence to 1", n.ID))
				changed = true
			}
			seen[n.ID] = true
			kept = append(kept, n)
		}
	}
	g.Nodes = kept

	// Drop edges whose endpoints no longer exist or that repeat a triple.
	keptLinks := g.Links[:0]
	triples := make(map[string]bool, len(g.Links))
	for _, l := range g.Links {
		triple := l.Source + "\x00" + l.Target + "\x00" + l.Key
		switch {
		case !seen[l.Source] || !seen[l.Target]:
			result.DroppedEdges++
			result.Actions = append(result.Actions,
				fmt.Sprintf("dropped edge (%s, %s, %s): unresolvable endpoint", l.Source, l.Target, l.Key))
			changed = true
		case triples[triple]:
			result.DroppedEdges++
			result.Actions = append(result.Actions,
				fmt.Sprintf("dropped edge (%s, %s, %s): duplicate", l.Source, l.Target, l.Key))
			changed = true
		default:
			triples[triple] = true
			keptLinks = append(keptLinks, l)
		}
	}
	g.Links = keptLinks

	if g.Meta.NodeCount != len(g.Nodes) || g.Meta.EdgeCount != len(g.Links) {
		result.Actions = append(result.Actions, "rewrote meta counters")
		changed = true
	}
	g.Touch()

	return changed
}
