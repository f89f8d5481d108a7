package graph

import (
	"fmt"
)

// ValidationIssue describes one problem found during validation.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationResult is the outcome of validating a graph.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Check validates one node in isolation, mirroring the per-node rules
// Validate enforces for the whole graph.
func (n Node) Check() error {
	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if n.Type == "" {
		return fmt.Errorf("node %q: type is required", n.ID)
	}
	if !AllowedNodeTypes[n.Type] {
		return fmt.Errorf("node %q: unknown type %q", n.ID, n.Type)
	}
	if n.Label == "" {
		return fmt.Errorf("node %q: label is required", n.ID)
	}
	if n.Confidence < 0 || n.Confidence > 1 {
		return fmt.Errorf("node %q: confidence %v out of range [0,1]", n.ID, n.Confidence)
	}
	if n.Priority != "" && !ValidPriority(n.Priority) {
		return fmt.Errorf("node %q: unknown priority %q", n.ID, n.Priority)
	}
	return nil
}

// Validate checks the schema and invariants the store enforces before any
// write: required node fields, allowed types, confidence range, resolvable
// edge endpoints, unique node ids and link triples, and meta counters.
func (g *Graph) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			result.add(field+".id", "node id is required")
			continue
		}
		if seen[n.ID] {
			result.add(field+".id", "duplicate node id %q", n.ID)
		}
		seen[n.ID] = true

		if n.Type == "" {
			result.add(field+".type", "node %q: type is required", n.ID)
		} else if !AllowedNodeTypes[n.Type] {
			result.add(field+".type", "node %q: unknown type %q", n.ID, n.Type)
		}
		if n.Label == "" {
			result.add(field+".label", "node %q: label is required", n.ID)
		}
		if n.Confidence < 0 || n.Confidence > 1 {
			result.add(field+".confidence", "node %q: confidence %v out of range [0,1]", n.ID, n.Confidence)
		}
		if n.Priority != "" && !ValidPriority(n.Priority) {
			result.add(field+".priority", "node %q: unknown priority %q", n.ID, n.Priority)
		}
	}

	triples := make(map[string]bool, len(g.Links))
	for i, l := range g.Links {
		field := fmt.Sprintf("links[%d]", i)
		if l.Source == "" || l.Target == "" {
			result.add(field, "link endpoints are required")
			continue
		}
		if !seen[l.Source] {
			result.add(field+".source", "link source %q does not resolve to a node", l.Source)
		}
		if !seen[l.Target] {
			result.add(field+".target", "link target %q does not resolve to a node", l.Target)
		}
		triple := l.Source + "\x00" + l.Target + "\x00" + l.Key
		if triples[triple] {
			result.add(field, "duplicate link (%s, %s, %s)", l.Source, l.Target, l.Key)
		}
		triples[triple] = true
	}

	if g.Meta.NodeCount != len(g.Nodes) {
		result.add("_meta.node_count", "node_count %d != len(nodes) %d", g.Meta.NodeCount, len(g.Nodes))
	}
	if g.Meta.EdgeCount != len(g.Links) {
		result.add("_meta.edge_count", "edge_count %d != len(links) %d", g.Meta.EdgeCount, len(g.Links))
	}

	return result
}
