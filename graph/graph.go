// Package graph defines the per-triad knowledge graph model: a directed
// multigraph of typed nodes and keyed links with file-level metadata.
// Persistence lives in the storage package; this package owns the shape
// and the invariants.
package graph

import (
	"time"
)

// NodeType classifies a graph node.
type NodeType string

const (
	NodeTypeEntity      NodeType = "Entity"
	NodeTypeFinding     NodeType = "Finding"
	NodeTypeConcept     NodeType = "Concept"
	NodeTypeUncertainty NodeType = "Uncertainty"
	NodeTypeDecision    NodeType = "Decision"
	NodeTypeRisk        NodeType = "Risk"
	NodeTypeAction      NodeType = "Action"
)

// AllowedNodeTypes is the set of node types accepted by validation.
var AllowedNodeTypes = map[NodeType]bool{
	NodeTypeEntity:      true,
	NodeTypeFinding:     true,
	NodeTypeConcept:     true,
	NodeTypeUncertainty: true,
	NodeTypeDecision:    true,
	NodeTypeRisk:        true,
	NodeTypeAction:      true,
}

// Priority ranks a node's importance for interjection decisions.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// ValidPriority reports whether p is one of the recognized priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// NodeStatus tracks a node's lifecycle.
type NodeStatus string

const (
	StatusActive          NodeStatus = "active"
	StatusNeedsValidation NodeStatus = "needs_validation"
	StatusDeprecated      NodeStatus = "deprecated"
)

// ProcessType classifies a ProcessKnowledge node.
type ProcessType string

const (
	ProcessTypeChecklist   ProcessType = "checklist"
	ProcessTypePattern     ProcessType = "pattern"
	ProcessTypeWarning     ProcessType = "warning"
	ProcessTypeRequirement ProcessType = "requirement"
)

// TriggerConditions describe when a ProcessKnowledge node matches a pending
// tool call. Empty lists never match (wildcard-none).
type TriggerConditions struct {
	ToolNames       []string `json:"tool_names,omitempty"`
	FilePatterns    []string `json:"file_patterns,omitempty"`
	ActionKeywords  []string `json:"action_keywords,omitempty"`
	ContextKeywords []string `json:"context_keywords,omitempty"`
	TriadNames      []string `json:"triad_names,omitempty"`
}

// Empty reports whether no trigger list has any entries.
func (tc *TriggerConditions) Empty() bool {
	if tc == nil {
		return true
	}
	return len(tc.ToolNames) == 0 && len(tc.FilePatterns) == 0 &&
		len(tc.ActionKeywords) == 0 && len(tc.ContextKeywords) == 0 &&
		len(tc.TriadNames) == 0
}

// ChecklistItem is one entry of a checklist-type ProcessKnowledge node.
type ChecklistItem struct {
	Item     string `json:"item"`
	Required bool   `json:"required"`
	File     string `json:"file,omitempty"`
}

// OutcomeRecord is one entry of a node's outcome history.
type OutcomeRecord struct {
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Node is a graph node. ProcessKnowledge nodes (type Concept with a
// process_type) carry the trigger, checklist and outcome-tracking fields;
// plain nodes leave them zero.
type Node struct {
	ID          string     `json:"id"`
	Type        NodeType   `json:"type"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
	Confidence  float64    `json:"confidence"`
	Evidence    string     `json:"evidence,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Priority    Priority   `json:"priority,omitempty"`
	Status      NodeStatus `json:"status,omitempty"`

	// ProcessKnowledge fields.
	ProcessType       ProcessType        `json:"process_type,omitempty"`
	Source            string             `json:"source,omitempty"`
	RepetitionCount   int                `json:"repetition_count,omitempty"`
	TriggerConditions *TriggerConditions `json:"trigger_conditions,omitempty"`
	Checklist         []ChecklistItem    `json:"checklist,omitempty"`

	// Outcome tracking, updated by external feedback signals.
	SuccessCount       int             `json:"success_count,omitempty"`
	FailureCount       int             `json:"failure_count,omitempty"`
	ConfirmationCount  int             `json:"confirmation_count,omitempty"`
	ContradictionCount int             `json:"contradiction_count,omitempty"`
	InjectionCount     int             `json:"injection_count,omitempty"`
	LastOutcome        string          `json:"last_outcome,omitempty"`
	OutcomeHistory     []OutcomeRecord `json:"outcome_history,omitempty"`
	DeprecatedAt       *time.Time      `json:"deprecated_at,omitempty"`
	DeprecatedReason   string          `json:"deprecated_reason,omitempty"`

	// Extra retains fields from updates that have no typed home.
	Extra map[string]any `json:"extra,omitempty"`
}

// IsProcessKnowledge reports whether the node carries learned process
// knowledge usable by the pre-tool hook.
func (n *Node) IsProcessKnowledge() bool {
	return n.Type == NodeTypeConcept && n.ProcessType != ""
}

// Link is a directed, keyed edge. (Source, Target, Key) is unique within a
// graph.
type Link struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Key       string    `json:"key"`
	Rationale string    `json:"rationale,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Meta is the graph's file-level metadata block.
type Meta struct {
	TriadName string    `json:"triad_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
}

// Graph is a directed multigraph for one triad.
type Graph struct {
	Directed bool   `json:"directed"`
	Nodes    []Node `json:"nodes"`
	Links    []Link `json:"links"`
	Meta     Meta   `json:"_meta"`
}

// New returns an empty graph for the given triad.
func New(triad string) *Graph {
	now := time.Now().UTC()
	return &Graph{
		Directed: true,
		Nodes:    []Node{},
		Links:    []Link{},
		Meta: Meta{
			TriadName: triad,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// FindNode returns a pointer to the node with the given id, or nil.
func (g *Graph) FindNode(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	return g.FindNode(id) != nil
}

// FindLink returns a pointer to the link matching (source, target, key), or nil.
func (g *Graph) FindLink(source, target, key string) *Link {
	for i := range g.Links {
		l := &g.Links[i]
		if l.Source == source && l.Target == target && l.Key == key {
			return l
		}
	}
	return nil
}

// AddNode appends a node. It returns false if a node with the same id
// already exists.
func (g *Graph) AddNode(n Node) bool {
	if g.HasNode(n.ID) {
		return false
	}
	g.Nodes = append(g.Nodes, n)
	g.Touch()
	return true
}

// AddLink appends a link. It returns false if the (source, target, key)
// triple already exists.
func (g *Graph) AddLink(l Link) bool {
	if g.FindLink(l.Source, l.Target, l.Key) != nil {
		return false
	}
	g.Links = append(g.Links, l)
	g.Touch()
	return true
}

// ProcessKnowledgeNodes returns the nodes carrying process knowledge,
// excluding deprecated ones.
func (g *Graph) ProcessKnowledgeNodes() []*Node {
	var out []*Node
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.IsProcessKnowledge() && n.Status != StatusDeprecated {
			out = append(out, n)
		}
	}
	return out
}

// Touch refreshes the meta counters and update timestamp. Called before
// every save so the counters hold at rest.
func (g *Graph) Touch() {
	g.Meta.NodeCount = len(g.Nodes)
	g.Meta.EdgeCount = len(g.Links)
	g.Meta.UpdatedAt = time.Now().UTC()
}
