// Package knowledge applies extracted graph updates to triad graphs and
// turns conversations into ProcessKnowledge nodes: explicit blocks, user
// corrections, and repeated mistakes.
package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/triadworks/triads/agents"
	"github.com/triadworks/triads/blocks"
	"github.com/triadworks/triads/graph"
	"github.com/triadworks/triads/storage"
)

// Quality-gate violation types.
const (
	ViolationMissingPreFlight  = "missing_pre_flight_check"
	ViolationNotPassed         = "verification_not_passed"
	ViolationMissingRequired   = "missing_required_item"
	ViolationPassedWithFailure = "passed_but_items_failed"
)

// requiredCheckItems are the checklist entries every pre-flight check
// must carry.
var requiredCheckItems = []string{"evidence", "confidence"}

// Violation is one quality-gate finding. Violations are reported, not
// enforced; the update is applied regardless.
type Violation struct {
	Type    string `json:"type"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// ApplyResult summarizes one apply-updates run.
type ApplyResult struct {
	Applied    int            `json:"applied"`
	Skipped    int            `json:"skipped"`
	ByTriad    map[string]int `json:"by_triad"`
	Violations []Violation    `json:"violations,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Handler applies graph updates and lessons to the graph store.
type Handler struct {
	store        *storage.Store
	agentsDir    string
	defaultTriad string
	logger       *slog.Logger

	triadIndex map[string]string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAgentsDir enables the created_by agent-to-triad lookup.
func WithAgentsDir(dir string) HandlerOption {
	return func(h *Handler) { h.agentsDir = dir }
}

// WithDefaultTriad sets the fallback triad for unattributable updates.
func WithDefaultTriad(triad string) HandlerOption {
	return func(h *Handler) { h.defaultTriad = triad }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a Handler over a graph store.
func NewHandler(store *storage.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:        store,
		defaultTriad: "general",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ApplyUpdates extracts graph updates from conversation text, runs the
// quality gate, groups updates by triad, applies them, and saves each
// touched graph.
func (h *Handler) ApplyUpdates(text, agentName string) (*ApplyResult, error) {
	updates := blocks.ExtractGraphUpdates(text)
	checks := blocks.ExtractPreFlightChecks(text)

	result := &ApplyResult{ByTriad: map[string]int{}}
	result.Violations = h.qualityGate(updates, checks)

	byTriad := map[string][]blocks.GraphUpdate{}
	for _, u := range updates {
		if !u.KnownKind() {
			warning := fmt.Sprintf("unknown update type %q ignored", u.Kind)
			result.Warnings = append(result.Warnings, warning)
			h.logger.Warn("unknown graph update type", "type", string(u.Kind))
			continue
		}
		triad := h.triadFor(u, agentName)
		byTriad[triad] = append(byTriad[triad], u)
	}

	triads := make([]string, 0, len(byTriad))
	for triad := range byTriad {
		triads = append(triads, triad)
	}
	sort.Strings(triads)

	for _, triad := range triads {
		g, err := h.store.Load(triad)
		if err != nil {
			return nil, fmt.Errorf("load graph for triad %q: %w", triad, err)
		}
		applied, skipped, warnings := h.applyToGraph(g, byTriad[triad], agentName)
		result.Warnings = append(result.Warnings, warnings...)
		if err := h.store.Save(triad, g); err != nil {
			return nil, fmt.Errorf("save graph for triad %q: %w", triad, err)
		}
		result.Applied += applied
		result.Skipped += skipped
		result.ByTriad[triad] += applied
	}
	return result, nil
}

// qualityGate checks each node update against its pre-flight check.
func (h *Handler) qualityGate(updates []blocks.GraphUpdate, checks []blocks.PreFlightCheck) []Violation {
	byNode := map[string]*blocks.PreFlightCheck{}
	for i := range checks {
		byNode[checks[i].NodeID] = &checks[i]
	}

	var violations []Violation
	for _, u := range updates {
		if u.NodeID == "" {
			continue
		}
		check, ok := byNode[u.NodeID]
		if !ok {
			violations = append(violations, Violation{
				Type:    ViolationMissingPreFlight,
				NodeID:  u.NodeID,
				Message: fmt.Sprintf("no pre-flight check for node %q", u.NodeID),
			})
			continue
		}
		if !check.Passed() {
			violations = append(violations, Violation{
				Type:    ViolationNotPassed,
				NodeID:  u.NodeID,
				Message: fmt.Sprintf("verification status %q for node %q", check.VerificationStatus, u.NodeID),
			})
		}
		for _, item := range requiredCheckItems {
			if _, ok := check.ChecklistItems[item]; !ok {
				violations = append(violations, Violation{
					Type:    ViolationMissingRequired,
					NodeID:  u.NodeID,
					Message: fmt.Sprintf("required checklist item %q absent for node %q", item, u.NodeID),
				})
			}
		}
		if failed := check.FailedItems(); check.Passed() && len(failed) > 0 {
			violations = append(violations, Violation{
				Type:    ViolationPassedWithFailure,
				NodeID:  u.NodeID,
				Message: fmt.Sprintf("status PASSED but items failed for node %q: %s", u.NodeID, strings.Join(failed, ", ")),
			})
		}
	}
	return violations
}

// triadFor attributes an update to a triad: explicit field, then the
// created_by agent lookup, then the node-id prefix convention, then the
// default.
func (h *Handler) triadFor(u blocks.GraphUpdate, agentName string) string {
	if u.Triad != "" {
		return u.Triad
	}

	creator := agentName
	if v, ok := u.Fields["created_by"].(string); ok && v != "" {
		creator = v
	}
	if creator != "" {
		if triad := h.lookupAgentTriad(creator); triad != "" {
			return triad
		}
	}

	// Node ids may carry their triad as a "triad:rest" prefix.
	id := u.NodeID
	if id == "" {
		id = u.Source
	}
	if before, _, found := strings.Cut(id, ":"); found && before != "" {
		return before
	}

	return h.defaultTriad
}

func (h *Handler) lookupAgentTriad(agent string) string {
	if h.agentsDir == "" {
		return ""
	}
	if h.triadIndex == nil {
		index, err := agents.TriadIndex(h.agentsDir)
		if err != nil {
			h.logger.Warn("agent triad lookup unavailable", "error", err)
			index = map[string]string{}
		}
		h.triadIndex = index
	}
	return h.triadIndex[agent]
}

// applyToGraph applies one triad's updates in order. Malformed updates
// are dropped with a warning so one bad block never sinks the batch.
func (h *Handler) applyToGraph(g *graph.Graph, updates []blocks.GraphUpdate, agentName string) (applied, skipped int, warnings []string) {
	now := time.Now().UTC()
	for _, u := range updates {
		ok := false
		warn := ""
		switch u.Kind {
		case blocks.UpdateAddNode:
			ok, warn = h.addNode(g, u, agentName, now)
		case blocks.UpdateUpdateNode:
			ok = h.updateNode(g, u, agentName, now)
		case blocks.UpdateAddEdge:
			ok, warn = h.addEdge(g, u, agentName, now)
		case blocks.UpdateUpdateEdge:
			ok = h.updateEdge(g, u, now)
		}
		if warn != "" {
			warnings = append(warnings, warn)
			h.logger.Warn("malformed graph update dropped", "reason", warn)
		}
		if ok {
			applied++
		} else {
			skipped++
		}
	}
	return applied, skipped, warnings
}

func (h *Handler) addNode(g *graph.Graph, u blocks.GraphUpdate, agentName string, now time.Time) (bool, string) {
	if u.NodeID == "" || g.HasNode(u.NodeID) {
		return false, ""
	}
	node := graph.Node{
		ID:        u.NodeID,
		CreatedBy: agentName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mergeNodeFields(&node, u.Fields, true)
	// The store validates the whole graph before writing; a node this
	// update built invalid must never reach it.
	if err := node.Check(); err != nil {
		return false, fmt.Sprintf("add_node %q dropped: %v", u.NodeID, err)
	}
	return g.AddNode(node), ""
}

func (h *Handler) updateNode(g *graph.Graph, u blocks.GraphUpdate, agentName string, now time.Time) bool {
	node := g.FindNode(u.NodeID)
	if node == nil {
		return false
	}
	mergeNodeFields(node, u.Fields, false)
	node.UpdatedBy = agentName
	node.UpdatedAt = now
	g.Touch()
	return true
}

func (h *Handler) addEdge(g *graph.Graph, u blocks.GraphUpdate, agentName string, now time.Time) (bool, string) {
	if u.Source == "" || u.Target == "" {
		return false, ""
	}
	// Same rule as addNode: an edge with a dangling endpoint would fail
	// save-time validation for the whole graph.
	if !g.HasNode(u.Source) || !g.HasNode(u.Target) {
		return false, fmt.Sprintf("add_edge %s -> %s dropped: endpoint does not resolve to a node", u.Source, u.Target)
	}
	link := graph.Link{
		Source:    u.Source,
		Target:    u.Target,
		Key:       u.Key,
		CreatedBy: agentName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mergeLinkFields(&link, u.Fields)
	return g.AddLink(link), ""
}

func (h *Handler) updateEdge(g *graph.Graph, u blocks.GraphUpdate, now time.Time) bool {
	link := g.FindLink(u.Source, u.Target, u.Key)
	if link == nil {
		return false
	}
	mergeLinkFields(link, u.Fields)
	link.UpdatedAt = now
	g.Touch()
	return true
}

// mergeNodeFields copies update fields into the node. Type is only set
// on creation; node_id never moves. Unmatched fields land in Extra.
func mergeNodeFields(node *graph.Node, fields map[string]any, creating bool) {
	for key, value := range fields {
		switch key {
		case "node_type":
			// The update kind owns the "type" key, so blocks carry the
			// node's type as node_type. Only creation may set it.
			if creating {
				if s, ok := value.(string); ok {
					node.Type = graph.NodeType(s)
				}
			}
		case "label":
			if s, ok := value.(string); ok {
				node.Label = s
			}
		case "description":
			if s, ok := value.(string); ok {
				node.Description = s
			}
		case "confidence":
			if f, ok := value.(float64); ok {
				node.Confidence = f
			}
		case "evidence":
			if s, ok := value.(string); ok {
				node.Evidence = s
			}
		case "priority":
			if s, ok := value.(string); ok {
				node.Priority = graph.Priority(strings.ToUpper(s))
			}
		case "status":
			if s, ok := value.(string); ok {
				node.Status = graph.NodeStatus(s)
			}
		case "process_type":
			if s, ok := value.(string); ok {
				node.ProcessType = graph.ProcessType(strings.ToLower(s))
			}
		case "created_by":
			if creating {
				if s, ok := value.(string); ok && s != "" {
					node.CreatedBy = s
				}
			}
		default:
			if node.Extra == nil {
				node.Extra = map[string]any{}
			}
			node.Extra[key] = value
		}
	}
}

func mergeLinkFields(link *graph.Link, fields map[string]any) {
	for key, value := range fields {
		switch key {
		case "rationale":
			if s, ok := value.(string); ok {
				link.Rationale = s
			}
		default:
			if link.Extra == nil {
				link.Extra = map[string]any{}
			}
			link.Extra[key] = value
		}
	}
}
