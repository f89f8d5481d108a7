package blocks

import (
	"encoding/json"
	"strconv"
	"strings"
)

// UpdateKind discriminates the graph update variants.
type UpdateKind string

const (
	UpdateAddNode    UpdateKind = "add_node"
	UpdateUpdateNode UpdateKind = "update_node"
	UpdateAddEdge    UpdateKind = "add_edge"
	UpdateUpdateEdge UpdateKind = "update_edge"
)

// knownUpdateKinds is the accepted set; blocks with any other type are
// kept with their raw kind so the knowledge handler can log and skip them.
var knownUpdateKinds = map[UpdateKind]bool{
	UpdateAddNode:    true,
	UpdateUpdateNode: true,
	UpdateAddEdge:    true,
	UpdateUpdateEdge: true,
}

// GraphUpdate is one parsed [GRAPH_UPDATE] block. Node updates carry
// NodeID; edge updates carry Source/Target/Key. Fields holds every other
// key-value pair from the block with JSON arrays decoded and confidence
// coerced to float64.
type GraphUpdate struct {
	Kind   UpdateKind
	NodeID string
	Source string
	Target string
	Key    string
	Triad  string
	Fields map[string]any
}

// KnownKind reports whether the update's kind is one of the four variants.
func (u *GraphUpdate) KnownKind() bool {
	return knownUpdateKinds[u.Kind]
}

// Confidence returns the parsed confidence field, if present and numeric.
func (u *GraphUpdate) Confidence() (float64, bool) {
	v, ok := u.Fields["confidence"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// ExtractGraphUpdates parses every [GRAPH_UPDATE] block in text. Blocks
// without a type line are skipped.
func ExtractGraphUpdates(text string) []GraphUpdate {
	var updates []GraphUpdate
	for _, raw := range rawBlocks(text, TagGraphUpdate) {
		if u, ok := parseGraphUpdate(raw); ok {
			updates = append(updates, u)
		}
	}
	return updates
}

func parseGraphUpdate(raw string) (GraphUpdate, bool) {
	u := GraphUpdate{Fields: map[string]any{}}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		key, value, ok := parseKeyValue(trimmed)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "type":
			u.Kind = UpdateKind(strings.ToLower(value))
		case "node_id", "id":
			u.NodeID = value
		case "source":
			u.Source = value
		case "target":
			u.Target = value
		case "key", "edge_type":
			u.Key = value
		case "triad":
			u.Triad = value
		default:
			u.Fields[strings.ToLower(key)] = coerceValue(strings.ToLower(key), value)
		}
	}

	if u.Kind == "" {
		return GraphUpdate{}, false
	}
	return u, true
}

// coerceValue interprets a raw value: JSON arrays are decoded when the
// value starts with "[", confidence is coerced to float, booleans to bool.
func coerceValue(key, value string) any {
	if strings.HasPrefix(value, "[") {
		var list []any
		if err := json.Unmarshal([]byte(value), &list); err == nil {
			return list
		}
		// Not valid JSON; keep the raw string.
		return value
	}

	if key == "confidence" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return value
	}

	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	return value
}

// StringList returns a field decoded as a list of strings, accepting both
// JSON arrays and comma-separated values.
func (u *GraphUpdate) StringList(key string) []string {
	v, ok := u.Fields[key]
	if !ok {
		return nil
	}
	return toStringList(v)
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return nil
}
