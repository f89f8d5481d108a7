package blocks

import (
	"fmt"
	"strconv"
	"strings"
)

// AgentContext is the bounded handoff block passed between agents. It is
// both produced (by the handoff pipeline) and consumed (by the next agent's
// prompt assembly), so Format and ParseAgentContext must round-trip.
type AgentContext struct {
	From             string
	To               string
	GraphUpdateCount int
	Sections         Sections
}

// ParseAgentContext parses the first [AGENT_CONTEXT] block in text.
func ParseAgentContext(text string) (AgentContext, bool) {
	inner := rawBlocks(text, TagAgentContext)
	if len(inner) == 0 {
		return AgentContext{}, false
	}

	var ctx AgentContext
	for _, line := range strings.Split(inner[0], "\n") {
		trimmed := strings.TrimSpace(line)
		key, value, ok := parseKeyValue(trimmed)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "from":
			ctx.From = value
		case "to":
			ctx.To = value
		case "graph_updates":
			if n, err := strconv.Atoi(value); err == nil {
				ctx.GraphUpdateCount = n
			}
		}
	}

	ctx.Sections = ExtractSections(inner[0])
	return ctx, true
}

// Format renders the context block. Only extracted bullets are forwarded,
// never raw tool output, which keeps the block bounded by the number and
// length of the bullets.
func (c AgentContext) Format() string {
	var sb strings.Builder
	sb.WriteString("[" + TagAgentContext + "]\n")
	fmt.Fprintf(&sb, "from: %s\n", c.From)
	fmt.Fprintf(&sb, "to: %s\n", c.To)
	fmt.Fprintf(&sb, "graph_updates: %d\n", c.GraphUpdateCount)

	writeSection(&sb, "Key Findings", c.Sections.KeyFindings)
	writeSection(&sb, "Decisions", c.Sections.Decisions)
	writeSection(&sb, "Open Questions", c.Sections.OpenQuestions)
	writeSection(&sb, "Recommendations", c.Sections.Recommendations)

	sb.WriteString("[/" + TagAgentContext + "]")
	return sb.String()
}

func writeSection(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s\n", heading)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}
