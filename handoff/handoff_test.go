package handoff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triads/blocks"
)

const agentOutput = `
I reviewed the design and recorded my findings.

[GRAPH_UPDATE]
type: add_node
node_id: f1
node_type: Finding
label: Navigation is inconsistent
confidence: 0.8
[/GRAPH_UPDATE]

[GRAPH_UPDATE]
type: add_node
node_id: f2
node_type: Finding
label: Color contrast too low
confidence: 0.9
[/GRAPH_UPDATE]

## Key Findings
- Navigation is inconsistent across screens
- Contrast ratio fails WCAG AA on buttons

## Decisions
- Adopt a single tab bar for navigation

## Recommendations
- Re-test contrast after palette change

Here is a giant raw tool dump that must never be forwarded:
$ make test ... 4000 lines ...
`

func TestSummarize(t *testing.T) {
	p := New()
	result := p.Summarize(agentOutput, "design-reviewer", "design-implementer")

	assert.False(t, result.Halt)
	assert.Equal(t, "design-reviewer", result.Context.From)
	assert.Equal(t, "design-implementer", result.Context.To)
	assert.Equal(t, 2, result.Context.GraphUpdateCount)
	assert.Len(t, result.Context.Sections.KeyFindings, 2)
	assert.Len(t, result.Context.Sections.Decisions, 1)
	assert.Len(t, result.Context.Sections.Recommendations, 1)

	// Counts only, never the blocks; bullets only, never raw output.
	assert.NotContains(t, result.Block, "[GRAPH_UPDATE]")
	assert.NotContains(t, result.Block, "make test")
	assert.Contains(t, result.Block, "graph_updates: 2")
	assert.Contains(t, result.Block, "- Adopt a single tab bar for navigation")
}

func TestSummarizeRoundTrips(t *testing.T) {
	p := New()
	result := p.Summarize(agentOutput, "a", "b")

	parsed, ok := blocks.ParseAgentContext(result.Block)
	require.True(t, ok)
	assert.Equal(t, result.Context, parsed)
}

func TestSummarizeHITL(t *testing.T) {
	output := `
Done with analysis.

[HITL_REQUIRED]
Deleting 14 production records. Proceed?
[/HITL_REQUIRED]
`
	result := New().Summarize(output, "a", "b")
	assert.True(t, result.Halt)
	assert.Equal(t, "Deleting 14 production records. Proceed?", result.HITLPrompt)

	// An empty gate still halts, with the default prompt.
	result = New().Summarize("[HITL_REQUIRED][/HITL_REQUIRED]", "a", "b")
	assert.True(t, result.Halt)
	assert.Equal(t, DefaultHITLPrompt, result.HITLPrompt)

	result = New().Summarize("no gate here", "a", "b")
	assert.False(t, result.Halt)
	assert.Empty(t, result.HITLPrompt)
}

func TestSummarizeBoundsSections(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("## Key Findings\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "- finding number %d\n", i)
	}

	result := New().Summarize(sb.String(), "a", "b")
	assert.Len(t, result.Context.Sections.KeyFindings, 10)
}
