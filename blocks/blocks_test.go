package blocks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAgentOutput = `
I analyzed the auth flow and recorded my findings.

[GRAPH_UPDATE]
type: add_node
node_id: node_001
node_type: Finding
label: Token refresh races under load
confidence: 0.85
evidence: reproduced in stress test
tags: ["auth", "concurrency"]
[/GRAPH_UPDATE]

Some narration between blocks.

[GRAPH_UPDATE]
type: add_edge
source: node_001
target: node_002
key: motivates
rationale: the race motivates the redesign
[/GRAPH_UPDATE]

[PRE_FLIGHT_CHECK]
node_id: node_001
verification_status: PASSED
checklist_items:
  - evidence_attached: ✅ stress test logs linked
  - confidence_justified: ✅
  - duplicates_checked: ❌ did not search graph
[/PRE_FLIGHT_CHECK]

## Key Findings
- Token refresh has a race condition
- Sessions leak on logout
  when the timeout fires first

## Decisions
1. Serialize refresh per session
2) Add logout sweep

## Open Questions
* Should we rotate keys too?

## Recommendations
- Add a regression test
`

func TestExtractGraphUpdates(t *testing.T) {
	updates := ExtractGraphUpdates(sampleAgentOutput)
	require.Len(t, updates, 2)

	first := updates[0]
	assert.Equal(t, UpdateAddNode, first.Kind)
	assert.Equal(t, "node_001", first.NodeID)
	assert.Equal(t, "Token refresh races under load", first.Fields["label"])
	conf, ok := first.Confidence()
	require.True(t, ok)
	assert.InDelta(t, 0.85, conf, 1e-9)
	assert.Equal(t, []string{"auth", "concurrency"}, first.StringList("tags"))

	second := updates[1]
	assert.Equal(t, UpdateAddEdge, second.Kind)
	assert.Equal(t, "node_001", second.Source)
	assert.Equal(t, "node_002", second.Target)
	assert.Equal(t, "motivates", second.Key)
}

func TestExtractGraphUpdatesMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty text", "", 0},
		{"no blocks", "just prose, nothing tagged", 0},
		{"unclosed block", "[GRAPH_UPDATE]\ntype: add_node\nnode_id: x", 0},
		{"block missing type", "[GRAPH_UPDATE]\nnode_id: x\n[/GRAPH_UPDATE]", 0},
		{"case-insensitive tags", "[graph_update]\ntype: add_node\nnode_id: x\nlabel: X\n[/graph_update]", 1},
		{
			"malformed block skipped, valid kept",
			"[GRAPH_UPDATE]\nnothing here\n[/GRAPH_UPDATE]\n[GRAPH_UPDATE]\ntype: add_node\nnode_id: ok\nlabel: OK\n[/GRAPH_UPDATE]",
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractGraphUpdates(tt.text)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestExtractorBoundedByOpeningTags(t *testing.T) {
	text := strings.Repeat("[GRAPH_UPDATE]\ntype: add_node\nnode_id: n\nlabel: L\n[/GRAPH_UPDATE]\n", 4)
	openings := strings.Count(text, "[GRAPH_UPDATE]")
	got := ExtractGraphUpdates(text)
	assert.LessOrEqual(t, len(got), openings)
	assert.Len(t, got, 4)
}

func TestExtractPreFlightChecks(t *testing.T) {
	checks := ExtractPreFlightChecks(sampleAgentOutput)
	require.Len(t, checks, 1)

	check := checks[0]
	assert.Equal(t, "node_001", check.NodeID)
	assert.True(t, check.Passed())

	require.Len(t, check.ChecklistItems, 3)
	assert.Equal(t, CheckPass, check.ChecklistItems["evidence_attached"].Status)
	assert.Equal(t, "stress test logs linked", check.ChecklistItems["evidence_attached"].Detail)
	assert.Equal(t, CheckFail, check.ChecklistItems["duplicates_checked"].Status)
	assert.Equal(t, []string{"duplicates_checked"}, check.FailedItems())
}

func TestExtractProcessKnowledge(t *testing.T) {
	text := `
[PROCESS_KNOWLEDGE]
type: Concept
label: Always bump the plugin version
priority: critical
process_type: Checklist
trigger_conditions:
  tool_names: ["Write", "Edit"]
  file_patterns: ["**/plugin.json", ".claude-plugin/plugin.json"]
  action_keywords: release, publish
checklist:
  - item: bump version field (required: true) (file: plugin.json)
  - update the changelog
  - item: tag the release (required: false)
[/PROCESS_KNOWLEDGE]
`
	got := ExtractProcessKnowledge(text)
	require.Len(t, got, 1)

	pk := got[0]
	assert.Equal(t, "Always bump the plugin version", pk.Label)
	assert.Equal(t, "CRITICAL", pk.Priority)
	assert.Equal(t, "checklist", pk.ProcessType)
	assert.Equal(t, []string{"Write", "Edit"}, pk.TriggerToolNames)
	assert.Equal(t, []string{"**/plugin.json", ".claude-plugin/plugin.json"}, pk.TriggerFilePatterns)
	assert.Equal(t, []string{"release", "publish"}, pk.TriggerActionKeywords)

	require.Len(t, pk.Checklist, 3)
	assert.Equal(t, "bump version field", pk.Checklist[0].Item)
	assert.True(t, pk.Checklist[0].Required)
	assert.Equal(t, "plugin.json", pk.Checklist[0].File)
	assert.Equal(t, "update the changelog", pk.Checklist[1].Item)
	assert.False(t, pk.Checklist[1].Required)
	assert.Equal(t, "tag the release", pk.Checklist[2].Item)
	assert.False(t, pk.Checklist[2].Required)
}

func TestExtractHITL(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantFound  bool
		wantPrompt string
	}{
		{
			name:       "well-formed block",
			text:       "before\n[HITL_REQUIRED]\nApprove the schema migration?\n[/HITL_REQUIRED]\nafter",
			wantFound:  true,
			wantPrompt: "Approve the schema migration?",
		},
		{
			name:       "unclosed block up to blank line",
			text:       "[HITL_REQUIRED]\nNeed a human decision on pricing\nbefore we proceed\n\nunrelated text",
			wantFound:  true,
			wantPrompt: "Need a human decision on pricing\nbefore we proceed",
		},
		{
			name:      "absent",
			text:      "nothing to see",
			wantFound: false,
		},
		{
			name:      "empty text",
			text:      "",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, found := ExtractHITL(tt.text)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantPrompt, prompt)
		})
	}
}

func TestExtractSections(t *testing.T) {
	sections := ExtractSections(sampleAgentOutput)

	assert.Equal(t, []string{
		"Token refresh has a race condition",
		"Sessions leak on logout when the timeout fires first",
	}, sections.KeyFindings)
	assert.Equal(t, []string{"Serialize refresh per session", "Add logout sweep"}, sections.Decisions)
	assert.Equal(t, []string{"Should we rotate keys too?"}, sections.OpenQuestions)
	assert.Equal(t, []string{"Add a regression test"}, sections.Recommendations)
}

func TestExtractSectionsEmpty(t *testing.T) {
	assert.True(t, ExtractSections("").Empty())
	assert.True(t, ExtractSections("no headings here\n- stray bullet").Empty())
}

func TestAgentContextRoundTrip(t *testing.T) {
	ctx := AgentContext{
		From:             "design-reviewer",
		To:               "implementation-lead",
		GraphUpdateCount: 3,
		Sections: Sections{
			KeyFindings:     []string{"The cache is the bottleneck"},
			Decisions:       []string{"Use write-through caching"},
			OpenQuestions:   []string{"What TTL is safe?"},
			Recommendations: []string{"Benchmark with production traffic"},
		},
	}

	parsed, found := ParseAgentContext(ctx.Format())
	require.True(t, found)
	assert.Equal(t, ctx.From, parsed.From)
	assert.Equal(t, ctx.To, parsed.To)
	assert.Equal(t, ctx.GraphUpdateCount, parsed.GraphUpdateCount)
	assert.Equal(t, ctx.Sections, parsed.Sections)
}

func TestExtractDeterministic(t *testing.T) {
	first := ExtractGraphUpdates(sampleAgentOutput)
	second := ExtractGraphUpdates(sampleAgentOutput)
	assert.Equal(t, first, second)
}
