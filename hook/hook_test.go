package hook

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triads/graph"
	"github.com/triadworks/triads/knowledge"
	"github.com/triadworks/triads/storage"
)

func seedStore(t *testing.T, nodes ...graph.Node) *storage.Store {
	t.Helper()
	store := storage.NewStore(t.TempDir())
	g, err := store.Load("deployment")
	require.NoError(t, err)
	for _, n := range nodes {
		require.True(t, g.AddNode(n))
	}
	require.NoError(t, store.Save("deployment", g))
	return store
}

func versionChecklistNode(confidence float64) graph.Node {
	return graph.Node{
		ID:          "pk-bump-version",
		Type:        graph.NodeTypeConcept,
		Label:       "Bump the plugin version before release",
		Description: "Releases with a stale version break the update check.",
		Confidence:  confidence,
		Priority:    graph.PriorityCritical,
		Status:      graph.StatusActive,
		ProcessType: graph.ProcessTypeChecklist,
		TriggerConditions: &graph.TriggerConditions{
			ToolNames:    []string{"Write", "Edit"},
			FilePatterns: []string{"**/plugin.json"},
		},
		Checklist: []graph.ChecklistItem{
			{Item: "version field updated", Required: true, File: "plugin.json"},
			{Item: "changelog entry added", Required: false, File: "CHANGELOG.md"},
		},
	}
}

func writeInput(path string) *Input {
	return &Input{
		ToolName:  "Write",
		ToolInput: map[string]any{"file_path": path},
	}
}

func TestDecideEarlyExits(t *testing.T) {
	store := seedStore(t, versionChecklistNode(0.9))
	e := NewEngine(store)

	// Read-only tools are never intercepted.
	out := e.Decide(&Input{ToolName: "Read", ToolInput: map[string]any{"file_path": "plugin.json"}}, "deployment")
	assert.Equal(t, ActionNoop, out.Action)
	assert.Equal(t, ExitAllow, out.ExitCode())

	// No active triad: nothing to consult.
	out = e.Decide(writeInput("plugin.json"), "")
	assert.Equal(t, ActionNoop, out.Action)

	// Disabled engine never answers.
	off := NewEngine(store, WithDisabled(true))
	out = off.Decide(writeInput("plugin.json"), "deployment")
	assert.Equal(t, ActionNoop, out.Action)
}

func TestDecideBashSafety(t *testing.T) {
	store := seedStore(t, func() graph.Node {
		n := versionChecklistNode(0.99)
		n.TriggerConditions = &graph.TriggerConditions{ActionKeywords: []string{"commit"}}
		return n
	}())
	e := NewEngine(store)

	bash := func(cmd string) *Input {
		return &Input{ToolName: "Bash", ToolInput: map[string]any{"command": cmd}}
	}

	// Recognized-safe and unknown commands never block.
	assert.Equal(t, ActionNoop, e.Decide(bash("git status"), "deployment").Action)
	assert.Equal(t, ActionNoop, e.Decide(bash("ls -la"), "deployment").Action)
	assert.Equal(t, ActionNoop, e.Decide(bash("terraform plan"), "deployment").Action)

	// Risky command with a keyword match reaches the decision stage.
	out := e.Decide(bash("git commit -m 'release'"), "deployment")
	assert.Equal(t, ActionBlock, out.Action)
	assert.Equal(t, ExitBlock, out.ExitCode())
}

func TestBashIsRisky(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"git status", false},
		{"git diff --stat", false},
		{"cat go.mod", false},
		{"git commit -m x", true},
		{"git push origin main", true},
		{"rm -rf build", true},
		{"npm publish", true},
		{"go build ./...", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bashIsRisky(tt.cmd), tt.cmd)
	}
}

func TestDecideBlocksForVersionFile(t *testing.T) {
	store := seedStore(t, versionChecklistNode(0.9))
	e := NewEngine(store)

	out := e.Decide(writeInput(".claude-plugin/plugin.json"), "deployment")
	require.Equal(t, ActionBlock, out.Action)
	assert.Contains(t, out.Message, "Hold on")
	assert.Contains(t, out.Message, "remind you")
	assert.Contains(t, out.Message, "Bump the plugin version before release")
	assert.Contains(t, out.Message, "version field updated (required)")
	assert.Contains(t, out.Message, "plugin.json")
	assert.Equal(t, []string{"pk-bump-version"}, out.MatchedNodeIDs)
}

func TestDecideInjectsBelowBlockBar(t *testing.T) {
	// Confidence under 0.85: matched, but not block-worthy.
	store := seedStore(t, versionChecklistNode(0.80))
	e := NewEngine(store)

	out := e.Decide(writeInput("plugin.json"), "deployment")
	require.Equal(t, ActionInject, out.Action)
	assert.Equal(t, ExitAllow, out.ExitCode())
	assert.Contains(t, out.Context, "Bump the plugin version before release")

	payload, err := out.InjectionPayload()
	require.NoError(t, err)
	assert.Contains(t, payload, `"additionalContext"`)
}

func TestDecideBlocksForVeryHighConfidence(t *testing.T) {
	node := versionChecklistNode(0.96)
	node.ProcessType = graph.ProcessTypeWarning
	node.Checklist = nil
	// No version file involved; confidence alone crosses the bar.
	node.TriggerConditions = &graph.TriggerConditions{ToolNames: []string{"Write"}}
	store := seedStore(t, node)
	e := NewEngine(store)

	out := e.Decide(writeInput("main.go"), "deployment")
	assert.Equal(t, ActionBlock, out.Action)
}

func TestDecideNoBlockDowngrades(t *testing.T) {
	store := seedStore(t, versionChecklistNode(0.9))
	e := NewEngine(store, WithNoBlock(true))

	out := e.Decide(writeInput("plugin.json"), "deployment")
	assert.Equal(t, ActionInject, out.Action)
	assert.Equal(t, ExitAllow, out.ExitCode())
}

func TestDecideEmptyTriggersNeverMatch(t *testing.T) {
	node := versionChecklistNode(0.99)
	node.TriggerConditions = &graph.TriggerConditions{}
	store := seedStore(t, node)
	e := NewEngine(store)

	out := e.Decide(writeInput("plugin.json"), "deployment")
	assert.Equal(t, ActionNoop, out.Action)
}

func TestDecideDeprecatedNodesIgnored(t *testing.T) {
	node := versionChecklistNode(0.99)
	node.Status = graph.StatusDeprecated
	store := seedStore(t, node)
	e := NewEngine(store)

	out := e.Decide(writeInput("plugin.json"), "deployment")
	assert.Equal(t, ActionNoop, out.Action)
}

func TestDecideRecordsInjections(t *testing.T) {
	store := seedStore(t, versionChecklistNode(0.80))
	handler := knowledge.NewHandler(store)
	e := NewEngine(store, WithInjectionRecorder(handler))

	out := e.Decide(writeInput("plugin.json"), "deployment")
	require.Equal(t, ActionInject, out.Action)

	g, err := store.Load("deployment")
	require.NoError(t, err)
	assert.Equal(t, 1, g.FindNode("pk-bump-version").InjectionCount)
}

func TestDecideBudgetExceeded(t *testing.T) {
	store := seedStore(t, versionChecklistNode(0.9))

	calls := 0
	base := time.Now()
	e := NewEngine(store, WithClock(func() time.Time {
		calls++
		// Every later reading is far past the budget.
		return base.Add(time.Duration(calls-1) * time.Second)
	}))

	out := e.Decide(writeInput("plugin.json"), "deployment")
	assert.Equal(t, ActionNoop, out.Action)
}

func TestReadInput(t *testing.T) {
	in, err := ReadInput(strings.NewReader(`{"tool_name":"Write","tool_input":{"file_path":"a.go"},"cwd":"/repo"}`))
	require.NoError(t, err)
	assert.Equal(t, "Write", in.ToolName)
	assert.Equal(t, "a.go", in.FilePath())

	_, err = ReadInput(strings.NewReader(`{"tool_input":{}}`))
	require.Error(t, err)

	_, err = ReadInput(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/plugin.json", ".claude-plugin/plugin.json", true},
		{"**/plugin.json", "plugin.json", true},
		{"**/package.json", "web/app/package.json", true},
		{"**/VERSION", "VERSION", true},
		{"**/Cargo.toml", "src/main.rs", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchGlob(tt.pattern, tt.path), "%s vs %s", tt.pattern, tt.path)
	}
}
