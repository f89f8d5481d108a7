package hook

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/triadworks/triads/graph"
	"github.com/triadworks/triads/knowledge"
	"github.com/triadworks/triads/storage"
)

// Block criteria thresholds.
const (
	versionFileConfidence  = 0.85
	highConfidenceBlockBar = 0.95
)

// DefaultBudget is the hook's soft wall-time budget. On exceed the hook
// answers noop: availability over completeness.
const DefaultBudget = 400 * time.Millisecond

// readOnlyTools are never intercepted.
var readOnlyTools = map[string]bool{
	"Read": true,
	"Grep": true,
	"Glob": true,
}

// safeBashPrefixes are commands that never warrant a block.
var safeBashPrefixes = []string{
	"ls", "cat", "echo", "grep", "pwd", "which",
	"git status", "git diff", "git log",
}

// riskyBashPrefixes are the commands the hook is willing to block.
// Anything else defaults to safe.
var riskyBashPrefixes = []string{
	"git commit", "git push", "rm ", "rm -", "mv ", "cp ",
	"npm publish", "cargo publish", "make release",
}

// Engine decides what happens before a tool call.
type Engine struct {
	store     *storage.Store
	handler   *knowledge.Handler
	logger    *slog.Logger
	now       func() time.Time
	budget    time.Duration
	noBlock   bool
	disabled  bool
	maxItems  int
	versioned []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNoBlock downgrades blocking decisions to injections.
func WithNoBlock(noBlock bool) EngineOption {
	return func(e *Engine) { e.noBlock = noBlock }
}

// WithDisabled turns the hook off entirely.
func WithDisabled(disabled bool) EngineOption {
	return func(e *Engine) { e.disabled = disabled }
}

// WithVersionFilePatterns sets the glob list for the version-file block
// criterion.
func WithVersionFilePatterns(patterns []string) EngineOption {
	return func(e *Engine) {
		if len(patterns) > 0 {
			e.versioned = patterns
		}
	}
}

// WithMaxChecklistItems bounds how many items an interjection shows.
func WithMaxChecklistItems(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxItems = n
		}
	}
}

// WithBudget sets the soft wall-time budget.
func WithBudget(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.budget = d
		}
	}
}

// WithInjectionRecorder enables best-effort injection accounting.
func WithInjectionRecorder(handler *knowledge.Handler) EngineOption {
	return func(e *Engine) { e.handler = handler }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over a graph store.
func NewEngine(store *storage.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		budget:   DefaultBudget,
		maxItems: 5,
		versioned: []string{
			".claude-plugin/plugin.json",
			"**/plugin.json",
			"**/package.json",
			"**/pyproject.toml",
			"**/Cargo.toml",
			"**/version.go",
			"**/VERSION",
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide evaluates one pending tool call against the active triad's
// process knowledge.
func (e *Engine) Decide(in *Input, activeTriad string) Outcome {
	start := e.now()

	if e.disabled || readOnlyTools[in.ToolName] || activeTriad == "" {
		return Outcome{Action: ActionNoop}
	}
	if in.ToolName == "Bash" && !bashIsRisky(in.Command()) {
		return Outcome{Action: ActionNoop}
	}

	g, err := e.store.Load(activeTriad)
	if err != nil {
		// Availability over completeness: a broken graph never blocks.
		e.logger.Warn("hook could not load graph", "triad", activeTriad, "error", err)
		return Outcome{Action: ActionNoop}
	}

	var matched []*graph.Node
	for _, node := range g.ProcessKnowledgeNodes() {
		if e.now().Sub(start) > e.budget {
			e.logger.Warn("hook budget exceeded", "triad", activeTriad)
			return Outcome{Action: ActionNoop}
		}
		if e.matches(node, in, activeTriad) {
			matched = append(matched, node)
		}
	}
	if len(matched) == 0 {
		return Outcome{Action: ActionNoop}
	}

	ids := make([]string, len(matched))
	for i, n := range matched {
		ids[i] = n.ID
	}

	var blocker *graph.Node
	for _, node := range matched {
		if e.shouldBlock(node, in) {
			blocker = node
			break
		}
	}

	if blocker != nil && !e.noBlock {
		return Outcome{
			Action:         ActionBlock,
			Message:        e.interjection(blocker),
			MatchedNodeIDs: ids,
			Triad:          activeTriad,
		}
	}

	outcome := Outcome{
		Action:         ActionInject,
		Context:        e.injectionText(matched),
		MatchedNodeIDs: ids,
		Triad:          activeTriad,
	}
	if e.handler != nil {
		if err := e.handler.RecordInjection(activeTriad, ids); err != nil {
			e.logger.Warn("injection accounting failed", "error", err)
		}
	}
	return outcome
}

// matches reports whether a node's trigger conditions overlap the call.
// Empty lists never match.
func (e *Engine) matches(node *graph.Node, in *Input, activeTriad string) bool {
	tc := node.TriggerConditions
	if tc.Empty() {
		return false
	}

	if len(tc.TriadNames) > 0 && !containsFold(tc.TriadNames, activeTriad) {
		return false
	}

	for _, name := range tc.ToolNames {
		if strings.EqualFold(name, in.ToolName) {
			return true
		}
	}

	if path := in.FilePath(); path != "" {
		for _, pattern := range tc.FilePatterns {
			if matchGlob(pattern, path) {
				return true
			}
		}
	}

	haystack := strings.ToLower(in.Command() + " " + in.FilePath())
	for _, kw := range tc.ActionKeywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// shouldBlock applies the two block criteria.
func (e *Engine) shouldBlock(node *graph.Node, in *Input) bool {
	if node.Priority != graph.PriorityCritical {
		return false
	}
	if node.Confidence >= highConfidenceBlockBar {
		return true
	}
	if node.ProcessType != graph.ProcessTypeChecklist || node.Confidence < versionFileConfidence {
		return false
	}
	path := in.FilePath()
	if path == "" {
		return false
	}
	for _, pattern := range e.versioned {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

// interjection renders the natural-language block message: the
// checklist label, up to K items, and the files to check.
func (e *Engine) interjection(node *graph.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hold on. Before this change, let me remind you: %s.\n", node.Label)
	if node.Description != "" {
		b.WriteString(node.Description)
		b.WriteString("\n")
	}

	items := node.Checklist
	if len(items) > e.maxItems {
		items = items[:e.maxItems]
	}
	var files []string
	for _, item := range items {
		fmt.Fprintf(&b, "- %s", item.Item)
		if item.Required {
			b.WriteString(" (required)")
		}
		b.WriteString("\n")
		if item.File != "" && !containsFold(files, item.File) {
			files = append(files, item.File)
		}
	}
	if len(files) > 0 {
		fmt.Fprintf(&b, "Files to check: %s\n", strings.Join(files, ", "))
	}
	return b.String()
}

// injectionText summarizes matched knowledge for additionalContext.
func (e *Engine) injectionText(matched []*graph.Node) string {
	var b strings.Builder
	b.WriteString("Relevant process knowledge for this change:\n")
	for _, node := range matched {
		fmt.Fprintf(&b, "- [%s] %s", node.Priority, node.Label)
		if node.Description != "" {
			fmt.Fprintf(&b, ": %s", node.Description)
		}
		b.WriteString("\n")
		items := node.Checklist
		if len(items) > e.maxItems {
			items = items[:e.maxItems]
		}
		for _, item := range items {
			fmt.Fprintf(&b, "  - %s\n", item.Item)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// bashIsRisky reports whether a command is in the known-risky set.
// Recognized-safe commands and unknown commands both stay unblocked.
func bashIsRisky(command string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(command))
	if trimmed == "" {
		return false
	}
	for _, safe := range safeBashPrefixes {
		if trimmed == safe || strings.HasPrefix(trimmed, safe+" ") {
			return false
		}
	}
	for _, risky := range riskyBashPrefixes {
		if strings.HasPrefix(trimmed, risky) {
			return true
		}
	}
	return false
}

// matchGlob matches a path against a doublestar pattern, also trying
// the basename so bare filenames like VERSION match anywhere.
func matchGlob(pattern, path string) bool {
	if ok, err := doublestar.Match(pattern, filepath.ToSlash(path)); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(pattern, filepath.Base(path)); err == nil && ok {
		return true
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
