package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfiles = []TriadProfile{
	{
		ID:          "design",
		Description: "design user interfaces, layouts, wireframes and visual mockups",
		ExamplePrompts: []string{
			"design the settings screen",
			"design the onboarding screen",
		},
	},
	{
		ID:          "implementation",
		Description: "write code, implement features, fix bugs in the codebase",
		ExamplePrompts: []string{
			"implement the login endpoint",
			"implement the signup endpoint",
			"fix the bug in the parser",
		},
	},
	{
		ID:          "deployment",
		Description: "ship releases, configure pipelines, deploy to production",
		ExamplePrompts: []string{
			"deploy the service to production",
		},
	},
}

func newTestCorpus(t *testing.T) *Corpus {
	t.Helper()
	corpus, err := NewCorpus(context.Background(), NewHashEmbedder(), testProfiles)
	require.NoError(t, err)
	return corpus
}

func newTestRouter(t *testing.T, opts Options, options ...RouterOption) *Router {
	t.Helper()
	states := NewStateStore(filepath.Join(t.TempDir(), "router_state.json"))
	return New(newTestCorpus(t), states, opts, options...)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder()
	a, err := e.Embed(context.Background(), []string{"implement the login endpoint"})
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), []string{"implement the login endpoint"})
	require.NoError(t, err)

	require.Len(t, a[0], EmbeddingDim)
	assert.Equal(t, a[0], b[0])
	assert.InDelta(t, 1.0, cosine(a[0], a[0]), 1e-6)
}

func TestCorpusRankOrderingIsStable(t *testing.T) {
	corpus := newTestCorpus(t)

	first, err := corpus.Rank(context.Background(), "fix the bug in the parser")
	require.NoError(t, err)
	second, err := corpus.Rank(context.Background(), "fix the bug in the parser")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "implementation", first[0].Triad)
	assert.Len(t, first, 3)
}

func TestBypassesGrace(t *testing.T) {
	tests := []struct {
		prompt string
		want   bool
	}{
		{"keep refining the header", false},
		{"/switch to implementation", true},
		{"let's switch to deployment", true},
		{"Now let's write the tests", true},
		{"build the API and then deploy it", true},
		{"do this then that", true},
		{"strengthen the intro", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BypassesGrace(tt.prompt), tt.prompt)
	}
}

func TestSemanticRoute(t *testing.T) {
	r := newTestRouter(t, DefaultOptions())

	decision, err := r.Route(context.Background(), Request{
		SessionID: "s1",
		Prompt:    "implement the login endpoint",
	})
	require.NoError(t, err)
	assert.Equal(t, "implementation", decision.Triad)
	assert.Equal(t, MethodSemantic, decision.Method)
	assert.GreaterOrEqual(t, decision.Confidence, 0.70)

	state, err := r.states.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "implementation", state.ActiveTriad)
	assert.Equal(t, 1, state.TurnCount)
}

func TestGracePeriodContinuation(t *testing.T) {
	r := newTestRouter(t, DefaultOptions())

	_, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "design the settings screen"})
	require.NoError(t, err)

	// An off-topic prompt inside grace stays put.
	decision, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "validate this idea"})
	require.NoError(t, err)
	assert.Equal(t, "design", decision.Triad)
	assert.Equal(t, MethodGracePeriod, decision.Method)
	assert.InDelta(t, 1.0, decision.Confidence, 1e-9)

	state, err := r.states.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, state.TurnCount)
}

func TestGraceBypassReroutes(t *testing.T) {
	r := newTestRouter(t, DefaultOptions())

	_, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "design the settings screen"})
	require.NoError(t, err)

	decision, err := r.Route(context.Background(), Request{
		SessionID: "s1",
		Prompt:    "let's switch to deploy the service to production",
	})
	require.NoError(t, err)
	assert.NotEqual(t, MethodGracePeriod, decision.Method)
	assert.Equal(t, "deployment", decision.Triad)
}

func TestGraceExpiresByTurnsAndTime(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	clock := &now
	opts := DefaultOptions()
	opts.GraceTurns = 2
	r := newTestRouter(t, opts, WithClock(func() time.Time { return *clock }))

	_, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "design the settings screen"})
	require.NoError(t, err)

	// Turn 2 is still within grace.
	decision, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "anything"})
	require.NoError(t, err)
	assert.Equal(t, MethodGracePeriod, decision.Method)

	// Turn budget exhausted and wall clock past the window: re-route.
	now = now.Add(20 * time.Minute)
	decision, err = r.Route(context.Background(), Request{SessionID: "s1", Prompt: "deploy the service to production"})
	require.NoError(t, err)
	assert.NotEqual(t, MethodGracePeriod, decision.Method)
	assert.Equal(t, "deployment", decision.Triad)
}

type fakeDisambiguator struct {
	triad     string
	reasoning string
	err       error
	calls     int
}

func (f *fakeDisambiguator) Disambiguate(_ context.Context, _ string, _ []Candidate, _ []string) (string, string, error) {
	f.calls++
	return f.triad, f.reasoning, f.err
}

func TestLLMDisambiguationStage(t *testing.T) {
	opts := DefaultOptions()
	// Force escalation past the semantic stage.
	opts.ConfidenceThreshold = 1.01

	fake := &fakeDisambiguator{triad: "design", reasoning: "asks for visuals"}
	r := newTestRouter(t, opts, WithDisambiguator(fake))

	decision, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "make it pretty"})
	require.NoError(t, err)
	assert.Equal(t, "design", decision.Triad)
	assert.Equal(t, MethodLLM, decision.Method)
	assert.Equal(t, "asks for visuals", decision.Reasoning)
	assert.Equal(t, 1, fake.calls)
}

func TestLLMFailureFallsBackToManual(t *testing.T) {
	opts := DefaultOptions()
	opts.ConfidenceThreshold = 1.01

	fake := &fakeDisambiguator{err: errors.New("timeout")}
	var presented []Candidate
	r := newTestRouter(t, opts,
		WithDisambiguator(fake),
		WithSelector(func(candidates []Candidate) (string, bool) {
			presented = candidates
			return "implementation", true
		}))

	decision, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "make it pretty"})
	require.NoError(t, err)
	assert.Equal(t, "implementation", decision.Triad)
	assert.Equal(t, MethodManual, decision.Method)
	assert.InDelta(t, 1.0, decision.Confidence, 1e-9)
	assert.NotEmpty(t, presented)
	assert.LessOrEqual(t, len(presented), 3)
}

func TestCancellation(t *testing.T) {
	opts := DefaultOptions()
	opts.ConfidenceThreshold = 1.01

	r := newTestRouter(t, opts,
		WithSelector(func([]Candidate) (string, bool) { return "", false }))

	decision, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "hmm"})
	require.NoError(t, err)
	assert.True(t, decision.Cancelled())
	assert.Empty(t, decision.Triad)

	state, err := r.states.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, state.ActiveTriad)
	assert.True(t, state.Cancelled)
}

func TestExplicitOverride(t *testing.T) {
	r := newTestRouter(t, DefaultOptions())

	decision, err := r.Route(context.Background(), Request{
		SessionID: "s1",
		Prompt:    "whatever",
		Override:  "deployment",
	})
	require.NoError(t, err)
	assert.Equal(t, "deployment", decision.Triad)
	assert.Equal(t, MethodManual, decision.Method)
	assert.True(t, decision.Overridden)
	assert.InDelta(t, 1.0, decision.Confidence, 1e-9)
}

func TestTrainingModeConfirmation(t *testing.T) {
	opts := DefaultOptions()
	opts.ConfidenceThreshold = 1.01
	opts.Training = true

	fake := &fakeDisambiguator{triad: "design"}
	r := newTestRouter(t, opts, WithDisambiguator(fake))

	decision, err := r.Route(context.Background(), Request{SessionID: "s1", Prompt: "make it pretty"})
	require.NoError(t, err)
	assert.True(t, decision.NeedsConfirmation)

	state, err := r.states.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.TrainingModeConfirmations)
}

func TestStateStoreSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	states := NewStateStore(path)
	st, err := states.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.TurnCount)

	_, err = states.Mutate("s1", func(st *SessionState) { st.TurnCount = 3 })
	require.NoError(t, err)
	st, err = states.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.TurnCount)
}

func TestTelemetryRecordAndStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	tel := NewTelemetry(path, 0, true)

	require.NoError(t, tel.Record(TelemetryRecord{
		PromptSnippet: strings.Repeat("x", 200),
		Triad:         "design",
		Confidence:    0.8,
		Method:        MethodSemantic,
		LatencyMS:     12,
	}))
	require.NoError(t, tel.Record(TelemetryRecord{
		Triad:      "design",
		Confidence: 1.0,
		Method:     MethodGracePeriod,
	}))

	stats, err := tel.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByTriad["design"])
	assert.Equal(t, 1, stats.ByMethod[MethodSemantic])
	assert.InDelta(t, 0.9, stats.AvgConfidence, 1e-9)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.SplitN(string(data), "\n", 2)[0]
	assert.NotContains(t, line, strings.Repeat("x", 51), "snippets are truncated")
}

func TestTelemetryRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	tel := NewTelemetry(path, 300, true)

	for i := 0; i < 30; i++ {
		require.NoError(t, tel.Record(TelemetryRecord{
			PromptSnippet: "rotate me please, this line has some length to it",
			Method:        MethodSemantic,
		}))
	}

	_, err := os.Stat(path + ".1")
	assert.NoError(t, err, "one rotated generation expected")

	// Disabled telemetry writes nothing.
	off := NewTelemetry(filepath.Join(t.TempDir(), "off.jsonl"), 0, false)
	require.NoError(t, off.Record(TelemetryRecord{Method: MethodSemantic}))
	stats, err := off.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestDisambiguatorParse(t *testing.T) {
	d := &LLMDisambiguator{}
	candidates := []Candidate{{Triad: "design"}, {Triad: "implementation"}}

	tests := []struct {
		name      string
		content   string
		wantTriad string
	}{
		{"bare id first line", "design\nThe prompt asks for visuals.", "design"},
		{"quoted id", `"implementation"` + "\nIt wants code.", "implementation"},
		{"substring fallback", "I would pick the design triad here.", "design"},
		{"ambiguous mention", "Either design or implementation fits.", ""},
		{"no match", "none of these", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triad, _ := d.parse(tt.content, candidates)
			assert.Equal(t, tt.wantTriad, triad)
		})
	}
}

func TestLoadProfilesFromAgentsDir(t *testing.T) {
	dir := t.TempDir()
	designDir := filepath.Join(dir, "design")
	require.NoError(t, os.MkdirAll(designDir, 0o755))

	agent := `---
name: ui-designer
triad: design
description: designs user interfaces
example_prompts:
  - design the settings screen
---

You are a UI designer.
`
	require.NoError(t, os.WriteFile(filepath.Join(designDir, "ui-designer.md"), []byte(agent), 0o644))

	profiles, err := LoadProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "design", profiles[0].ID)
	assert.Equal(t, "designs user interfaces", profiles[0].Description)
	assert.Equal(t, []string{"design the settings screen"}, profiles[0].ExamplePrompts)
}
