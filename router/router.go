package router

import (
	"context"
	"log/slog"
	"time"
)

// Routing methods recorded in decisions and telemetry.
const (
	MethodSemantic    = "semantic"
	MethodLLM         = "llm"
	MethodManual      = "manual"
	MethodGracePeriod = "grace_period"
	MethodCancelled   = "cancelled"
)

// trainingConfirmThreshold marks decisions that want a user nod in
// training mode.
const trainingConfirmThreshold = 0.9

// Decision is the router's answer for one prompt.
type Decision struct {
	Triad             string      `json:"triad,omitempty"`
	Method            string      `json:"method"`
	Confidence        float64     `json:"confidence"`
	Reasoning         string      `json:"reasoning,omitempty"`
	Candidates        []Candidate `json:"candidates,omitempty"`
	LatencyMS         int64       `json:"latency_ms"`
	Overridden        bool        `json:"overridden,omitempty"`
	NeedsConfirmation bool        `json:"needs_confirmation,omitempty"`
}

// Cancelled reports whether no triad was chosen.
func (d Decision) Cancelled() bool {
	return d.Method == MethodCancelled
}

// Selector asks the user to pick among candidates. ok=false means the
// user cancelled.
type Selector func(candidates []Candidate) (triad string, ok bool)

// Disambiguator resolves an ambiguous prompt among candidates, usually
// with an LLM. reasoning is free text for telemetry.
type Disambiguator interface {
	Disambiguate(ctx context.Context, prompt string, candidates []Candidate, conversationTail []string) (triad, reasoning string, err error)
}

// Options tunes the routing pipeline.
type Options struct {
	ConfidenceThreshold float64
	AmbiguityThreshold  float64
	GraceTurns          int
	GraceMinutes        int
	LLMTimeout          time.Duration
	Training            bool
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: 0.70,
		AmbiguityThreshold:  0.10,
		GraceTurns:          5,
		GraceMinutes:        8,
		LLMTimeout:          2 * time.Second,
	}
}

// Router runs the routing pipeline: explicit override, grace period,
// semantic similarity, LLM disambiguation, manual selection,
// cancellation.
type Router struct {
	corpus        *Corpus
	states        *StateStore
	telemetry     *Telemetry
	disambiguator Disambiguator
	selector      Selector
	opts          Options
	logger        *slog.Logger
	now           func() time.Time
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDisambiguator installs the LLM stage.
func WithDisambiguator(d Disambiguator) RouterOption {
	return func(r *Router) { r.disambiguator = d }
}

// WithSelector installs the manual-selection stage.
func WithSelector(s Selector) RouterOption {
	return func(r *Router) { r.selector = s }
}

// WithTelemetry installs the decision log.
func WithTelemetry(t *Telemetry) RouterOption {
	return func(r *Router) { r.telemetry = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// New creates a Router over a corpus and a state store.
func New(corpus *Corpus, states *StateStore, opts Options, options ...RouterOption) *Router {
	r := &Router{
		corpus: corpus,
		states: states,
		opts:   opts,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Request is one routing invocation.
type Request struct {
	SessionID string
	Prompt    string
	// Override names a triad directly, skipping the pipeline.
	Override string
	// ConversationTail carries the last few conversation lines for the
	// disambiguation stage.
	ConversationTail []string
}

// Route decides the target triad for a prompt.
func (r *Router) Route(ctx context.Context, req Request) (Decision, error) {
	start := r.now()

	decision, err := r.route(ctx, req, start)
	if err != nil {
		return Decision{}, err
	}
	decision.LatencyMS = r.now().Sub(start).Milliseconds()

	if err := r.telemetry.Record(TelemetryRecord{
		Timestamp:     start,
		SessionID:     req.SessionID,
		PromptSnippet: req.Prompt,
		Triad:         decision.Triad,
		Confidence:    decision.Confidence,
		Method:        decision.Method,
		LatencyMS:     decision.LatencyMS,
		Overridden:    decision.Overridden,
	}); err != nil {
		r.logger.Warn("telemetry write failed", "error", err)
	}
	return decision, nil
}

func (r *Router) route(ctx context.Context, req Request, now time.Time) (Decision, error) {
	if req.Override != "" && r.corpus.HasTriad(req.Override) {
		if err := r.activate(req.SessionID, req.Override, now); err != nil {
			return Decision{}, err
		}
		return Decision{
			Triad:      req.Override,
			Method:     MethodManual,
			Confidence: 1.0,
			Overridden: true,
		}, nil
	}

	state, err := r.states.Get(req.SessionID)
	if err != nil {
		return Decision{}, err
	}

	if r.withinGrace(state, now) && !BypassesGrace(req.Prompt) {
		triad := state.ActiveTriad
		if _, err := r.states.Mutate(req.SessionID, func(st *SessionState) {
			st.TurnCount++
			st.LastActivity = &now
		}); err != nil {
			return Decision{}, err
		}
		return Decision{
			Triad:      triad,
			Method:     MethodGracePeriod,
			Confidence: 1.0,
		}, nil
	}

	return r.pipeline(ctx, req, now)
}

// withinGrace reports whether the active triad is still sticky.
func (r *Router) withinGrace(state *SessionState, now time.Time) bool {
	if state.ActiveTriad == "" {
		return false
	}
	if state.TurnCount < r.opts.GraceTurns {
		return true
	}
	since := state.ConversationStart
	if state.LastActivity != nil {
		since = state.LastActivity
	}
	if since == nil {
		return false
	}
	return now.Sub(*since) < time.Duration(r.opts.GraceMinutes)*time.Minute
}

func (r *Router) pipeline(ctx context.Context, req Request, now time.Time) (Decision, error) {
	candidates, err := r.corpus.Rank(ctx, req.Prompt)
	if err != nil {
		return Decision{}, err
	}
	if len(candidates) == 0 {
		return r.cancel(req.SessionID, "no triads configured")
	}

	top := candidates[0]
	second := 0.0
	if len(candidates) > 1 {
		second = candidates[1].Score
	}
	if top.Score >= r.opts.ConfidenceThreshold && top.Score-second >= r.opts.AmbiguityThreshold {
		return r.finish(req.SessionID, Decision{
			Triad:      top.Triad,
			Method:     MethodSemantic,
			Confidence: top.Score,
			Candidates: truncateCandidates(candidates, 3),
		}, now)
	}

	if r.disambiguator != nil {
		shortlist := truncateCandidates(candidates, 3)
		llmCtx, cancel := context.WithTimeout(ctx, r.opts.LLMTimeout)
		triad, reasoning, err := r.disambiguator.Disambiguate(llmCtx, req.Prompt, shortlist, req.ConversationTail)
		cancel()
		if err == nil && triad != "" && r.corpus.HasTriad(triad) {
			confidence := top.Score
			for _, c := range shortlist {
				if c.Triad == triad {
					confidence = c.Score
				}
			}
			return r.finish(req.SessionID, Decision{
				Triad:      triad,
				Method:     MethodLLM,
				Confidence: confidence,
				Reasoning:  reasoning,
				Candidates: shortlist,
			}, now)
		}
		if err != nil {
			r.logger.Warn("llm disambiguation failed, falling back to manual selection", "error", err)
		}
	}

	if r.selector != nil {
		shortlist := truncateCandidates(candidates, 3)
		if triad, ok := r.selector(shortlist); ok && r.corpus.HasTriad(triad) {
			return r.finish(req.SessionID, Decision{
				Triad:      triad,
				Method:     MethodManual,
				Confidence: 1.0,
				Candidates: shortlist,
			}, now)
		}
	}

	return r.cancel(req.SessionID, "no selection made")
}

// finish activates the chosen triad, applying training-mode
// confirmation tracking for sub-threshold automatic routes.
func (r *Router) finish(sessionID string, decision Decision, now time.Time) (Decision, error) {
	needsConfirmation := r.opts.Training &&
		decision.Method != MethodManual &&
		decision.Confidence < trainingConfirmThreshold

	if _, err := r.states.Mutate(sessionID, func(st *SessionState) {
		st.ActiveTriad = decision.Triad
		st.TurnCount = 1
		st.Cancelled = false
		if st.ConversationStart == nil {
			st.ConversationStart = &now
		}
		st.LastActivity = &now
		if needsConfirmation {
			st.TrainingModeConfirmations++
		}
	}); err != nil {
		return Decision{}, err
	}
	decision.NeedsConfirmation = needsConfirmation
	return decision, nil
}

func (r *Router) activate(sessionID, triad string, now time.Time) error {
	_, err := r.states.Mutate(sessionID, func(st *SessionState) {
		st.ActiveTriad = triad
		st.TurnCount = 1
		st.Cancelled = false
		if st.ConversationStart == nil {
			st.ConversationStart = &now
		}
		st.LastActivity = &now
	})
	return err
}

func (r *Router) cancel(sessionID, reasoning string) (Decision, error) {
	if _, err := r.states.Mutate(sessionID, func(st *SessionState) {
		st.ActiveTriad = ""
		st.TurnCount = 0
		st.Cancelled = true
	}); err != nil {
		return Decision{}, err
	}
	return Decision{
		Method:    MethodCancelled,
		Reasoning: reasoning,
	}, nil
}

func truncateCandidates(candidates []Candidate, n int) []Candidate {
	if len(candidates) <= n {
		return candidates
	}
	return candidates[:n]
}
