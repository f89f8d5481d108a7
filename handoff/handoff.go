// Package handoff summarizes an agent's output into the bounded context
// block passed to the next agent, and detects human-in-the-loop gates.
package handoff

import (
	"log/slog"

	"github.com/triadworks/triads/blocks"
)

// DefaultHITLPrompt is surfaced when a gate is present but carries no
// prompt text.
const DefaultHITLPrompt = "Human approval required before continuing."

// maxSectionItems bounds each forwarded section.
const maxSectionItems = 10

// Result is the handoff pipeline's output for one agent transition.
type Result struct {
	// Context is the structured summary of the finished agent's output.
	Context blocks.AgentContext `json:"context"`
	// Block is the rendered [AGENT_CONTEXT] text handed to the next agent.
	Block string `json:"block"`
	// Halt is set when the output requests human approval. Callers must
	// wait for the human before invoking the next agent.
	Halt bool `json:"halt"`
	// HITLPrompt is the approval question to show the human.
	HITLPrompt string `json:"hitl_prompt,omitempty"`
}

// Pipeline builds handoff summaries.
type Pipeline struct {
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Summarize condenses an agent's full output into a bounded context
// block for the next agent. Graph updates are counted, never forwarded;
// only extracted bullets cross the handoff.
func (p *Pipeline) Summarize(output, fromAgent, toAgent string) Result {
	ctx := blocks.AgentContext{
		From:             fromAgent,
		To:               toAgent,
		GraphUpdateCount: len(blocks.ExtractGraphUpdates(output)),
		Sections:         boundSections(blocks.ExtractSections(output)),
	}

	result := Result{
		Context: ctx,
		Block:   ctx.Format(),
	}

	if prompt, found := blocks.ExtractHITL(output); found {
		result.Halt = true
		result.HITLPrompt = prompt
		if result.HITLPrompt == "" {
			result.HITLPrompt = DefaultHITLPrompt
		}
		p.logger.Info("handoff halted for human approval",
			"from", fromAgent, "to", toAgent)
	}

	return result
}

func boundSections(s blocks.Sections) blocks.Sections {
	s.KeyFindings = capItems(s.KeyFindings)
	s.Decisions = capItems(s.Decisions)
	s.OpenQuestions = capItems(s.OpenQuestions)
	s.Recommendations = capItems(s.Recommendations)
	return s
}

func capItems(items []string) []string {
	if len(items) > maxSectionItems {
		return items[:maxSectionItems]
	}
	return items
}
