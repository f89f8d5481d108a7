package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/triadworks/triads/llm"
)

// LLMDisambiguator asks a chat model to pick among candidate triads.
// The model answers with the triad id on the first line and reasoning
// on the rest.
type LLMDisambiguator struct {
	client *llm.Client
	corpus *Corpus
}

// NewLLMDisambiguator creates the disambiguation stage.
func NewLLMDisambiguator(client *llm.Client, corpus *Corpus) *LLMDisambiguator {
	return &LLMDisambiguator{client: client, corpus: corpus}
}

// Disambiguate implements Disambiguator.
func (d *LLMDisambiguator) Disambiguate(ctx context.Context, prompt string, candidates []Candidate, conversationTail []string) (string, string, error) {
	zero := 0.0
	resp, err := d.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: d.systemPrompt(candidates)},
			{Role: "user", Content: d.userPrompt(prompt, conversationTail)},
		},
		Temperature: &zero,
		MaxTokens:   200,
	})
	if err != nil {
		return "", "", err
	}
	triad, reasoning := d.parse(resp.Content, candidates)
	if triad == "" {
		// Unparseable answer: fall back to the highest semantic score.
		if len(candidates) > 0 {
			return candidates[0].Triad, "fallback to top semantic candidate", nil
		}
		return "", "", fmt.Errorf("no candidates to fall back to")
	}
	return triad, reasoning, nil
}

func (d *LLMDisambiguator) systemPrompt(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("You classify a user request into exactly one work triad.\n")
	b.WriteString("Candidates:\n")
	for _, c := range candidates {
		b.WriteString("- ")
		b.WriteString(c.Triad)
		b.WriteString("\n")
	}
	b.WriteString("Answer with the triad id on the first line, then a one-sentence reason.")
	return b.String()
}

func (d *LLMDisambiguator) userPrompt(prompt string, conversationTail []string) string {
	if len(conversationTail) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, line := range conversationTail {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nRequest: ")
	b.WriteString(prompt)
	return b.String()
}

// parse extracts the chosen triad. The first line is taken verbatim
// when it is a candidate id; otherwise the whole answer is scanned for
// exactly one candidate mention.
func (d *LLMDisambiguator) parse(content string, candidates []Candidate) (string, string) {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	first := strings.TrimSpace(strings.Trim(lines[0], "`\"' .:"))
	reasoning := ""
	if len(lines) > 1 {
		reasoning = strings.TrimSpace(lines[1])
	}

	for _, c := range candidates {
		if strings.EqualFold(first, c.Triad) {
			return c.Triad, reasoning
		}
	}

	lower := strings.ToLower(content)
	var found string
	for _, c := range candidates {
		if strings.Contains(lower, strings.ToLower(c.Triad)) {
			if found != "" && found != c.Triad {
				return "", ""
			}
			found = c.Triad
		}
	}
	if found != "" {
		return found, strings.TrimSpace(content)
	}
	return "", ""
}
