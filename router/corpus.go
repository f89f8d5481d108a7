package router

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/triadworks/triads/agents"
)

// TriadProfile is the routing corpus for one triad: what it is for and
// how users tend to ask for it.
type TriadProfile struct {
	ID             string
	Description    string
	ExamplePrompts []string
}

// corpusTexts returns the texts whose embeddings define the triad's
// centroid.
func (p TriadProfile) corpusTexts() []string {
	texts := make([]string, 0, len(p.ExamplePrompts)+1)
	if p.Description != "" {
		texts = append(texts, p.Description)
	}
	texts = append(texts, p.ExamplePrompts...)
	if len(texts) == 0 {
		texts = append(texts, p.ID)
	}
	return texts
}

// LoadProfiles builds triad profiles from the agents directory. Agents
// grouped under one triad pool their descriptions and example prompts.
func LoadProfiles(agentsDir string) ([]TriadProfile, error) {
	list, err := agents.LoadDir(agentsDir)
	if err != nil {
		return nil, fmt.Errorf("load triad profiles: %w", err)
	}

	byTriad := map[string]*TriadProfile{}
	for _, a := range list {
		triad := a.Triad
		if triad == "" {
			parent := filepath.Base(filepath.Dir(a.Path))
			if parent == filepath.Base(agentsDir) {
				continue
			}
			triad = parent
		}
		p, ok := byTriad[triad]
		if !ok {
			p = &TriadProfile{ID: triad}
			byTriad[triad] = p
		}
		if a.Description != "" {
			if p.Description != "" {
				p.Description += " "
			}
			p.Description += a.Description
		}
		p.ExamplePrompts = append(p.ExamplePrompts, a.ExamplePrompts...)
	}

	profiles := make([]TriadProfile, 0, len(byTriad))
	for _, p := range byTriad {
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

// Corpus holds precomputed triad centroids for semantic scoring.
type Corpus struct {
	embedder Embedder
	triads   []string
	vectors  map[string][]float32
}

// NewCorpus embeds every profile's texts once and keeps the normalized
// centroid per triad.
func NewCorpus(ctx context.Context, embedder Embedder, profiles []TriadProfile) (*Corpus, error) {
	c := &Corpus{
		embedder: embedder,
		vectors:  make(map[string][]float32, len(profiles)),
	}
	for _, p := range profiles {
		texts := p.corpusTexts()
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed corpus for triad %q: %w", p.ID, err)
		}
		c.triads = append(c.triads, p.ID)
		c.vectors[p.ID] = meanVector(vectors)
	}
	return c, nil
}

// Candidate is one scored triad.
type Candidate struct {
	Triad string  `json:"triad"`
	Score float64 `json:"score"`
}

// Rank scores the prompt against every triad centroid, highest first.
// Ties break on triad id so the ordering is stable across runs.
func (c *Corpus) Rank(ctx context.Context, prompt string) ([]Candidate, error) {
	vectors, err := c.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	promptVec := vectors[0]

	candidates := make([]Candidate, 0, len(c.triads))
	for _, id := range c.triads {
		candidates = append(candidates, Candidate{
			Triad: id,
			Score: cosine(promptVec, c.vectors[id]),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Triad < candidates[j].Triad
	})
	return candidates, nil
}

// Triads lists the corpus triad ids in their stored order.
func (c *Corpus) Triads() []string {
	return c.triads
}

// HasTriad reports whether a triad id is part of the corpus.
func (c *Corpus) HasTriad(id string) bool {
	_, ok := c.vectors[id]
	return ok
}

// MatchTriad finds a corpus triad mentioned inside free text, used when
// an LLM answer does not lead with a bare triad id. Returns empty when
// zero or several triads match.
func (c *Corpus) MatchTriad(text string) string {
	lower := strings.ToLower(text)
	var found string
	for _, id := range c.triads {
		if strings.Contains(lower, strings.ToLower(id)) {
			if found != "" {
				return ""
			}
			found = id
		}
	}
	return found
}
