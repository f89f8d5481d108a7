package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGraph() *Graph {
	g := New("design")
	now := time.Now().UTC()
	g.Nodes = []Node{
		{ID: "n1", Type: NodeTypeFinding, Label: "Latency spike", Confidence: 0.8, CreatedAt: now, UpdatedAt: now},
		{ID: "n2", Type: NodeTypeDecision, Label: "Use caching", Confidence: 0.9, CreatedAt: now, UpdatedAt: now},
	}
	g.Links = []Link{
		{Source: "n1", Target: "n2", Key: "motivates", CreatedAt: now, UpdatedAt: now},
	}
	g.Touch()
	return g
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Graph)
		valid   bool
		wantSub string
	}{
		{
			name:   "valid graph",
			mutate: func(*Graph) {},
			valid:  true,
		},
		{
			name: "missing node id",
			mutate: func(g *Graph) {
				g.Nodes[0].ID = ""
			},
			valid:   false,
			wantSub: "node id is required",
		},
		{
			name: "duplicate node id",
			mutate: func(g *Graph) {
				g.Nodes[1].ID = "n1"
			},
			valid:   false,
			wantSub: "duplicate node id",
		},
		{
			name: "unknown node type",
			mutate: func(g *Graph) {
				g.Nodes[0].Type = "Opinion"
			},
			valid:   false,
			wantSub: "unknown type",
		},
		{
			name: "missing label",
			mutate: func(g *Graph) {
				g.Nodes[1].Label = ""
			},
			valid:   false,
			wantSub: "label is required",
		},
		{
			name: "confidence above one",
			mutate: func(g *Graph) {
				g.Nodes[0].Confidence = 1.2
			},
			valid:   false,
			wantSub: "out of range",
		},
		{
			name: "negative confidence",
			mutate: func(g *Graph) {
				g.Nodes[0].Confidence = -0.1
			},
			valid:   false,
			wantSub: "out of range",
		},
		{
			name: "dangling link target",
			mutate: func(g *Graph) {
				g.Links[0].Target = "missing"
			},
			valid:   false,
			wantSub: "does not resolve",
		},
		{
			name: "duplicate link triple",
			mutate: func(g *Graph) {
				g.Links = append(g.Links, g.Links[0])
				g.Touch()
			},
			valid:   false,
			wantSub: "duplicate link",
		},
		{
			name: "stale meta counters",
			mutate: func(g *Graph) {
				g.Meta.NodeCount = 99
			},
			valid:   false,
			wantSub: "node_count",
		},
		{
			name: "invalid priority",
			mutate: func(g *Graph) {
				g.Nodes[0].Priority = "URGENT"
			},
			valid:   false,
			wantSub: "unknown priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGraph()
			tt.mutate(g)
			result := g.Validate()
			assert.Equal(t, tt.valid, result.Valid)
			if tt.wantSub != "" {
				require.NotEmpty(t, result.Issues)
				found := false
				for _, issue := range result.Issues {
					if strings.Contains(issue.String(), tt.wantSub) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected an issue containing %q, got %v", tt.wantSub, result.Issues)
			}
		})
	}
}

func TestAddNodeAndLink(t *testing.T) {
	g := New("implementation")
	now := time.Now().UTC()

	ok := g.AddNode(Node{ID: "a", Type: NodeTypeEntity, Label: "A", CreatedAt: now, UpdatedAt: now})
	require.True(t, ok)
	assert.False(t, g.AddNode(Node{ID: "a", Type: NodeTypeEntity, Label: "dup"}), "duplicate id must be rejected")

	require.True(t, g.AddNode(Node{ID: "b", Type: NodeTypeEntity, Label: "B", CreatedAt: now, UpdatedAt: now}))
	require.True(t, g.AddLink(Link{Source: "a", Target: "b", Key: "relates_to"}))
	assert.False(t, g.AddLink(Link{Source: "a", Target: "b", Key: "relates_to"}), "duplicate triple must be rejected")
	require.True(t, g.AddLink(Link{Source: "a", Target: "b", Key: "depends_on"}), "same endpoints with new key is a new edge")

	assert.Equal(t, 2, g.Meta.NodeCount)
	assert.Equal(t, 2, g.Meta.EdgeCount)
	assert.True(t, g.Validate().Valid)
}

func TestProcessKnowledgeNodes(t *testing.T) {
	g := New("deployment")
	now := time.Now().UTC()
	g.AddNode(Node{ID: "k1", Type: NodeTypeConcept, Label: "Version bump checklist",
		ProcessType: ProcessTypeChecklist, Confidence: 0.9, CreatedAt: now, UpdatedAt: now})
	g.AddNode(Node{ID: "k2", Type: NodeTypeConcept, Label: "Old lesson",
		ProcessType: ProcessTypeWarning, Status: StatusDeprecated, CreatedAt: now, UpdatedAt: now})
	g.AddNode(Node{ID: "plain", Type: NodeTypeFinding, Label: "A finding", CreatedAt: now, UpdatedAt: now})

	nodes := g.ProcessKnowledgeNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "k1", nodes[0].ID)
}
