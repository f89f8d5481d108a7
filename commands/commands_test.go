package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triads/config"
	"github.com/triadworks/triads/hook"
	"github.com/triadworks/triads/llm"
	"github.com/triadworks/triads/router"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "triads version 1.2.3\n", out.String())
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand("dev")

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"route", "pre-tool", "handoff", "knowledge", "graph", "workflow", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestRouterEmbedderSelection(t *testing.T) {
	cfg := config.DefaultConfig()
	client := llm.NewClient(llm.EndpointConfig{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		APIKey:         "test-key",
	})

	assert.IsType(t, &router.LLMEmbedder{}, routerEmbedder(cfg, client))

	// No client (no API key) falls back to the offline embedder.
	assert.IsType(t, &router.HashEmbedder{}, routerEmbedder(cfg, nil))

	// A client without an embedding model cannot embed.
	cfg.LLM.EmbeddingModel = ""
	assert.IsType(t, &router.HashEmbedder{}, routerEmbedder(cfg, client))
}

func TestHookSafeRecoversPanic(t *testing.T) {
	code := hookSafe(func() int {
		panic("unexpected state")
	})
	assert.Equal(t, hook.ExitAllow, code)

	assert.Equal(t, hook.ExitBlock, hookSafe(func() int { return hook.ExitBlock }))
}

func TestRouteRequiresPrompt(t *testing.T) {
	root := NewRootCommand("dev")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"route"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt is required")
}
