package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/config"
	"github.com/triadworks/triads/llm"
	"github.com/triadworks/triads/router"
)

func newRouteCommand(state *rootState) *cobra.Command {
	var (
		sessionID string
		prompt    string
		override  string
		manual    bool
	)

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Decide the target triad for a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.Config()
			if err != nil {
				return err
			}
			if prompt == "" && len(args) > 0 {
				prompt = strings.Join(args, " ")
			}
			if prompt == "" && override == "" {
				return fmt.Errorf("a prompt is required (flag or arguments)")
			}

			r, err := buildRouter(cmd, cfg, manual)
			if err != nil {
				return err
			}

			decision, err := r.Route(cmd.Context(), router.Request{
				SessionID: sessionID,
				Prompt:    prompt,
				Override:  override,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, decision)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "default", "Session id for routing state")
	cmd.Flags().StringVar(&prompt, "prompt", "", "User prompt to route")
	cmd.Flags().StringVar(&override, "triad", "", "Explicit triad override")
	cmd.Flags().BoolVar(&manual, "interactive", false, "Prompt on stdin when routing is ambiguous")

	cmd.AddCommand(newRouteStatsCommand(state))
	return cmd
}

func newRouteStatsCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize routing telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.Config()
			if err != nil {
				return err
			}
			tel := router.NewTelemetry(cfg.Paths.TelemetryFile, cfg.Router.TelemetryMaxBytes, true)
			stats, err := tel.Stats()
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

// buildRouter assembles the full pipeline from configuration. The LLM
// stages are only wired when an API key is available; the hash embedder
// keeps semantic routing working offline.
func buildRouter(cmd *cobra.Command, cfg *config.Config, manual bool) (*router.Router, error) {
	profiles, err := router.LoadProfiles(cfg.Paths.AgentsDir)
	if err != nil {
		return nil, err
	}

	var client *llm.Client
	if apiKey := cfg.APIKey(); apiKey != "" {
		client = llm.NewClient(llm.EndpointConfig{
			Provider:       cfg.LLM.Provider,
			URL:            cfg.LLM.Endpoint,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			APIKey:         apiKey,
		})
	}

	embedder := routerEmbedder(cfg, client)
	corpus, err := router.NewCorpus(cmd.Context(), embedder, profiles)
	if err != nil {
		if _, usedLLM := embedder.(*router.LLMEmbedder); !usedLLM {
			return nil, err
		}
		// An unreachable embeddings endpoint must not take routing down.
		slog.Warn("embedding endpoint unavailable, using hash embedder", "error", err)
		corpus, err = router.NewCorpus(cmd.Context(), router.NewHashEmbedder(), profiles)
		if err != nil {
			return nil, err
		}
	}

	opts := router.Options{
		ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
		AmbiguityThreshold:  cfg.Router.AmbiguityThreshold,
		GraceTurns:          cfg.Router.GraceTurns,
		GraceMinutes:        cfg.Router.GraceMinutes,
		LLMTimeout:          cfg.Router.LLMTimeout,
		Training:            cfg.Router.Training,
	}

	options := []router.RouterOption{
		router.WithTelemetry(router.NewTelemetry(cfg.Paths.TelemetryFile, cfg.Router.TelemetryMaxBytes, cfg.Router.Telemetry)),
	}

	if client != nil {
		options = append(options, router.WithDisambiguator(router.NewLLMDisambiguator(client, corpus)))
	}

	if manual {
		options = append(options, router.WithSelector(stdinSelector(cmd)))
	}

	states := router.NewStateStore(cfg.Paths.StateFile)
	return router.New(corpus, states, opts, options...), nil
}

// routerEmbedder prefers the configured embeddings endpoint and falls
// back to the deterministic hash embedder when none is configured.
func routerEmbedder(cfg *config.Config, client *llm.Client) router.Embedder {
	if client != nil && cfg.LLM.EmbeddingModel != "" {
		return router.NewLLMEmbedder(client)
	}
	return router.NewHashEmbedder()
}

// stdinSelector presents candidates on stderr and reads a choice. An
// empty line or EOF cancels.
func stdinSelector(cmd *cobra.Command) router.Selector {
	return func(candidates []router.Candidate) (string, bool) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Ambiguous request. Pick a triad:")
		for i, c := range candidates {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %d) %s (%.2f)\n", i+1, c.Triad, c.Score)
		}
		fmt.Fprint(cmd.ErrOrStderr(), "> ")

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return "", false
		}
		choice := strings.TrimSpace(scanner.Text())
		if choice == "" {
			return "", false
		}
		for i, c := range candidates {
			if choice == fmt.Sprintf("%d", i+1) || strings.EqualFold(choice, c.Triad) {
				return c.Triad, true
			}
		}
		return "", false
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
