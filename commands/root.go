// Package commands wires the triad runtime into its CLI: hook entry
// points invoked by the host LLM (route, pre-tool, handoff, knowledge)
// and admin commands for graphs and workflow instances.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/config"
)

// rootState carries flag values shared by every subcommand.
type rootState struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

// Config lazily loads the effective configuration.
func (r *rootState) Config() (*config.Config, error) {
	if r.cfg != nil {
		return r.cfg, nil
	}
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, err
	}
	r.cfg = cfg
	return cfg, nil
}

// NewRootCommand builds the triads command tree.
func NewRootCommand(version string) *cobra.Command {
	state := &rootState{}

	cmd := &cobra.Command{
		Use:   "triads",
		Short: "Agent triad runtime",
		Long: `Triads coordinates teams of three agents: routing user prompts to a
triad, enforcing workflow order, persisting per-triad knowledge graphs,
and interjecting before risky tool calls.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(state.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&state.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRouteCommand(state),
		newPreToolCommand(state),
		newHandoffCommand(state),
		newKnowledgeCommand(state),
		newGraphCommand(state),
		newWorkflowCommand(state),
		newVersionCommand(version),
	)
	return cmd
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "triads version %s\n", version)
		},
	}
}

// configureLogging routes logs to stderr so stdout stays parseable by
// the host.
func configureLogging(level string) {
	l := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
}
