package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/hook"
	"github.com/triadworks/triads/knowledge"
	"github.com/triadworks/triads/router"
	"github.com/triadworks/triads/storage"
)

func newPreToolCommand(state *rootState) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "pre-tool",
		Short: "Pre-tool hook: consult process knowledge before a tool call",
		Long: `Reads the host's pre-tool payload from stdin and answers through the
hook protocol: exit 0 with no output to allow, exit 0 with an
additionalContext JSON object to inject guidance, exit 2 with a message
on stderr to block. Internal errors always degrade to exit 0.`,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(hookSafe(func() int {
				return runPreTool(cmd, state, sessionID)
			}))
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "default", "Session id for the active triad lookup")
	return cmd
}

// hookSafe converts a panic anywhere under the hook into the allow exit
// code. The blocking code is reserved for deliberate decisions, so the
// hook never fails the host.
func hookSafe(fn func() int) (code int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pre-tool hook panic", "panic", r)
			code = hook.ExitAllow
		}
	}()
	return fn()
}

// runPreTool never returns a non-zero code for its own failures; the
// only blocking exit is a deliberate hook decision.
func runPreTool(cmd *cobra.Command, state *rootState, sessionID string) int {
	cfg, err := state.Config()
	if err != nil {
		return hook.ExitAllow
	}

	in, err := hook.ReadInput(cmd.InOrStdin())
	if err != nil {
		return hook.ExitAllow
	}
	if in.SessionID != "" {
		sessionID = in.SessionID
	}

	sessionState, err := router.NewStateStore(cfg.Paths.StateFile).Get(sessionID)
	if err != nil {
		return hook.ExitAllow
	}

	store := storage.NewStore(cfg.Paths.GraphsDir)
	engine := hook.NewEngine(store,
		hook.WithNoBlock(cfg.Hook.NoBlock),
		hook.WithDisabled(cfg.Hook.Disabled),
		hook.WithVersionFilePatterns(cfg.Hook.VersionFilePatterns),
		hook.WithMaxChecklistItems(cfg.Hook.MaxChecklistItems),
		hook.WithBudget(cfg.Hook.Budget),
		hook.WithInjectionRecorder(knowledge.NewHandler(store)),
	)

	outcome := engine.Decide(in, sessionState.ActiveTriad)
	switch outcome.Action {
	case hook.ActionBlock:
		fmt.Fprint(cmd.ErrOrStderr(), outcome.Message)
	case hook.ActionInject:
		payload, err := outcome.InjectionPayload()
		if err != nil {
			return hook.ExitAllow
		}
		fmt.Fprintln(cmd.OutOrStdout(), payload)
	}
	return outcome.ExitCode()
}
