package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/handoff"
)

func newHandoffCommand(state *rootState) *cobra.Command {
	var (
		fromAgent string
		toAgent   string
	)

	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Summarize an agent's output for the next agent",
		Long: `Reads the finished agent's full output from stdin and prints the
handoff result as JSON: the bounded [AGENT_CONTEXT] block plus the
halt flag when the output requests human approval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read agent output: %w", err)
			}

			result := handoff.New().Summarize(string(output), fromAgent, toAgent)
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&fromAgent, "from", "", "Agent that produced the output")
	cmd.Flags().StringVar(&toAgent, "to", "", "Agent receiving the context")
	return cmd
}
