package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/knowledge"
	"github.com/triadworks/triads/storage"
)

func newKnowledgeCommand(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Apply graph updates and lessons from agent output",
	}
	cmd.AddCommand(
		newKnowledgeApplyCommand(state),
		newKnowledgeLessonsCommand(state),
		newKnowledgeOutcomeCommand(state),
	)
	return cmd
}

func buildHandler(state *rootState) (*knowledge.Handler, error) {
	cfg, err := state.Config()
	if err != nil {
		return nil, err
	}
	store := storage.NewStore(cfg.Paths.GraphsDir)
	return knowledge.NewHandler(store, knowledge.WithAgentsDir(cfg.Paths.AgentsDir)), nil
}

func newKnowledgeApplyCommand(state *rootState) *cobra.Command {
	var agentName string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Extract graph updates from stdin and apply them",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := buildHandler(state)
			if err != nil {
				return err
			}
			text, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read agent output: %w", err)
			}

			result, err := handler.ApplyUpdates(string(text), agentName)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVar(&agentName, "agent", "", "Agent the output is attributed to")
	return cmd
}

func newKnowledgeLessonsCommand(state *rootState) *cobra.Command {
	var (
		triad     string
		agentName string
	)

	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "Extract process knowledge from stdin and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := buildHandler(state)
			if err != nil {
				return err
			}
			text, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read conversation text: %w", err)
			}

			lessons := knowledge.ExtractLessons(string(text))
			stored, err := handler.StoreLessons(triad, agentName, lessons)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{
				"detected": len(lessons),
				"stored":   stored,
			})
		},
	}

	cmd.Flags().StringVar(&triad, "triad", "general", "Triad whose graph stores the lessons")
	cmd.Flags().StringVar(&agentName, "agent", "", "Agent the lessons are attributed to")
	return cmd
}

func newKnowledgeOutcomeCommand(state *rootState) *cobra.Command {
	var (
		triad   string
		nodeID  string
		outcome string
	)

	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record feedback on a process knowledge node",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := buildHandler(state)
			if err != nil {
				return err
			}
			node, err := handler.RecordOutcome(triad, nodeID, outcome)
			if err != nil {
				return err
			}
			return printJSON(cmd, node)
		},
	}

	cmd.Flags().StringVar(&triad, "triad", "", "Triad holding the node")
	cmd.Flags().StringVar(&nodeID, "node", "", "Node id")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Outcome (success, failure, confirmation, contradiction)")
	cmd.MarkFlagRequired("triad")
	cmd.MarkFlagRequired("node")
	cmd.MarkFlagRequired("outcome")
	return cmd
}
