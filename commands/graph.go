package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/storage"
)

func newGraphCommand(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect and repair triad knowledge graphs",
	}
	cmd.AddCommand(
		newGraphCheckCommand(state),
		newGraphCheckAllCommand(state),
		newGraphRepairCommand(state),
		newGraphBackupsCommand(state),
		newGraphRestoreCommand(state),
	)
	return cmd
}

func buildStore(state *rootState) (*storage.Store, error) {
	cfg, err := state.Config()
	if err != nil {
		return nil, err
	}
	return storage.NewStore(cfg.Paths.GraphsDir), nil
}

func newGraphCheckCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "check <triad>",
		Short: "Validate one triad's graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(state)
			if err != nil {
				return err
			}
			result, err := store.Check(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newGraphCheckAllCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "check-all",
		Short: "Validate every triad graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(state)
			if err != nil {
				return err
			}
			results, err := store.CheckAll()
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
}

func newGraphRepairCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <triad>",
		Short: "Repair a damaged triad graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(state)
			if err != nil {
				return err
			}
			result, err := store.Repair(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newGraphBackupsCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "backups <triad>",
		Short: "List a triad's graph backups, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(state)
			if err != nil {
				return err
			}
			backups, err := store.ListBackups(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, backups)
		},
	}
}

func newGraphRestoreCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <triad> <backup>",
		Short: "Restore a triad graph from a named backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(state)
			if err != nil {
				return err
			}
			if err := store.Restore(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", args[0], args[1])
			return nil
		},
	}
}
