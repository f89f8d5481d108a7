package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triadworks/triads/workflow"
)

func newWorkflowCommand(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow instances and enforce triad ordering",
	}
	cmd.AddCommand(
		newWorkflowCreateCommand(state),
		newWorkflowListCommand(state),
		newWorkflowShowCommand(state),
		newWorkflowTransitionCommand(state),
		newWorkflowCompleteTriadCommand(state),
		newWorkflowMetricsCommand(state),
		newWorkflowCompleteCommand(state),
		newWorkflowAbandonCommand(state),
	)
	return cmd
}

type workflowDeps struct {
	schema    *workflow.Schema
	manager   *workflow.Manager
	validator *workflow.Validator
	enforcer  *workflow.Enforcer
}

func buildWorkflow(state *rootState) (*workflowDeps, error) {
	cfg, err := state.Config()
	if err != nil {
		return nil, err
	}
	schema, err := workflow.LoadSchema(cfg.Paths.SchemaFile)
	if err != nil {
		return nil, err
	}
	manager := workflow.NewManager(cfg.Paths.WorkflowsDir)
	return &workflowDeps{
		schema:    schema,
		manager:   manager,
		validator: workflow.NewValidator(schema, workflow.NewDiscovery(cfg.Paths.AgentsDir)),
		enforcer:  workflow.NewEnforcer(manager),
	}, nil
}

func newWorkflowCreateCommand(state *rootState) *cobra.Command {
	var (
		title     string
		startedBy string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow instance from the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			inst, err := deps.manager.Create(deps.schema, title, startedBy)
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Workflow title")
	cmd.Flags().StringVar(&startedBy, "by", "", "User starting the workflow")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newWorkflowListCommand(state *rootState) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow instances, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			instances, err := deps.manager.List(status)
			if err != nil {
				return err
			}
			return printJSON(cmd, instances)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (in_progress, completed, abandoned; active is an alias for in_progress)")
	return cmd
}

func newWorkflowShowCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			inst, err := deps.manager.Load(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}
}

func newWorkflowTransitionCommand(state *rootState) *cobra.Command {
	var (
		skipReason  string
		forceSkip   bool
		metricsJSON string
	)

	cmd := &cobra.Command{
		Use:   "transition <id> <triad>",
		Short: "Validate and enforce a move to another triad",
		Long: `Checks the requested triad against the schema's ordering and the
instance's progress, then applies the schema's enforcement mode. The
result reports whether the transition is allowed and which deviation,
if any, was recorded.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			inst, err := deps.manager.Load(args[0])
			if err != nil {
				return err
			}

			var metrics *workflow.Metrics
			if metricsJSON == "" && inst.SignificanceMetrics != nil {
				raw, err := json.Marshal(inst.SignificanceMetrics)
				if err != nil {
					return err
				}
				metricsJSON = string(raw)
			}
			if metricsJSON != "" {
				metrics = &workflow.Metrics{}
				if err := json.Unmarshal([]byte(metricsJSON), metrics); err != nil {
					return fmt.Errorf("parse metrics: %w", err)
				}
			}

			validation := deps.validator.Validate(inst, args[1], metrics)
			enforcement, err := deps.enforcer.Enforce(inst, args[1], validation, skipReason, forceSkip)
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				Validation  workflow.ValidationResult  `json:"validation"`
				Enforcement workflow.EnforcementResult `json:"enforcement"`
			}{validation, enforcement})
		},
	}

	cmd.Flags().StringVar(&skipReason, "skip-reason", "", "Reason for skipping triads")
	cmd.Flags().BoolVar(&forceSkip, "force", false, "Emergency override in strict mode (reason required)")
	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "Significance metrics as JSON")
	return cmd
}

func newWorkflowCompleteTriadCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "complete-triad <id> <triad>",
		Short: "Mark a triad completed and advance the instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			inst, err := deps.manager.MarkTriadCompleted(deps.schema, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}
}

func newWorkflowMetricsCommand(state *rootState) *cobra.Command {
	var metricsJSON string

	cmd := &cobra.Command{
		Use:   "metrics <id>",
		Short: "Merge significance metrics into an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			var metrics map[string]any
			if err := json.Unmarshal([]byte(metricsJSON), &metrics); err != nil {
				return fmt.Errorf("parse metrics: %w", err)
			}
			inst, err := deps.manager.MergeMetrics(args[0], metrics)
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}

	cmd.Flags().StringVar(&metricsJSON, "metrics", "", "Metrics as JSON")
	cmd.MarkFlagRequired("metrics")
	return cmd
}

func newWorkflowCompleteCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a workflow and archive the instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			inst, err := deps.manager.Complete(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}
}

func newWorkflowAbandonCommand(state *rootState) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abandon <id>",
		Short: "Abandon a workflow and archive the instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildWorkflow(state)
			if err != nil {
				return err
			}
			inst, err := deps.manager.Abandon(args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(cmd, inst)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the workflow is abandoned")
	return cmd
}
