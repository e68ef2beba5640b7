package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/resolver"
	"github.com/dyluth/roost/pkg/store"
)

var (
	workflowJSON bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage and run workflows",
	Long: `Declare multi-step automations over agents and run them. A workflow is
defined in a YAML file; each run records per-step outcomes durably.`,
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a workflow from a YAML definition",
	Long: `Create a workflow from a YAML file. Example definition:

  name: review-and-fix
  steps:
    - id: review
      agent: reviewer
    - id: fix
      agent: coder
      input: ${steps.review.output}
      retry:
        max_attempts: 3
        backoff_ms: 1000
    - id: report
      agent: coder
      condition: "!steps.fix.completed"
      input: "Summarize why the fix failed: ${steps.fix.output}"`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowCreate,
}

var workflowUpdateCmd = &cobra.Command{
	Use:   "update <workflow> <file>",
	Short: "Replace a workflow definition from a YAML file",
	Long:  `Replace an existing workflow's definition. Past runs are retained.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkflowUpdate,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE:  runWorkflowList,
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow>",
	Short: "Show a workflow definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowShow,
}

var workflowRmCmd = &cobra.Command{
	Use:   "rm <workflow>",
	Short: "Remove a workflow definition",
	Long:  `Remove a workflow definition. Past runs are retained.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRm,
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <workflow> [input]",
	Short: "Execute a workflow",
	Long: `Execute a workflow with the given input and stream agent events until
the run reaches a terminal status. Exits non-zero if the run fails.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWorkflowRun,
}

var workflowRunsCmd = &cobra.Command{
	Use:   "runs <workflow>",
	Short: "List a workflow's runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowRuns,
}

func init() {
	workflowShowCmd.Flags().BoolVar(&workflowJSON, "json", false, "Output in JSON format")
	workflowRunsCmd.Flags().BoolVar(&workflowJSON, "json", false, "Output in JSON format")

	workflowCmd.AddCommand(workflowCreateCmd, workflowUpdateCmd, workflowListCmd, workflowShowCmd, workflowRmCmd, workflowRunCmd, workflowRunsCmd)
	rootCmd.AddCommand(workflowCmd)
}

// workflowFile is the YAML shape of a workflow definition.
type workflowFile struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Trigger     string             `yaml:"trigger,omitempty"`
	Steps       []workflowFileStep `yaml:"steps"`
}

type workflowFileStep struct {
	ID              string `yaml:"id"`
	Agent           string `yaml:"agent"`
	Input           string `yaml:"input,omitempty"`
	Condition       string `yaml:"condition,omitempty"`
	ContinueOnError bool   `yaml:"continue_on_error,omitempty"`
	FreshInstance   bool   `yaml:"fresh_instance,omitempty"`
	Retry           struct {
		MaxAttempts int   `yaml:"max_attempts,omitempty"`
		BackoffMs   int64 `yaml:"backoff_ms,omitempty"`
	} `yaml:"retry,omitempty"`
}

// workflowFromFile reads and converts a YAML workflow definition.
func workflowFromFile(path string) (*store.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	var file workflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	w := &store.Workflow{
		Name:        file.Name,
		Description: file.Description,
		Trigger:     file.Trigger,
	}
	for _, step := range file.Steps {
		w.Steps = append(w.Steps, store.WorkflowStep{
			ID:              step.ID,
			Type:            store.StepAgent,
			Agent:           step.Agent,
			Input:           step.Input,
			Condition:       step.Condition,
			ContinueOnError: step.ContinueOnError,
			FreshInstance:   step.FreshInstance,
			Retry: store.RetryPolicy{
				MaxAttempts: step.Retry.MaxAttempts,
				BackoffMs:   step.Retry.BackoffMs,
			},
		})
	}
	return w, nil
}

func runWorkflowCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	w, err := workflowFromFile(args[0])
	if err != nil {
		return err
	}

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := env.workflows.Create(ctx, w); err != nil {
		return err
	}
	printer.Success("Created workflow %s (%s) with %d steps\n", w.Name, shortID(w.ID), len(w.Steps))
	return nil
}

func runWorkflowUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	w, err := workflowFromFile(args[1])
	if err != nil {
		return err
	}

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workflowID, err := resolver.Workflow(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	w.ID = workflowID

	if err := env.workflows.Update(ctx, w); err != nil {
		return err
	}
	printer.Success("Updated workflow %s (%s), now %d steps\n", w.Name, shortID(w.ID), len(w.Steps))
	return nil
}

func runWorkflowList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workflows, err := env.workflows.List(ctx)
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows found.")
		return nil
	}

	fmt.Printf("%-10s %-25s %-8s %s\n", "ID", "NAME", "STEPS", "TRIGGER")
	for _, w := range workflows {
		fmt.Printf("%-10s %-25s %-8d %s\n", shortID(w.ID), w.Name, len(w.Steps), w.Trigger)
	}
	return nil
}

func runWorkflowShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workflowID, err := resolver.Workflow(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	w, err := env.workflows.Get(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflowJSON {
		outputJSON(w)
		return nil
	}

	printer.Printf("Workflow: %s (%s)\n", w.Name, shortID(w.ID))
	if w.Description != "" {
		printer.Printf("About:    %s\n", w.Description)
	}
	printer.Printf("\nSteps:\n")
	for i, step := range w.Steps {
		printer.Printf("  %d. %s (agent: %s)\n", i+1, step.ID, step.Agent)
		if step.Condition != "" {
			printer.Printf("     when: %s\n", step.Condition)
		}
		if step.Input != "" {
			printer.Printf("     input: %s\n", step.Input)
		}
		if step.Retry.MaxAttempts > 1 {
			printer.Printf("     retry: %d attempts\n", step.Retry.MaxAttempts)
		}
	}
	return nil
}

func runWorkflowRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workflowID, err := resolver.Workflow(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	if err := env.workflows.Delete(ctx, workflowID); err != nil {
		return err
	}
	printer.Success("Removed workflow %s\n", shortID(workflowID))
	return nil
}

func runWorkflowRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workflowID, err := resolver.Workflow(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	input := ""
	if len(args) > 1 {
		input = args[1]
	}

	printer.Step("Running workflow\n")
	run, err := env.workflows.Execute(ctx, workflowID, input, printEvent)
	if err != nil {
		return err
	}

	printer.Printf("\nRun %s:\n", shortID(run.ID))
	for _, step := range run.Steps {
		switch step.Status {
		case store.StepCompleted:
			printer.Success("%s (%d attempt(s), %s)\n", step.StepID, step.Attempts, formatDuration(time.Duration(step.DurationMs)*time.Millisecond))
		case store.StepSkipped:
			printer.Printf("- %s skipped\n", step.StepID)
		case store.StepFailed:
			printer.Warning("%s failed: %s\n", step.StepID, step.Error)
		}
	}

	if run.Status == store.RunFailed {
		return printer.Error("Workflow run failed", run.Error, nil)
	}
	printer.Success("Workflow run completed\n")
	return nil
}

func runWorkflowRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workflowID, err := resolver.Workflow(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	runs, err := env.workflows.Runs(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflowJSON {
		outputJSON(runs)
		return nil
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet.")
		return nil
	}

	fmt.Printf("%-10s %-11s %-20s %s\n", "ID", "STATUS", "STARTED", "STEPS")
	for _, run := range runs {
		started := time.UnixMilli(run.StartedAtMs).Format("2006-01-02 15:04:05")
		fmt.Printf("%-10s %-11s %-20s %d\n", shortID(run.ID), run.Status, started, len(run.Steps))
	}
	return nil
}
