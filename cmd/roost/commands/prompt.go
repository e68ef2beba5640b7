package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/resolver"
	"github.com/dyluth/roost/pkg/store"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <instance> <message>",
	Short: "Send a prompt to an idle instance",
	Long: `Send a follow-up prompt to an idle agent instance and stream the turn's
events until it completes. The instance keeps its session, so the agent
retains context from earlier turns.

The instance may be given as a full UUID or a unique short prefix.`,
	Args: cobra.ExactArgs(2),
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	instanceID, err := resolver.Instance(ctx, env.client, args[0])
	if err != nil {
		if ambErr, ok := err.(*resolver.AmbiguousError); ok {
			printer.Println(resolver.FormatAmbiguousError(ambErr))
		}
		return err
	}

	if err := env.sup.Prompt(ctx, instanceID, args[1], printEvent); err != nil {
		return err
	}
	if err := env.sup.Wait(ctx, instanceID); err != nil {
		return err
	}

	instance, err := env.sup.Instance(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status == store.StatusError {
		return printer.Error(
			"Turn failed",
			instance.LastError,
			[]string{"Check 'roost logs " + shortID(instanceID) + "' for the full event stream"},
		)
	}
	return nil
}
