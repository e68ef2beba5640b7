package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/resolver"
)

var (
	removeStopped bool
)

var stopCmd = &cobra.Command{
	Use:   "stop <instance>",
	Short: "Stop an agent instance",
	Long: `Terminate an agent instance. A turn in progress is cancelled; the
instance always ends up terminated. Stopping an already terminated
instance is a no-op.

Use --rm to also remove the instance record and its logs.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&removeStopped, "rm", false, "Remove the instance record and logs after stopping")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	instanceID, err := resolver.Instance(ctx, env.client, args[0])
	if err != nil {
		return err
	}

	if err := env.sup.Stop(ctx, instanceID); err != nil {
		return err
	}
	printer.Success("Stopped %s\n", shortID(instanceID))

	if removeStopped {
		if err := env.sup.Remove(ctx, instanceID); err != nil {
			return err
		}
		printer.Success("Removed %s\n", shortID(instanceID))
	}
	return nil
}
