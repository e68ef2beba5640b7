package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/supervisor"
)

var (
	launchMessage string
)

var launchCmd = &cobra.Command{
	Use:   "launch <agent>",
	Short: "Launch an agent instance",
	Long: `Launch a new instance of a configured agent.

Without --message the instance is created idle, ready for 'roost prompt'.
With --message the first turn starts immediately and its events stream to
the terminal until the turn completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().StringVarP(&launchMessage, "message", "m", "", "First prompt for the instance")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	agentName := args[0]
	agent, err := agentTemplate(env.cfg, agentName)
	if err != nil {
		return err
	}

	spec := supervisor.LaunchSpec{
		AgentName:   agentName,
		DisplayName: agent.DisplayName,
		Runtime:     store.RuntimeKind(agent.Runtime),
		WorkDir:     agent.WorkDir,
	}

	instance, err := env.sup.Launch(ctx, spec, launchMessage, printEvent)
	if err != nil {
		return err
	}
	printer.Success("Launched %s (%s)\n", instance.DisplayName, shortID(instance.ID))

	if launchMessage != "" {
		if err := env.sup.Wait(ctx, instance.ID); err != nil {
			return err
		}
		final, err := env.sup.Instance(ctx, instance.ID)
		if err != nil {
			return err
		}
		if final.Status == store.StatusError {
			return printer.Error(
				"First turn failed",
				final.LastError,
				[]string{"Check 'roost logs " + shortID(instance.ID) + "' for the full event stream"},
			)
		}
	}
	return nil
}
