package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/resolver"
	"github.com/dyluth/roost/pkg/faults"
)

var bbCmd = &cobra.Command{
	Use:   "bb",
	Short: "Read and write team blackboards",
	Long: `Inspect and edit a team's shared blackboard. Every write bumps the
key's version, so concurrent writers never silently clobber each other's
version history.`,
}

var bbListCmd = &cobra.Command{
	Use:   "list <team>",
	Short: "List all blackboard entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runBBList,
}

var bbGetCmd = &cobra.Command{
	Use:   "get <team> <key>",
	Short: "Read one blackboard entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runBBGet,
}

var bbSetCmd = &cobra.Command{
	Use:   "set <team> <key> <value>",
	Short: "Write a blackboard entry",
	Args:  cobra.ExactArgs(3),
	RunE:  runBBSet,
}

var bbRmCmd = &cobra.Command{
	Use:   "rm <team> <key>",
	Short: "Delete a blackboard entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runBBRm,
}

func init() {
	bbCmd.AddCommand(bbListCmd, bbGetCmd, bbSetCmd, bbRmCmd)
	rootCmd.AddCommand(bbCmd)
}

func runBBList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	notes, err := env.teams.Notes(ctx, teamID)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		printer.Println("Blackboard is empty.")
		return nil
	}

	printer.Printf("%-20s %-8s %-12s %s\n", "KEY", "VERSION", "UPDATED BY", "VALUE")
	for _, note := range notes {
		printer.Printf("%-20s v%-7d %-12s %s\n", note.Key, note.Version, shortID(note.UpdatedBy), note.Value)
	}
	return nil
}

func runBBGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	note, err := env.teams.Note(ctx, teamID, args[1])
	if err != nil {
		if faults.IsNotFound(err) {
			return printer.Error(
				"Key not found",
				"No blackboard entry named '"+args[1]+"' on this team.",
				[]string{"Run 'roost bb list " + args[0] + "' to see existing keys"},
			)
		}
		return err
	}

	printer.Printf("%s\n", note.Value)
	printer.Info("(v%d, updated by %s at %s)\n", note.Version, shortID(note.UpdatedBy),
		time.UnixMilli(note.UpdatedAtMs).Format(time.RFC3339))
	return nil
}

func runBBSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	note, err := env.teams.WriteNote(ctx, teamID, args[1], args[2], "cli")
	if err != nil {
		return err
	}
	printer.Success("Set %s (v%d)\n", note.Key, note.Version)
	return nil
}

func runBBRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	teamID, err := resolver.Team(ctx, env.client, args[0])
	if err != nil {
		return err
	}
	existed, err := env.teams.DeleteNote(ctx, teamID, args[1])
	if err != nil {
		return err
	}
	if !existed {
		printer.Warning("Key '%s' did not exist\n", args[1])
		return nil
	}
	printer.Success("Deleted %s\n", args[1])
	return nil
}
