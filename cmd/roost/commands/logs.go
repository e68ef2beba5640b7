package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/internal/resolver"
	"github.com/dyluth/roost/pkg/store"
)

var (
	clearLogs bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <instance>",
	Short: "Show an instance's event log",
	Long: `Print the retained log entries of an agent instance, oldest first.
Retention is capped per instance; older entries are evicted.

Use --clear to drop the retained entries instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVar(&clearLogs, "clear", false, "Clear the instance's retained logs")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
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

	if clearLogs {
		if err := env.sup.ClearLogs(ctx, instanceID); err != nil {
			return err
		}
		printer.Success("Cleared logs for %s\n", shortID(instanceID))
		return nil
	}

	entries, err := env.sup.Logs(ctx, instanceID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printer.Println("No log entries.")
		return nil
	}

	for _, entry := range entries {
		ts := time.UnixMilli(entry.TimestampMs).Format("15:04:05")
		if entry.Level == store.LogError {
			printer.Warning("%s %s\n", ts, entry.Message)
		} else {
			printer.Printf("%s %s\n", ts, entry.Message)
		}
	}
	return nil
}
