package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/pkg/store"
)

var (
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent instances",
	Long: `List all agent instances in the workbench with their status and age.

Use --json for machine-readable output.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	instances, err := env.sup.List(ctx)
	if err != nil {
		return err
	}

	if len(instances) == 0 {
		if listJSON {
			fmt.Println("[]")
		} else {
			fmt.Println("No agent instances found.")
			fmt.Println()
			fmt.Println("Run 'roost launch <agent>' to start one.")
		}
		return nil
	}

	if listJSON {
		outputJSON(instances)
	} else {
		outputInstanceTable(instances)
	}
	return nil
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputInstanceTable(instances []*store.AgentInstance) {
	// Print header
	fmt.Printf("%-10s %-15s %-8s %-11s %-10s %s\n", "ID", "AGENT", "RUNTIME", "STATUS", "AGE", "LAST ACTIVE")

	for _, instance := range instances {
		age := formatDuration(time.Since(time.UnixMilli(instance.StartedAtMs)))
		lastActive := formatDuration(time.Since(time.UnixMilli(instance.LastActiveMs))) + " ago"
		fmt.Printf("%-10s %-15s %-8s %-11s %-10s %s\n",
			shortID(instance.ID), instance.AgentName, instance.Runtime, instance.Status, age, lastActive)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}
