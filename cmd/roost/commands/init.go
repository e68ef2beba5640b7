package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
)

var (
	forceInit bool
)

// defaultWorkbench is the scaffolded configuration. It runs against a local
// Redis and declares one Claude agent working in the current directory.
const defaultWorkbench = `version: "1.0"
workbench: default

redis:
  addr: localhost:6379

# runtimes:
#   claude:
#     command: claude
#     auto_mode: true
#   codex:
#     command: codex
#     auto_mode: true

agents:
  coder:
    runtime: claude
    workdir: .
    display_name: Coder

# retention:
#   logs: 1000
#   events: 10000
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Roost workbench",
	Long: `Initialize a new Roost workbench with a default configuration.

Creates:
  • workbench.yml - Workbench configuration with one example agent

Use --force to overwrite an existing configuration.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing workbench.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return printer.Error(
			fmt.Sprintf("%s already exists", configPath),
			"This directory is already initialized as a Roost workbench.",
			[]string{"Use --force to overwrite the existing configuration"},
		)
	}

	if err := os.WriteFile(configPath, []byte(defaultWorkbench), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	printer.Success("Created %s\n", configPath)
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Edit %s to declare your agents\n", configPath)
	printer.Info("  2. Start Redis (e.g. docker run -p 6379:6379 redis)\n")
	printer.Info("  3. Run 'roost launch coder -m \"your first prompt\"'\n")
	return nil
}
