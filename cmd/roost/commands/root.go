package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/config"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roost",
	Short: "Roost - Coding agent orchestrator",
	Long: `Roost supervises autonomous coding agents as managed processes: launch
them, prompt them, group them into teams around a shared blackboard, and
automate them with declared multi-step workflows.

All state lives in Redis under a named workbench, so every instance, event
and run is inspectable and survives restarts.`,
	Version: version,
	// Errors are already rendered by the printer package.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the workbench configuration")
}
