// Command mlbridge manages project configuration and tracking server
// connectivity for pipelines logging to MLflow-compatible backends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlbridge-io/mlbridge/pkg/debug"
)

var (
	configPath  string
	projectPath string
)

var rootCmd = &cobra.Command{
	Use:   "mlbridge",
	Short: "Pipeline experiment tracking for MLflow-compatible servers",
	Long: `mlbridge wires pipeline runs into an MLflow-compatible tracking server.

It resolves tracking URIs through named connection providers, opens the
matching store backend, and organizes pipeline output into nested runs.

Commands:
  init   write a commented mlbridge.yaml template into the project
  check  validate the configuration and tracking server connectivity
  ui     print the browsable address of the tracking UI`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.Init("", "")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to mlbridge.yaml (default: discovery order)")
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".", "Project directory for relative tracking paths")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(uiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
