package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlbridge-io/mlbridge/pkg/config"
)

var (
	uiHost string
	uiPort string
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Print the browsable address of the tracking UI",
	Long: `Resolves the configured tracking URI and prints where to browse it.

Server-backed URIs are browsable directly. File and database backed
stores have no built-in UI, so the command prints the configured local
address together with the server command that would serve them there.`,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().StringVar(&uiHost, "host", "", "Override the configured UI host")
	uiCmd.Flags().StringVar(&uiPort, "port", "", "Override the configured UI port")
}

func runUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if uiHost != "" {
		cfg.UI.Host = uiHost
	}
	if uiPort != "" {
		cfg.UI.Port = uiPort
	}

	trackingURI, _, err := config.ResolveURIs(cmd.Context(), cfg, projectPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case strings.HasPrefix(trackingURI, "http://"), strings.HasPrefix(trackingURI, "https://"):
		fmt.Fprintf(out, "tracking UI: %s\n", trackingURI)
	case trackingURI == "databricks", strings.HasPrefix(trackingURI, "databricks://"):
		fmt.Fprintln(out, "tracking UI: hosted by Databricks, open the workspace in a browser")
	default:
		addr := net.JoinHostPort(cfg.UI.Host, cfg.UI.Port)
		fmt.Fprintf(out, "tracking UI: http://%s\n", addr)
		fmt.Fprintf(out, "%s has no built-in UI, serve it with:\n", trackingURI)
		fmt.Fprintf(out, "  mlflow ui --backend-store-uri %s --host %s --port %s\n", trackingURI, cfg.UI.Host, cfg.UI.Port)
	}
	return nil
}
