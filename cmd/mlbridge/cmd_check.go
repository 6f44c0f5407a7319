package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlbridge-io/mlbridge/pkg/config"
)

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and tracking server connectivity",
	Long: `Loads and validates the configuration, resolves the tracking and
registry URIs, opens the store backend and runs a health check against
it. Each resolution step is printed; the exit code is non-zero when any
step fails.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "Overall timeout for the connectivity check")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()
	out := cmd.OutOrStdout()

	if path := config.DiscoverConfigFile(configPath); path != "" {
		fmt.Fprintf(out, "config file:     %s\n", path)
	} else {
		fmt.Fprintln(out, "config file:     none (built-in defaults)")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "config:          valid")

	trackingURI, registryURI, err := config.ResolveURIs(ctx, cfg, projectPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "tracking URI:    %s\n", trackingURI)
	fmt.Fprintf(out, "registry URI:    %s\n", registryURI)

	store, err := config.OpenStore(ctx, trackingURI, cfg.Server.Credentials)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("tracking server unreachable: %w", err)
	}
	fmt.Fprintln(out, "tracking server: reachable")
	return nil
}
