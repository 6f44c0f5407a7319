package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented mlbridge.yaml template",
	Long: `Writes a commented mlbridge.yaml into the project directory.

The template documents every setting with its default value. Uncomment
and edit the entries you want to change. An existing file is never
overwritten unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing mlbridge.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(projectPath, "mlbridge.yaml")
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

const configTemplate = `# mlbridge configuration. All settings are optional; the values shown in
# comments are the defaults. Environment overrides: MLBRIDGE_TRACKING_URI,
# MLBRIDGE_REGISTRY_URI, MLBRIDGE_EXPERIMENT, MLBRIDGE_RUN_NAME.

# SERVER ---------------------------------------------------------------------
server:
  # Where runs are recorded: an http(s) server, a local path or file:// URI,
  # a postgres:// DSN, or the name of a connection provider ("databricks").
  # Falls back to $MLFLOW_TRACKING_URI, then to the local "mlruns" directory.
  #tracking_uri: http://localhost:5000

  # Model registry address when it differs from the tracking server.
  #registry_uri:

  # Resolve the tracking URI through a named provider instead of spelling
  # it out. Mutually exclusive with tracking_uri.
  #connection:
  #  provider: azureml
  #  options:
  #    subscription_id: ...
  #    resource_group: ...
  #    workspace_name: ...

  # Credentials for the tracking client. Keys with a _file suffix are read
  # from the referenced file (for secrets mounted by the deployment).
  #credentials:
  #  MLFLOW_TRACKING_TOKEN: ...
  #  MLFLOW_TRACKING_TOKEN_file: /run/secrets/tracking-token

# TRACKING -------------------------------------------------------------------
tracking:
  # Pipelines listed here run without any tracking.
  #disable_tracking:
  #  pipelines: []

  experiment:
    # Experiment the pipeline runs are created under.
    #name: Default
    # Restore the experiment if it was soft-deleted on the server.
    #restore_if_deleted: true

  run:
    # Resume this run ID instead of creating a new run.
    #id:
    # Name for new runs (defaults to a generated name).
    #name:
    # Start pipeline runs nested under an already active run.
    #nested: true

  params:
    dict_params:
      # Flatten dictionary parameters into dotted keys before logging.
      #flatten: false
      # Recurse into nested dictionaries while flattening.
      #recursive: true
      # Separator for flattened keys.
      #sep: "."
    # What to do with parameter values over the server limit:
    # "fail", "truncate" or "tag".
    #long_params_strategy: fail

# UI -------------------------------------------------------------------------
ui:
  # Address printed by "mlbridge ui" for file-backed stores.
  #host: 127.0.0.1
  #port: "5000"
`
