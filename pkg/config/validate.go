package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/params"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// A provider block and an explicit URI would race each other.
	if c.Server.TrackingURI != "" && c.Server.Connection.Provider != "" {
		errs = append(errs, fmt.Errorf("server.tracking_uri and server.connection.provider are mutually exclusive"))
	}

	if c.Tracking.Experiment.Name == "" {
		errs = append(errs, fmt.Errorf("tracking.experiment.name must not be empty"))
	}

	if id := c.Tracking.Run.ID; id != "" && !api.ValidateRunID(id) {
		errs = append(errs, fmt.Errorf("tracking.run.id %q is not a valid run ID", id))
	}

	if s := params.Strategy(c.Tracking.Params.LongParamsStrategy); !s.Valid() {
		errs = append(errs, fmt.Errorf("tracking.params.long_params_strategy must be \"fail\", \"truncate\" or \"tag\", got %q",
			c.Tracking.Params.LongParamsStrategy))
	}

	if c.Tracking.Params.DictParams.Sep == "" {
		errs = append(errs, fmt.Errorf("tracking.params.dict_params.sep must not be empty"))
	}

	if p := c.UI.Port; p != "" {
		if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("ui.port must be a port number, got %q", p))
		}
	}

	return errors.Join(errs...)
}
