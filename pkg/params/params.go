// Package params logs pipeline parameters to a tracking run. Nested
// dictionaries can be flattened to dotted keys, and values longer than the
// tracking server's limit are handled by a configurable strategy.
package params

import (
	"context"
	"fmt"
	"sort"

	"github.com/mlbridge-io/mlbridge/internal/flatten"
	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// MaxValueLength is the longest parameter value accepted by tracking
// servers. Longer values trip the configured Strategy.
const MaxValueLength = 250

// Strategy decides what happens to parameter values over MaxValueLength.
type Strategy string

const (
	// StrategyFail rejects the value with an error. The default.
	StrategyFail Strategy = "fail"

	// StrategyTruncate logs the first MaxValueLength bytes.
	StrategyTruncate Strategy = "truncate"

	// StrategyTag stores the full value as a run tag instead of a param.
	StrategyTag Strategy = "tag"
)

// Valid reports whether s names a known strategy. The empty string counts as
// StrategyFail.
func (s Strategy) Valid() bool {
	switch s {
	case "", StrategyFail, StrategyTruncate, StrategyTag:
		return true
	}
	return false
}

// Options configure Flatten and Log.
type Options struct {
	// FlattenDicts expands map values into separator-joined keys.
	FlattenDicts bool

	// Recursive follows nesting all the way down; otherwise only one level
	// is expanded. Only meaningful with FlattenDicts.
	Recursive bool

	// Sep joins flattened key segments. Defaults to ".".
	Sep string

	// LongValueStrategy handles values over MaxValueLength.
	LongValueStrategy Strategy
}

// Flatten expands nested map values per the options. Without FlattenDicts
// the input is returned unchanged.
func Flatten(values map[string]any, opts Options) map[string]any {
	if !opts.FlattenDicts {
		return values
	}
	return flatten.Map(values, opts.Sep, opts.Recursive)
}

// Unflatten rebuilds a nested map from separator-joined keys.
func Unflatten(values map[string]any, sep string) map[string]any {
	return flatten.Unflatten(values, sep)
}

// Log writes values as parameters of the run, in sorted key order. Values
// are stringified with %v; map values obey the flattening options.
func Log(ctx context.Context, store tracking.Store, runID string, values map[string]any, opts Options) error {
	if !opts.LongValueStrategy.Valid() {
		return api.NewConfigurationError("unknown long_params_strategy %q", opts.LongValueStrategy)
	}
	values = Flatten(values, opts)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := fmt.Sprintf("%v", values[key])
		if len(value) > MaxValueLength {
			switch opts.LongValueStrategy {
			case StrategyTruncate:
				value = value[:MaxValueLength]
			case StrategyTag:
				if err := store.SetTag(ctx, runID, api.RunTag{Key: key, Value: value}); err != nil {
					return fmt.Errorf("tagging long parameter %q: %w", key, err)
				}
				continue
			default:
				return api.NewInvalidParameterError(
					"parameter %q value is %d bytes, over the %d byte limit (strategy %q)",
					key, len(value), MaxValueLength, StrategyFail)
			}
		}
		if err := store.LogParam(ctx, runID, api.Param{Key: key, Value: value}); err != nil {
			return fmt.Errorf("logging parameter %q: %w", key, err)
		}
	}
	return nil
}
