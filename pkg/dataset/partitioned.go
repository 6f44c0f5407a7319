package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mlbridge-io/mlbridge/internal/flatten"
	"github.com/mlbridge-io/mlbridge/pkg/api"
	"github.com/mlbridge-io/mlbridge/pkg/debug"
	"github.com/mlbridge-io/mlbridge/pkg/observability"
	"github.com/mlbridge-io/mlbridge/pkg/tracking"
)

// Loader lazily loads one partition's value.
type Loader func(ctx context.Context) (any, error)

// PartitionedConfig configures a PartitionedDataSet.
type PartitionedConfig struct {
	// DataSet is the inner dataset configuration block, built once per
	// partition. Required; its "type" key selects the inner dataset.
	DataSet map[string]any

	// RunID anchors child runs under an explicit parent run. Empty anchors
	// under the session's root run.
	RunID string

	// DynamicParams lists flattened inner-config keys (such as
	// "save_args.registered_model_name") whose values get the partition
	// name prefixed on every child build.
	DynamicParams []string
}

// PartitionedDataSet fans a map of partition-key to value out into one
// child run per key. Each save starts (or resumes) a child run named after
// the key, nested under the parent run, and delegates the value to an inner
// dataset scoped to that child. Keys may contain "/"; child-run names
// replace it with `\`.
type PartitionedDataSet struct {
	base
	inner         map[string]any
	dynamicParams []string
}

var _ DataSet = (*PartitionedDataSet)(nil)

func init() {
	RegisterType("partitioned", func(sess *tracking.Session, cfg map[string]any) (DataSet, error) {
		return NewPartitioned(sess, PartitionedConfig{
			DataSet:       mapOpt(cfg, "data_set"),
			RunID:         stringOpt(cfg, "run_id"),
			DynamicParams: stringSliceOpt(cfg, "dynamic_params"),
		})
	})
}

// NewPartitioned creates a PartitionedDataSet.
func NewPartitioned(sess *tracking.Session, cfg PartitionedConfig) (*PartitionedDataSet, error) {
	if len(cfg.DataSet) == 0 {
		return nil, api.NewConfigurationError("partitioned dataset requires a data_set block")
	}
	params := append([]string(nil), cfg.DynamicParams...)
	sort.Strings(params)
	return &PartitionedDataSet{
		base:          base{sess: sess, runID: cfg.RunID},
		inner:         cfg.DataSet,
		dynamicParams: params,
	}, nil
}

// Parent returns the run the children nest under: the pinned run ID when
// set, else the session's root run. Without any active run a new one is
// started to anchor the children.
func (p *PartitionedDataSet) Parent(ctx context.Context) (*api.Run, error) {
	if p.runID != "" {
		return p.store().GetRun(ctx, p.runID)
	}
	if root := p.sess.RootRun(); root != nil {
		return root.Run(), nil
	}
	a, err := p.sess.StartRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting anchor run: %w", err)
	}
	return a.Run(), nil
}

// FindChildren maps child-run name to run ID for every run nested under the
// parent. ErrNotFound when the parent has no children yet.
func (p *PartitionedDataSet) FindChildren(ctx context.Context) (map[string]string, error) {
	parent, err := p.Parent(ctx)
	if err != nil {
		return nil, err
	}
	filter := fmt.Sprintf("tags.%s = '%s'", api.TagParentRunID, parent.Info.RunID)
	runs, err := p.store().SearchRuns(ctx, []string{parent.Info.ExperimentID}, filter, 0)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no child runs under parent %s: %w", parent.Info.RunID, tracking.ErrNotFound)
	}

	// runs arrive newest first; on a duplicate name the newest child wins
	children := make(map[string]string, len(runs))
	for _, r := range runs {
		name := r.Info.RunName
		if name == "" {
			name, _ = r.Data.Tag(api.TagRunName)
		}
		if _, seen := children[name]; !seen {
			children[name] = r.Info.RunID
		}
	}
	return children, nil
}

// StartChildRun starts the child run for one partition key and pushes it
// onto the session's run stack, resuming the existing child of that name if
// one is already there. The caller ends the returned run.
func (p *PartitionedDataSet) StartChildRun(ctx context.Context, partition string) (*tracking.ActiveRun, error) {
	name := api.NormalizeRunName(partition)
	parent, err := p.Parent(ctx)
	if err != nil {
		return nil, err
	}

	children, err := p.FindChildren(ctx)
	if err != nil && !errors.Is(err, tracking.ErrNotFound) {
		return nil, err
	}
	if id, ok := children[name]; ok {
		return p.sess.StartRun(ctx, tracking.WithRunID(id))
	}

	// children inherit the parent's tags except its run name; the parent
	// tag always points at the anchor, whatever the inherited tags said
	tags := make(map[string]string, len(parent.Data.Tags))
	for _, t := range parent.Data.Tags {
		if t.Key == api.TagRunName {
			continue
		}
		tags[t.Key] = t.Value
	}
	return p.sess.StartRun(ctx,
		tracking.WithParent(parent.Info.RunID),
		tracking.WithRunName(name),
		tracking.WithTags(tags),
	)
}

// Save dispatches a map[string]any of partition values, one child run per
// key, in sorted key order. The first failing partition aborts the
// remainder.
func (p *PartitionedDataSet) Save(ctx context.Context, value any) error {
	if !p.LoggingActive() {
		return nil
	}
	data, ok := value.(map[string]any)
	if !ok {
		return opErr("save", "partitioned", api.NewInvalidParameterError(
			"unsupported payload type %T (want map[string]any)", value))
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := p.savePartition(ctx, key, data[key]); err != nil {
			return opErr("save", "partitioned", fmt.Errorf("partition %q: %w", key, err))
		}
	}
	return nil
}

func (p *PartitionedDataSet) savePartition(ctx context.Context, key string, value any) error {
	name := api.NormalizeRunName(key)
	innerType := stringOpt(p.inner, "type")

	child, err := p.StartChildRun(ctx, name)
	if err != nil {
		observability.PartitionSavesTotal.WithLabelValues(innerType, "error").Inc()
		return err
	}
	debug.Log("dataset", "saving partition", "partition", name, "run", child.ID())
	observability.ChildRunsActive.Inc()
	defer observability.ChildRunsActive.Dec()

	ds, err := p.childDataSet(name, nil)
	if err != nil {
		observability.PartitionSavesTotal.WithLabelValues(innerType, "error").Inc()
		child.EndWithStatus(ctx, api.RunStatusFailed)
		return err
	}
	if err := ds.Save(ctx, value); err != nil {
		observability.PartitionSavesTotal.WithLabelValues(innerType, "error").Inc()
		child.EndWithStatus(ctx, api.RunStatusFailed)
		return err
	}
	observability.PartitionSavesTotal.WithLabelValues(innerType, "ok").Inc()
	return child.End(ctx)
}

// Load returns a map of child-run name to lazy loader, one per discovered
// child.
func (p *PartitionedDataSet) Load(ctx context.Context) (any, error) {
	loaders, err := p.Loaders(ctx)
	if err != nil {
		return nil, err
	}
	return loaders, nil
}

// Loaders is the typed form of Load. Each loader reads one child run
// through an inner dataset pinned to that run ID.
func (p *PartitionedDataSet) Loaders(ctx context.Context) (map[string]Loader, error) {
	children, err := p.FindChildren(ctx)
	if err != nil {
		return nil, opErr("load", "partitioned", err)
	}
	loaders := make(map[string]Loader, len(children))
	for name, id := range children {
		ds, err := p.childDataSet(name, map[string]any{"run_id": id})
		if err != nil {
			return nil, opErr("load", "partitioned", err)
		}
		loaders[name] = ds.Load
	}
	return loaders, nil
}

// Exists reports whether the parent has any child runs.
func (p *PartitionedDataSet) Exists(ctx context.Context) (bool, error) {
	_, err := p.FindChildren(ctx)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			return false, nil
		}
		return false, opErr("exists", "partitioned", err)
	}
	return true, nil
}

// childDataSet builds the inner dataset for one normalized partition name.
// extra entries override the inner configuration before the dynamic
// parameters are rewritten.
func (p *PartitionedDataSet) childDataSet(name string, extra map[string]any) (DataSet, error) {
	merged := make(map[string]any, len(p.inner)+len(extra))
	for k, v := range p.inner {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	cfg := flatten.Map(merged, ".", true)
	for _, param := range p.dynamicParams {
		if v, ok := cfg[param]; ok {
			cfg[param] = api.ChildModelName(name, fmt.Sprintf("%v", v))
		}
	}
	return FromConfig(p.sess, flatten.Unflatten(cfg, "."))
}

// Describe returns the dataset configuration.
func (p *PartitionedDataSet) Describe() map[string]any {
	return map[string]any{
		"type":           "partitioned",
		"data_set":       p.inner,
		"run_id":         p.runID,
		"dynamic_params": p.dynamicParams,
	}
}

// stringSliceOpt reads a list-of-strings config key, tolerating absence.
func stringSliceOpt(cfg map[string]any, key string) []string {
	raw, _ := cfg[key].([]any)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
