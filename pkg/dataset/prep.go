package dataset

import (
	"context"
	"sort"
	"sync"
)

// PartitionedRunPrep pre-creates child runs that several partitioned
// datasets are about to write. Concurrent pipeline runners can hand their
// upcoming outputs to Prepare before saving, so that two saves of the same
// partition name never race to create its child run.
type PartitionedRunPrep struct {
	mu       sync.Mutex
	datasets map[string]*PartitionedDataSet
	prepared map[string]bool
}

// NewPartitionedRunPrep creates an empty prep.
func NewPartitionedRunPrep() *PartitionedRunPrep {
	return &PartitionedRunPrep{
		datasets: make(map[string]*PartitionedDataSet),
		prepared: make(map[string]bool),
	}
}

// Scan remembers which catalog entries are partitioned datasets.
func (h *PartitionedRunPrep) Scan(catalog map[string]DataSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, ds := range catalog {
		if p, ok := ds.(*PartitionedDataSet); ok {
			h.datasets[name] = p
		}
	}
}

// Prepare starts and ends the child run of every partition key that more
// than one of the upcoming saves will touch. outputs maps catalog entry
// name to its partition map. Partitions prepared by an earlier call are
// skipped.
func (h *PartitionedRunPrep) Prepare(ctx context.Context, outputs map[string]map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for name, partitions := range outputs {
		if _, ok := h.datasets[name]; !ok {
			continue
		}
		for partition := range partitions {
			counts[partition]++
		}
	}

	contended := make(map[string]bool)
	for partition, n := range counts {
		if n > 1 && !h.prepared[partition] {
			contended[partition] = true
		}
	}
	if len(contended) == 0 {
		return nil
	}

	for _, name := range sortedKeys(outputs) {
		ds, ok := h.datasets[name]
		if !ok {
			continue
		}
		for _, partition := range sortedKeys(outputs[name]) {
			if !contended[partition] || h.prepared[partition] {
				continue
			}
			child, err := ds.StartChildRun(ctx, partition)
			if err != nil {
				return err
			}
			if err := child.End(ctx); err != nil {
				return err
			}
			h.prepared[partition] = true
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
