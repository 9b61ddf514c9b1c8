package dataset

import (
	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// MemoryLoader serves shards held in memory. It is used for synthetic
// datasets and in tests.
type MemoryLoader struct {
	names  []string
	shards map[string]shard
	cur    *shard

	// Loads records every LoadShards call in order.
	Loads [][]string
}

// NewMemoryLoader creates an empty loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{shards: map[string]shard{}}
}

// AddShard registers a shard under name.
func (m *MemoryLoader) AddShard(name string, dm *tensor.Dense, labels []int) error {
	if dm.Len() != len(labels) {
		return errors.NewDimensionError("dataset.MemoryLoader", dm.Len(), len(labels), 0)
	}
	if _, ok := m.shards[name]; !ok {
		m.names = append(m.names, name)
	}
	m.shards[name] = shard{dm: dm, labels: labels}
	return nil
}

// ShardFiles implements Loader.
func (m *MemoryLoader) ShardFiles() []string { return append([]string(nil), m.names...) }

// LoadShards implements Loader.
func (m *MemoryLoader) LoadShards(files []string, replace bool) error {
	m.Loads = append(m.Loads, append([]string(nil), files...))

	var parts []*tensor.Dense
	var labels []int
	if !replace && m.cur != nil {
		parts = append(parts, m.cur.dm)
		labels = append(labels, m.cur.labels...)
	}
	for _, f := range files {
		s, ok := m.shards[f]
		if !ok {
			return errors.NewShardLoadError(f, errors.New("no such shard"))
		}
		parts = append(parts, s.dm)
		labels = append(labels, s.labels...)
	}
	dm, err := tensor.Concat(parts...)
	if err != nil {
		return err
	}
	m.cur = &shard{dm: dm, labels: labels}
	return nil
}

// ShardInstances returns the instance count of every shard in ShardFiles
// order.
func (m *MemoryLoader) ShardInstances() ([]int, error) {
	counts := make([]int, len(m.names))
	for i, name := range m.names {
		counts[i] = m.shards[name].dm.Len()
	}
	return counts, nil
}

// LoadAll loads every registered shard into the current slot.
func (m *MemoryLoader) LoadAll() error {
	return m.LoadShards(m.names, true)
}

// DataMatrix implements Loader.
func (m *MemoryLoader) DataMatrix() (*tensor.Dense, error) {
	if m.cur == nil {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	return m.cur.dm, nil
}

// Labels implements Loader.
func (m *MemoryLoader) Labels() ([]int, error) {
	if m.cur == nil {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	return m.cur.labels, nil
}
