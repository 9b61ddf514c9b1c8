// Package dataset reads spectra datasets laid out as
//
//	<dataDir>/<dataset>/gen_info.json
//	<dataDir>/<dataset>/train_0000.parquet ...
//	<dataDir>/<dataset>/test_0000.parquet ...
//
// Each subset prefix is served by its own Loader. A loader owns a single
// "current shard" slot holding the data of the last LoadShards call.
package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

// Subset prefixes.
const (
	TrainPrefix = "train"
	TestPrefix  = "test"
)

// Loader provides per-shard access to one subset of a dataset.
type Loader interface {
	// ShardFiles lists shard identifiers in a stable order.
	ShardFiles() []string

	// LoadShards reads the given shards. With replace the current slot is
	// swapped for the new data, otherwise the data is appended to it.
	LoadShards(files []string, replace bool) error

	// DataMatrix returns the loaded spectra as [instance, channel, timestep].
	DataMatrix() (*tensor.Dense, error)

	// Labels returns one peak count per loaded instance.
	Labels() ([]int, error)
}

type shard struct {
	dm     *tensor.Dense
	labels []int
}

// SpectraLoader loads parquet shards of one subset from a dataset directory.
type SpectraLoader struct {
	dir     string
	prefix  string
	files   []string
	current *shard
	logger  log.Logger
}

// NewSpectraLoader lists the shards of prefix under dataDir/dataset. When
// eager is set every shard is loaded immediately.
func NewSpectraLoader(dataDir, datasetName, prefix string, eager bool) (*SpectraLoader, error) {
	dir := filepath.Join(dataDir, datasetName)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.NewConfigError(dir, "dataset directory not found", err)
	}
	if !info.IsDir() {
		return nil, errors.NewConfigError(dir, "dataset path is not a directory", nil)
	}

	files, err := listShards(dir, prefix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewConfigError(dir, "no shards with prefix "+prefix, nil)
	}

	l := &SpectraLoader{
		dir:    dir,
		prefix: prefix,
		files:  files,
		logger: log.GetLoggerWithName("dataset").With(log.DatasetKey, datasetName, log.SubsetKey, prefix),
	}
	l.logger.Debug("Shards listed", log.ShardsKey, len(files))

	if eager {
		if err := l.LoadShards(files, true); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func listShards(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewConfigError(dir, "cannot list dataset directory", err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"_") || filepath.Ext(name) != ShardExt {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// Dir returns the dataset directory.
func (l *SpectraLoader) Dir() string { return l.dir }

// ShardFiles implements Loader. The returned slice is a copy.
func (l *SpectraLoader) ShardFiles() []string {
	return append([]string(nil), l.files...)
}

// LoadShards implements Loader. On failure the current slot is unchanged.
func (l *SpectraLoader) LoadShards(files []string, replace bool) error {
	if len(files) == 0 {
		return errors.NewValidationError("files", "at least one shard is required", files)
	}

	parts := make([]*tensor.Dense, 0, len(files)+1)
	var labels []int
	if !replace && l.current != nil {
		parts = append(parts, l.current.dm)
		labels = append(labels, l.current.labels...)
	}
	for _, f := range files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(l.dir, f)
		}
		dm, n, err := ReadShard(path)
		if err != nil {
			return err
		}
		l.logger.Debug("Shard loaded", log.ShardKey, f, log.SamplesKey, dm.Len())
		parts = append(parts, dm)
		labels = append(labels, n...)
	}

	dm := parts[0]
	if len(parts) > 1 {
		var err error
		if dm, err = tensor.Concat(parts...); err != nil {
			return errors.NewShardLoadError(strings.Join(files, ","), err)
		}
	}
	l.current = &shard{dm: dm, labels: labels}
	return nil
}

// ShardInstances returns the instance count of every shard in ShardFiles
// order, read from the shard footers.
func (l *SpectraLoader) ShardInstances() ([]int, error) {
	counts := make([]int, len(l.files))
	for i, f := range l.files {
		n, err := CountRows(filepath.Join(l.dir, f))
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}

// DataMatrix implements Loader.
func (l *SpectraLoader) DataMatrix() (*tensor.Dense, error) {
	if l.current == nil {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s: no shard loaded", l.prefix)
	}
	return l.current.dm, nil
}

// Labels implements Loader.
func (l *SpectraLoader) Labels() ([]int, error) {
	if l.current == nil {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s: no shard loaded", l.prefix)
	}
	return l.current.labels, nil
}
