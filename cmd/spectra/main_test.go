package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/internal/config"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/tracking"
)

func testEnv(t *testing.T) (dataDir, resDir, dbPath string) {
	t.Helper()
	root := t.TempDir()
	dataDir = filepath.Join(root, "data")
	resDir = filepath.Join(root, "results")
	dbPath = filepath.Join(root, "experiments.db")
	t.Setenv(config.EnvDataDir, dataDir)
	t.Setenv(config.EnvModelResDir, resDir)
	t.Setenv(config.EnvGenDir, filepath.Join(root, "generators"))
	t.Setenv(config.EnvTrackingDB, dbPath)
	t.Setenv(config.EnvLogLevel, "error")
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() {
		errors.SetWarningHandler(nil)
		errors.SetZerologWarnFunc(nil)
	})
	return dataDir, resDir, dbPath
}

func TestRunUsage(t *testing.T) {
	testEnv(t)
	assert.True(t, errors.Is(run(nil), errUsage))
	assert.True(t, errors.Is(run([]string{"unknown"}), errUsage))
	assert.True(t, errors.Is(run([]string{"train"}), errUsage), "dataset is required")
	assert.True(t, errors.Is(run([]string{"download", "-dataset", "x"}), errUsage), "meta or prefix is required")
	assert.True(t, errors.Is(run([]string{"batches", "-dataset", "x", "-n", "0"}), errUsage), "n must be positive")
}

func TestRunGenerateAndTrain(t *testing.T) {
	dataDir, resDir, dbPath := testEnv(t)

	require.NoError(t, run([]string{"generate", "-dataset", "peaks",
		"-channels", "2", "-timesteps", "16", "-n-max", "2",
		"-per-shard", "30", "-train-shards", "2", "-test-shards", "1"}))

	meta, err := dataset.LoadMetadata(filepath.Join(dataDir, "peaks", dataset.MetadataFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, meta.NumChannels)
	assert.Equal(t, 16, meta.NumTimesteps)

	require.NoError(t, run([]string{"batches", "-dataset", "peaks", "-batch-size", "8", "-n", "2"}))
	require.NoError(t, run([]string{"batches", "-dataset", "peaks", "-channels", "1",
		"-batch-size", "8", "-n", "3", "-raw-labels"}))

	require.NoError(t, run([]string{"train", "-dataset", "peaks",
		"-epochs", "2", "-batch-size", "8", "-hidden-units", "8", "-seed", "3"}))
	require.NoError(t, run([]string{"train", "-dataset", "peaks", "-stream",
		"-epochs", "1", "-batch-size", "8", "-seed", "3"}))

	dirs, err := filepath.Glob(filepath.Join(resDir, "DenseClassifier_peaks.*"))
	require.NoError(t, err)
	require.NotEmpty(t, dirs)
	for _, d := range dirs {
		assert.FileExists(t, filepath.Join(d, config.TrainInfoFile))
		assert.FileExists(t, filepath.Join(d, config.WeightsFile))
	}

	store, err := tracking.OpenBoltStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.Experiments()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunTrainMissingDataset(t *testing.T) {
	dataDir, _, _ := testEnv(t)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	err := run([]string{"train", "-dataset", "missing"})
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
