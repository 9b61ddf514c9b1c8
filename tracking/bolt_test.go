package tracking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "experiments.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStoreExperimentLifecycle(t *testing.T) {
	s := openStore(t)

	exp, err := s.NewExperiment("spectra")
	require.NoError(t, err)
	assert.Len(t, exp.Key(), 32)

	require.NoError(t, exp.SetName("DenseClassifier_peaks"))
	require.NoError(t, exp.LogParameter("SPECTRUM_num_channels", 3))
	require.NoError(t, exp.LogParameter("batch_size", 32))
	require.NoError(t, exp.LogMetrics(map[string]float64{"loss": 0.9, "accuracy": 0.5}))
	require.NoError(t, exp.LogMetrics(map[string]float64{"loss": 0.4}))
	require.NoError(t, exp.LogText("first"))
	require.NoError(t, exp.LogText("second"))
	require.NoError(t, exp.End())

	rec, err := s.Record(exp.Key())
	require.NoError(t, err)
	assert.Equal(t, "DenseClassifier_peaks", rec.Name)
	assert.Equal(t, "spectra", rec.Project)
	assert.NotNil(t, rec.Ended)

	params, err := s.Params(exp.Key())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"SPECTRUM_num_channels": "3", "batch_size": "32"}, params)

	m, err := s.Metrics(exp.Key())
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.4}, m["loss"])
	assert.Equal(t, []float64{0.5}, m["accuracy"])

	texts, err := s.Texts(exp.Key())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, texts)
}

func TestBoltStoreExistingExperiment(t *testing.T) {
	s := openStore(t)

	exp, err := s.NewExperiment("spectra")
	require.NoError(t, err)
	require.NoError(t, exp.LogMetrics(map[string]float64{"loss": 1}))

	again, err := s.ExistingExperiment(exp.Key())
	require.NoError(t, err)
	require.NoError(t, again.LogMetrics(map[string]float64{"loss": 0.5}))

	m, err := s.Metrics(exp.Key())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5}, m["loss"])

	_, err = s.ExistingExperiment("missing")
	assert.True(t, errors.Is(err, ErrExperimentNotFound))

	recs, err := s.Experiments()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, exp.Key(), recs[0].Key)
}

func TestBoltStoreAssets(t *testing.T) {
	s := openStore(t)
	exp, err := s.NewExperiment("spectra")
	require.NoError(t, err)

	root := t.TempDir()
	imgs := filepath.Join(root, "imgs")
	require.NoError(t, os.MkdirAll(filepath.Join(imgs, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imgs, "a.png"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(imgs, "nested", "b.png"), []byte("b"), 0o644))
	script := filepath.Join(root, "gen.m")
	require.NoError(t, os.WriteFile(script, []byte("disp(1)"), 0o644))

	require.NoError(t, exp.LogAssetFolder(imgs))
	require.NoError(t, exp.LogAsset(script))

	names, err := s.Assets(exp.Key())
	require.NoError(t, err)
	assert.Equal(t, []string{"gen.m", "imgs/a.png", "imgs/nested/b.png"}, names)

	data, err := s.Asset(exp.Key(), "imgs/nested/b.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	assert.Error(t, exp.LogAssetFolder(filepath.Join(root, "missing")))
	assert.Error(t, exp.LogAsset(filepath.Join(root, "missing.m")))
}
