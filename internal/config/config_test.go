package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDataDir, EnvModelResDir, EnvGenDir, EnvBucket,
		EnvTrackingDB, EnvProject, EnvLogLevel, EnvMatlabRoot} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, &Config{
		DataDir:     DefaultDataDir,
		ModelResDir: DefaultModelResDir,
		GenDir:      DefaultGenDir,
		Bucket:      DefaultBucket,
		TrackingDB:  DefaultTrackingDB,
		Project:     DefaultProject,
		LogLevel:    DefaultLogLevel,
	}, cfg)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvDataDir)
	os.Unsetenv(EnvBucket)

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SPECTRA_DATA_DIR=/srv/spectra\nSPECTRA_BUCKET=my-bucket\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv(EnvDataDir)
		os.Unsetenv(EnvBucket)
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/spectra", cfg.DataDir)
	assert.Equal(t, "my-bucket", cfg.Bucket)
	assert.Equal(t, DefaultModelResDir, cfg.ModelResDir)
}

func TestLoadEnvironmentWins(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvGenDir, "/opt/gen")
	t.Setenv(EnvMatlabRoot, "/usr/local/MATLAB/R2023a")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SPECTRA_GEN_DIR=ignored\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/gen", cfg.GenDir)
	assert.Equal(t, "/usr/local/MATLAB/R2023a", cfg.MatlabRoot)
}

func TestLoadInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLogLevel, "verbose")

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, EnvLogLevel, cfgErr.Source)
}
