// Package config resolves directories, bucket and tracker settings for the
// spectra command from an optional .env file and the environment.
package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

// File names shared by the pipeline.
const (
	MetadataFile  = dataset.MetadataFileName
	WeightsFile   = "weights.gob"
	TrainInfoFile = "train_info.json"
	HistoryPlot   = "history.png"
	ImagesDir     = "imgs"
	TrainPrefix   = dataset.TrainPrefix
	TestPrefix    = dataset.TestPrefix
)

// Environment variables and their defaults.
const (
	EnvDataDir     = "SPECTRA_DATA_DIR"
	EnvModelResDir = "SPECTRA_MODEL_RES_DIR"
	EnvGenDir      = "SPECTRA_GEN_DIR"
	EnvBucket      = "SPECTRA_BUCKET"
	EnvTrackingDB  = "SPECTRA_TRACKING_DB"
	EnvProject     = "SPECTRA_PROJECT"
	EnvLogLevel    = "SPECTRA_LOG_LEVEL"
	EnvMatlabRoot  = "MATLABROOT"

	DefaultDataDir     = "data"
	DefaultModelResDir = "model_results"
	DefaultGenDir      = "generators"
	DefaultBucket      = "nasa-capstone-data-storage"
	DefaultTrackingDB  = "experiments.db"
	DefaultProject     = "spectra"
	DefaultLogLevel    = "info"
)

// Config holds the resolved settings.
type Config struct {
	DataDir     string
	ModelResDir string
	GenDir      string
	Bucket      string
	TrackingDB  string
	Project     string
	LogLevel    string
	// MatlabRoot is the numerical engine installation used by setup-venv.
	MatlabRoot string
}

// Load reads the given .env files (".env" when none are given), ignoring
// missing ones, then resolves every setting from the environment. Values
// already present in the environment take precedence over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.NewConfigError(f, "invalid env file", err)
		}
	}

	cfg := &Config{
		DataDir:     getenv(EnvDataDir, DefaultDataDir),
		ModelResDir: getenv(EnvModelResDir, DefaultModelResDir),
		GenDir:      getenv(EnvGenDir, DefaultGenDir),
		Bucket:      getenv(EnvBucket, DefaultBucket),
		TrackingDB:  getenv(EnvTrackingDB, DefaultTrackingDB),
		Project:     getenv(EnvProject, DefaultProject),
		LogLevel:    getenv(EnvLogLevel, DefaultLogLevel),
		MatlabRoot:  os.Getenv(EnvMatlabRoot),
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return nil, errors.NewConfigError(EnvLogLevel, "invalid log level", err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
