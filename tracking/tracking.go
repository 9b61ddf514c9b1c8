// Package tracking records training runs: hyper-parameters, metrics, report
// text and files such as dataset images and generator scripts.
//
// The Trainer only sees the Experiment and Tracker interfaces. BoltStore is
// an offline implementation that keeps every experiment in a single bbolt
// file, so runs can be inspected and resumed without a tracking service.
package tracking

import (
	"time"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// Experiment is one tracked run.
type Experiment interface {
	// Key uniquely identifies the experiment and is persisted with the
	// training results so the run can be reattached later.
	Key() string

	SetName(name string) error
	LogParameter(name string, value any) error

	// LogMetrics appends one value per metric name.
	LogMetrics(values map[string]float64) error

	LogText(text string) error

	// LogAsset stores a single file under its base name.
	LogAsset(path string) error

	// LogAssetFolder stores every regular file below dir, keyed by its path
	// relative to the parent of dir.
	LogAssetFolder(dir string) error

	End() error
}

// Tracker creates and reopens experiments.
type Tracker interface {
	NewExperiment(project string) (Experiment, error)
	ExistingExperiment(key string) (Experiment, error)
}

// ErrExperimentNotFound is returned when reopening an unknown key.
var ErrExperimentNotFound = errors.New("experiment not found")

// Record is the summary of a stored experiment.
type Record struct {
	Key     string     `json:"key"`
	Project string     `json:"project"`
	Name    string     `json:"name"`
	Created time.Time  `json:"created"`
	Ended   *time.Time `json:"ended,omitempty"`
}
