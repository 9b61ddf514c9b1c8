// Package network defines the classifier networks trained on preprocessed
// spectra and the Trainer that drives them.
//
// A network class is described by a Builder, which declares its
// hyper-parameter ranges and builds a Model for a given input geometry.
// Models share a small capability set instead of a type hierarchy:
//
//	m, err := network.DenseBuilder{}.Build(channels, timesteps, classes, nil)
//	err = m.Compile(network.DefaultCompileConfig())
//	hist, err := m.Fit(ctx, X, y, network.FitOptions{Epochs: 10, BatchSize: 32})
//	probs, err := m.Predict(XTest)
package network

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/preprocessing"
)

// Model is a trainable classifier over [instance, timestep, channel(, 1)]
// tensors with one-hot targets.
type Model interface {
	// Compile sets the optimizer, loss and metrics used by later fits.
	Compile(cfg CompileConfig) error

	// Fit trains on full tensors, holding out the trailing
	// opts.ValidationSplit fraction for validation. It stops with ctx's
	// error at the next epoch boundary once ctx is done.
	Fit(ctx context.Context, X *tensor.Dense, y *mat.Dense, opts FitOptions) (History, error)

	// FitBatches trains on stepsPerEpoch batches per epoch drawn from src,
	// validating on val after every epoch when val is non-nil.
	// ctx is checked before every batch is drawn.
	FitBatches(ctx context.Context, src BatchSource, stepsPerEpoch, epochs int, val *Validation) (History, error)

	// Evaluate returns the loss and tracked metrics on X and y.
	Evaluate(X *tensor.Dense, y *mat.Dense) (map[string]float64, error)

	// Predict returns one row of class scores per instance.
	Predict(X *tensor.Dense) (*mat.Dense, error)

	SaveWeights(path string) error
	LoadWeights(path string) error

	// Config describes the architecture as JSON.
	Config() ([]byte, error)
}

// Builder creates models of one network class.
type Builder interface {
	// Name is the class name used in result directories.
	Name() string

	// ParamsRange lists the tunable hyper-parameters.
	ParamsRange() ParamsRange

	// Build creates an untrained model. Missing params take their defaults.
	Build(numChannels, numTimesteps, outputShape int, params map[string]float64) (Model, error)
}

// BatchSource yields training batches. *preprocessing.BatchGenerator
// satisfies it.
type BatchSource interface {
	Next() (*preprocessing.Batch, error)
}

// Validation is a held-out set evaluated after every epoch.
type Validation struct {
	X *tensor.Dense
	Y *mat.Dense
}

// FitOptions controls a full-tensor fit.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	// Shuffle reorders training rows every epoch.
	Shuffle bool
}

var _ BatchSource = (*preprocessing.BatchGenerator)(nil)
