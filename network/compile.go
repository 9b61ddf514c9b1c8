package network

import (
	"slices"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// Supported optimizers.
const (
	OptimizerSGD      = "sgd"
	OptimizerMomentum = "momentum"
)

// Supported losses.
const (
	LossCategoricalCrossEntropy = "categorical_crossentropy"
	LossMeanSquaredError        = "mean_squared_error"
)

// MetricAccuracy is the only metric tracked besides the loss.
const MetricAccuracy = "accuracy"

// CompileConfig holds the training configuration applied to a model before
// fitting. It is stored on the Trainer and reused by later fits that do not
// provide one.
type CompileConfig struct {
	Optimizer    string   `json:"optimizer"`
	LearningRate float64  `json:"learning_rate"`
	Loss         string   `json:"loss"`
	Metrics      []string `json:"metrics"`
}

// DefaultCompileConfig returns momentum SGD on categorical cross-entropy
// tracking accuracy.
func DefaultCompileConfig() CompileConfig {
	return CompileConfig{
		Optimizer:    OptimizerMomentum,
		LearningRate: 0.01,
		Loss:         LossCategoricalCrossEntropy,
		Metrics:      []string{MetricAccuracy},
	}
}

// Validate checks the optimizer, loss, learning rate and metric names.
func (c CompileConfig) Validate() error {
	switch c.Optimizer {
	case OptimizerSGD, OptimizerMomentum:
	default:
		return errors.NewValidationError("optimizer", "must be sgd or momentum", c.Optimizer)
	}
	switch c.Loss {
	case LossCategoricalCrossEntropy, LossMeanSquaredError:
	default:
		return errors.NewValidationError("loss", "must be categorical_crossentropy or mean_squared_error", c.Loss)
	}
	if c.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", c.LearningRate)
	}
	for _, m := range c.Metrics {
		if m != MetricAccuracy {
			return errors.NewValidationError("metrics", "unsupported metric", m)
		}
	}
	return nil
}

// TracksAccuracy reports whether accuracy is among the configured metrics.
func (c CompileConfig) TracksAccuracy() bool {
	return slices.Contains(c.Metrics, MetricAccuracy)
}

func (c CompileConfig) momentum() float64 {
	if c.Optimizer == OptimizerMomentum {
		return 0.9
	}
	return 0
}
