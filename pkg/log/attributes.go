// Package log defines standard attribute keys for pipeline operations.
//
// The keys follow a hierarchical naming convention (e.g. "data.samples",
// "storage.key") so that records from the loader, the preprocessor, the
// trainer and the storage sync can be filtered together.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the network class being trained.
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "fit_generator", "evaluate", "predict", "transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the pipeline.
	PhaseKey = "ml.phase"

	// ExperimentKey is the experiment tracker key of the current run.
	ExperimentKey = "experiment.key"
)

// Data Shape and Characteristics
const (
	// DatasetKey is the dataset name under the data directory.
	DatasetKey = "dataset.name"

	// SubsetKey is the subset prefix ("train" or "test").
	SubsetKey = "dataset.subset"

	// ShardKey identifies a single shard file.
	ShardKey = "data.shard"

	// ShardsKey is the number of shard files of a subset.
	ShardsKey = "data.shards"

	// SamplesKey indicates the number of instances.
	SamplesKey = "data.samples"

	// ChannelsKey indicates the number of spectral channels.
	ChannelsKey = "data.channels"

	// TimestepsKey indicates the number of timesteps per channel.
	TimestepsKey = "data.timesteps"

	// ClassesKey indicates the number of one-hot classes.
	ClassesKey = "data.classes"

	// ShapeKey records a tensor shape.
	ShapeKey = "data.shape"

	// BatchSizeKey indicates the size of emitted batches.
	BatchSizeKey = "data.batch_size"

	// BufferedKey indicates the number of rows pending in the batch buffer.
	BufferedKey = "data.buffered"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// LossKey records loss value during training or evaluation.
	LossKey = "metrics.loss"

	// EpochKey records the current epoch number during training.
	EpochKey = "training.epoch"

	// StepKey records the step number within an epoch.
	StepKey = "training.step"
)

// Storage Context
const (
	// BucketKey is the object storage bucket.
	BucketKey = "storage.bucket"

	// ObjectKey is the object key inside the bucket.
	ObjectKey = "storage.key"

	// PathKey is a local file system path.
	PathKey = "storage.path"

	// BytesKey is the number of bytes transferred.
	BytesKey = "storage.bytes"
)

// Error Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationFitGenerator = "fit_generator"
	OperationEvaluate     = "evaluate"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationUpload       = "upload"
	OperationDownload     = "download"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"
	PhaseSync          = "sync"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorShardLoad         = "SHARD_LOAD"
)
