package preprocessing

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

// ChannelAxis is the channel axis of transformed spectra in both variants.
const ChannelAxis = 2

// Split holds the four tensors of a full-batch transform.
type Split struct {
	XTrain *tensor.Dense
	YTrain *mat.Dense
	XTest  *tensor.Dense
	YTest  *mat.Dense
}

// SpectraPreprocessor turns loader output into training tensors.
//
// Loader data arrives as [instance, channel, timestep] and leaves as
// [instance, timestep, channel]. The full variant appends a unit axis,
// [instance, timestep, channel, 1]; the subset variant keeps three axes and
// restricts instances and channels to the configured limits.
type SpectraPreprocessor struct {
	train dataset.Loader
	test  dataset.Loader
	meta  *dataset.GenerationMetadata

	encoder *OneHotEncoder

	subset       bool
	numChannels  int
	numInstances int
	shuffle      bool
	rng          *rand.Rand
	logger       log.Logger
}

type options struct {
	subset    bool
	channels  int
	instances int
	streaming bool
	shuffle   bool
	seed      int64
	seeded    bool
	logger    log.Logger
}

// Option configures a SpectraPreprocessor.
type Option func(*options)

// WithSubset selects the subset variant limited to the first channels and
// instances. An instance limit of 0 keeps every instance.
func WithSubset(channels, instances int) Option {
	return func(o *options) {
		o.subset = true
		o.channels = channels
		o.instances = instances
	}
}

// WithStreaming defers loading of the training subset until a generator
// requests shards.
func WithStreaming() Option {
	return func(o *options) { o.streaming = true }
}

// WithRandomSeed fixes the seed used to reshuffle shard order between epochs.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithEpochShuffle toggles the reshuffle at every epoch boundary. It is on
// by default.
func WithEpochShuffle(enabled bool) Option {
	return func(o *options) { o.shuffle = enabled }
}

// WithLogger overrides the component logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) *options {
	o := &options{shuffle: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("preprocessing")
	}
	return o
}

// NewSpectraPreprocessor opens dataDir/datasetName, creates the train and
// test loaders and fits the label encoder on the test labels.
func NewSpectraPreprocessor(dataDir, datasetName string, opts ...Option) (*SpectraPreprocessor, error) {
	o := buildOptions(opts)

	meta, err := dataset.LoadDatasetMetadata(dataDir, datasetName)
	if err != nil {
		return nil, err
	}
	train, err := dataset.NewSpectraLoader(dataDir, datasetName, dataset.TrainPrefix, !o.streaming)
	if err != nil {
		return nil, err
	}
	test, err := dataset.NewSpectraLoader(dataDir, datasetName, dataset.TestPrefix, true)
	if err != nil {
		return nil, err
	}

	o.logger = o.logger.With(log.DatasetKey, datasetName)
	return newPreprocessor(train, test, meta, o)
}

// NewSpectraPreprocessorFromLoaders builds a preprocessor over existing
// loaders. The test loader must already hold its data.
func NewSpectraPreprocessorFromLoaders(train, test dataset.Loader, meta *dataset.GenerationMetadata, opts ...Option) (*SpectraPreprocessor, error) {
	return newPreprocessor(train, test, meta, buildOptions(opts))
}

func newPreprocessor(train, test dataset.Loader, meta *dataset.GenerationMetadata, o *options) (*SpectraPreprocessor, error) {
	if train == nil || test == nil {
		return nil, errors.NewConfigError("loaders", "train and test loaders are required", nil)
	}
	if meta == nil {
		return nil, errors.NewConfigError(dataset.MetadataFileName, "generation metadata is required", nil)
	}
	if o.subset {
		if o.channels <= 0 || o.channels > meta.NumChannels {
			return nil, errors.NewConfigError(dataset.MetadataFileName, "channel count out of range",
				errors.NewValidationError("channels", "must be in [1, num_channels]", o.channels))
		}
		if o.instances < 0 {
			return nil, errors.NewConfigError(dataset.MetadataFileName, "instance count out of range",
				errors.NewValidationError("instances", "must be non-negative", o.instances))
		}
	}

	seed := o.seed
	if !o.seeded {
		seed = time.Now().UnixNano()
	}

	p := &SpectraPreprocessor{
		train:        train,
		test:         test,
		meta:         meta,
		encoder:      NewOneHotEncoder(),
		subset:       o.subset,
		numChannels:  o.channels,
		numInstances: o.instances,
		shuffle:      o.shuffle,
		rng:          rand.New(rand.NewSource(seed)),
		logger:       o.logger,
	}

	_, yTest, err := p.data(test)
	if err != nil {
		return nil, errors.Wrap(err, "read test subset")
	}
	if err := p.encoder.Fit(yTest); err != nil {
		return nil, err
	}

	p.logger.Info("Preprocessor ready",
		log.ChannelsKey, p.Channels(),
		log.TimestepsKey, meta.NumTimesteps,
		log.ClassesKey, p.encoder.NumClasses(),
		log.ShardsKey, len(train.ShardFiles()),
	)
	return p, nil
}

// Metadata returns the generation metadata of the dataset.
func (p *SpectraPreprocessor) Metadata() *dataset.GenerationMetadata { return p.meta }

// Encoder returns the fitted label encoder.
func (p *SpectraPreprocessor) Encoder() *OneHotEncoder { return p.encoder }

// Channels is the configured channel count.
func (p *SpectraPreprocessor) Channels() int {
	if p.subset {
		return p.numChannels
	}
	return p.meta.NumChannels
}

// NumClasses is the width of encoded label matrices.
func (p *SpectraPreprocessor) NumClasses() int { return p.encoder.NumClasses() }

// NumTrainingFiles returns the number of training shards.
func (p *SpectraPreprocessor) NumTrainingFiles() int {
	return len(p.train.ShardFiles())
}

// TrainingInstances returns how many training instances one pass of the
// batch generator yields, honoring the per-shard instance cap of WithSubset.
func (p *SpectraPreprocessor) TrainingInstances() (int, error) {
	counter, ok := p.train.(interface{ ShardInstances() ([]int, error) })
	if !ok {
		return 0, errors.Wrap(errors.ErrNotImplemented, "training loader cannot count instances")
	}
	counts, err := counter.ShardInstances()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		if p.subset && p.numInstances > 0 {
			n = min(n, p.numInstances)
		}
		total += n
	}
	return total, nil
}

// data reads the loader's current shard and returns X in the output layout
// and the raw labels as an n×1 column.
func (p *SpectraPreprocessor) data(loader dataset.Loader) (*tensor.Dense, *mat.Dense, error) {
	dm, err := loader.DataMatrix()
	if err != nil {
		return nil, nil, err
	}
	labels, err := loader.Labels()
	if err != nil {
		return nil, nil, err
	}
	if dm.Dims() != 3 || dm.Len() == 0 || dm.Dim(1) == 0 || dm.Dim(2) == 0 {
		return nil, nil, errors.NewInputShapeErrorFor("transform", "spectra", []int{-1, -1, -1}, dm.Shape())
	}
	if len(labels) != dm.Len() {
		return nil, nil, errors.NewDimensionError("SpectraPreprocessor.data", dm.Len(), len(labels), 0)
	}

	if p.subset {
		if p.numInstances > 0 && p.numInstances < dm.Len() {
			if dm, err = dm.Rows(0, p.numInstances); err != nil {
				return nil, nil, err
			}
			labels = labels[:p.numInstances]
		}
		if dm.Dim(1) < p.numChannels {
			return nil, nil, errors.NewInputShapeErrorFor("transform", "channels",
				[]int{-1, p.numChannels, -1}, dm.Shape())
		}
		if dm, err = dm.Narrow(1, 0, p.numChannels); err != nil {
			return nil, nil, err
		}
	}

	X, err := dm.SwapAxes(1, 2)
	if err != nil {
		return nil, nil, err
	}
	if !p.subset {
		X = X.ExpandDims()
	}

	y := mat.NewDense(len(labels), 1, nil)
	for i, v := range labels {
		y.Set(i, 0, float64(v))
	}
	return X, y, nil
}

func (p *SpectraPreprocessor) encode(y *mat.Dense) (*mat.Dense, error) {
	enc, err := p.encoder.Transform(y)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(enc), nil
}

// TransformTrain returns the training tensors of the training loader's
// current data.
func (p *SpectraPreprocessor) TransformTrain(encoded bool) (*tensor.Dense, *mat.Dense, error) {
	return p.transform(p.train, encoded)
}

// TransformTest returns the test tensors.
func (p *SpectraPreprocessor) TransformTest(encoded bool) (*tensor.Dense, *mat.Dense, error) {
	return p.transform(p.test, encoded)
}

func (p *SpectraPreprocessor) transform(loader dataset.Loader, encoded bool) (*tensor.Dense, *mat.Dense, error) {
	X, y, err := p.data(loader)
	if err != nil {
		return nil, nil, err
	}
	if encoded {
		if y, err = p.encode(y); err != nil {
			return nil, nil, err
		}
	}
	return X, y, nil
}

// Transform returns the train and test tensors. Calling it again without
// changing the loaders returns equal tensors.
func (p *SpectraPreprocessor) Transform(encoded bool) (*Split, error) {
	XTrain, yTrain, err := p.TransformTrain(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "transform train subset")
	}
	XTest, yTest, err := p.TransformTest(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "transform test subset")
	}
	return &Split{XTrain: XTrain, YTrain: yTrain, XTest: XTest, YTest: yTest}, nil
}

// TransformPadded is Transform followed by PadChannelsTo(padTo) on both
// data tensors.
func (p *SpectraPreprocessor) TransformPadded(encoded bool, padTo int) (*Split, error) {
	if padTo < p.Channels() {
		return nil, errors.NewValidationError("pad_nc", "target channel count is below the configured count", padTo)
	}
	s, err := p.Transform(encoded)
	if err != nil {
		return nil, err
	}
	if s.XTrain, err = p.PadChannelsTo(s.XTrain, padTo); err != nil {
		return nil, err
	}
	if s.XTest, err = p.PadChannelsTo(s.XTest, padTo); err != nil {
		return nil, err
	}
	return s, nil
}

// PadChannels appends additional channels to X using mode. A negative
// count is rejected before X is touched; zero returns an equal copy.
func (p *SpectraPreprocessor) PadChannels(X *tensor.Dense, additional int, mode tensor.PadMode) (*tensor.Dense, error) {
	if additional < 0 {
		return nil, errors.NewValidationError("additional_nc", "channel padding must be non-negative", additional)
	}
	if X == nil || X.Dims() <= ChannelAxis {
		var got []int
		if X != nil {
			got = X.Shape()
		}
		return nil, errors.NewInputShapeErrorFor("padding", "spectra", []int{-1, -1, -1}, got)
	}
	if additional == 0 {
		return X.Clone(), nil
	}
	return X.Pad(ChannelAxis, 0, additional, mode, 0)
}

// PadChannelsTo pads X symmetrically so that it has target channels.
func (p *SpectraPreprocessor) PadChannelsTo(X *tensor.Dense, target int) (*tensor.Dense, error) {
	return p.PadChannels(X, target-p.Channels(), tensor.PadSymmetric)
}
