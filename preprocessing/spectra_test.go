package preprocessing

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/pkg/errors"
)

func TestTransformFullVariant(t *testing.T) {
	train := memoryLoader(t, []int{2, 3}, 2, 4)
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train)

	split, err := p.Transform(false)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 4, 2, 1}, split.XTrain.Shape())
	assert.Equal(t, []int{3, 4, 2, 1}, split.XTest.Shape())
	r, c := split.YTrain.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 1, c)

	// X[i, ts, c, 0] == dm[i, c, ts]
	dm, _ := train.DataMatrix()
	for i := 0; i < 5; i++ {
		for ch := 0; ch < 2; ch++ {
			for ts := 0; ts < 4; ts++ {
				require.Equal(t, dm.At(i, ch, ts), split.XTrain.At(i, ts, ch, 0))
			}
		}
	}

	labels, _ := train.Labels()
	assert.Equal(t, split.XTrain.Len(), len(labels))
}

func TestTransformEncoded(t *testing.T) {
	train := memoryLoader(t, []int{4}, 2, 4)
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train)

	X, y, err := p.TransformTrain(true)
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, X.Len(), r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 3, p.NumClasses())
	// instance 3 has label 1 -> column 0
	assert.Equal(t, []float64{1, 0, 0}, mat.Row(nil, 3, y))
}

func TestTransformIdempotent(t *testing.T) {
	train := memoryLoader(t, []int{3, 3}, 2, 4)
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train)

	a, err := p.Transform(true)
	require.NoError(t, err)
	b, err := p.Transform(true)
	require.NoError(t, err)

	assert.True(t, a.XTrain.Equal(b.XTrain))
	assert.True(t, a.XTest.Equal(b.XTest))
	assert.True(t, mat.Equal(a.YTrain, b.YTrain))
	assert.True(t, mat.Equal(a.YTest, b.YTest))
}

func TestTransformSubsetVariant(t *testing.T) {
	train := memoryLoader(t, []int{5}, 2, 4)
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train, WithSubset(1, 3))

	X, y, err := p.TransformTrain(false)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 1}, X.Shape())
	r, _ := y.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 1, p.Channels())
	assert.Equal(t, float64(2*100+3), X.At(2, 3, 0))
}

func TestSubsetChannelsOutOfRange(t *testing.T) {
	train := memoryLoader(t, []int{2}, 2, 4)
	test := memoryLoader(t, []int{2}, 2, 4)
	require.NoError(t, test.LoadAll())

	_, err := NewSpectraPreprocessorFromLoaders(train, test, testMeta(t, 2, 4), WithSubset(3, 0))
	var cerr *errors.ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestTransformShapeErrors(t *testing.T) {
	train := dataset.NewMemoryLoader()
	require.NoError(t, train.AddShard("flat", tensor.New(3, 4), []int{1, 2, 3}))
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train)

	_, _, err := p.TransformTrain(false)
	var serr *errors.InputShapeError
	assert.True(t, errors.As(err, &serr), "got %v", err)

	// nothing loaded yet
	p2 := newTestPreprocessor(t, memoryLoader(t, []int{2}, 2, 4))
	_, err = p2.Transform(false)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestEncoderRejectsUnseenTrainLabel(t *testing.T) {
	train := dataset.NewMemoryLoader()
	require.NoError(t, train.AddShard("s0", shardTensor(0, 1, 2, 4), []int{9}))
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train)

	_, _, err := p.TransformTrain(true)
	var uc *errors.UnknownCategoryError
	assert.True(t, errors.As(err, &uc))
}

func TestPadChannels(t *testing.T) {
	train := memoryLoader(t, []int{2}, 2, 4)
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train, WithSubset(2, 0))
	X, _, err := p.TransformTrain(false)
	require.NoError(t, err)

	for _, k := range []int{0, 1, 3} {
		padded, err := p.PadChannels(X, k, tensor.PadSymmetric)
		require.NoError(t, err)
		assert.Equal(t, X.Dim(2)+k, padded.Dim(2))
		for i := 0; i < X.Len(); i++ {
			for ts := 0; ts < X.Dim(1); ts++ {
				for c := 0; c < X.Dim(2); c++ {
					require.Equal(t, X.At(i, ts, c), padded.At(i, ts, c))
				}
			}
		}
		if k == 0 {
			assert.True(t, padded.Equal(X))
		}
	}

	_, err = p.PadChannels(X, -1, tensor.PadSymmetric)
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))

	padded, err := p.PadChannelsTo(X, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, padded.Dim(2))

	_, err = p.PadChannelsTo(X, 1)
	assert.True(t, errors.As(err, &verr))
}

func TestTransformPadded(t *testing.T) {
	train := memoryLoader(t, []int{2}, 2, 4)
	require.NoError(t, train.LoadAll())
	p := newTestPreprocessor(t, train, WithSubset(1, 0))

	split, err := p.TransformPadded(true, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, split.XTrain.Dim(2))
	assert.Equal(t, 3, split.XTest.Dim(2))
	// symmetric padding of a single channel repeats it
	assert.Equal(t, split.XTrain.At(1, 2, 0), split.XTrain.At(1, 2, 2))

	_, err = p.TransformPadded(true, 0)
	assert.Error(t, err)
}

func TestNewSpectraPreprocessorFromDisk(t *testing.T) {
	root := t.TempDir()
	meta := testMeta(t, 3, 6)
	require.NoError(t, dataset.Synthesize(filepath.Join(root, "peaks"), meta, dataset.SyntheticConfig{
		TrainShards: 3, TestShards: 1, PerShard: 4, Noise: 0.01, Seed: 3,
	}))

	p, err := NewSpectraPreprocessor(root, "peaks", WithStreaming(), WithRandomSeed(5))
	require.NoError(t, err)
	assert.Equal(t, 3, p.NumTrainingFiles())
	assert.Equal(t, 3, p.Channels())

	// streaming: training data is not loaded up front
	_, _, err = p.TransformTrain(false)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	eager, err := NewSpectraPreprocessor(root, "peaks", WithSubset(2, 0))
	require.NoError(t, err)
	split, err := eager.Transform(false)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 6, 2}, split.XTrain.Shape())
}

func TestNewSpectraPreprocessorMissingDataset(t *testing.T) {
	_, err := NewSpectraPreprocessor(t.TempDir(), "absent")
	var cerr *errors.ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestTrainingInstances(t *testing.T) {
	train := memoryLoader(t, []int{5, 2, 4}, 2, 4)
	require.NoError(t, train.LoadAll())

	n, err := newTestPreprocessor(t, train).TrainingInstances()
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	n, err = newTestPreprocessor(t, train, WithSubset(1, 3)).TrainingInstances()
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
