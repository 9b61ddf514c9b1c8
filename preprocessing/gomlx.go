package preprocessing

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset mirrors the train.Dataset contract of gomlx so that batches can be
// fed to a gomlx training loop.
type Dataset interface {
	Name() string
	Reset()
	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
}

// GomlxDataset exposes a BatchGenerator as an endless gomlx dataset of
// float32 tensors.
type GomlxDataset struct {
	name string
	gen  *BatchGenerator
	make func() (*BatchGenerator, error)
}

var _ Dataset = (*GomlxDataset)(nil)

// NewGomlxDataset wraps a new training generator. Reset starts a fresh
// generation from the first shard.
func (p *SpectraPreprocessor) NewGomlxDataset(name string, batchSize int, encoded bool) (*GomlxDataset, error) {
	factory := func() (*BatchGenerator, error) { return p.TrainGenerator(batchSize, encoded) }
	gen, err := factory()
	if err != nil {
		return nil, err
	}
	return &GomlxDataset{name: name, gen: gen, make: factory}, nil
}

// Name implements Dataset.
func (d *GomlxDataset) Name() string { return d.name }

// Reset implements Dataset. A failure here surfaces on the next Yield.
func (d *GomlxDataset) Reset() {
	gen, err := d.make()
	if err != nil {
		d.gen = &BatchGenerator{err: err}
		return
	}
	d.gen = gen
}

// Yield implements Dataset.
func (d *GomlxDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, err := d.gen.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	yr, yc := b.Y.Dims()
	inputs = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(toFloat32(b.X.Data()), b.X.Shape()...)}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(toFloat32(b.Y.RawMatrix().Data), yr, yc)}
	return d, inputs, labels, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
