package preprocessing

import (
	"iter"

	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

// Batch is one emitted training batch. X and Y rows correspond index for index.
type Batch struct {
	X *tensor.Dense
	Y *mat.Dense
}

type bufferedRow struct {
	x []float64
	y []float64
}

// BatchGenerator produces an endless sequence of fixed-size training
// batches. It loads one training shard at a time, replacing the loader's
// current shard, and reshuffles the shard order each time the file list
// wraps. It is not safe for concurrent use.
type BatchGenerator struct {
	p         *SpectraPreprocessor
	batchSize int
	encoded   bool

	files  []string
	cursor int
	epoch  int

	buf      deque.Deque[bufferedRow]
	rowShape []int
	yWidth   int

	loadedThisEpoch int
	err             error
	logger          log.Logger
}

// TrainGenerator returns a generator of batchSize instances. Shards are
// visited in listing order during the first epoch.
func (p *SpectraPreprocessor) TrainGenerator(batchSize int, encoded bool) (*BatchGenerator, error) {
	if batchSize <= 0 {
		return nil, errors.NewValidationError("batch_size", "must be positive", batchSize)
	}
	files := p.train.ShardFiles()
	if len(files) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "training subset has no shards")
	}
	return &BatchGenerator{
		p:         p,
		batchSize: batchSize,
		encoded:   encoded,
		files:     files,
		logger:    p.logger.With(log.BatchSizeKey, batchSize),
	}, nil
}

// BatchSize returns the number of instances per batch.
func (g *BatchGenerator) BatchSize() int { return g.batchSize }

// Epoch returns the number of completed passes over the shard list.
func (g *BatchGenerator) Epoch() int { return g.epoch }

// Buffered returns the number of instances waiting in the buffer.
func (g *BatchGenerator) Buffered() int { return g.buf.Len() }

// Next returns the next batch. A shard load failure ends the generation:
// the error is returned by this and every later call.
func (g *BatchGenerator) Next() (b *Batch, err error) {
	if g.err != nil {
		return nil, g.err
	}
	defer func() {
		if err != nil {
			g.err = err
		}
	}()
	defer errors.Recover(&err, "BatchGenerator.Next")

	for g.buf.Len() < g.batchSize {
		if err := g.loadNext(); err != nil {
			return nil, err
		}
	}
	return g.emit()
}

// All adapts the generator to a range-over-func sequence. The sequence ends
// after yielding the first error or when the caller stops ranging.
func (g *BatchGenerator) All() iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for {
			b, err := g.Next()
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}

func (g *BatchGenerator) loadNext() error {
	if g.cursor >= len(g.files) {
		if g.loadedThisEpoch == 0 {
			return errors.Wrap(errors.ErrEmptyData, "a full pass over the training shards produced no instances")
		}
		g.cursor = 0
		g.epoch++
		g.loadedThisEpoch = 0
		if g.p.shuffle {
			g.p.rng.Shuffle(len(g.files), func(i, j int) { g.files[i], g.files[j] = g.files[j], g.files[i] })
		}
		g.logger.Debug("Epoch boundary", log.EpochKey, g.epoch)
	}

	name := g.files[g.cursor]
	if err := g.p.train.LoadShards([]string{name}, true); err != nil {
		var serr *errors.ShardLoadError
		if errors.As(err, &serr) {
			return err
		}
		return errors.NewShardLoadError(name, err)
	}
	g.cursor++

	X, y, err := g.p.TransformTrain(g.encoded)
	if err != nil {
		return errors.NewShardLoadError(name, err)
	}
	if err := g.checkShape(X, y); err != nil {
		return errors.NewShardLoadError(name, err)
	}

	_, yw := y.Dims()
	for i := 0; i < X.Len(); i++ {
		g.buf.PushBack(bufferedRow{
			x: X.Row(i),
			y: append([]float64(nil), y.RawRowView(i)[:yw]...),
		})
	}
	g.loadedThisEpoch += X.Len()

	g.logger.Debug("Shard buffered", log.ShardKey, name, log.SamplesKey, X.Len(), log.BufferedKey, g.buf.Len())
	return nil
}

func (g *BatchGenerator) checkShape(X *tensor.Dense, y *mat.Dense) error {
	shape := X.Shape()[1:]
	_, yw := y.Dims()
	if g.rowShape == nil {
		g.rowShape = shape
		g.yWidth = yw
		return nil
	}
	if len(shape) != len(g.rowShape) {
		return errors.NewInputShapeError("streaming", g.rowShape, shape)
	}
	for i := range shape {
		if shape[i] != g.rowShape[i] {
			return errors.NewInputShapeError("streaming", g.rowShape, shape)
		}
	}
	if yw != g.yWidth {
		return errors.NewDimensionError("BatchGenerator", g.yWidth, yw, 1)
	}
	return nil
}

func (g *BatchGenerator) emit() (*Batch, error) {
	rowSize := 1
	for _, s := range g.rowShape {
		rowSize *= s
	}
	xs := make([]float64, 0, g.batchSize*rowSize)
	ys := make([]float64, 0, g.batchSize*g.yWidth)
	for i := 0; i < g.batchSize; i++ {
		r := g.buf.PopFront()
		xs = append(xs, r.x...)
		ys = append(ys, r.y...)
	}

	X, err := tensor.FromSlice(xs, append([]int{g.batchSize}, g.rowShape...)...)
	if err != nil {
		return nil, err
	}
	return &Batch{X: X, Y: mat.NewDense(g.batchSize, g.yWidth, ys)}, nil
}
