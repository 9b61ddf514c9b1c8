package network

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/model"
	"github.com/YuminosukeSato/spectra/core/parallel"
	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/metrics"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
	"github.com/YuminosukeSato/spectra/preprocessing"
)

// DenseClassName is the class name of DenseClassifier.
const DenseClassName = "DenseClassifier"

const (
	denseWeightsVersion = "1"
	// rows per goroutine below which prediction runs sequentially
	predictThreshold = 512
)

// DenseBuilder builds DenseClassifier models.
type DenseBuilder struct{}

// Name returns DenseClassName.
func (DenseBuilder) Name() string { return DenseClassName }

// ParamsRange declares hidden_units (0 disables the hidden layer), l2 and
// the initialization seed.
func (DenseBuilder) ParamsRange() ParamsRange {
	return ParamsRange{
		"hidden_units": {Default: 64, Min: 0, Max: 4096},
		"l2":           {Default: 1e-4, Min: 0, Max: 1},
		"seed":         {Default: 42, Min: 0, Max: math.MaxInt32},
	}
}

// Build creates a DenseClassifier.
func (DenseBuilder) Build(numChannels, numTimesteps, outputShape int, params map[string]float64) (Model, error) {
	return NewDenseClassifier(numChannels, numTimesteps, outputShape, params)
}

type denseLayer struct {
	W  *mat.Dense
	b  []float64
	vW *mat.Dense
	vb []float64
}

// DenseClassifier is a fully connected softmax classifier over flattened
// spectra with an optional ReLU hidden layer. Inputs are standardized with
// a StandardScaler fitted on the first training data it sees. Both the
// [instance, timestep, channel] and [instance, timestep, channel, 1]
// layouts are accepted.
type DenseClassifier struct {
	model.BaseEstimator

	numChannels  int
	numTimesteps int
	nClasses     int
	hidden       int
	l2           float64
	params       map[string]float64

	layers []*denseLayer
	scaler *preprocessing.StandardScaler

	cfg      CompileConfig
	compiled bool

	rng    *rand.Rand
	logger log.Logger
}

// NewDenseClassifier creates an untrained classifier for numChannels x
// numTimesteps spectra and outputShape classes.
func NewDenseClassifier(numChannels, numTimesteps, outputShape int, params map[string]float64) (*DenseClassifier, error) {
	if numChannels <= 0 || numTimesteps <= 0 {
		return nil, errors.NewValidationError("input_shape", "channels and timesteps must be positive",
			[]int{numTimesteps, numChannels})
	}
	if outputShape < 2 {
		return nil, errors.NewValidationError("output_shape", "at least two classes are required", outputShape)
	}
	resolved, err := DenseBuilder{}.ParamsRange().Resolve(params)
	if err != nil {
		return nil, err
	}

	d := &DenseClassifier{
		numChannels:  numChannels,
		numTimesteps: numTimesteps,
		nClasses:     outputShape,
		hidden:       int(resolved["hidden_units"]),
		l2:           resolved["l2"],
		params:       resolved,
		scaler:       preprocessing.NewStandardScaler(),
		rng:          rand.New(rand.NewSource(int64(resolved["seed"]))),
		logger:       log.GetLoggerWithName("network").With(log.ModelNameKey, DenseClassName),
	}
	d.initLayers()
	return d, nil
}

func (d *DenseClassifier) nFeatures() int { return d.numChannels * d.numTimesteps }

func (d *DenseClassifier) layerSizes() []int {
	sizes := []int{d.nFeatures()}
	if d.hidden > 0 {
		sizes = append(sizes, d.hidden)
	}
	return append(sizes, d.nClasses)
}

func (d *DenseClassifier) initLayers() {
	sizes := d.layerSizes()
	d.layers = make([]*denseLayer, 0, len(sizes)-1)
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		std := math.Sqrt(2.0 / float64(in))
		w := mat.NewDense(in, out, nil)
		for r := 0; r < in; r++ {
			for c := 0; c < out; c++ {
				w.Set(r, c, d.rng.NormFloat64()*std)
			}
		}
		d.layers = append(d.layers, &denseLayer{
			W:  w,
			b:  make([]float64, out),
			vW: mat.NewDense(in, out, nil),
			vb: make([]float64, out),
		})
	}
}

// Compile validates and stores cfg.
func (d *DenseClassifier) Compile(cfg CompileConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.cfg = cfg
	d.compiled = true
	return nil
}

func (d *DenseClassifier) requireCompiled(op string) error {
	if !d.compiled {
		return errors.NewModelError(op, "not compiled", errors.New("call Compile before training"))
	}
	return nil
}

// flatten checks the feature count of X and returns its instance x feature
// view.
func (d *DenseClassifier) flatten(X *tensor.Dense, phase string) (*mat.Dense, error) {
	if X == nil || X.Len() == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if X.Dims() < 3 || X.RowSize() != d.nFeatures() {
		return nil, errors.NewInputShapeError(phase, []int{-1, d.numTimesteps, d.numChannels}, X.Shape())
	}
	return X.Matrix()
}

func (d *DenseClassifier) checkTargets(y *mat.Dense, rows int, op string) error {
	if y == nil {
		return errors.WithStack(errors.ErrEmptyData)
	}
	r, c := y.Dims()
	if r != rows {
		return errors.NewDimensionError(op, rows, r, 0)
	}
	if c != d.nClasses {
		return errors.NewDimensionError(op, d.nClasses, c, 1)
	}
	return nil
}

func (d *DenseClassifier) scale(Xm *mat.Dense) (*mat.Dense, error) {
	if !d.scaler.IsFitted() {
		if err := d.scaler.Fit(Xm); err != nil {
			return nil, err
		}
	}
	Xs, err := d.scaler.Transform(Xm)
	if err != nil {
		return nil, err
	}
	return Xs.(*mat.Dense), nil
}

type forwardPass struct {
	acts  []*mat.Dense // inputs of each layer
	pre   []*mat.Dense // hidden pre-activations
	probs *mat.Dense
}

func (d *DenseClassifier) forward(X *mat.Dense) forwardPass {
	var fp forwardPass
	A := X
	for i, l := range d.layers {
		fp.acts = append(fp.acts, A)
		Z := new(mat.Dense)
		Z.Mul(A, l.W)
		Z.Apply(func(_, j int, v float64) float64 { return v + l.b[j] }, Z)
		if i == len(d.layers)-1 {
			softmaxRows(Z)
			fp.probs = Z
			break
		}
		fp.pre = append(fp.pre, Z)
		H := new(mat.Dense)
		H.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, Z)
		A = H
	}
	return fp
}

func softmaxRows(Z *mat.Dense) {
	r, _ := Z.Dims()
	for i := 0; i < r; i++ {
		row := Z.RawRowView(i)
		m := floats.Max(row)
		for j := range row {
			row[j] = math.Exp(row[j] - m)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
}

func (d *DenseClassifier) loss(Y, P mat.Matrix) (float64, error) {
	if d.cfg.Loss == LossMeanSquaredError {
		return metrics.MSE(Y, P)
	}
	return metrics.CategoricalCrossEntropy(Y, P)
}

// outputGrad returns dLoss/dLogits for a softmax output layer.
func (d *DenseClassifier) outputGrad(Y, P *mat.Dense) *mat.Dense {
	n, k := P.Dims()
	grad := mat.NewDense(n, k, nil)
	if d.cfg.Loss == LossMeanSquaredError {
		g := make([]float64, k)
		for i := 0; i < n; i++ {
			p := P.RawRowView(i)
			for j := range g {
				g[j] = 2 * (p[j] - Y.At(i, j)) / float64(n*k)
			}
			dot := floats.Dot(g, p)
			for j := range g {
				grad.Set(i, j, p[j]*(g[j]-dot))
			}
		}
		return grad
	}
	grad.Sub(P, Y)
	grad.Scale(1/float64(n), grad)
	return grad
}

// step runs one gradient update on a scaled batch and returns the batch loss
// and the number of correctly classified rows.
func (d *DenseClassifier) step(X, Y *mat.Dense) (float64, int, error) {
	fp := d.forward(X)
	loss, err := d.loss(Y, fp.probs)
	if err != nil {
		return 0, 0, err
	}
	correct := countCorrect(Y, fp.probs)

	lr := d.cfg.LearningRate
	mu := d.cfg.momentum()
	dZ := d.outputGrad(Y, fp.probs)
	for i := len(d.layers) - 1; i >= 0; i-- {
		l := d.layers[i]

		gW := new(mat.Dense)
		gW.Mul(fp.acts[i].T(), dZ)
		if d.l2 > 0 {
			gW.Apply(func(r, c int, v float64) float64 { return v + d.l2*l.W.At(r, c) }, gW)
		}
		_, out := dZ.Dims()
		gb := make([]float64, out)
		for j := 0; j < out; j++ {
			gb[j] = floats.Sum(mat.Col(nil, j, dZ))
		}

		if i > 0 {
			dA := new(mat.Dense)
			dA.Mul(dZ, l.W.T())
			pre := fp.pre[i-1]
			dA.Apply(func(r, c int, v float64) float64 {
				if pre.At(r, c) <= 0 {
					return 0
				}
				return v
			}, dA)
			dZ = dA
		}

		l.vW.Scale(mu, l.vW)
		gW.Scale(lr, gW)
		l.vW.Sub(l.vW, gW)
		l.W.Add(l.W, l.vW)
		for j := range l.b {
			l.vb[j] = mu*l.vb[j] - lr*gb[j]
			l.b[j] += l.vb[j]
		}
	}
	return loss, correct, nil
}

func countCorrect(Y, P mat.Matrix) int {
	truth := metrics.ArgMaxRows(Y)
	pred := metrics.ArgMaxRows(P)
	n := 0
	for i := range truth {
		if truth[i] == pred[i] {
			n++
		}
	}
	return n
}

func gatherRows(m *mat.Dense, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

// epochAccumulator sums per-batch results into epoch metrics.
type epochAccumulator struct {
	loss    float64
	correct int
	rows    int
}

func (a *epochAccumulator) add(loss float64, correct, rows int) {
	a.loss += loss * float64(rows)
	a.correct += correct
	a.rows += rows
}

func (d *DenseClassifier) epochMetrics(a epochAccumulator) map[string]float64 {
	m := map[string]float64{"loss": a.loss / float64(a.rows)}
	if d.cfg.TracksAccuracy() {
		m[MetricAccuracy] = float64(a.correct) / float64(a.rows)
	}
	return m
}

func (d *DenseClassifier) endEpoch(hist History, epoch int, a epochAccumulator, val *Validation) error {
	m := d.epochMetrics(a)
	if err := errors.CheckScalar("DenseClassifier.Fit", m["loss"], epoch); err != nil {
		return err
	}
	if val != nil {
		vm, err := d.evaluate(val.X, val.Y)
		if err != nil {
			return errors.Wrap(err, "validation failed")
		}
		for k, v := range vm {
			m["val_"+k] = v
		}
	}
	hist.append(m)
	d.logger.Debug("Epoch finished",
		log.EpochKey, epoch+1,
		log.LossKey, m["loss"],
		log.AccuracyKey, m[MetricAccuracy],
	)
	return nil
}

// Fit trains on X and y for opts.Epochs epochs of opts.BatchSize rows.
func (d *DenseClassifier) Fit(ctx context.Context, X *tensor.Dense, y *mat.Dense, opts FitOptions) (hist History, err error) {
	defer errors.Recover(&err, "DenseClassifier.Fit")
	if err := d.requireCompiled("DenseClassifier.Fit"); err != nil {
		return nil, err
	}
	if opts.Epochs <= 0 {
		return nil, errors.NewValidationError("epochs", "must be positive", opts.Epochs)
	}
	if opts.BatchSize <= 0 {
		return nil, errors.NewValidationError("batch_size", "must be positive", opts.BatchSize)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return nil, errors.NewValidationError("validation_split", "must be in [0, 1)", opts.ValidationSplit)
	}

	Xm, err := d.flatten(X, "training")
	if err != nil {
		return nil, err
	}
	n, nf := Xm.Dims()
	if err := d.checkTargets(y, n, "DenseClassifier.Fit"); err != nil {
		return nil, err
	}

	nTrain := int(math.Ceil(float64(n) * (1 - opts.ValidationSplit)))
	var val *Validation
	if nTrain < n {
		vx, err := X.Rows(nTrain, n)
		if err != nil {
			return nil, err
		}
		val = &Validation{X: vx, Y: mat.DenseCopyOf(y.Slice(nTrain, n, 0, d.nClasses))}
	}
	Xtr := Xm.Slice(0, nTrain, 0, nf).(*mat.Dense)
	Ytr := y.Slice(0, nTrain, 0, d.nClasses).(*mat.Dense)

	Xs, err := d.scale(Xtr)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Training started",
		log.SamplesKey, nTrain,
		log.BatchSizeKey, opts.BatchSize,
		"epochs", opts.Epochs,
	)

	hist = History{}
	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "training stopped after %d epochs", epoch)
		}
		if opts.Shuffle {
			d.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		var acc epochAccumulator
		for start := 0; start < nTrain; start += opts.BatchSize {
			idx := order[start:min(start+opts.BatchSize, nTrain)]
			loss, correct, err := d.step(gatherRows(Xs, idx), gatherRows(Ytr, idx))
			if err != nil {
				return nil, err
			}
			acc.add(loss, correct, len(idx))
		}
		d.SetFitted()
		if err := d.endEpoch(hist, epoch, acc, val); err != nil {
			return nil, err
		}
	}

	d.logger.Info("Training finished", log.EpochKey, opts.Epochs)
	return hist.Rounded(), nil
}

// FitBatches trains for epochs epochs of stepsPerEpoch batches drawn from src.
func (d *DenseClassifier) FitBatches(ctx context.Context, src BatchSource, stepsPerEpoch, epochs int, val *Validation) (hist History, err error) {
	defer errors.Recover(&err, "DenseClassifier.FitBatches")
	if err := d.requireCompiled("DenseClassifier.FitBatches"); err != nil {
		return nil, err
	}
	if stepsPerEpoch <= 0 {
		return nil, errors.NewValidationError("steps_per_epoch", "must be positive", stepsPerEpoch)
	}
	if epochs <= 0 {
		return nil, errors.NewValidationError("epochs", "must be positive", epochs)
	}

	d.logger.Info("Training from generator started",
		log.StepKey, stepsPerEpoch,
		"epochs", epochs,
	)

	hist = History{}
	for epoch := 0; epoch < epochs; epoch++ {
		var acc epochAccumulator
		for s := 0; s < stepsPerEpoch; s++ {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrapf(err, "training stopped at batch %d of epoch %d", s, epoch+1)
			}
			b, err := src.Next()
			if err != nil {
				return nil, errors.Wrapf(err, "failed to draw batch %d of epoch %d", s, epoch+1)
			}
			Xm, err := d.flatten(b.X, "training")
			if err != nil {
				return nil, err
			}
			rows, _ := Xm.Dims()
			if err := d.checkTargets(b.Y, rows, "DenseClassifier.FitBatches"); err != nil {
				return nil, err
			}
			Xs, err := d.scale(Xm)
			if err != nil {
				return nil, err
			}
			loss, correct, err := d.step(Xs, b.Y)
			if err != nil {
				return nil, err
			}
			acc.add(loss, correct, rows)
		}
		d.SetFitted()
		if err := d.endEpoch(hist, epoch, acc, val); err != nil {
			return nil, err
		}
	}

	d.logger.Info("Training finished", log.EpochKey, epochs)
	return hist.Rounded(), nil
}

// Evaluate returns "loss" and, when tracked, "accuracy" on X and y.
func (d *DenseClassifier) Evaluate(X *tensor.Dense, y *mat.Dense) (map[string]float64, error) {
	if err := d.requireCompiled("DenseClassifier.Evaluate"); err != nil {
		return nil, err
	}
	return d.evaluate(X, y)
}

func (d *DenseClassifier) evaluate(X *tensor.Dense, y *mat.Dense) (map[string]float64, error) {
	P, err := d.Predict(X)
	if err != nil {
		return nil, err
	}
	if err := d.checkTargets(y, X.Len(), "DenseClassifier.Evaluate"); err != nil {
		return nil, err
	}
	loss, err := d.loss(y, P)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{"loss": loss}
	if d.cfg.TracksAccuracy() {
		out[MetricAccuracy] = float64(countCorrect(y, P)) / float64(X.Len())
	}
	return out, nil
}

// Predict returns class probabilities, one row per instance. Large inputs
// are split across CPU cores.
func (d *DenseClassifier) Predict(X *tensor.Dense) (*mat.Dense, error) {
	if !d.IsFitted() {
		return nil, errors.NewNotFittedError(DenseClassName, "Predict")
	}
	Xm, err := d.flatten(X, "prediction")
	if err != nil {
		return nil, err
	}
	Xs, err := d.scale(Xm)
	if err != nil {
		return nil, err
	}

	n, nf := Xs.Dims()
	out := mat.NewDense(n, d.nClasses, nil)
	err = parallel.ParallelizeWithThreshold(n, predictThreshold, func(start, end int) error {
		probs := d.forward(Xs.Slice(start, end, 0, nf).(*mat.Dense)).probs
		for i := start; i < end; i++ {
			out.SetRow(i, probs.RawRowView(i-start))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Weights exports the trained parameters.
func (d *DenseClassifier) Weights() *model.ModelWeights {
	mw := &model.ModelWeights{
		ModelType:       DenseClassName,
		Version:         denseWeightsVersion,
		InputShape:      []int{d.numTimesteps, d.numChannels},
		Hyperparameters: make(map[string]float64, len(d.params)),
		InputMean:       append([]float64(nil), d.scaler.Mean...),
		InputScale:      append([]float64(nil), d.scaler.Scale...),
		IsFitted:        d.IsFitted(),
	}
	for k, v := range d.params {
		mw.Hyperparameters[k] = v
	}
	for _, l := range d.layers {
		mw.Layers = append(mw.Layers, model.NewLayerWeights(l.W, l.b))
	}
	return mw
}

// SaveWeights writes the trained parameters to path in gob format.
func (d *DenseClassifier) SaveWeights(path string) error {
	if !d.IsFitted() {
		return errors.NewNotFittedError(DenseClassName, "SaveWeights")
	}
	return model.SaveModel(d.Weights(), path)
}

// LoadWeights restores parameters saved by SaveWeights. The architecture
// must match.
func (d *DenseClassifier) LoadWeights(path string) error {
	var mw model.ModelWeights
	if err := model.LoadModel(&mw, path); err != nil {
		return err
	}
	if err := mw.Validate(); err != nil {
		return errors.NewModelError("DenseClassifier.LoadWeights", "invalid weights", err)
	}
	if mw.ModelType != DenseClassName {
		return errors.NewModelError("DenseClassifier.LoadWeights", "class mismatch",
			errors.Newf("weights belong to %s", mw.ModelType))
	}
	sizes := d.layerSizes()
	if len(mw.Layers) != len(sizes)-1 {
		return errors.NewModelError("DenseClassifier.LoadWeights", "architecture mismatch",
			errors.Newf("expected %d layers, got %d", len(sizes)-1, len(mw.Layers)))
	}
	for i, l := range mw.Layers {
		if l.Rows != sizes[i] || l.Cols != sizes[i+1] {
			return errors.NewModelError("DenseClassifier.LoadWeights", "architecture mismatch",
				errors.Newf("layer %d is %dx%d, expected %dx%d", i, l.Rows, l.Cols, sizes[i], sizes[i+1]))
		}
	}
	if len(mw.InputMean) != d.nFeatures() {
		return errors.NewModelError("DenseClassifier.LoadWeights", "architecture mismatch",
			errors.Newf("scaler has %d features, expected %d", len(mw.InputMean), d.nFeatures()))
	}

	for i, l := range mw.Layers {
		d.layers[i] = &denseLayer{
			W:  l.Dense(),
			b:  append([]float64(nil), l.B...),
			vW: mat.NewDense(l.Rows, l.Cols, nil),
			vb: make([]float64, l.Cols),
		}
	}
	d.scaler.Mean = append([]float64(nil), mw.InputMean...)
	d.scaler.Scale = append([]float64(nil), mw.InputScale...)
	d.scaler.NFeatures = len(mw.InputMean)
	d.scaler.SetFitted()
	d.SetFitted()

	d.logger.Info("Weights loaded", log.PathKey, path)
	return nil
}

type layerConfig struct {
	Units      int    `json:"units"`
	Activation string `json:"activation"`
}

type denseConfig struct {
	ClassName  string             `json:"class_name"`
	InputShape []int              `json:"input_shape"`
	Layers     []layerConfig      `json:"layers"`
	Params     map[string]float64 `json:"params"`
	Compile    *CompileConfig     `json:"compile,omitempty"`
}

// Config describes the layer stack, hyper-parameters and compile settings.
func (d *DenseClassifier) Config() ([]byte, error) {
	cfg := denseConfig{
		ClassName:  DenseClassName,
		InputShape: []int{d.numTimesteps, d.numChannels},
		Params:     d.params,
	}
	for i, l := range d.layers {
		_, units := l.W.Dims()
		act := "relu"
		if i == len(d.layers)-1 {
			act = "softmax"
		}
		cfg.Layers = append(cfg.Layers, layerConfig{Units: units, Activation: act})
	}
	if d.compiled {
		c := d.cfg
		cfg.Compile = &c
	}
	return json.Marshal(cfg)
}

var _ Model = (*DenseClassifier)(nil)
