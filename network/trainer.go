package network

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/internal/config"
	"github.com/YuminosukeSato/spectra/metrics"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
	"github.com/YuminosukeSato/spectra/tracking"
)

// DefaultValidationSize is the fraction of training data held out by Fit.
const DefaultValidationSize = 0.20

// SpectrumParamPrefix prefixes dataset attributes logged as parameters.
const SpectrumParamPrefix = "SPECTRUM_"

// resultDirTimeFormat renders MMDD.HHMM.
const resultDirTimeFormat = "0102.1504"

// TrainOptions controls one Trainer fit.
type TrainOptions struct {
	BatchSize      int
	Epochs         int
	ValidationSize float64
	// Compile replaces the stored compile configuration when non-nil.
	Compile *CompileConfig
}

// DefaultTrainOptions returns batches of 32 for 10 epochs with a 20%
// validation split.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{BatchSize: 32, Epochs: 10, ValidationSize: DefaultValidationSize}
}

// TrainInfo is the training metadata written next to the weights.
type TrainInfo struct {
	Compile       *CompileConfig     `json:"compile_dict"`
	BatchSize     int                `json:"batch_size"`
	Epochs        int                `json:"epochs"`
	History       History            `json:"history"`
	TestResults   map[string]float64 `json:"test_results"`
	ExperimentKey string             `json:"experiment_key"`
	ClassName     string             `json:"class_name"`
	DatasetName   string             `json:"dataset_name"`
	Params        map[string]float64 `json:"params"`
}

// Trainer builds a network, trains it, evaluates it on the test split and
// records the run with an experiment tracker. Epochs and history accumulate
// across fits so a persisted run can be continued.
type Trainer struct {
	builder      Builder
	numChannels  int
	numTimesteps int
	outputShape  int

	params      map[string]float64
	weightsPath string
	compile     *CompileConfig
	batchSize   int
	epochs      int
	history     History
	testResults map[string]float64
	report      *metrics.Report

	model Model
	yTest *mat.Dense
	preds *mat.Dense

	tracker    tracking.Tracker
	project    string
	experiment tracking.Experiment

	dataDir   string
	genDir    string
	resultDir string
	now       func() time.Time
	logger    log.Logger
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithParams sets the network hyper-parameters.
func WithParams(params map[string]float64) TrainerOption {
	return func(t *Trainer) { t.params = params }
}

// WithWeightsPath warm-starts the network from previously saved weights.
func WithWeightsPath(path string) TrainerOption {
	return func(t *Trainer) { t.weightsPath = path }
}

// WithTracker records runs as experiments of project.
func WithTracker(tr tracking.Tracker, project string) TrainerOption {
	return func(t *Trainer) {
		t.tracker = tr
		t.project = project
	}
}

// WithDirs sets the data, generator-script and result directories.
func WithDirs(dataDir, genDir, resultDir string) TrainerOption {
	return func(t *Trainer) {
		t.dataDir = dataDir
		t.genDir = genDir
		t.resultDir = resultDir
	}
}

// WithClock overrides the clock used to name result directories.
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

// NewTrainer creates a trainer for networks of builder's class over
// numChannels x numTimesteps spectra with outputShape classes.
func NewTrainer(builder Builder, numChannels, numTimesteps, outputShape int, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		builder:      builder,
		numChannels:  numChannels,
		numTimesteps: numTimesteps,
		outputShape:  outputShape,
		dataDir:      config.DefaultDataDir,
		genDir:       config.DefaultGenDir,
		resultDir:    config.DefaultModelResDir,
		now:          time.Now,
		logger:       log.GetLoggerWithName("trainer").With(log.ModelNameKey, builder.Name()),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Model returns the current network, nil before the first fit.
func (t *Trainer) Model() Model { return t.model }

// History returns the accumulated per-epoch metrics.
func (t *Trainer) History() History { return t.history }

// Epochs returns the total number of epochs trained.
func (t *Trainer) Epochs() int { return t.epochs }

// BatchSize returns the batch size of the last fit.
func (t *Trainer) BatchSize() int { return t.batchSize }

// TestResults returns the last evaluation on the test split.
func (t *Trainer) TestResults() map[string]float64 { return t.testResults }

// Report returns the last classification report.
func (t *Trainer) Report() *metrics.Report { return t.report }

// Params returns the hyper-parameters in use.
func (t *Trainer) Params() map[string]float64 { return t.params }

// Compile returns the stored compile configuration.
func (t *Trainer) Compile() *CompileConfig { return t.compile }

// Experiment returns the attached experiment, if any.
func (t *Trainer) Experiment() tracking.Experiment { return t.experiment }

// Predictions returns the test targets and predictions of the last fit.
func (t *Trainer) Predictions() (yTest, preds *mat.Dense) { return t.yTest, t.preds }

// Build creates the network, loads warm-start weights and compiles it.
func (t *Trainer) Build(cfg *CompileConfig) error {
	if t.params == nil {
		t.params = t.builder.ParamsRange().DefaultParams()
		t.logger.Info("Using default parameters", "params", t.params)
	}
	m, err := t.builder.Build(t.numChannels, t.numTimesteps, t.outputShape, t.params)
	if err != nil {
		return err
	}
	if t.weightsPath != "" {
		if err := m.LoadWeights(t.weightsPath); err != nil {
			return errors.Wrapf(err, "failed to warm start from %s", t.weightsPath)
		}
	}

	if cfg != nil {
		c := *cfg
		t.compile = &c
	}
	if t.compile == nil {
		c := DefaultCompileConfig()
		t.compile = &c
		t.logger.Info("Using default compile configuration", "optimizer", c.Optimizer, "loss", c.Loss)
	}
	if err := m.Compile(*t.compile); err != nil {
		return err
	}
	t.model = m
	return nil
}

// prepare builds the network on first use and recompiles it when a new
// configuration is given, so repeated fits continue from the current weights.
func (t *Trainer) prepare(cfg *CompileConfig) error {
	if t.model == nil {
		return t.Build(cfg)
	}
	if cfg == nil {
		return nil
	}
	c := *cfg
	if err := t.model.Compile(c); err != nil {
		return err
	}
	t.compile = &c
	return nil
}

// Fit trains on full tensors holding out opts.ValidationSize of the training
// data, then evaluates on the test split. Cancelling ctx stops training at
// the next epoch boundary without logging results.
func (t *Trainer) Fit(ctx context.Context, XTrain *tensor.Dense, yTrain *mat.Dense, XTest *tensor.Dense, yTest *mat.Dense, opts TrainOptions) error {
	if err := t.prepare(opts.Compile); err != nil {
		return err
	}
	hist, err := t.model.Fit(ctx, XTrain, yTrain, FitOptions{
		Epochs:          opts.Epochs,
		BatchSize:       opts.BatchSize,
		ValidationSplit: opts.ValidationSize,
		Shuffle:         true,
	})
	if err != nil {
		return errors.Wrap(err, "fit failed")
	}
	return t.LogModelPerformance(XTest, yTest, opts, hist)
}

// FitGenerator trains on batches from src with trainSize/BatchSize steps
// per epoch, validating on the test split after every epoch.
func (t *Trainer) FitGenerator(ctx context.Context, src BatchSource, trainSize int, XTest *tensor.Dense, yTest *mat.Dense, opts TrainOptions) error {
	if opts.BatchSize <= 0 {
		return errors.NewValidationError("batch_size", "must be positive", opts.BatchSize)
	}
	steps := trainSize / opts.BatchSize
	if steps == 0 {
		return errors.NewValidationError("train_size", "fewer instances than one batch", trainSize)
	}
	if err := t.prepare(opts.Compile); err != nil {
		return err
	}
	hist, err := t.model.FitBatches(ctx, src, steps, opts.Epochs, &Validation{X: XTest, Y: yTest})
	if err != nil {
		return errors.Wrap(err, "generator fit failed")
	}
	return t.LogModelPerformance(XTest, yTest, opts, hist)
}

// LogModelPerformance records a finished fit: it accumulates epochs and
// history, evaluates and predicts on the test split, and logs parameters,
// test results and the classification report to the experiment.
func (t *Trainer) LogModelPerformance(XTest *tensor.Dense, yTest *mat.Dense, opts TrainOptions, fitHistory History) error {
	t.batchSize = opts.BatchSize
	t.epochs += opts.Epochs

	merged, err := MergeHistories(t.history, fitHistory)
	if err != nil {
		return err
	}
	t.history = merged

	results, err := t.model.Evaluate(XTest, yTest)
	if err != nil {
		return errors.Wrap(err, "evaluation failed")
	}
	t.testResults = make(map[string]float64, len(results))
	for k, v := range results {
		t.testResults[k] = metrics.Round(v, HistoryDigits)
	}

	preds, err := t.model.Predict(XTest)
	if err != nil {
		return errors.Wrap(err, "prediction failed")
	}
	t.yTest, t.preds = yTest, preds

	t.logger.Info("Model evaluated",
		log.EpochKey, t.epochs,
		log.LossKey, t.testResults["loss"],
		log.AccuracyKey, t.testResults[MetricAccuracy],
	)

	if t.experiment != nil {
		for name, v := range map[string]any{
			"batch_size":      opts.BatchSize,
			"epochs":          t.epochs,
			"validation_size": opts.ValidationSize,
		} {
			if err := t.experiment.LogParameter(name, v); err != nil {
				return err
			}
		}
		for name, v := range t.params {
			if err := t.experiment.LogParameter(name, v); err != nil {
				return err
			}
		}
		test := make(map[string]float64, len(t.testResults))
		for k, v := range t.testResults {
			test["test_"+k] = v
		}
		if err := t.experiment.LogMetrics(test); err != nil {
			return err
		}
	}

	_, err = t.ClassificationReport(yTest, preds)
	return err
}

// ClassificationReport builds the per-class report from one-hot targets and
// predicted probabilities and logs it to the experiment.
func (t *Trainer) ClassificationReport(yTest, preds mat.Matrix) (*metrics.Report, error) {
	rep, err := metrics.ClassificationReportOneHot(yTest, preds)
	if err != nil {
		return nil, err
	}
	t.report = rep
	if t.experiment == nil {
		return rep, nil
	}
	if err := t.experiment.LogMetrics(rep.Flatten()); err != nil {
		return nil, err
	}
	if err := t.experiment.LogText(rep.String()); err != nil {
		return nil, err
	}
	return rep, nil
}

func (t *Trainer) requireTracker() error {
	if t.tracker == nil {
		return errors.NewModelError("Trainer", "no tracker", errors.New("configure one with WithTracker"))
	}
	return nil
}

// NewExperiment starts a tracked run named name and logs the dataset
// attributes, images and generator script.
func (t *Trainer) NewExperiment(name, datasetName string, meta *dataset.GenerationMetadata) error {
	if err := t.requireTracker(); err != nil {
		return err
	}
	exp, err := t.tracker.NewExperiment(t.project)
	if err != nil {
		return err
	}
	if err := exp.SetName(name); err != nil {
		return err
	}
	t.experiment = exp
	t.logger = t.logger.With(log.ExperimentKey, exp.Key())

	if meta == nil {
		return nil
	}
	if err := t.LogDataAttributes(meta); err != nil {
		return err
	}
	if err := t.LogImages(datasetName); err != nil {
		return err
	}
	return t.LogScript(meta)
}

// ContinueExperiment reattaches the run stored under key.
func (t *Trainer) ContinueExperiment(key string) error {
	if err := t.requireTracker(); err != nil {
		return err
	}
	exp, err := t.tracker.ExistingExperiment(key)
	if err != nil {
		return err
	}
	t.experiment = exp
	t.logger = t.logger.With(log.ExperimentKey, key)
	return nil
}

// EndExperiment closes the attached run.
func (t *Trainer) EndExperiment() error {
	if t.experiment == nil {
		return nil
	}
	return t.experiment.End()
}

// LogDataAttributes logs every generation attribute as SPECTRUM_{key}.
func (t *Trainer) LogDataAttributes(meta *dataset.GenerationMetadata) error {
	if t.experiment == nil {
		return nil
	}
	for _, attr := range meta.Attributes() {
		if err := t.experiment.LogParameter(SpectrumParamPrefix+attr.Key, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

// LogImages logs the dataset image folder. A missing folder only warns.
func (t *Trainer) LogImages(datasetName string) error {
	if t.experiment == nil {
		return nil
	}
	dir := filepath.Join(t.dataDir, datasetName, config.ImagesDir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		errors.Warn(errors.NewMissingAssetWarning(config.ImagesDir, dir))
		return nil
	}
	return t.experiment.LogAssetFolder(dir)
}

// LogScript logs the generator script named in the metadata. A missing
// script only warns.
func (t *Trainer) LogScript(meta *dataset.GenerationMetadata) error {
	if t.experiment == nil {
		return nil
	}
	path := filepath.Join(t.genDir, meta.MatlabScript)
	if info, err := os.Stat(path); meta.MatlabScript == "" || err != nil || info.IsDir() {
		errors.Warn(errors.NewMissingAssetWarning("matlab_script", path))
		return nil
	}
	return t.experiment.LogAsset(path)
}

// Info returns the training metadata for className and datasetName.
func (t *Trainer) Info(className, datasetName string) TrainInfo {
	info := TrainInfo{
		Compile:     t.compile,
		BatchSize:   t.batchSize,
		Epochs:      t.epochs,
		History:     t.history,
		TestResults: t.testResults,
		ClassName:   className,
		DatasetName: datasetName,
		Params:      t.params,
	}
	if t.experiment != nil {
		info.ExperimentKey = t.experiment.Key()
	}
	return info
}

// ResultDir returns {resultDir}/{className}_{datasetName}.{MMDD.HHMM}.
func (t *Trainer) ResultDir(className, datasetName string) string {
	return filepath.Join(t.resultDir,
		fmt.Sprintf("%s_%s.%s", className, datasetName, t.now().Format(resultDirTimeFormat)))
}

// Save writes the weights, training metadata and history chart to dir, or
// to ResultDir when dir is empty, and returns the directory used.
func (t *Trainer) Save(className, datasetName, dir string) (string, error) {
	if t.model == nil {
		return "", errors.NewNotFittedError(className, "Save")
	}
	if dir == "" {
		dir = t.ResultDir(className, datasetName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}

	if err := t.model.SaveWeights(filepath.Join(dir, config.WeightsFile)); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(t.Info(className, datasetName), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode training info")
	}
	if err := os.WriteFile(filepath.Join(dir, config.TrainInfoFile), data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write training info")
	}
	if t.history.Epochs() > 0 {
		title := fmt.Sprintf("%s on %s", className, datasetName)
		if err := PlotHistory(t.history, title, filepath.Join(dir, config.HistoryPlot)); err != nil {
			t.logger.Warn("History plot skipped", err)
		}
	}

	t.logger.Info("Training results saved", log.PathKey, dir)
	return dir, nil
}

// Persist restores the training metadata saved under resultDir/dirname and
// reattaches its experiment. The saved weights become the warm start of
// the next fit, also when this trainer has already built a network. An
// empty resultDir uses the trainer's result directory.
func (t *Trainer) Persist(dirname, resultDir string) error {
	if resultDir == "" {
		resultDir = t.resultDir
	}
	dir := filepath.Join(resultDir, dirname)
	data, err := os.ReadFile(filepath.Join(dir, config.TrainInfoFile))
	if err != nil {
		return errors.NewConfigError(dir, "training info not readable", err)
	}
	var info TrainInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return errors.NewConfigError(dir, "invalid training info", err)
	}

	t.compile = info.Compile
	t.batchSize = info.BatchSize
	t.epochs = info.Epochs
	t.history = info.History
	t.testResults = info.TestResults
	if info.Params != nil {
		t.params = info.Params
	}
	if weights := filepath.Join(dir, config.WeightsFile); fileExists(weights) {
		t.weightsPath = weights
	}
	// rebuild on the next fit so the restored params and weights apply
	t.model = nil

	t.logger.Info("Training results restored", log.PathKey, dir, log.EpochKey, t.epochs)
	if info.ExperimentKey != "" && t.tracker != nil {
		return t.ContinueExperiment(info.ExperimentKey)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
