// Command spectra trains peak-counting classifiers on generated spectra
// datasets and keeps the datasets in sync with object storage.
//
// Usage:
//
//	spectra train -dataset peaks_v3 -epochs 20 [-stream] [-channels 2 -instances 500]
//	spectra upload -dataset peaks_v3
//	spectra download -meta data/peaks_v3/gen_info.json -dataset peaks_v3
//	spectra generate -dataset synthetic -channels 3 -timesteps 256
//	spectra batches -dataset peaks_v3 -batch-size 64 -n 3
//	spectra setup-venv -engine-dir /Applications/MATLAB_R2019b.app/extern/engines/python
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"

	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/internal/config"
	"github.com/YuminosukeSato/spectra/internal/venv"
	"github.com/YuminosukeSato/spectra/network"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
	"github.com/YuminosukeSato/spectra/preprocessing"
	"github.com/YuminosukeSato/spectra/storage"
	"github.com/YuminosukeSato/spectra/tracking"
)

var errUsage = errors.New("usage error")

func usage() {
	fmt.Fprintln(os.Stderr, `usage: spectra <command> [flags]

commands:
  train       train a classifier on a dataset
  upload      upload a dataset directory to object storage
  download    download a dataset from object storage
  generate    write a synthetic dataset
  batches     stream training batches as gomlx tensors and print their shapes
  setup-venv  install the numerical engine into a local virtual environment`)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			log.GetLogger().Error("spectra failed", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return errUsage
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.LogLevel); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("cli")
	errors.SetZerologWarnFunc(func(w error) { logger.Warn("Warning raised", w) })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "train":
		return runTrain(ctx, cfg, rest)
	case "upload":
		return runUpload(ctx, cfg, rest)
	case "download":
		return runDownload(ctx, cfg, rest)
	case "generate":
		return runGenerate(cfg, rest)
	case "batches":
		return runBatches(ctx, cfg, rest)
	case "setup-venv":
		return runSetupVenv(ctx, cfg, rest)
	default:
		usage()
		return errUsage
	}
}

func runTrain(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	ds := fs.String("dataset", "", "dataset directory name under the data directory")
	channels := fs.Int("channels", 0, "train on the first N channels only (subset variant)")
	instances := fs.Int("instances", 0, "with -channels, cap instances per shard (0 keeps all)")
	padTo := fs.Int("pad-to", 0, "pad the channel axis to this width")
	stream := fs.Bool("stream", false, "train from the shard-by-shard batch generator")
	batchSize := fs.Int("batch-size", 32, "batch size")
	epochs := fs.Int("epochs", 10, "number of epochs")
	validation := fs.Float64("validation-size", network.DefaultValidationSize, "held-out fraction for full-tensor training")
	hidden := fs.Float64("hidden-units", -1, "hidden layer width (0 disables, negative uses the default)")
	l2 := fs.Float64("l2", -1, "L2 penalty (negative uses the default)")
	optimizer := fs.String("optimizer", network.OptimizerMomentum, "sgd or momentum")
	lossName := fs.String("loss", network.LossCategoricalCrossEntropy, "categorical_crossentropy or mean_squared_error")
	lr := fs.Float64("learning-rate", 0.01, "learning rate")
	seed := fs.Int64("seed", 0, "shuffle seed (0 seeds from the clock)")
	weights := fs.String("weights", "", "warm start from this weights file")
	persist := fs.String("persist", "", "continue the run saved in this result directory name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ds == "" {
		fs.Usage()
		return errUsage
	}

	var opts []preprocessing.Option
	if *channels > 0 {
		opts = append(opts, preprocessing.WithSubset(*channels, *instances))
	}
	if *stream {
		opts = append(opts, preprocessing.WithStreaming())
	}
	if *seed != 0 {
		opts = append(opts, preprocessing.WithRandomSeed(*seed))
	}
	p, err := preprocessing.NewSpectraPreprocessor(cfg.DataDir, *ds, opts...)
	if err != nil {
		return err
	}

	store, err := tracking.OpenBoltStore(cfg.TrackingDB)
	if err != nil {
		return err
	}
	defer store.Close()

	params := network.DenseBuilder{}.ParamsRange().DefaultParams()
	if *hidden >= 0 {
		params["hidden_units"] = *hidden
	}
	if *l2 >= 0 {
		params["l2"] = *l2
	}
	trainerOpts := []network.TrainerOption{
		network.WithTracker(store, cfg.Project),
		network.WithDirs(cfg.DataDir, cfg.GenDir, cfg.ModelResDir),
		network.WithParams(params),
	}
	if *weights != "" {
		trainerOpts = append(trainerOpts, network.WithWeightsPath(*weights))
	}

	numChannels := p.Channels()
	if *padTo > numChannels {
		numChannels = *padTo
	}
	trainer := network.NewTrainer(network.DenseBuilder{}, numChannels, p.Metadata().NumTimesteps,
		p.NumClasses(), trainerOpts...)

	if *persist != "" {
		if err := trainer.Persist(*persist, ""); err != nil {
			return err
		}
	} else {
		name := fmt.Sprintf("%s_%s", network.DenseClassName, *ds)
		if err := trainer.NewExperiment(name, *ds, p.Metadata()); err != nil {
			return err
		}
	}
	defer trainer.EndExperiment()

	trainOpts := network.TrainOptions{
		BatchSize:      *batchSize,
		Epochs:         *epochs,
		ValidationSize: *validation,
		Compile: &network.CompileConfig{
			Optimizer:    *optimizer,
			LearningRate: *lr,
			Loss:         *lossName,
			Metrics:      []string{network.MetricAccuracy},
		},
	}

	if *stream {
		if *padTo > 0 {
			return errors.NewValidationError("pad-to", "padding is not supported with -stream", *padTo)
		}
		gen, err := p.TrainGenerator(*batchSize, true)
		if err != nil {
			return err
		}
		XTest, yTest, err := p.TransformTest(true)
		if err != nil {
			return err
		}
		trainSize, err := p.TrainingInstances()
		if err != nil {
			return err
		}
		if err := trainer.FitGenerator(ctx, gen, trainSize, XTest, yTest, trainOpts); err != nil {
			return err
		}
	} else {
		var split *preprocessing.Split
		if *padTo > 0 {
			split, err = p.TransformPadded(true, *padTo)
		} else {
			split, err = p.Transform(true)
		}
		if err != nil {
			return err
		}
		if err := trainer.Fit(ctx, split.XTrain, split.YTrain, split.XTest, split.YTest, trainOpts); err != nil {
			return err
		}
	}

	fmt.Println(trainer.Report().String())
	dir, err := trainer.Save(network.DenseClassName, *ds, "")
	if err != nil {
		return err
	}
	fmt.Printf("Results saved to %s\n", dir)
	return ctx.Err()
}

func newSync(ctx context.Context, cfg *config.Config, progress *mpb.Progress) (*storage.Sync, error) {
	client, err := storage.NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewSync(client, cfg.Bucket, storage.WithProgress(progress)), nil
}

func runUpload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	ds := fs.String("dataset", "", "dataset directory name under the data directory")
	dir := fs.String("dir", "", "dataset directory (overrides -dataset)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := *dir
	if path == "" && *ds != "" {
		path = filepath.Join(cfg.DataDir, *ds)
	}
	if path == "" {
		fs.Usage()
		return errUsage
	}

	progress := mpb.NewWithContext(ctx, mpb.WithWidth(80))
	s, err := newSync(ctx, cfg, progress)
	if err != nil {
		return err
	}
	keys, err := s.Upload(ctx, path)
	progress.Wait()
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %d objects to s3://%s\n", len(keys), cfg.Bucket)
	return nil
}

func runDownload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	meta := fs.String("meta", "", "metadata file describing the dataset to fetch")
	prefix := fs.String("prefix", "", "object key prefix to fetch (alternative to -meta)")
	ds := fs.String("dataset", "", "dataset directory name under the data directory")
	dir := fs.String("dir", "", "target directory (overrides -dataset)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := *dir
	if target == "" && *ds != "" {
		target = filepath.Join(cfg.DataDir, *ds)
	}
	if target == "" || (*meta == "") == (*prefix == "") {
		fs.Usage()
		return errUsage
	}

	progress := mpb.NewWithContext(ctx, mpb.WithWidth(80))
	s, err := newSync(ctx, cfg, progress)
	if err != nil {
		return err
	}
	var paths []string
	if *meta != "" {
		paths, err = s.DownloadFromMetadata(ctx, *meta, target)
	} else {
		paths, err = s.Download(ctx, *prefix, target)
	}
	progress.Wait()
	if err != nil {
		return err
	}
	fmt.Printf("Downloaded %d files to %s\n", len(paths), target)
	return nil
}

func runGenerate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	ds := fs.String("dataset", "synthetic", "dataset directory name under the data directory")
	channels := fs.Int("channels", 3, "channels per spectrum")
	timesteps := fs.Int("timesteps", 128, "timesteps per channel")
	nMax := fs.Int("n-max", 4, "maximum number of peaks")
	perShard := fs.Int("per-shard", 200, "instances per shard")
	trainShards := fs.Int("train-shards", 4, "number of training shards")
	testShards := fs.Int("test-shards", 1, "number of test shards")
	noise := fs.Float64("noise", 0.02, "standard deviation of additive noise")
	seed := fs.Int64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body := fmt.Sprintf(`{"num_channels": %d, "num_instances": %d, "num_timesteps": %d,
		"n_max": %d, "n_max_s": 0, "omega_shift": 0, "dg": 0, "dgs": 0, "scale": 1}`,
		*channels, *perShard*(*trainShards+*testShards), *timesteps, *nMax)
	meta, err := dataset.ParseMetadata("generate flags", []byte(body))
	if err != nil {
		return err
	}
	dir := filepath.Join(cfg.DataDir, *ds)
	err = dataset.Synthesize(dir, meta, dataset.SyntheticConfig{
		TrainShards: *trainShards,
		TestShards:  *testShards,
		PerShard:    *perShard,
		Noise:       *noise,
		Seed:        *seed,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", dir)
	return nil
}

func runBatches(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("batches", flag.ContinueOnError)
	ds := fs.String("dataset", "", "dataset directory name under the data directory")
	channels := fs.Int("channels", 0, "use the first N channels only (subset variant)")
	instances := fs.Int("instances", 0, "with -channels, cap instances per shard (0 keeps all)")
	batchSize := fs.Int("batch-size", 32, "batch size")
	n := fs.Int("n", 1, "number of batches to draw")
	raw := fs.Bool("raw-labels", false, "yield raw peak counts instead of one-hot labels")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ds == "" || *n <= 0 {
		fs.Usage()
		return errUsage
	}

	opts := []preprocessing.Option{preprocessing.WithStreaming()}
	if *channels > 0 {
		opts = append(opts, preprocessing.WithSubset(*channels, *instances))
	}
	p, err := preprocessing.NewSpectraPreprocessor(cfg.DataDir, *ds, opts...)
	if err != nil {
		return err
	}
	gd, err := p.NewGomlxDataset(*ds, *batchSize, !*raw)
	if err != nil {
		return err
	}
	for i := 0; i < *n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, inputs, labels, err := gd.Yield()
		if err != nil {
			return err
		}
		fmt.Printf("%s batch %d: inputs %v labels %v\n", gd.Name(), i,
			inputs[0].Shape().Dimensions, labels[0].Shape().Dimensions)
	}
	return nil
}

func runSetupVenv(ctx context.Context, cfg *config.Config, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.WithStack(err)
	}
	engineDefault := ""
	if cfg.MatlabRoot != "" {
		engineDefault = filepath.Join(cfg.MatlabRoot, "extern", "engines", "python")
	}

	fs := flag.NewFlagSet("setup-venv", flag.ContinueOnError)
	root := fs.String("root", wd, "project root added to PYTHONPATH")
	engineDir := fs.String("engine-dir", engineDefault, "directory containing the engine's setup.py")
	venvDir := fs.String("venv", venv.DefaultVenvDir, "virtual environment directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s := venv.NewSetup(*root, *engineDir)
	s.VenvDir = *venvDir
	err = s.Execute(ctx)
	if errors.Is(err, venv.ErrAborted) {
		return nil
	}
	return err
}
