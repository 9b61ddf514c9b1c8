// Package spectra prepares simulated spectra for peak-counting classifiers
// and trains them.
//
// A dataset is a directory of parquet shards (train_*.parquet,
// test_*.parquet) next to the gen_info.json file written by the generator.
// Each shard holds spectra shaped [instance, channel, timestep] and one
// integer peak-count label per instance.
//
// # Quick Start
//
//	p, err := preprocessing.NewSpectraPreprocessor("data", "peaks_v3")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	split, err := p.Transform(true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	trainer := network.NewTrainer(network.DenseBuilder{},
//	    p.Channels(), p.Metadata().NumTimesteps, p.NumClasses())
//	if err := trainer.Fit(ctx, split.XTrain, split.YTrain, split.XTest, split.YTest,
//	    network.DefaultTrainOptions()); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(trainer.Report())
//
// Large datasets are streamed one shard at a time:
//
//	p, _ := preprocessing.NewSpectraPreprocessor("data", "peaks_v3",
//	    preprocessing.WithStreaming())
//	gen, _ := p.TrainGenerator(32, true)
//	for batch, err := range gen.All() {
//	    ...
//	}
//
// # Packages
//
//   - dataset: shard loaders, generation metadata, parquet shard I/O
//   - preprocessing: label encoder, preprocessor, batch generator, scaler
//   - network: classifier models, training history, trainer
//   - metrics: classification report and losses
//   - storage: S3 sync of dataset directories
//   - tracking: experiment tracking on a local bbolt database
//   - core/model: estimator state and weight persistence
//   - core/tensor: N-dimensional dense arrays and padding
//   - core/parallel: parallel row processing
//
// The spectra command (cmd/spectra) wires these together.
package spectra
