package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// SyntheticConfig controls Synthesize.
type SyntheticConfig struct {
	// Shards per subset and instances per shard.
	TrainShards int
	TestShards  int
	PerShard    int

	// Noise is the standard deviation of additive Gaussian noise.
	Noise float64
	Seed  int64
}

// Synthesize writes a small dataset of Lorentzian peak spectra into dir:
// gen_info.json plus train and test shards. Labels are peak counts in
// [1, n_max].
func Synthesize(dir string, meta *GenerationMetadata, cfg SyntheticConfig) error {
	nMax, err := meta.NMax.Int64()
	if err != nil || nMax < 1 {
		return errors.NewValidationError("n_max", "must be a positive integer", meta.NMax)
	}
	if cfg.PerShard <= 0 {
		return errors.NewValidationError("PerShard", "must be positive", cfg.PerShard)
	}
	if err := WriteMetadata(dir, meta); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	write := func(prefix string, shards int) error {
		for s := 0; s < shards; s++ {
			dm := tensor.New(cfg.PerShard, meta.NumChannels, meta.NumTimesteps)
			labels := make([]int, cfg.PerShard)
			for i := range labels {
				labels[i] = 1 + rng.Intn(int(nMax))
				fillSpectrum(dm, i, labels[i], cfg.Noise, rng)
			}
			name := filepath.Join(dir, fmt.Sprintf("%s_%04d%s", prefix, s, ShardExt))
			if err := WriteShard(name, dm, labels); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(TrainPrefix, cfg.TrainShards); err != nil {
		return err
	}
	return write(TestPrefix, cfg.TestShards)
}

func fillSpectrum(dm *tensor.Dense, i, peaks int, noise float64, rng *rand.Rand) {
	channels, timesteps := dm.Dim(1), dm.Dim(2)
	centers := make([]float64, peaks)
	widths := make([]float64, peaks)
	for p := range centers {
		centers[p] = rng.Float64() * float64(timesteps)
		widths[p] = 0.5 + rng.Float64()*float64(timesteps)/20
	}
	for c := 0; c < channels; c++ {
		gain := 0.5 + rng.Float64()
		for ts := 0; ts < timesteps; ts++ {
			v := 0.0
			for p := range centers {
				d := (float64(ts) - centers[p]) / widths[p]
				v += gain / (1 + d*d)
			}
			v += noise * rng.NormFloat64()
			if math.IsNaN(v) {
				v = 0
			}
			dm.Set(v, i, c, ts)
		}
	}
}
