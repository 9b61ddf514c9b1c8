package preprocessing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

func testMeta(t *testing.T, channels, timesteps int) *dataset.GenerationMetadata {
	t.Helper()
	body := fmt.Sprintf(`{"num_channels": %d, "num_instances": 0, "num_timesteps": %d,
		"n_max": 3, "n_max_s": 1, "omega_shift": 1, "dg": 0.5, "dgs": 0.25, "scale": 1}`, channels, timesteps)
	m, err := dataset.ParseMetadata("test", []byte(body))
	require.NoError(t, err)
	return m
}

// shardTensor encodes instance id, channel and timestep in each value:
// id*100 + c*10 + ts.
func shardTensor(firstID, n, channels, timesteps int) *tensor.Dense {
	d := tensor.New(n, channels, timesteps)
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			for ts := 0; ts < timesteps; ts++ {
				d.Set(float64((firstID+i)*100+c*10+ts), i, c, ts)
			}
		}
	}
	return d
}

// memoryLoader registers shards named s0, s1, ... of the given sizes with
// consecutive instance ids and labels cycling through 1..3.
func memoryLoader(t *testing.T, sizes []int, channels, timesteps int) *dataset.MemoryLoader {
	t.Helper()
	m := dataset.NewMemoryLoader()
	id := 0
	for s, n := range sizes {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = 1 + (id+i)%3
		}
		require.NoError(t, m.AddShard(fmt.Sprintf("s%d", s), shardTensor(id, n, channels, timesteps), labels))
		id += n
	}
	return m
}

func newTestPreprocessor(t *testing.T, train *dataset.MemoryLoader, opts ...Option) *SpectraPreprocessor {
	t.Helper()
	test := memoryLoader(t, []int{3}, 2, 4)
	require.NoError(t, test.LoadAll())

	logger, _ := log.NewTestLogger(log.LevelDebug)
	opts = append([]Option{WithLogger(logger), WithRandomSeed(1)}, opts...)
	p, err := NewSpectraPreprocessorFromLoaders(train, test, testMeta(t, 2, 4), opts...)
	require.NoError(t, err)
	return p
}

// instanceID recovers the id encoded by shardTensor from a transformed row.
func instanceID(x []float64) int {
	return int(x[0]) / 100
}
