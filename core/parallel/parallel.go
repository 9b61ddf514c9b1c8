package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// Parallelize divides items into contiguous ranges, one per CPU core, and
// runs fn on each range concurrently. It returns the first error reported
// by any range; panics in fn are converted to errors.
func Parallelize(items int, fn func(start, end int) error) error {
	if items <= 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			var err error
			func() {
				defer errors.Recover(&err, "parallel.Parallelize")
				err = fn(s, e)
			}()
			if err != nil {
				once.Do(func() { firstErr = err })
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// ParallelizeWithThreshold runs fn sequentially over [0, items) when items
// does not exceed threshold, and through Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int) error) error {
	if items <= threshold {
		if items <= 0 {
			return nil
		}
		return fn(0, items)
	}
	return Parallelize(items, fn)
}
