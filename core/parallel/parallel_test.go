package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

func TestParallelizeCoversAllItems(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		seen := make([]int32, items)
		err := Parallelize(items, func(start, end int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		for i, n := range seen {
			if n != 1 {
				t.Fatalf("items=%d: index %d visited %d times", items, i, n)
			}
		}
	}
}

func TestParallelizeReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := Parallelize(100, func(start, end int) error {
		if start == 0 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestParallelizeRecoversPanic(t *testing.T) {
	err := Parallelize(4, func(start, end int) error {
		panic("row out of range")
	})
	var perr *errors.PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PanicError, got %v", err)
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	err := ParallelizeWithThreshold(10, 100, func(start, end int) error {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("range = [%d,%d), want [0,10)", start, end)
		}
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("calls = %d, err = %v", calls, err)
	}
}
