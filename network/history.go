package network

import (
	"fmt"
	"maps"
	"slices"

	"github.com/YuminosukeSato/spectra/metrics"
	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// HistoryDigits is the precision kept for history values.
const HistoryDigits = 5

// History maps a metric name ("loss", "val_accuracy", ...) to one value per
// epoch.
type History map[string][]float64

// ErrIncompatibleHistory is returned when two histories track different
// metrics.
var ErrIncompatibleHistory = errors.New("histories track different metrics")

// Epochs returns the number of epochs recorded.
func (h History) Epochs() int {
	n := 0
	for _, v := range h {
		n = max(n, len(v))
	}
	return n
}

// Keys returns the metric names in sorted order.
func (h History) Keys() []string {
	return slices.Sorted(maps.Keys(h))
}

// Rounded returns a copy with every value rounded to HistoryDigits decimals.
func (h History) Rounded() History {
	out := make(History, len(h))
	for k, vals := range h {
		r := make([]float64, len(vals))
		for i, v := range vals {
			r[i] = metrics.Round(v, HistoryDigits)
		}
		out[k] = r
	}
	return out
}

func (h History) append(values map[string]float64) {
	for k, v := range values {
		h[k] = append(h[k], v)
	}
}

// MergeHistories concatenates next after prev, metric by metric. An empty
// prev is treated as the start of training.
func MergeHistories(prev, next History) (History, error) {
	if len(prev) == 0 {
		return next.Rounded(), nil
	}
	if !slices.Equal(prev.Keys(), next.Keys()) {
		return nil, errors.Wrap(ErrIncompatibleHistory,
			fmt.Sprintf("have %v, got %v", prev.Keys(), next.Keys()))
	}
	merged := make(History, len(prev))
	for k, vals := range prev {
		merged[k] = append(slices.Clone(vals), next[k]...)
	}
	return merged.Rounded(), nil
}
