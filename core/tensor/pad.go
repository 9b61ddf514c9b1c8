package tensor

import (
	"fmt"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// PadMode selects how values outside the source range are filled.
type PadMode int

const (
	// PadSymmetric mirrors including the edge value: [a b c] -> [b a | a b c | c b].
	PadSymmetric PadMode = iota
	// PadReflect mirrors excluding the edge value: [a b c] -> [c b | a b c | b a].
	PadReflect
	// PadEdge repeats the edge value.
	PadEdge
	// PadConstant fills with a constant.
	PadConstant
)

func (m PadMode) String() string {
	switch m {
	case PadSymmetric:
		return "symmetric"
	case PadReflect:
		return "reflect"
	case PadEdge:
		return "edge"
	case PadConstant:
		return "constant"
	default:
		return fmt.Sprintf("PadMode(%d)", int(m))
	}
}

// ParsePadMode converts a mode name into a PadMode.
func ParsePadMode(s string) (PadMode, error) {
	switch s {
	case "", "symmetric":
		return PadSymmetric, nil
	case "reflect":
		return PadReflect, nil
	case "edge":
		return PadEdge, nil
	case "constant":
		return PadConstant, nil
	}
	return PadSymmetric, errors.NewValidationError("mode", "unknown padding mode", s)
}

// Pad extends axis by before and after elements. value is only used by
// PadConstant. Reflect and symmetric modes wrap periodically when the pad
// is wider than the axis.
func (t *Dense) Pad(axis, before, after int, mode PadMode, value float64) (*Dense, error) {
	if before < 0 || after < 0 {
		return nil, errors.NewValidationError("pad_width", "padding must be non-negative", [2]int{before, after})
	}
	if axis < 0 || axis >= len(t.shape) {
		return nil, errors.NewValueError("tensor.Pad", fmt.Sprintf("axis %d out of range", axis))
	}
	n := t.shape[axis]
	if n == 0 && (before > 0 || after > 0) && mode != PadConstant {
		return nil, errors.NewValueError("tensor.Pad", "cannot mirror or extend an empty axis")
	}

	outer := volume(t.shape[:axis])
	inner := volume(t.shape[axis+1:])
	w := n + before + after

	shape := t.Shape()
	shape[axis] = w
	out := New(shape...)

	src := make([]int, w)
	for p := range src {
		src[p] = sourceIndex(p-before, n, mode)
	}

	for o := 0; o < outer; o++ {
		for p := 0; p < w; p++ {
			dst := out.data[(o*w+p)*inner : (o*w+p+1)*inner]
			if src[p] < 0 {
				for i := range dst {
					dst[i] = value
				}
				continue
			}
			copy(dst, t.data[(o*n+src[p])*inner:(o*n+src[p]+1)*inner])
		}
	}
	return out, nil
}

// sourceIndex maps a position relative to the start of the source range to
// a source index, or -1 for a constant fill.
func sourceIndex(i, n int, mode PadMode) int {
	if i >= 0 && i < n {
		return i
	}
	switch mode {
	case PadEdge:
		if i < 0 {
			return 0
		}
		return n - 1
	case PadSymmetric:
		period := 2 * n
		m := ((i % period) + period) % period
		if m < n {
			return m
		}
		return period - 1 - m
	case PadReflect:
		if n == 1 {
			return 0
		}
		period := 2 * (n - 1)
		m := ((i % period) + period) % period
		if m < n {
			return m
		}
		return period - m
	default:
		return -1
	}
}
