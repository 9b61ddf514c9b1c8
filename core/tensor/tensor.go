// Package tensor provides a small dense N-dimensional float64 array used to
// carry spectra between the loader, the preprocessor and the model.
//
// Data is stored row-major. Leading-axis operations (Rows, Concat, Row)
// address whole instances, which is what the batch generator and the
// network need; Transpose and Pad handle the layout changes applied by the
// preprocessor.
package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// Dense is a row-major N-dimensional array.
type Dense struct {
	shape []int
	data  []float64
}

// New returns a zero-filled tensor with the given shape.
func New(shape ...int) *Dense {
	return &Dense{shape: append([]int(nil), shape...), data: make([]float64, volume(shape))}
}

// FromSlice wraps data with the given shape. The slice is used directly.
func FromSlice(data []float64, shape ...int) (*Dense, error) {
	for _, s := range shape {
		if s < 0 {
			return nil, errors.NewValidationError("shape", "dimensions must be non-negative", shape)
		}
	}
	if len(data) != volume(shape) {
		return nil, errors.NewValueError("tensor.FromSlice",
			fmt.Sprintf("data length %d does not match shape %v", len(data), shape))
	}
	return &Dense{shape: append([]int(nil), shape...), data: data}, nil
}

// FromMatrix copies a gonum matrix into a 2-D tensor.
func FromMatrix(m mat.Matrix) *Dense {
	r, c := m.Dims()
	t := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.data[i*c+j] = m.At(i, j)
		}
	}
	return t
}

func volume(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Shape returns a copy of the tensor shape.
func (t *Dense) Shape() []int { return append([]int(nil), t.shape...) }

// Dims returns the number of axes.
func (t *Dense) Dims() int { return len(t.shape) }

// Dim returns the length of axis i.
func (t *Dense) Dim(i int) int { return t.shape[i] }

// Len returns the length of the leading axis.
func (t *Dense) Len() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

// Size returns the total number of elements.
func (t *Dense) Size() int { return len(t.data) }

// Data returns the backing slice.
func (t *Dense) Data() []float64 { return t.data }

// RowSize is the number of elements in one leading-axis row.
func (t *Dense) RowSize() int {
	if len(t.shape) == 0 {
		return 0
	}
	return volume(t.shape[1:])
}

// Row returns the backing slice of row i of the leading axis.
func (t *Dense) Row(i int) []float64 {
	rs := t.RowSize()
	return t.data[i*rs : (i+1)*rs]
}

func (t *Dense) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v has %d axes, tensor has %d", idx, len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (t *Dense) At(idx ...int) float64 { return t.data[t.offset(idx)] }

// Set stores v at idx.
func (t *Dense) Set(v float64, idx ...int) { t.data[t.offset(idx)] = v }

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	return &Dense{shape: t.Shape(), data: append([]float64(nil), t.data...)}
}

// Equal reports element-wise equality including shape.
func (t *Dense) Equal(o *Dense) bool {
	if o == nil || len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	for i := range t.data {
		if t.data[i] != o.data[i] && !(math.IsNaN(t.data[i]) && math.IsNaN(o.data[i])) {
			return false
		}
	}
	return true
}

// Reshape returns a tensor sharing data with t under a new shape.
func (t *Dense) Reshape(shape ...int) (*Dense, error) {
	if volume(shape) != len(t.data) {
		return nil, errors.NewValueError("tensor.Reshape",
			fmt.Sprintf("cannot reshape %v into %v", t.shape, shape))
	}
	return &Dense{shape: append([]int(nil), shape...), data: t.data}, nil
}

// ExpandDims appends a trailing axis of length one. Data is shared.
func (t *Dense) ExpandDims() *Dense {
	return &Dense{shape: append(t.Shape(), 1), data: t.data}
}

// Transpose permutes axes. perm[i] names the source axis placed at position i.
func (t *Dense) Transpose(perm ...int) (*Dense, error) {
	n := len(t.shape)
	if len(perm) != n {
		return nil, errors.NewValueError("tensor.Transpose",
			fmt.Sprintf("permutation %v does not match %d axes", perm, n))
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			return nil, errors.NewValueError("tensor.Transpose", fmt.Sprintf("invalid permutation %v", perm))
		}
		seen[p] = true
	}

	srcStrides := strides(t.shape)
	outShape := make([]int, n)
	step := make([]int, n)
	for i, p := range perm {
		outShape[i] = t.shape[p]
		step[i] = srcStrides[p]
	}

	out := New(outShape...)
	if len(out.data) == 0 {
		return out, nil
	}
	idx := make([]int, n)
	src := 0
	for k := range out.data {
		out.data[k] = t.data[src]
		for a := n - 1; a >= 0; a-- {
			idx[a]++
			src += step[a]
			if idx[a] < outShape[a] {
				break
			}
			src -= step[a] * outShape[a]
			idx[a] = 0
		}
	}
	return out, nil
}

// SwapAxes exchanges two axes.
func (t *Dense) SwapAxes(a, b int) (*Dense, error) {
	perm := make([]int, len(t.shape))
	for i := range perm {
		perm[i] = i
	}
	if a < 0 || b < 0 || a >= len(perm) || b >= len(perm) {
		return nil, errors.NewValueError("tensor.SwapAxes",
			fmt.Sprintf("axes (%d, %d) out of range for %d axes", a, b, len(perm)))
	}
	perm[a], perm[b] = perm[b], perm[a]
	return t.Transpose(perm...)
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Narrow returns a copy restricted to [start, end) along axis.
func (t *Dense) Narrow(axis, start, end int) (*Dense, error) {
	if axis < 0 || axis >= len(t.shape) {
		return nil, errors.NewValueError("tensor.Narrow", fmt.Sprintf("axis %d out of range", axis))
	}
	if start < 0 || end > t.shape[axis] || start > end {
		return nil, errors.NewValueError("tensor.Narrow",
			fmt.Sprintf("range [%d, %d) out of bounds for axis %d of length %d", start, end, axis, t.shape[axis]))
	}
	outer := volume(t.shape[:axis])
	inner := volume(t.shape[axis+1:])
	n := t.shape[axis]
	w := end - start

	shape := t.Shape()
	shape[axis] = w
	out := New(shape...)
	for o := 0; o < outer; o++ {
		copy(out.data[o*w*inner:(o+1)*w*inner], t.data[(o*n+start)*inner:(o*n+end)*inner])
	}
	return out, nil
}

// Rows returns a copy of leading-axis rows [start, end).
func (t *Dense) Rows(start, end int) (*Dense, error) {
	return t.Narrow(0, start, end)
}

// Concat joins tensors along the leading axis. All trailing shapes must match.
func Concat(ts ...*Dense) (*Dense, error) {
	if len(ts) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	tail := ts[0].shape[1:]
	rows := 0
	for _, t := range ts {
		if len(t.shape) != len(ts[0].shape) {
			return nil, errors.NewDimensionError("tensor.Concat", len(ts[0].shape), len(t.shape), 0)
		}
		for i, s := range t.shape[1:] {
			if s != tail[i] {
				return nil, errors.NewDimensionError("tensor.Concat", tail[i], s, i+1)
			}
		}
		rows += t.shape[0]
	}
	shape := append([]int{rows}, tail...)
	out := New(shape...)
	off := 0
	for _, t := range ts {
		off += copy(out.data[off:], t.data)
	}
	return out, nil
}

// Matrix flattens all trailing axes and returns a rows x RowSize gonum matrix.
// The data is shared.
func (t *Dense) Matrix() (*mat.Dense, error) {
	if t.Len() == 0 || t.RowSize() == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	return mat.NewDense(t.Len(), t.RowSize(), t.data), nil
}

// String renders the shape for logs.
func (t *Dense) String() string {
	return fmt.Sprintf("tensor.Dense%v", t.shape)
}
