package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/core/model"
	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// OneHotEncoder はピーク数ラベルをone-hot行列に変換する
//
// Fit で観測したラベルを昇順に並べ、その位置を列番号として使う。Fit 後は
// 読み取り専用で、複数の変換呼び出しから共有される。
type OneHotEncoder struct {
	model.BaseEstimator

	categories []int
	index      map[int]int
}

// NewOneHotEncoder は未学習のエンコーダーを作成する
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{}
}

// Fit はラベル列（n×1 行列）から出現するカテゴリを学習する
func (e *OneHotEncoder) Fit(y mat.Matrix) error {
	labels, err := labelColumn("OneHotEncoder.Fit", y)
	if err != nil {
		return err
	}
	return e.FitLabels(labels)
}

// FitLabels はラベルのスライスから直接学習する
func (e *OneHotEncoder) FitLabels(labels []int) error {
	if len(labels) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty labels", errors.ErrEmptyData)
	}
	index := make(map[int]int)
	for _, v := range labels {
		index[v] = 0
	}
	categories := make([]int, 0, len(index))
	for v := range index {
		categories = append(categories, v)
	}
	sort.Ints(categories)
	for i, v := range categories {
		index[v] = i
	}

	e.categories = categories
	e.index = index
	e.SetFitted()
	return nil
}

// Transform はラベル列を n×カテゴリ数 のone-hot行列に変換する
func (e *OneHotEncoder) Transform(y mat.Matrix) (mat.Matrix, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	labels, err := labelColumn("OneHotEncoder.Transform", y)
	if err != nil {
		return nil, err
	}
	return e.TransformLabels(labels)
}

// TransformLabels はラベルのスライスをone-hot行列に変換する
func (e *OneHotEncoder) TransformLabels(labels []int) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if len(labels) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	out := mat.NewDense(len(labels), len(e.categories), nil)
	for i, v := range labels {
		j, ok := e.index[v]
		if !ok {
			return nil, errors.NewUnknownCategoryError("OneHotEncoder.Transform", v, e.Categories())
		}
		out.Set(i, j, 1)
	}
	return out, nil
}

// FitTransform はFitとTransformを同時に実行する
func (e *OneHotEncoder) FitTransform(y mat.Matrix) (mat.Matrix, error) {
	if err := e.Fit(y); err != nil {
		return nil, err
	}
	return e.Transform(y)
}

// Categories は学習済みカテゴリを列の順に返す
func (e *OneHotEncoder) Categories() []int {
	return append([]int(nil), e.categories...)
}

// NumClasses はone-hot行列の列数を返す
func (e *OneHotEncoder) NumClasses() int {
	return len(e.categories)
}

func labelColumn(op string, y mat.Matrix) ([]int, error) {
	r, c := y.Dims()
	if c != 1 {
		return nil, errors.NewDimensionError(op, 1, c, 1)
	}
	labels := make([]int, r)
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) {
			return nil, errors.NewValueError(op, fmt.Sprintf("label %v at row %d is not an integer", v, i))
		}
		labels[i] = int(v)
	}
	return labels, nil
}

var _ model.Transformer = (*OneHotEncoder)(nil)
