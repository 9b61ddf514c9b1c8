package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LayerWeights は1層分の重み行列とバイアス（シリアライゼーション用）
type LayerWeights struct {
	Rows int
	Cols int
	W    []float64
	B    []float64
}

// ModelWeights はネットワークの重みを表す構造体
type ModelWeights struct {
	// ModelType はネットワークのクラス名
	ModelType string

	// Version は互換性チェック用のバージョン
	Version string

	// InputShape は学習時の入力形状（インスタンス軸を除く）
	InputShape []int

	// Layers は入力側から順に並んだ層
	Layers []LayerWeights

	// Hyperparameters はビルド時のハイパーパラメータ
	Hyperparameters map[string]float64

	// InputMean と InputScale は入力標準化のパラメータ
	InputMean  []float64
	InputScale []float64

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool
}

// NewLayerWeights は行列とバイアスからLayerWeightsを作る
func NewLayerWeights(w *mat.Dense, b []float64) LayerWeights {
	r, c := w.Dims()
	raw := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			raw[i*c+j] = w.At(i, j)
		}
	}
	return LayerWeights{Rows: r, Cols: c, W: raw, B: append([]float64(nil), b...)}
}

// Dense は重み行列を復元する
func (l LayerWeights) Dense() *mat.Dense {
	return mat.NewDense(l.Rows, l.Cols, append([]float64(nil), l.W...))
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}
	if mw.Version == "" {
		return fmt.Errorf("version is required")
	}
	if mw.IsFitted && len(mw.Layers) == 0 {
		return fmt.Errorf("fitted model must have layers")
	}
	if len(mw.InputMean) != len(mw.InputScale) {
		return fmt.Errorf("input mean has %d entries, scale has %d", len(mw.InputMean), len(mw.InputScale))
	}
	for i, l := range mw.Layers {
		if len(l.W) != l.Rows*l.Cols {
			return fmt.Errorf("layer %d: weight length %d does not match %dx%d", i, len(l.W), l.Rows, l.Cols)
		}
		if len(l.B) != l.Cols {
			return fmt.Errorf("layer %d: bias length %d does not match %d outputs", i, len(l.B), l.Cols)
		}
		if i > 0 && mw.Layers[i-1].Cols != l.Rows {
			return fmt.Errorf("layer %d: expects %d inputs, previous layer has %d outputs", i, l.Rows, mw.Layers[i-1].Cols)
		}
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:       mw.ModelType,
		Version:         mw.Version,
		InputShape:      append([]int(nil), mw.InputShape...),
		Layers:          make([]LayerWeights, len(mw.Layers)),
		Hyperparameters: make(map[string]float64, len(mw.Hyperparameters)),
		InputMean:       append([]float64(nil), mw.InputMean...),
		InputScale:      append([]float64(nil), mw.InputScale...),
		IsFitted:        mw.IsFitted,
	}
	for i, l := range mw.Layers {
		clone.Layers[i] = LayerWeights{
			Rows: l.Rows,
			Cols: l.Cols,
			W:    append([]float64(nil), l.W...),
			B:    append([]float64(nil), l.B...),
		}
	}
	for k, v := range mw.Hyperparameters {
		clone.Hyperparameters[k] = v
	}
	return clone
}
