package model

import "gonum.org/v1/gonum/mat"

// Estimator は学習状態を報告できるコンポーネント
type Estimator interface {
	IsFitted() bool
}

// Transformer はラベル列などの2次元データを変換するインターフェース
type Transformer interface {
	Estimator

	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する。Fit前の呼び出しはNotFittedError
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
