package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// MSE は平均二乗誤差（Mean Squared Error）を全要素について計算する
//
// one-hot行列と予測確率行列のどちらも受け付ける。
func MSE(yTrue, yPred mat.Matrix) (float64, error) {
	r, c, err := sameDims("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			diff := yTrue.At(i, j) - yPred.At(i, j)
			sum += diff * diff
		}
	}
	return sum / float64(r*c), nil
}

// CategoricalCrossEntropy はone-hot正解と予測確率のクロスエントロピーを
// サンプル平均で返す
//
// 確率は log(0) を避けるため StabilizeLog で下限を設ける。
func CategoricalCrossEntropy(yTrue, yProb mat.Matrix) (float64, error) {
	r, c, err := sameDims("CategoricalCrossEntropy", yTrue, yProb)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t := yTrue.At(i, j)
			if t == 0 {
				continue
			}
			sum -= t * errors.StabilizeLog(yProb.At(i, j))
		}
	}
	loss := sum / float64(r)
	if err := errors.CheckScalar("CategoricalCrossEntropy", loss, 0); err != nil {
		return 0, err
	}
	return loss, nil
}

func sameDims(op string, a, b mat.Matrix) (int, int, error) {
	if a == nil || b == nil {
		return 0, 0, errors.NewValueError(op, "nil matrix")
	}
	r, c := a.Dims()
	rb, cb := b.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.NewValueError(op, "empty matrix")
	}
	if r != rb {
		return 0, 0, errors.NewDimensionError(op, r, rb, 0)
	}
	if c != cb {
		return 0, 0, errors.NewDimensionError(op, c, cb, 1)
	}
	return r, c, nil
}

// Round は値を小数点以下 digits 桁に丸める
func Round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
