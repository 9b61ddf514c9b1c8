package metrics

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ArgMaxRows は各行で最大値を持つ列番号を返す（同値の場合は先頭）
func ArgMaxRows(m mat.Matrix) []int {
	r, c := m.Dims()
	out := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		out[i] = floats.MaxIdx(row)
	}
	return out
}

// PeakLabels は n クラス分のラベル名 n_peaks_1 ... n_peaks_n を返す
func PeakLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("n_peaks_%d", i+1)
	}
	return labels
}

// ConfusionMatrix はクラス数 k の混同行列を返す。行が正解、列が予測
func ConfusionMatrix(yTrue, yPred []int, k int) (*mat.Dense, error) {
	if len(yTrue) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "empty labels")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}
	if k <= 0 {
		return nil, errors.NewValidationError("k", "number of classes must be positive", k)
	}
	cm := mat.NewDense(k, k, nil)
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return nil, errors.NewValueError("ConfusionMatrix",
				fmt.Sprintf("class index out of range at %d: true=%d pred=%d", i, t, p))
		}
		cm.Set(t, p, cm.At(t, p)+1)
	}
	return cm, nil
}

// ClassMetrics は1クラス（または平均）の指標
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report はクラスごとの適合率・再現率・F1と全体の正解率をまとめたもの
type Report struct {
	Labels      []string
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
}

// ClassificationReport はクラス番号の正解と予測からレポートを作る
//
// 予測が一つもないクラスの適合率など定義できない値は0とし、
// UndefinedMetricWarning を通知する。
func ClassificationReport(yTrue, yPred []int, labels []string) (*Report, error) {
	k := len(labels)
	cm, err := ConfusionMatrix(yTrue, yPred, k)
	if err != nil {
		return nil, err
	}

	rep := &Report{Labels: append([]string(nil), labels...), Classes: make([]ClassMetrics, k)}
	total := len(yTrue)
	correct := 0.0
	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		correct += tp
		predicted := floats.Sum(mat.Col(nil, c, cm))
		actual := floats.Sum(mat.Row(nil, c, cm))

		m := ClassMetrics{Support: int(actual)}
		if predicted > 0 {
			m.Precision = tp / predicted
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples for "+labels[c], 0))
		}
		if actual > 0 {
			m.Recall = tp / actual
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples for "+labels[c], 0))
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		rep.Classes[c] = m

		rep.MacroAvg.Precision += m.Precision / float64(k)
		rep.MacroAvg.Recall += m.Recall / float64(k)
		rep.MacroAvg.F1 += m.F1 / float64(k)

		w := actual / float64(total)
		rep.WeightedAvg.Precision += m.Precision * w
		rep.WeightedAvg.Recall += m.Recall * w
		rep.WeightedAvg.F1 += m.F1 * w
	}
	rep.Accuracy = correct / float64(total)
	rep.MacroAvg.Support = total
	rep.WeightedAvg.Support = total
	return rep, nil
}

// ClassificationReportOneHot は one-hot 正解と予測確率行列からレポートを作る。
// 列 i のラベルは n_peaks_{i+1}
func ClassificationReportOneHot(yTrue, yProb mat.Matrix) (*Report, error) {
	_, c, err := sameDims("ClassificationReportOneHot", yTrue, yProb)
	if err != nil {
		return nil, err
	}
	return ClassificationReport(ArgMaxRows(yTrue), ArgMaxRows(yProb), PeakLabels(c))
}

// Flatten はレポートを "{label}_test_{metric}" 形式のフラットなマップにする
func (r *Report) Flatten() map[string]float64 {
	out := make(map[string]float64, 4*(len(r.Classes)+2)+1)
	put := func(name string, m ClassMetrics) {
		out[name+"_test_precision"] = m.Precision
		out[name+"_test_recall"] = m.Recall
		out[name+"_test_f1-score"] = m.F1
		out[name+"_test_support"] = float64(m.Support)
	}
	for i, m := range r.Classes {
		put(r.Labels[i], m)
	}
	put("macro avg", r.MacroAvg)
	put("weighted avg", r.WeightedAvg)
	out["accuracy_test_score"] = r.Accuracy
	return out
}

// String はレポートを表形式のテキストにする
func (r *Report) String() string {
	width := len("weighted avg")
	for _, l := range r.Labels {
		if len(l) > width {
			width = len(l)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for i, m := range r.Classes {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, r.Labels[i], m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, "macro avg",
		r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, "weighted avg",
		r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return b.String()
}
