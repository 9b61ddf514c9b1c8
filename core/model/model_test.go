package model

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func sampleWeights() *ModelWeights {
	w1 := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	w2 := mat.NewDense(2, 2, []float64{0.5, -0.5, 1, -1})
	return &ModelWeights{
		ModelType:       "DenseClassifier",
		Version:         "1",
		InputShape:      []int{3, 1},
		Layers:          []LayerWeights{NewLayerWeights(w1, []float64{0, 1}), NewLayerWeights(w2, []float64{2, 3})},
		Hyperparameters: map[string]float64{"hidden_units": 2},
		IsFitted:        true,
	}
}

func TestBaseEstimator(t *testing.T) {
	var e BaseEstimator
	if e.IsFitted() {
		t.Fatal("zero value should not be fitted")
	}
	e.SetFitted()
	if !e.IsFitted() || e.State.String() != "fitted" {
		t.Fatal("SetFitted did not apply")
	}
	e.Reset()
	if e.IsFitted() {
		t.Fatal("Reset did not apply")
	}
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.gob")
	orig := sampleWeights()
	if err := SaveModel(orig, path); err != nil {
		t.Fatal(err)
	}

	var loaded ModelWeights
	if err := LoadModel(&loaded, path); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(loaded.Layers[1].Dense(), orig.Layers[1].Dense()) {
		t.Error("layer weights changed after load")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestLoadModelErrors(t *testing.T) {
	var w ModelWeights
	if err := LoadModel(&w, filepath.Join(t.TempDir(), "missing.gob")); err == nil {
		t.Error("missing file should fail")
	}
	if err := LoadModelFromReader(&w, bytes.NewBufferString("not gob")); err == nil {
		t.Error("garbage should fail to decode")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelWeights)
	}{
		{"missing type", func(w *ModelWeights) { w.ModelType = "" }},
		{"missing version", func(w *ModelWeights) { w.Version = "" }},
		{"fitted without layers", func(w *ModelWeights) { w.Layers = nil }},
		{"bad bias", func(w *ModelWeights) { w.Layers[0].B = []float64{1} }},
		{"chain mismatch", func(w *ModelWeights) { w.Layers[1].Rows = 3; w.Layers[1].W = make([]float64, 6) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := sampleWeights()
			tt.mutate(w)
			if err := w.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestClone(t *testing.T) {
	orig := sampleWeights()
	c := orig.Clone()
	c.Layers[0].W[0] = 100
	c.Hyperparameters["hidden_units"] = 9
	if orig.Layers[0].W[0] == 100 || orig.Hyperparameters["hidden_units"] == 9 {
		t.Error("Clone shares state with the original")
	}
}
