package preprocessing

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

func TestOneHotEncoder(t *testing.T) {
	enc := NewOneHotEncoder()
	if err := enc.Fit(mat.NewDense(4, 1, []float64{1, 2, 1, 3})); err != nil {
		t.Fatal(err)
	}

	got, err := enc.Transform(mat.NewDense(1, 1, []float64{2}))
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewDense(1, 3, []float64{0, 1, 0})
	if !mat.Equal(got, want) {
		t.Errorf("Transform([[2]]) = %v, want %v", mat.Formatted(got), mat.Formatted(want))
	}

	cats := enc.Categories()
	if len(cats) != 3 || cats[0] != 1 || cats[2] != 3 {
		t.Errorf("Categories() = %v", cats)
	}
}

func TestOneHotEncoderRowsSumToOne(t *testing.T) {
	enc := NewOneHotEncoder()
	y := mat.NewDense(6, 1, []float64{5, 4, 4, 2, 5, 2})
	enc1, err := enc.FitTransform(y)
	if err != nil {
		t.Fatal(err)
	}
	r, c := enc1.Dims()
	if r != 6 || c != 3 {
		t.Fatalf("dims = %dx%d, want 6x3", r, c)
	}
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += enc1.At(i, j)
		}
		if sum != 1 {
			t.Errorf("row %d sums to %v", i, sum)
		}
	}
}

func TestOneHotEncoderErrors(t *testing.T) {
	enc := NewOneHotEncoder()

	_, err := enc.Transform(mat.NewDense(1, 1, []float64{1}))
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}

	if err := enc.FitLabels(nil); err == nil {
		t.Error("fitting on empty labels should fail")
	}
	if err := enc.Fit(mat.NewDense(2, 2, nil)); err == nil {
		t.Error("fitting on a 2-column matrix should fail")
	}
	if err := enc.Fit(mat.NewDense(1, 1, []float64{1.5})); err == nil {
		t.Error("non-integer label should fail")
	}

	if err := enc.FitLabels([]int{1, 2}); err != nil {
		t.Fatal(err)
	}
	_, err = enc.TransformLabels([]int{7})
	var uc *errors.UnknownCategoryError
	if !errors.As(err, &uc) || uc.Value != 7 {
		t.Errorf("expected UnknownCategoryError for 7, got %v", err)
	}
}

func TestStandardScaler(t *testing.T) {
	s := NewStandardScaler()
	X := mat.NewDense(3, 2, []float64{1, 5, 2, 5, 3, 5})
	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}
	if s.Mean[0] != 2 || s.Scale[1] != 1 {
		t.Errorf("Mean=%v Scale=%v", s.Mean, s.Scale)
	}
	if out.At(1, 0) != 0 || out.At(0, 1) != 0 {
		t.Errorf("unexpected output %v", mat.Formatted(out))
	}
	if _, err := s.Transform(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("wrong width should fail")
	}
	if _, err := NewStandardScaler().Transform(X); err == nil {
		t.Error("unfitted scaler should fail")
	}
}
