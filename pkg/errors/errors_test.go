package errors

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Trainer.Fit",
			kind:    "build failed",
			err:     fmt.Errorf("test error"),
			wantMsg: "spectra: Trainer.Fit: build failed: test error",
		},
		{
			name:    "without original error",
			op:      "Trainer.Evaluate",
			kind:    "model not built",
			err:     nil,
			wantMsg: "spectra: Trainer.Evaluate: model not built",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("data/ds1/gen_info.json", "cannot read metadata", os.ErrNotExist)

	want := "spectra: configuration error in data/ds1/gen_info.json: cannot read metadata: file does not exist"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var cfgErr *ConfigError
	if !As(err, &cfgErr) {
		t.Fatal("Error should be castable to *ConfigError")
	}
	if !Is(err, os.ErrNotExist) {
		t.Error("ConfigError should unwrap to its cause")
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("OneHotEncoder.Transform", 1, 3, 1)

	want := "spectra: OneHotEncoder.Transform: dimension mismatch on axis 1. Expected 1, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("OneHotEncoder", "Transform")

	want := "spectra: OneHotEncoder: this estimator is not fitted yet. Call Fit() before using Transform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewInputShapeError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "without feature",
			err:     NewInputShapeError("transform", []int{-1, -1, -1}, []int{4, 2}),
			wantMsg: "spectra: input shape mismatch in transform phase. Expected shape [-1 -1 -1], got [4 2]",
		},
		{
			name:    "with feature",
			err:     NewInputShapeErrorFor("load", "labels", []int{4}, []int{3}),
			wantMsg: "spectra: input shape mismatch in load phase for 'labels'. Expected shape [4], got [3]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", tt.err.Error(), tt.wantMsg)
			}
			var shapeErr *InputShapeError
			if !As(tt.err, &shapeErr) {
				t.Error("Error should be castable to *InputShapeError")
			}
		})
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("additional_channels", "must be non-negative", -2)

	want := "spectra: validation failed for parameter 'additional_channels': must be non-negative (got: -2)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestNewShardLoadError(t *testing.T) {
	cause := fmt.Errorf("truncated file")
	err := NewShardLoadError("train_0003.parquet", cause)

	if !strings.Contains(err.Error(), "train_0003.parquet") {
		t.Errorf("Error() = %v, expected shard name", err.Error())
	}
	if !Is(err, cause) {
		t.Error("ShardLoadError should unwrap to its cause")
	}
}

func TestUnknownCategoryError(t *testing.T) {
	err := NewUnknownCategoryError("OneHotEncoder.Transform", 7, []int{1, 2, 3})

	want := "spectra: OneHotEncoder.Transform: found unknown category 7 during transform (known: [1 2 3])"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestMissingAssetWarning(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(func(w error) {})

	Warn(NewMissingAssetWarning("imgs", "data/ds1/imgs"))

	if got == nil {
		t.Fatal("warning handler was not called")
	}
	if got.Error() != `asset "imgs" not found under data/ds1/imgs` {
		t.Errorf("unexpected warning: %v", got)
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrNotImplemented, "in Model.Predict")

	if !Is(wrapped, ErrNotImplemented) {
		t.Error("Expected Is(wrapped, ErrNotImplemented) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in Model.Predict") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "DataMatrix", 10, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in DataMatrix: expected 10, got 0"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Operation", "failed", err2)

	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}
