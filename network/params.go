package network

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// ParamSpec describes one tunable hyper-parameter of a network class.
type ParamSpec struct {
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// ParamsRange maps hyper-parameter names to their admissible range.
type ParamsRange map[string]ParamSpec

// DefaultParams returns the default value of every parameter.
func (r ParamsRange) DefaultParams() map[string]float64 {
	params := make(map[string]float64, len(r))
	for name, spec := range r {
		params[name] = spec.Default
	}
	return params
}

// Names returns the parameter names in sorted order.
func (r ParamsRange) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve fills missing entries of params with defaults and rejects unknown
// names and out-of-range values. The input map is not modified.
func (r ParamsRange) Resolve(params map[string]float64) (map[string]float64, error) {
	resolved := r.DefaultParams()
	for name, v := range params {
		spec, ok := r[name]
		if !ok {
			return nil, errors.NewValidationError(name, "unknown hyper-parameter", v)
		}
		if v < spec.Min || v > spec.Max {
			return nil, errors.NewValidationError(name,
				fmt.Sprintf("must be in [%g, %g]", spec.Min, spec.Max), v)
		}
		resolved[name] = v
	}
	return resolved, nil
}
