// Package storage synchronizes dataset directories with an object store.
//
// Every dataset lives under a key prefix derived from its generation
// metadata, so two datasets generated with the same settings share a
// location:
//
//	channels=3/samples=1000/timesteps=256/max_liquid_modes=5/max_shell_modes=2/
//	omega_shift=10/delta_gamma=0.5/delta_gamma_s=0.1/scale=1/train_0001.parquet
package storage

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/spectra/dataset"
)

// ObjectKey returns the object key of filename for a dataset generated with
// meta. An empty filename yields the prefix shared by all of the dataset's
// objects, ending in "/".
func ObjectKey(filename string, meta *dataset.GenerationMetadata) string {
	return strings.Join([]string{
		"channels=" + strconv.Itoa(meta.NumChannels),
		"samples=" + strconv.Itoa(meta.NumInstances),
		"timesteps=" + strconv.Itoa(meta.NumTimesteps),
		"max_liquid_modes=" + keyValue(meta.NMax),
		"max_shell_modes=" + keyValue(meta.NMaxS),
		"omega_shift=" + keyValue(meta.OmegaShift),
		"delta_gamma=" + keyValue(meta.DG),
		"delta_gamma_s=" + keyValue(meta.DGS),
		"scale=" + keyValue(meta.Scale),
		filename,
	}, "/")
}

// keyValue renders a metadata number the way the dataset generator's
// tooling printed it when the bucket was populated: integer literals as
// written, floats in shortest round-trip form ("0.001", "0.5", "1.0") with
// exponent notation only below 1e-4 or from 1e16 on.
func keyValue(n json.Number) string {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return lit
	}
	if f != 0 {
		if abs := max(f, -f); abs < 1e-4 || abs >= 1e16 {
			return strconv.FormatFloat(f, 'e', -1, 64)
		}
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
