package dataset

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// MetadataFileName is the per-dataset generation metadata file.
const MetadataFileName = "gen_info.json"

// GenerationMetadata describes how a dataset was synthesized.
//
// Numeric generation parameters are kept as json.Number so that integer
// and float literals stay distinguishable when storage keys are derived.
type GenerationMetadata struct {
	NumChannels  int
	NumInstances int
	NumTimesteps int

	NMax       json.Number
	NMaxS      json.Number
	OmegaShift json.Number
	DG         json.Number
	DGS        json.Number
	Scale      json.Number

	// MatlabScript names the generator script under the generators directory.
	MatlabScript string

	raw map[string]any
}

var requiredKeys = []string{
	"num_channels", "num_instances", "num_timesteps",
	"n_max", "n_max_s", "omega_shift", "dg", "dgs", "scale",
}

// LoadMetadata reads and validates a gen_info.json file.
func LoadMetadata(path string) (*GenerationMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError(path, "cannot read generation metadata", err)
	}
	return ParseMetadata(path, data)
}

// LoadDatasetMetadata reads <dataDir>/<dataset>/gen_info.json.
func LoadDatasetMetadata(dataDir, dataset string) (*GenerationMetadata, error) {
	return LoadMetadata(filepath.Join(dataDir, dataset, MetadataFileName))
}

// ParseMetadata decodes metadata; source is only used in error messages.
func ParseMetadata(source string, data []byte) (*GenerationMetadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	raw := map[string]any{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewConfigError(source, "malformed generation metadata", err)
	}
	for _, k := range requiredKeys {
		if _, ok := raw[k]; !ok {
			return nil, errors.NewConfigError(source, "missing key "+strconv.Quote(k), nil)
		}
	}

	m := &GenerationMetadata{raw: raw}
	var err error
	if m.NumChannels, err = intField(raw, "num_channels"); err != nil {
		return nil, errors.NewConfigError(source, "invalid num_channels", err)
	}
	if m.NumInstances, err = intField(raw, "num_instances"); err != nil {
		return nil, errors.NewConfigError(source, "invalid num_instances", err)
	}
	if m.NumTimesteps, err = intField(raw, "num_timesteps"); err != nil {
		return nil, errors.NewConfigError(source, "invalid num_timesteps", err)
	}
	for key, dst := range map[string]*json.Number{
		"n_max": &m.NMax, "n_max_s": &m.NMaxS, "omega_shift": &m.OmegaShift,
		"dg": &m.DG, "dgs": &m.DGS, "scale": &m.Scale,
	} {
		n, ok := raw[key].(json.Number)
		if !ok {
			return nil, errors.NewConfigError(source, "non-numeric "+key, nil)
		}
		*dst = n
	}
	if s, ok := raw["matlab_script"].(string); ok {
		m.MatlabScript = s
	}
	if m.NumChannels <= 0 || m.NumTimesteps <= 0 {
		return nil, errors.NewConfigError(source, "num_channels and num_timesteps must be positive", nil)
	}
	return m, nil
}

func intField(raw map[string]any, key string) (int, error) {
	n, ok := raw[key].(json.Number)
	if !ok {
		return 0, errors.Newf("%s is not a number", key)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "%s is not an integer", key)
	}
	return int(v), nil
}

// Attributes returns every key of the metadata file in sorted order,
// including keys this package does not interpret.
func (m *GenerationMetadata) Attributes() []Attribute {
	keys := make([]string, 0, len(m.raw))
	for k := range m.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Attribute, len(keys))
	for i, k := range keys {
		out[i] = Attribute{Key: k, Value: m.raw[k]}
	}
	return out
}

// Attribute is one raw metadata entry.
type Attribute struct {
	Key   string
	Value any
}

// MarshalJSON writes the raw metadata back out.
func (m *GenerationMetadata) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return json.Marshal(m.raw)
	}
	return json.Marshal(map[string]any{
		"num_channels":  m.NumChannels,
		"num_instances": m.NumInstances,
		"num_timesteps": m.NumTimesteps,
		"n_max":         m.NMax,
		"n_max_s":       m.NMaxS,
		"omega_shift":   m.OmegaShift,
		"dg":            m.DG,
		"dgs":           m.DGS,
		"scale":         m.Scale,
	})
}

// WriteMetadata writes m as gen_info.json into dir.
func WriteMetadata(dir string, m *GenerationMetadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode generation metadata")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create dataset directory")
	}
	return errors.WithStack(os.WriteFile(filepath.Join(dir, MetadataFileName), data, 0o644))
}
