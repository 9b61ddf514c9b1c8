package dataset

import (
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/YuminosukeSato/spectra/core/tensor"
	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// ShardExt is the file extension of shard files.
const ShardExt = ".parquet"

// SpectrumRecord is one instance of a shard. Spectrum holds the
// [channel, timestep] matrix in row-major order.
type SpectrumRecord struct {
	Spectrum  []float64 `parquet:"name=spectrum, type=LIST, valuetype=DOUBLE"`
	Channels  int32     `parquet:"name=channels, type=INT32"`
	Timesteps int32     `parquet:"name=timesteps, type=INT32"`
	N         int32     `parquet:"name=n, type=INT32"`
}

// WriteShard writes a [instance, channel, timestep] tensor and its labels.
func WriteShard(path string, dm *tensor.Dense, labels []int) error {
	if dm.Dims() != 3 {
		return errors.NewInputShapeErrorFor("write", "spectra", []int{-1, -1, -1}, dm.Shape())
	}
	if dm.Len() != len(labels) {
		return errors.NewDimensionError("dataset.WriteShard", dm.Len(), len(labels), 0)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return errors.Wrapf(err, "create shard %s", path)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(SpectrumRecord), 2)
	if err != nil {
		return errors.Wrap(err, "create parquet writer")
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	channels, timesteps := int32(dm.Dim(1)), int32(dm.Dim(2))
	for i := 0; i < dm.Len(); i++ {
		rec := SpectrumRecord{
			Spectrum:  append([]float64(nil), dm.Row(i)...),
			Channels:  channels,
			Timesteps: timesteps,
			N:         int32(labels[i]),
		}
		if err := pw.Write(rec); err != nil {
			return errors.Wrapf(err, "write instance %d", i)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return errors.Wrap(err, "finalize parquet file")
	}
	return nil
}

// ReadShard reads a shard into a [instance, channel, timestep] tensor.
// Every record must share the same channel and timestep count.
func ReadShard(path string) (*tensor.Dense, []int, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, nil, errors.NewShardLoadError(path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(SpectrumRecord), 2)
	if err != nil {
		return nil, nil, errors.NewShardLoadError(path, err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	if n == 0 {
		return nil, nil, errors.NewShardLoadError(path, errors.ErrEmptyData)
	}
	records := make([]SpectrumRecord, n)
	if err := pr.Read(&records); err != nil {
		return nil, nil, errors.NewShardLoadError(path, err)
	}

	channels, timesteps := int(records[0].Channels), int(records[0].Timesteps)
	width := channels * timesteps
	data := make([]float64, 0, n*width)
	labels := make([]int, n)
	for i, rec := range records {
		if int(rec.Channels) != channels || int(rec.Timesteps) != timesteps || len(rec.Spectrum) != width {
			return nil, nil, errors.NewShardLoadError(path, errors.NewInputShapeError("read",
				[]int{channels, timesteps}, []int{int(rec.Channels), int(rec.Timesteps), len(rec.Spectrum)}))
		}
		data = append(data, rec.Spectrum...)
		labels[i] = int(rec.N)
	}

	dm, err := tensor.FromSlice(data, n, channels, timesteps)
	if err != nil {
		return nil, nil, errors.NewShardLoadError(path, err)
	}
	return dm, labels, nil
}

// CountRows returns the number of instances in a shard from its footer
// without reading the spectra.
func CountRows(path string) (int, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return 0, errors.NewShardLoadError(path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return 0, errors.NewShardLoadError(path, err)
	}
	defer pr.ReadStop()
	return int(pr.GetNumRows()), nil
}
