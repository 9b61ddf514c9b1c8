package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/YuminosukeSato/spectra/dataset"
	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

// ErrNoObjects is returned when a download prefix matches nothing.
var ErrNoObjects = errors.New("no objects under prefix")

// Sync uploads and downloads dataset directories. Transfers run one object
// at a time and stop at the first failure.
type Sync struct {
	client   Client
	bucket   string
	progress *mpb.Progress
	logger   log.Logger
}

// SyncOption configures a Sync.
type SyncOption func(*Sync)

// WithProgress renders one progress bar per Upload or Download call.
func WithProgress(p *mpb.Progress) SyncOption {
	return func(s *Sync) { s.progress = p }
}

// NewSync creates a Sync on bucket.
func NewSync(client Client, bucket string, opts ...SyncOption) *Sync {
	s := &Sync{
		client: client,
		bucket: bucket,
		logger: log.GetLoggerWithName("storage").With(log.BucketKey, bucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sync) bar(name string, total int) *mpb.Bar {
	if s.progress == nil {
		return nil
	}
	return s.progress.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name),
			decor.CountersNoUnit(" %d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done!"),
		),
	)
}

// Upload stores every regular file of dir under the key prefix derived from
// dir's metadata file and returns the keys written.
func (s *Sync) Upload(ctx context.Context, dir string) ([]string, error) {
	meta, err := dataset.LoadMetadata(filepath.Join(dir, dataset.MetadataFileName))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewConfigError(dir, "dataset directory not readable", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	bar := s.bar("Uploading ", len(names))
	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := ObjectKey(name, meta)
		if err := s.uploadFile(ctx, filepath.Join(dir, name), key); err != nil {
			abort(bar)
			return keys, err
		}
		keys = append(keys, key)
		if bar != nil {
			bar.Increment()
		}
	}
	return keys, nil
}

func (s *Sync) uploadFile(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", local)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", local)
	}
	if err := s.client.Put(ctx, s.bucket, key, f, info.Size()); err != nil {
		return err
	}
	s.logger.Info("Object uploaded", log.ObjectKey, key, log.BytesKey, info.Size())
	return nil
}

// Download fetches every object under prefix into dir, naming each file
// after the last segment of its key, and returns the local paths.
func (s *Sync) Download(ctx context.Context, prefix, dir string) ([]string, error) {
	keys, err := s.client.List(ctx, s.bucket, prefix)
	if err != nil {
		return nil, err
	}
	var objects []string
	for _, k := range keys {
		// folder placeholders end with "/"
		if k != "" && !strings.HasSuffix(k, "/") {
			objects = append(objects, k)
		}
	}
	if len(objects) == 0 {
		return nil, errors.Wrapf(ErrNoObjects, "s3://%s/%s", s.bucket, prefix)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dir)
	}

	bar := s.bar("Downloading ", len(objects))
	paths := make([]string, 0, len(objects))
	for _, key := range objects {
		local := filepath.Join(dir, path.Base(key))
		if err := s.downloadFile(ctx, key, local); err != nil {
			abort(bar)
			return paths, err
		}
		paths = append(paths, local)
		if bar != nil {
			bar.Increment()
		}
	}
	return paths, nil
}

func (s *Sync) downloadFile(ctx context.Context, key, local string) error {
	f, err := os.Create(local)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", local)
	}
	n, err := s.client.Get(ctx, s.bucket, key, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		return err
	}
	s.logger.Info("Object downloaded", log.ObjectKey, key, log.PathKey, local, log.BytesKey, n)
	return nil
}

// DownloadFromMetadata downloads the dataset described by the metadata file
// at metaPath into dir.
func (s *Sync) DownloadFromMetadata(ctx context.Context, metaPath, dir string) ([]string, error) {
	meta, err := dataset.LoadMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, ObjectKey("", meta), dir)
}

func abort(bar *mpb.Bar) {
	if bar != nil {
		bar.Abort(false)
	}
}
