package tracking

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/YuminosukeSato/spectra/pkg/errors"
	"github.com/YuminosukeSato/spectra/pkg/log"
)

var (
	experimentsBucket = []byte("experiments")
	recordKey         = []byte("record")
	paramsBucket      = []byte("params")
	metricsBucket     = []byte("metrics")
	textsBucket       = []byte("texts")
	assetsBucket      = []byte("assets")
)

// BoltStore keeps experiments in a bbolt database. Each experiment is a
// nested bucket holding its record and params, metrics, texts and assets
// sub-buckets.
type BoltStore struct {
	db     *bbolt.DB
	now    func() time.Time
	logger log.Logger
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open tracking database %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(experimentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create experiments bucket")
	}
	return &BoltStore{
		db:     db,
		now:    time.Now,
		logger: log.GetLoggerWithName("tracking").With(log.PathKey, path),
	}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// NewExperiment creates an experiment under project with a fresh key.
func (s *BoltStore) NewExperiment(project string) (Experiment, error) {
	rec := Record{
		Key:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Project: project,
		Created: s.now().UTC(),
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(experimentsBucket).CreateBucket([]byte(rec.Key))
		if err != nil {
			return err
		}
		for _, name := range [][]byte{paramsBucket, metricsBucket, textsBucket, assetsBucket} {
			if _, err := b.CreateBucket(name); err != nil {
				return err
			}
		}
		return putRecord(b, rec)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create experiment")
	}
	s.logger.Info("Experiment created", log.ExperimentKey, rec.Key, "project", project)
	return &boltExperiment{store: s, key: rec.Key}, nil
}

// ExistingExperiment reopens the experiment stored under key.
func (s *BoltStore) ExistingExperiment(key string) (Experiment, error) {
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(experimentsBucket).Bucket([]byte(key)) == nil {
			return errors.Wrapf(ErrExperimentNotFound, "key %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Experiment reattached", log.ExperimentKey, key)
	return &boltExperiment{store: s, key: key}, nil
}

// Experiments lists all stored experiments by creation time.
func (s *BoltStore) Experiments() ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(experimentsBucket).ForEachBucket(func(k []byte) error {
			rec, err := getRecord(tx.Bucket(experimentsBucket).Bucket(k))
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, err
}

// Record returns the summary of one experiment.
func (s *BoltStore) Record(key string) (Record, error) {
	var rec Record
	err := s.view(key, func(b *bbolt.Bucket) error {
		var err error
		rec, err = getRecord(b)
		return err
	})
	return rec, err
}

// Params returns the logged parameters of an experiment.
func (s *BoltStore) Params(key string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.view(key, func(b *bbolt.Bucket) error {
		return b.Bucket(paramsBucket).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// Metrics returns every logged value of every metric.
func (s *BoltStore) Metrics(key string) (map[string][]float64, error) {
	out := make(map[string][]float64)
	err := s.view(key, func(b *bbolt.Bucket) error {
		return b.Bucket(metricsBucket).ForEach(func(k, v []byte) error {
			var vals []float64
			if err := json.Unmarshal(v, &vals); err != nil {
				return errors.Wrapf(err, "corrupt metric %s", k)
			}
			out[string(k)] = vals
			return nil
		})
	})
	return out, err
}

// Texts returns logged texts in logging order.
func (s *BoltStore) Texts(key string) ([]string, error) {
	var out []string
	err := s.view(key, func(b *bbolt.Bucket) error {
		return b.Bucket(textsBucket).ForEach(func(_, v []byte) error {
			out = append(out, string(v))
			return nil
		})
	})
	return out, err
}

// Assets returns the stored asset names in sorted order.
func (s *BoltStore) Assets(key string) ([]string, error) {
	var out []string
	err := s.view(key, func(b *bbolt.Bucket) error {
		return b.Bucket(assetsBucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// Asset returns the content of one stored asset.
func (s *BoltStore) Asset(key, name string) ([]byte, error) {
	var out []byte
	err := s.view(key, func(b *bbolt.Bucket) error {
		v := b.Bucket(assetsBucket).Get([]byte(name))
		if v == nil {
			return errors.Newf("asset %s not found", name)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) view(key string, fn func(b *bbolt.Bucket) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(experimentsBucket).Bucket([]byte(key))
		if b == nil {
			return errors.Wrapf(ErrExperimentNotFound, "key %q", key)
		}
		return fn(b)
	})
}

func (s *BoltStore) update(key string, fn func(b *bbolt.Bucket) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(experimentsBucket).Bucket([]byte(key))
		if b == nil {
			return errors.Wrapf(ErrExperimentNotFound, "key %q", key)
		}
		return fn(b)
	})
}

func putRecord(b *bbolt.Bucket, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	return b.Put(recordKey, data)
}

func getRecord(b *bbolt.Bucket) (Record, error) {
	var rec Record
	if err := json.Unmarshal(b.Get(recordKey), &rec); err != nil {
		return rec, errors.Wrap(err, "corrupt experiment record")
	}
	return rec, nil
}

type boltExperiment struct {
	store *BoltStore
	key   string
}

func (e *boltExperiment) Key() string { return e.key }

func (e *boltExperiment) SetName(name string) error {
	return e.store.update(e.key, func(b *bbolt.Bucket) error {
		rec, err := getRecord(b)
		if err != nil {
			return err
		}
		rec.Name = name
		return putRecord(b, rec)
	})
}

func (e *boltExperiment) LogParameter(name string, value any) error {
	return e.store.update(e.key, func(b *bbolt.Bucket) error {
		return b.Bucket(paramsBucket).Put([]byte(name), []byte(fmt.Sprint(value)))
	})
}

func (e *boltExperiment) LogMetrics(values map[string]float64) error {
	return e.store.update(e.key, func(b *bbolt.Bucket) error {
		mb := b.Bucket(metricsBucket)
		for name, v := range values {
			var vals []float64
			if raw := mb.Get([]byte(name)); raw != nil {
				if err := json.Unmarshal(raw, &vals); err != nil {
					return errors.Wrapf(err, "corrupt metric %s", name)
				}
			}
			data, err := json.Marshal(append(vals, v))
			if err != nil {
				return errors.Wrapf(err, "failed to encode metric %s", name)
			}
			if err := mb.Put([]byte(name), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *boltExperiment) LogText(text string) error {
	return e.store.update(e.key, func(b *bbolt.Bucket) error {
		tb := b.Bucket(textsBucket)
		seq, err := tb.NextSequence()
		if err != nil {
			return err
		}
		k := make([]byte, 8)
		binary.BigEndian.PutUint64(k, seq)
		return tb.Put(k, []byte(text))
	})
}

func (e *boltExperiment) LogAsset(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read asset %s", path)
	}
	return e.putAssets(map[string][]byte{filepath.Base(path): data})
}

func (e *boltExperiment) LogAssetFolder(dir string) error {
	parent := filepath.Dir(filepath.Clean(dir))
	assets := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		assets[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to read asset folder %s", dir)
	}
	return e.putAssets(assets)
}

func (e *boltExperiment) putAssets(assets map[string][]byte) error {
	err := e.store.update(e.key, func(b *bbolt.Bucket) error {
		ab := b.Bucket(assetsBucket)
		for name, data := range assets {
			if err := ab.Put([]byte(name), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		e.store.logger.Debug("Assets logged", log.ExperimentKey, e.key, "count", len(assets))
	}
	return err
}

func (e *boltExperiment) End() error {
	return e.store.update(e.key, func(b *bbolt.Bucket) error {
		rec, err := getRecord(b)
		if err != nil {
			return err
		}
		ended := e.store.now().UTC()
		rec.Ended = &ended
		return putRecord(b, rec)
	})
}

var (
	_ Tracker    = (*BoltStore)(nil)
	_ Experiment = (*boltExperiment)(nil)
)
