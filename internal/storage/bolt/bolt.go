package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/focusd/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketRelaxDaily    = "relax_daily"
	bucketRelaxSessions = "relax_sessions"
	bucketRotationItems = "rotation_items"
	bucketRotationState = "rotation_state"
	bucketResetMarks    = "reset_marks"

	rotationStateKey = "state"
)

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			[]byte(bucketRelaxDaily),
			[]byte(bucketRelaxSessions),
			[]byte(bucketRotationItems),
			[]byte(bucketRotationState),
			[]byte(bucketResetMarks),
		}

		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Relax returns the relax quota store.
func (s *Store) Relax() storage.RelaxStore { return &relaxStore{db: s.db} }

// Rotation returns the rotation store.
func (s *Store) Rotation() storage.RotationStore { return &rotationStore{db: s.db} }

// Marks returns the reset mark store.
func (s *Store) Marks() storage.MarkStore { return &markStore{db: s.db} }

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// decodeFields splits a stored JSON object into raw fields. A value that is not
// an object decodes to no fields, which the callers read as defaults.
func decodeFields(data []byte) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return map[string]json.RawMessage{}
	}
	return fields
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func bucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket missing: %s", name)
	}
	return b, nil
}

func putJSON(b *bbolt.Bucket, key string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func listBucket[T any](ctx context.Context, db *bbolt.DB, name string, decode func(k, v []byte) T) ([]T, error) {
	items := make([]T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			items = append(items, decode(k, v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
