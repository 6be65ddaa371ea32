package bolt

import (
	"context"
	"time"

	"go.etcd.io/bbolt"
)

type markStore struct {
	db *bbolt.DB
}

func (s *markStore) Has(ctx context.Context, key string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketResetMarks)
		if err != nil {
			return err
		}
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *markStore) Mark(ctx context.Context, key string) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketResetMarks)
		if err != nil {
			return err
		}
		if b.Get([]byte(key)) != nil {
			return nil
		}
		created = true
		return b.Put([]byte(key), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	return created, err
}
