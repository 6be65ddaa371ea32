package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type markStore struct {
	client *redis.Client
}

// Has reports whether the mark exists
func (s *markStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, markKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Mark sets the mark if absent
func (s *markStore) Mark(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, markKey(key), time.Now().UTC().Format(time.RFC3339), 0).Result()
}
