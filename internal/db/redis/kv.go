package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docqa/internal/db"
)

// Get returns the counter stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// AddWithTTL pipelines INCRBY and EXPIRE NX in one round trip. Redis 7+ is
// required for the NX flag.
func (s *Store) AddWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) error {
	incr := s.client.B().Incrby().Key(key).Increment(val).Build()
	if ttl <= 0 {
		if err := s.client.Do(ctx, incr).Error(); err != nil {
			return &db.Error{Op: db.OpIncrBy, Err: err}
		}
		return nil
	}

	secs := max(int64(ttl/time.Second), 1)
	expire := s.client.B().Expire().Key(key).Seconds(secs).Nx().Build()
	res := s.client.DoMulti(ctx, incr, expire)
	if err := res[0].Error(); err != nil {
		return &db.Error{Op: db.OpIncrBy, Err: err}
	}
	if err := res[1].Error(); err != nil {
		return &db.Error{Op: db.OpExpire, Err: err}
	}
	return nil
}
