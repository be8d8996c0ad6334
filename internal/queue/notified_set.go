package queue

import (
	"context"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NotifiedSet remembers which queue entries already got their turn notification.
type NotifiedSet interface {
	// Add records id and reports whether it was absent before.
	Add(ctx context.Context, id string) (bool, error)
	Remove(ctx context.Context, id string) error
}

// MemoryNotifiedSet keeps the set in process. go-cache's Add is atomic, so it is the once-only guard.
type MemoryNotifiedSet struct {
	items *cache.Cache
}

// NewMemoryNotifiedSet creates an empty in-process set.
func NewMemoryNotifiedSet() *MemoryNotifiedSet {
	return &MemoryNotifiedSet{items: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryNotifiedSet) Add(_ context.Context, id string) (bool, error) {
	return s.items.Add(id, struct{}{}, cache.NoExpiration) == nil, nil
}

func (s *MemoryNotifiedSet) Remove(_ context.Context, id string) error {
	s.items.Delete(id)
	return nil
}

// Len returns the number of remembered entries.
func (s *MemoryNotifiedSet) Len() int {
	return s.items.ItemCount()
}

// RedisNotifiedSet shares the set across replicas; SADD reports whether the member is new.
type RedisNotifiedSet struct {
	client redis.Cmdable
	key    string
}

// NewRedisNotifiedSet stores members in the Redis set at key.
func NewRedisNotifiedSet(client redis.Cmdable, key string) *RedisNotifiedSet {
	return &RedisNotifiedSet{client: client, key: key}
}

func (s *RedisNotifiedSet) Add(ctx context.Context, id string) (bool, error) {
	added, err := s.client.SAdd(ctx, s.key, id).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis SADD %s", s.key)
	}
	return added == 1, nil
}

func (s *RedisNotifiedSet) Remove(ctx context.Context, id string) error {
	if err := s.client.SRem(ctx, s.key, id).Err(); err != nil {
		return errors.Wrapf(err, "redis SREM %s", s.key)
	}
	return nil
}
