package queue

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the two set commands RedisNotifiedSet uses.
type fakeRedis struct {
	redis.Cmdable
	members map[string]map[string]struct{}
	fail    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{members: make(map[string]map[string]struct{})}
}

func (f *fakeRedis) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	set, ok := f.members[key]
	if !ok {
		set = make(map[string]struct{})
		f.members[key] = set
	}
	var added int64
	for _, m := range members {
		s := m.(string)
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			added++
		}
	}
	cmd.SetVal(added)
	return cmd
}

func (f *fakeRedis) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, m := range members {
		if _, ok := f.members[key][m.(string)]; ok {
			delete(f.members[key], m.(string))
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func TestRedisNotifiedSet(t *testing.T) {
	client := newFakeRedis()
	s := NewRedisNotifiedSet(client, "laundry:queue:notified")
	ctx := context.Background()

	added, err := s.Add(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, s.Remove(ctx, "e-1"))
	assert.Empty(t, client.members["laundry:queue:notified"])
}

func TestRedisNotifiedSet_ErrorIsWrapped(t *testing.T) {
	client := newFakeRedis()
	client.fail = errors.New("connection refused")
	s := NewRedisNotifiedSet(client, "k")

	_, err := s.Add(context.Background(), "e-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis SADD k")
}
