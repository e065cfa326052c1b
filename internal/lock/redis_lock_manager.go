package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/types"
)

const scanBatch = 100

// RedisLockManager holds each lock as one key under a prefix. SETNX gives the same
// exactly-one-winner guarantee as the unique key of the SQL lock table.
type RedisLockManager struct {
	client redis.UniversalClient
	prefix string
	log    zerolog.Logger
}

func NewRedisLockManager(client redis.UniversalClient, prefix string, log zerolog.Logger) *RedisLockManager {
	return &RedisLockManager{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "lock").Str("driver", "redis").Logger(),
	}
}

func (m *RedisLockManager) key(name string) string {
	return m.prefix + name
}

func (m *RedisLockManager) AcquireLockAndReturn(ctx context.Context, name string) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key(name), time.Now().UTC().Format(time.RFC3339Nano), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	m.log.Debug().Str("lock", name).Bool("acquired", ok).Msg("lock attempt")
	return ok, nil
}

func (m *RedisLockManager) ReleaseLock(ctx context.Context, name string) error {
	if err := m.client.Del(ctx, m.key(name)).Err(); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", name, err)
	}
	return nil
}

func (m *RedisLockManager) ReleaseAll(ctx context.Context) (int64, error) {
	keys, err := m.keys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := m.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to release locks: %w", err)
	}
	m.log.Info().Int64("count", n).Msg("released leftover locks")
	return n, nil
}

func (m *RedisLockManager) List(ctx context.Context) ([]types.Lock, error) {
	keys, err := m.keys(ctx)
	if err != nil {
		return nil, err
	}

	locks := make([]types.Lock, 0, len(keys))
	for _, key := range keys {
		val, err := m.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		created, _ := time.Parse(time.RFC3339Nano, val)
		locks = append(locks, types.Lock{Name: strings.TrimPrefix(key, m.prefix), CreatedAt: created})
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Name < locks[j].Name })
	return locks, nil
}

func (m *RedisLockManager) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := m.client.Scan(ctx, 0, m.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	return keys, nil
}
