package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// RedisStore 快照保存在键{prefix}:snapshot:{step}，最近步数保存在{prefix}:latest
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 连接Redis，Ping失败时按指数退避重试
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	err := backoff.RetryNotify(
		func() error { return client.Ping(ctx).Err() },
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) { log.Warnf("ping redis %s failed, retry in %v: %v", addr, d, err) },
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(step int32) string {
	return fmt.Sprintf("%s:snapshot:%d", s.prefix, step)
}

func (s *RedisStore) Save(ctx context.Context, snap *schema.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(snap.Step), data, 0)
		p.Set(ctx, s.prefix+":latest", snap.Step, 0)
		return nil
	})
	return err
}

func (s *RedisStore) Load(ctx context.Context, step int32) (*schema.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(step)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("step %d: %w", step, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *RedisStore) Latest(ctx context.Context) (*schema.Snapshot, error) {
	v, err := s.client.Get(ctx, s.prefix+":latest").Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("latest: %w", ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	step, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("bad latest value %q: %w", v, err)
	}
	return s.Load(ctx, int32(step))
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
