package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisNamespace   = "respcache:"
	redisScanCount   = 200
	redisDialTimeout = 3 * time.Second
	redisIOTimeout   = 2 * time.Second
)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// RedisBackend shares cached responses between instances. Redis expires keys
// itself, so DeleteExpired has nothing to do.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	options.PoolSize = 10
	options.MinIdleConns = 2
	options.DialTimeout = redisDialTimeout
	options.ReadTimeout = redisIOTimeout
	options.WriteTimeout = redisIOTimeout

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, redisIOTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	logger.Info("redis cache backend connected", "addr", options.Addr)
	return client, nil
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := b.client.Get(ctx, redisNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return entry, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if err := b.client.Set(ctx, redisNamespace+key, raw, entry.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, redisNamespace+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return b.deleteMatching(ctx, redisNamespace+globEscaper.Replace(prefix)+"*")
}

// Flush removes only this cache's keys, never the whole database.
func (b *RedisBackend) Flush(ctx context.Context) error {
	_, err := b.deleteMatching(ctx, redisNamespace+"*")
	return err
}

func (b *RedisBackend) DeleteExpired(context.Context) (int, error) { return 0, nil }

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) deleteMatching(ctx context.Context, pattern string) (int, error) {
	removed := 0
	batch := make([]string, 0, redisScanCount)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := b.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := b.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanCount {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return removed, flush()
}
