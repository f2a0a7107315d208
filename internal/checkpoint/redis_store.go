// SPDX-License-Identifier: LGPL-3.0-or-later

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the same Snapshot document as FileStore but to a
// single Redis key, letting multiple engine processes share resumption
// state through a cache they already run. It is an enrichment on top of
// the spec's required file-based store, not a replacement for it.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// NewRedisStore builds a RedisStore from configuration. A zero TTL means
// the key never expires on its own.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	key := cfg.Key
	if key == "" {
		key = "hyperfetch:downloading"
	}
	return &RedisStore{client: client, key: key, ttl: cfg.TTL}
}

func (s *RedisStore) Save(snap Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis checkpoint set: %w", err)
	}
	return nil
}

func (s *RedisStore) Load() (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis checkpoint get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return snap, nil
}

func (s *RedisStore) Remove() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis checkpoint del: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
