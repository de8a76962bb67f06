package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key, default "brickhost:".
	Prefix string
}

// RedisStore keeps each plugin's values in one hash and its config in a
// string key.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxValue int
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "brickhost:"
	}
	return &RedisStore{client: client, prefix: prefix, maxValue: DefaultMaxValueBytes}
}

// SetMaxValueBytes caps the encoded size of one value or config object.
// n <= 0 restores the default.
func (s *RedisStore) SetMaxValueBytes(n int) {
	if n <= 0 {
		n = DefaultMaxValueBytes
	}
	s.maxValue = n
}

func (s *RedisStore) storeKey(plugin string) string  { return s.prefix + "store:" + plugin }
func (s *RedisStore) configKey(plugin string) string { return s.prefix + "config:" + plugin }

// Get returns the stored value, or nil if the key does not exist.
func (s *RedisStore) Get(ctx context.Context, plugin, key string) (json.RawMessage, error) {
	raw, err := s.client.HGet(ctx, s.storeKey(plugin), key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin value: %w", err)
	}
	return json.RawMessage(raw), nil
}

func (s *RedisStore) Set(ctx context.Context, plugin, key string, value json.RawMessage) error {
	if err := checkValue(value, s.maxValue); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	if err := s.client.HSet(ctx, s.storeKey(plugin), key, string(value)).Err(); err != nil {
		return fmt.Errorf("write plugin value: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, plugin, key string) error {
	if err := s.client.HDel(ctx, s.storeKey(plugin), key).Err(); err != nil {
		return fmt.Errorf("delete plugin value: %w", err)
	}
	return nil
}

func (s *RedisStore) Wipe(ctx context.Context, plugin string) error {
	if err := s.client.Del(ctx, s.storeKey(plugin)).Err(); err != nil {
		return fmt.Errorf("wipe plugin store: %w", err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, plugin string) (int, error) {
	n, err := s.client.HLen(ctx, s.storeKey(plugin)).Result()
	if err != nil {
		return 0, fmt.Errorf("count plugin store: %w", err)
	}
	return int(n), nil
}

// Keys returns the plugin's keys in lexical order.
func (s *RedisStore) Keys(ctx context.Context, plugin string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.storeKey(plugin)).Result()
	if err != nil {
		return nil, fmt.Errorf("list plugin keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) GetConfig(ctx context.Context, plugin string) (json.RawMessage, error) {
	raw, err := s.client.Get(ctx, s.configKey(plugin)).Result()
	if errors.Is(err, redis.Nil) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugin config: %w", err)
	}
	return json.RawMessage(raw), nil
}

// MergeConfig runs the read-merge-write under WATCH so concurrent merges retry
// instead of losing updates.
func (s *RedisStore) MergeConfig(ctx context.Context, plugin string, updates json.RawMessage) (json.RawMessage, error) {
	upd, err := decodeObjectOrEmpty(updates)
	if err != nil {
		return nil, fmt.Errorf("decode config updates: %w", err)
	}

	key := s.configKey(plugin)
	var merged json.RawMessage
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			cur = "{}"
		} else if err != nil {
			return fmt.Errorf("read plugin config: %w", err)
		}
		merged, err = mergeObjects(json.RawMessage(cur), upd, s.maxValue)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(merged), 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("merge plugin config: %w", err)
	}
	return merged, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
