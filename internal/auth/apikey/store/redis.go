package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// DefaultRedisKeyPrefix prefixes the Redis hash that holds all keys.
const DefaultRedisKeyPrefix = "mcp:apikeys:"

// RedisStore keeps every record as a field of one Redis hash
// "<prefix>keys", the field being the key id and the value the record JSON.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	owned  bool
	logger observability.Logger
}

// RedisOption is a functional option for RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger for the Redis store.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client redis.UniversalClient, keyPrefix string, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}

	s := &RedisStore{
		client: client,
		key:    keyPrefix + "keys",
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenRedisStore connects to the Redis server at url (redis:// or
// rediss://) and verifies the connection.
func OpenRedisStore(ctx context.Context, url, keyPrefix string, opts ...RedisOption) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis URL is required")
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s, err := NewRedisStore(client, keyPrefix, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Key returns the name of the Redis hash.
func (s *RedisStore) Key() string {
	return s.key
}

// Close closes the client if the store opened it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// GetAll implements apikey.Store.
func (s *RedisStore) GetAll(ctx context.Context) (map[string]*apikey.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read API keys from redis: %w", err)
	}

	raw := make(map[string][]byte, len(fields))
	for id, v := range fields {
		raw[id] = []byte(v)
	}
	return decodeEach(raw, s.logger), nil
}

// SetAll implements apikey.Store inside a MULTI/EXEC transaction.
func (s *RedisStore) SetAll(ctx context.Context, records map[string]*apikey.Record) error {
	values := make(map[string]any, len(records))
	for id, record := range records {
		if record == nil {
			continue
		}
		data, err := encodeRecord(record)
		if err != nil {
			return err
		}
		values[id] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace API keys in redis: %w", err)
	}
	return nil
}

// Get implements apikey.Store.
func (s *RedisStore) Get(ctx context.Context, keyID string) (*apikey.Record, error) {
	data, err := s.client.HGet(ctx, s.key, keyID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apikey.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read API key from redis: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil || record == nil {
		s.logger.Warn("undecodable API key in redis", observability.String("key_id", keyID))
		return nil, apikey.ErrRecordNotFound
	}
	return record, nil
}

// Set implements apikey.Store.
func (s *RedisStore) Set(ctx context.Context, keyID string, record *apikey.Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, keyID, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to write API key to redis: %w", err)
	}
	return nil
}

// Delete implements apikey.Store.
func (s *RedisStore) Delete(ctx context.Context, keyID string) (bool, error) {
	n, err := s.client.HDel(ctx, s.key, keyID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete API key from redis: %w", err)
	}
	return n > 0, nil
}

var _ apikey.Store = (*RedisStore)(nil)
