package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyToken is the key under which the token is stored.
const RedisKeyToken = "vectra:auth:token"

// RedisStore persists the token in Redis so that several export hosts
// sharing one API credential reuse the same token instead of racing for
// fresh exchanges.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed token store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Read retrieves the stored token.
// Returns ErrCacheMiss if the key doesn't exist or the token is expired.
func (s *RedisStore) Read(ctx context.Context) (*Token, error) {
	data, err := s.redis.Get(ctx, RedisKeyToken).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		CacheErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if !token.Valid() && !token.CanRefresh() {
		// Expired entry, drop it.
		_ = s.redis.Del(ctx, RedisKeyToken).Err()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &token, nil
}

// Write stores the token with a TTL matching its expiry, so Redis evicts
// it exactly when it stops being usable.
func (s *RedisStore) Write(ctx context.Context, token *Token) error {
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}

	data, err := json.Marshal(token)
	if err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("marshal token: %w", err)
	}

	ttl := token.TTL()
	if token.CanRefresh() {
		if rttl := time.Until(token.RefreshExpiresAt); rttl > ttl {
			ttl = rttl
		}
	}
	if ttl <= 0 {
		return fmt.Errorf("token already expired")
	}

	if err := s.redis.Set(ctx, RedisKeyToken, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
