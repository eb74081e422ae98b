// ==============================================================================
// REDIS TOKEN STORE - internal/backend/tokenstore_redis.go
// ==============================================================================
package backend

import (
	"context"

	"cfdclient/pkg/cache"
	"cfdclient/pkg/errors"
)

const redisTokenKey = "cfdclient:auth_token"

// RedisTokenStore keeps the credential in Redis so several daemon instances
// share one login.
type RedisTokenStore struct {
	cache *cache.RedisCache
}

// NewRedisTokenStore wraps an existing Redis connection.
func NewRedisTokenStore(c *cache.RedisCache) *RedisTokenStore {
	return &RedisTokenStore{cache: c}
}

func (s *RedisTokenStore) Load() (string, string, error) {
	ctx := context.Background()

	exists, err := s.cache.Exists(ctx, redisTokenKey)
	if err != nil {
		return "", "", errors.Wrap(err, "check token key")
	}
	if !exists {
		return "", "", errors.ErrCredentialNotFound
	}

	var stored storedToken
	if err := s.cache.Get(ctx, redisTokenKey, &stored); err != nil {
		return "", "", errors.Wrap(err, "read token key")
	}
	if stored.Token == "" {
		return "", "", errors.ErrCredentialNotFound
	}
	return stored.Token, stored.IssuedFor, nil
}

func (s *RedisTokenStore) Save(token, issuedFor string) error {
	// No expiry: the token's own exp claim governs its lifetime.
	return s.cache.Set(context.Background(), redisTokenKey, storedToken{
		Token:     token,
		IssuedFor: issuedFor,
	}, 0)
}

func (s *RedisTokenStore) Clear() error {
	return s.cache.Delete(context.Background(), redisTokenKey)
}

var _ TokenStore = (*RedisTokenStore)(nil)
