package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"contactbook/api/internal/models"
)

// Cached identities live for one hour regardless of access-token expiry.
const identityTTL = 3600 * time.Second

const identityKeyPrefix = "user:"

// Store is the key-value capability the identity cache is built on. The
// redis client satisfies it in production; tests inject a fake.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisStore adapts a redis client to the Store interface.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

type identityRecord struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Confirmed bool    `json:"confirmed"`
	Role      string  `json:"role"`
	Avatar    *string `json:"avatar"`
	CreatedAt string  `json:"created_at"`
}

// IdentityCache maps a raw bearer token string to a serialized user
// identity. Entries are not invalidated on role or profile changes; the
// bounded TTL is the staleness limit.
type IdentityCache struct {
	store Store
}

func NewIdentityCache(store Store) *IdentityCache {
	return &IdentityCache{store: store}
}

// Get returns the cached user for the token, or nil on a miss. An entry
// that fails to deserialize is treated as a miss.
func (c *IdentityCache) Get(ctx context.Context, token string) (*models.User, error) {
	raw, ok, err := c.store.Get(ctx, identityKeyPrefix+token)
	if err != nil || !ok {
		return nil, err
	}

	var rec identityRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, nil
	}
	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		return nil, nil
	}

	return &models.User{
		ID:        rec.ID,
		Username:  rec.Username,
		Email:     rec.Email,
		Confirmed: rec.Confirmed,
		Role:      models.UserRole(rec.Role),
		AvatarURL: rec.Avatar,
		CreatedAt: createdAt,
	}, nil
}

// Set stores the user identity under the token key with the fixed TTL.
// The password hash is never cached.
func (c *IdentityCache) Set(ctx context.Context, token string, user models.User) error {
	rec := identityRecord{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Confirmed: user.Confirmed,
		Role:      string(user.Role),
		Avatar:    user.AvatarURL,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, identityKeyPrefix+token, string(raw), identityTTL)
}
