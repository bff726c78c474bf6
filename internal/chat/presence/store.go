package presence

import (
	"context"
	"time"

	"eshop-marketplace/chatting-service/internal/chat/identity"

	"github.com/redis/go-redis/v9"
)

// Store tracks which identities currently hold a live connection.
// Entries expire on their own so a crashed gateway cannot leave
// participants online forever.
type Store interface {
	SetPresence(ctx context.Context, id identity.Identity) error
	ClearPresence(ctx context.Context, id identity.Identity) error
	IsPresent(ctx context.Context, id identity.Identity) (bool, error)
}

// RedisStore implements Store on redis with TTL'd sentinel keys.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a presence store with the given entry TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) SetPresence(ctx context.Context, id identity.Identity) error {
	return s.client.Set(ctx, id.PresenceKey(), "1", s.ttl).Err()
}

func (s *RedisStore) ClearPresence(ctx context.Context, id identity.Identity) error {
	return s.client.Del(ctx, id.PresenceKey()).Err()
}

func (s *RedisStore) IsPresent(ctx context.Context, id identity.Identity) (bool, error) {
	n, err := s.client.Exists(ctx, id.PresenceKey()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
