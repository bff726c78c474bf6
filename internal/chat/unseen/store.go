package unseen

import (
	"context"
	"errors"
	"fmt"

	"eshop-marketplace/chatting-service/internal/chat/identity"

	"github.com/redis/go-redis/v9"
)

// Store tracks per-conversation, per-recipient-role unread counts.
// Counts only ever grow or reset to zero; there is no decrement.
type Store interface {
	Increment(ctx context.Context, role identity.Role, conversationID string) (int64, error)
	Get(ctx context.Context, role identity.Role, conversationID string) (int64, error)
	Clear(ctx context.Context, role identity.Role, conversationID string) error
}

// RedisStore implements Store with single-round-trip INCR so concurrent
// consumer instances cannot lose updates.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates an unseen-count store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(role identity.Role, conversationID string) string {
	return fmt.Sprintf("unseen:%s:%s", role, conversationID)
}

func (s *RedisStore) Increment(ctx context.Context, role identity.Role, conversationID string) (int64, error) {
	return s.client.Incr(ctx, key(role, conversationID)).Result()
}

func (s *RedisStore) Get(ctx context.Context, role identity.Role, conversationID string) (int64, error) {
	n, err := s.client.Get(ctx, key(role, conversationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Clear(ctx context.Context, role identity.Role, conversationID string) error {
	return s.client.Del(ctx, key(role, conversationID)).Err()
}
