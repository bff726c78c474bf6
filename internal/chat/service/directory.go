package service

import (
	"context"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/pkg/cache"
)

// ProfileSummary is the display information attached to the counterpart of
// a conversation in listing responses.
type ProfileSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ProfileDirectory resolves participant display profiles. In production this
// fronts the user and seller services; tests and local runs use the noop
// implementation.
type ProfileDirectory interface {
	Lookup(ctx context.Context, role identity.Role, id string) (ProfileSummary, error)
}

// CachedDirectory wraps a ProfileDirectory with a short-lived in-memory
// cache. Conversation listings hit the same few counterpart profiles
// repeatedly, so even a small TTL removes most upstream calls.
type CachedDirectory struct {
	inner ProfileDirectory
	cache *cache.Cache
}

func NewCachedDirectory(inner ProfileDirectory, c *cache.Cache) *CachedDirectory {
	return &CachedDirectory{inner: inner, cache: c}
}

func (d *CachedDirectory) Lookup(ctx context.Context, role identity.Role, id string) (ProfileSummary, error) {
	key := "profile:" + string(role) + ":" + id
	if v, ok := d.cache.Get(key); ok {
		if p, ok := v.(ProfileSummary); ok {
			return p, nil
		}
	}
	p, err := d.inner.Lookup(ctx, role, id)
	if err != nil {
		return ProfileSummary{}, err
	}
	d.cache.Set(key, p)
	return p, nil
}

// NoopDirectory echoes the participant ID as its name. Used when no profile
// backend is configured.
type NoopDirectory struct{}

func (NoopDirectory) Lookup(_ context.Context, _ identity.Role, id string) (ProfileSummary, error) {
	return ProfileSummary{ID: id, Name: id}, nil
}
