// Package ws is the real-time gateway: it owns the WebSocket connection
// registry and routes chat frames between connected buyers and sellers.
package ws

import (
	"sync"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/metrics"
)

// Hub is the in-process connection registry, one socket per identity.
// Registering a second socket for the same identity replaces the first;
// the storefront reconnect flow depends on the newest socket winning.
type Hub struct {
	mu      sync.RWMutex
	clients map[identity.Identity]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[identity.Identity]*Client)}
}

// Register adds a client and returns the previous holder of the identity,
// if any, so the caller can close it.
func (h *Hub) Register(c *Client) *Client {
	h.mu.Lock()
	prev := h.clients[c.identity]
	h.clients[c.identity] = c
	h.mu.Unlock()
	metrics.ConnectedClients.Set(float64(h.Len()))
	return prev
}

// Unregister removes a client, but only if it still owns its identity slot.
// A stale client that was already replaced must not evict its successor.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	current, ok := h.clients[c.identity]
	if !ok || current != c {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, c.identity)
	h.mu.Unlock()
	metrics.ConnectedClients.Set(float64(h.Len()))
	return true
}

// Get returns the live client for an identity, or nil.
func (h *Hub) Get(id identity.Identity) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Len reports the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
