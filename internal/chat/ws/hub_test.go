package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestHubRegisterAndGet(t *testing.T) {
	hub := NewHub()
	id := identity.Identity{Role: identity.RoleUser, ID: "1"}
	c := newClient(id, nil, 8, testLogger())

	prev := hub.Register(c)
	assert.Nil(t, prev)
	assert.Same(t, c, hub.Get(id))
	assert.Equal(t, 1, hub.Len())
}

func TestHubReregisterReturnsPrevious(t *testing.T) {
	hub := NewHub()
	id := identity.Identity{Role: identity.RoleSeller, ID: "7"}
	first := newClient(id, nil, 8, testLogger())
	second := newClient(id, nil, 8, testLogger())

	assert.Nil(t, hub.Register(first))
	prev := hub.Register(second)

	// The newest socket wins the identity slot.
	assert.Same(t, first, prev)
	assert.Same(t, second, hub.Get(id))
	assert.Equal(t, 1, hub.Len())
}

func TestHubUnregisterOnlyEvictsOwner(t *testing.T) {
	hub := NewHub()
	id := identity.Identity{Role: identity.RoleUser, ID: "1"}
	stale := newClient(id, nil, 8, testLogger())
	current := newClient(id, nil, 8, testLogger())

	hub.Register(stale)
	hub.Register(current)

	// The replaced socket's teardown must not evict its successor.
	assert.False(t, hub.Unregister(stale))
	assert.Same(t, current, hub.Get(id))

	assert.True(t, hub.Unregister(current))
	assert.Nil(t, hub.Get(id))
	assert.Equal(t, 0, hub.Len())
}

func TestClientEnqueueDropsWhenFull(t *testing.T) {
	c := newClient(identity.Identity{Role: identity.RoleUser, ID: "1"}, nil, 1, testLogger())

	assert.True(t, c.Enqueue([]byte("a")))
	// Buffer of one is full; the frame is dropped, not blocked on.
	assert.False(t, c.Enqueue([]byte("b")))

	c.Close()
	assert.False(t, c.Enqueue([]byte("c")))
	// Close is idempotent.
	c.Close()
}

// The write pump, teardown, and a replacing registration can all close a
// client at once; only one of them may close the done channel.
func TestClientCloseConcurrent(t *testing.T) {
	c := newClient(identity.Identity{Role: identity.RoleUser, ID: "1"}, nil, 1, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	select {
	case <-c.done:
	default:
		t.Fatal("done channel not closed")
	}
}
