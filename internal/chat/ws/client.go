package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client is one registered WebSocket connection. Frames to the peer go
// through the buffered send channel; WritePump is the only goroutine that
// writes to the socket.
type Client struct {
	identity  identity.Identity
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *logger.Logger
}

func newClient(id identity.Identity, conn *websocket.Conn, sendBuffer int, log *logger.Logger) *Client {
	return &Client{
		identity: id,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   log.WithIdentity(id.String()),
	}
}

// Identity returns the registered identity of this connection.
func (c *Client) Identity() identity.Identity {
	return c.identity
}

// Enqueue hands a frame to the write pump without blocking. A full buffer
// means the peer is not draining; the frame is dropped and false returned
// so the caller can count the slow consumer.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send buffer full, dropping frame")
		return false
	}
}

// Close shuts the send channel down and closes the socket. Safe to call
// concurrently from the write pump, teardown, and a replacing registration.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// WritePump drains the send channel to the socket and keeps the connection
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
