package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"eshop-marketplace/chatting-service/internal/chat/events"
	"eshop-marketplace/chatting-service/internal/chat/identity"
	"eshop-marketplace/chatting-service/internal/chat/metrics"
	"eshop-marketplace/chatting-service/internal/chat/presence"
	"eshop-marketplace/chatting-service/internal/chat/unseen"
	"eshop-marketplace/chatting-service/pkg/logger"
	"eshop-marketplace/chatting-service/pkg/resilience"
)

// Publisher hands accepted messages to the durable event stream.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Config tunes the gateway's per-connection behaviour.
type Config struct {
	// HandshakeTimeout bounds how long a fresh socket may sit silent
	// before sending its identity frame.
	HandshakeTimeout time.Duration
	// SendBuffer is the per-client outbound frame buffer.
	SendBuffer int
}

// Gateway implements the chat frame protocol on top of the hub: identity
// registration, message routing and fan-out, read receipts, and handoff to
// the durable stream.
type Gateway struct {
	hub      *Hub
	presence presence.Store
	unseen   unseen.Store
	stream   Publisher
	breaker  *resilience.CircuitBreaker
	cfg      Config
	logger   *logger.Logger
}

func NewGateway(
	hub *Hub,
	pres presence.Store,
	counts unseen.Store,
	stream Publisher,
	breaker *resilience.CircuitBreaker,
	cfg Config,
	log *logger.Logger,
) *Gateway {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Gateway{
		hub:      hub,
		presence: pres,
		unseen:   counts,
		stream:   stream,
		breaker:  breaker,
		cfg:      cfg,
		logger:   log.WithComponent("ws.gateway"),
	}
}

// HandleConnection runs the full lifecycle of one socket: registration
// handshake, read loop, and teardown. It blocks until the peer disconnects.
func (g *Gateway) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)

	client, err := g.register(ctx, conn)
	if err != nil {
		g.logger.Warn("registration failed, closing socket", "error", err)
		conn.Close()
		return
	}
	// Teardown runs after the request context may already be cancelled.
	defer g.teardown(context.WithoutCancel(ctx), client)

	go client.WritePump()
	g.readLoop(ctx, client)
}

// register performs the identity handshake. The first frame on a fresh
// socket is the raw identity string, not JSON; everything after it is a
// chat frame.
func (g *Gateway) register(ctx context.Context, conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	id, err := identity.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	client := newClient(id, conn, g.cfg.SendBuffer, g.logger)
	if prev := g.hub.Register(client); prev != nil {
		prev.Close()
	}
	if err := g.presence.SetPresence(ctx, id); err != nil {
		g.logger.Warn("presence set failed", "error", err, "identity", id.String())
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	g.logger.Info("client registered", "identity", id.String(), "connected", g.hub.Len())
	return client, nil
}

func (g *Gateway) teardown(ctx context.Context, client *Client) {
	owned := g.hub.Unregister(client)
	client.Close()
	// A replaced socket must not clear the presence its successor set.
	if owned {
		if err := g.presence.ClearPresence(ctx, client.identity); err != nil {
			g.logger.Warn("presence clear failed", "error", err, "identity", client.identity.String())
		}
	}
	g.logger.Info("client disconnected", "identity", client.identity.String(), "connected", g.hub.Len())
}

func (g *Gateway) readLoop(ctx context.Context, client *Client) {
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("unexpected close", "error", err, "identity", client.identity.String())
			}
			return
		}

		var frame events.Incoming
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.sendError(client, "invalid frame: not valid JSON")
			metrics.MessagesRouted.WithLabelValues("malformed").Inc()
			continue
		}

		switch frame.Type {
		case events.TypeMarkAsSeen:
			g.handleMarkAsSeen(ctx, client, frame)
		case "":
			g.handleMessage(ctx, client, frame)
		default:
			g.sendError(client, "unknown frame type "+frame.Type)
			metrics.MessagesRouted.WithLabelValues("malformed").Inc()
		}
	}
}

// handleMarkAsSeen resets the caller's unread count for a conversation.
func (g *Gateway) handleMarkAsSeen(ctx context.Context, client *Client, frame events.Incoming) {
	if frame.ConversationID == "" {
		g.sendError(client, "markAsSeen requires conversationId")
		return
	}
	if err := g.unseen.Clear(ctx, client.identity.Role, frame.ConversationID); err != nil {
		g.logger.Warn("unseen clear failed", "error", err, "conversationId", frame.ConversationID)
	}
}

// handleMessage validates a chat frame, fans it out to the connected
// recipient, and hands it to the durable stream. The sender always gets a
// delivery status telling it whether durability was achieved.
func (g *Gateway) handleMessage(ctx context.Context, client *Client, frame events.Incoming) {
	if frame.ToUserID == "" || frame.MessageBody == "" || frame.ConversationID == "" {
		g.sendError(client, "toUserId, messageBody and conversationId are required")
		metrics.MessagesRouted.WithLabelValues("invalid").Inc()
		return
	}
	senderRole, err := identity.ParseRole(frame.SenderType)
	if err != nil || senderRole != client.identity.Role {
		g.sendError(client, "senderType does not match the registered identity")
		metrics.MessagesRouted.WithLabelValues("invalid").Inc()
		return
	}
	// The recipient is always the opposite side of the conversation; the
	// toUserId field carries a bare id.
	recipient, err := identity.Counterparty(senderRole, frame.ToUserID)
	if err != nil {
		g.sendError(client, "invalid toUserId")
		metrics.MessagesRouted.WithLabelValues("invalid").Inc()
		return
	}

	payload := events.MessagePayload{
		ID:             uuid.NewString(),
		ConversationID: frame.ConversationID,
		SenderID:       client.identity.ID,
		SenderType:     string(client.identity.Role),
		Content:        frame.MessageBody,
		CreatedAt:      time.Now().UTC(),
	}

	g.fanOut(ctx, client, recipient, payload)
	g.publish(ctx, client, payload)
	metrics.MessagesRouted.WithLabelValues("accepted").Inc()
}

// fanOut delivers the real-time frames: NEW_MESSAGE to both ends of the
// conversation and an unread count update to the recipient.
func (g *Gateway) fanOut(ctx context.Context, sender *Client, recipient identity.Identity, payload events.MessagePayload) {
	frame, err := events.Marshal(events.TypeNewMessage, payload)
	if err != nil {
		g.logger.Error("marshal NEW_MESSAGE failed", "error", err)
		return
	}

	// Echo to the sender so every open tab of the author converges.
	if sender.Enqueue(frame) {
		metrics.FramesDelivered.WithLabelValues("sender").Inc()
	}

	peer := g.hub.Get(recipient)
	if peer == nil {
		return
	}
	if peer.Enqueue(frame) {
		metrics.FramesDelivered.WithLabelValues("recipient").Inc()
	}

	// The stored count lags until the batch consumer flushes, so project
	// the in-flight message on top of it.
	count, err := g.unseen.Get(ctx, recipient.Role, payload.ConversationID)
	if err != nil {
		g.logger.Warn("unseen count read failed", "error", err, "conversationId", payload.ConversationID)
	}
	countFrame, err := events.Marshal(events.TypeUnseenCountUpdate, events.UnseenCountPayload{
		ConversationID: payload.ConversationID,
		Count:          count + 1,
	})
	if err != nil {
		g.logger.Error("marshal UNSEEN_COUNT_UPDATE failed", "error", err)
		return
	}
	peer.Enqueue(countFrame)
}

// publish hands the message to the durable stream behind the circuit
// breaker and reports the outcome back to the sender.
func (g *Gateway) publish(ctx context.Context, sender *Client, payload events.MessagePayload) {
	record, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("marshal stream record failed", "error", err)
		g.sendDeliveryStatus(sender, payload, events.StatusFailed)
		return
	}

	err = g.breaker.Execute(func() error {
		return g.stream.Publish(ctx, payload.ConversationID, record)
	})
	if err != nil {
		metrics.PublishFailures.Inc()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			g.logger.Warn("stream circuit open, message not persisted", "messageId", payload.ID)
		} else {
			g.logger.Error("stream publish failed", "error", err, "messageId", payload.ID)
		}
		g.sendDeliveryStatus(sender, payload, events.StatusFailed)
		return
	}
	g.sendDeliveryStatus(sender, payload, events.StatusSent)
}

func (g *Gateway) sendDeliveryStatus(client *Client, payload events.MessagePayload, status string) {
	frame, err := events.Marshal(events.TypeDeliveryStatus, events.DeliveryStatusPayload{
		MessageID:      payload.ID,
		ConversationID: payload.ConversationID,
		Status:         status,
	})
	if err != nil {
		g.logger.Error("marshal DELIVERY_STATUS failed", "error", err)
		return
	}
	client.Enqueue(frame)
}

func (g *Gateway) sendError(client *Client, message string) {
	frame, err := events.Marshal(events.TypeError, events.ErrorPayload{Message: message})
	if err != nil {
		g.logger.Error("marshal ERROR failed", "error", err)
		return
	}
	client.Enqueue(frame)
}
