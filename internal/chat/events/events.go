package events

import (
	"encoding/json"
	"time"
)

// Server → client event types
const (
	TypeNewMessage        = "NEW_MESSAGE"
	TypeUnseenCountUpdate = "UNSEEN_COUNT_UPDATE"
	TypeDeliveryStatus    = "DELIVERY_STATUS"
	TypeError             = "ERROR"
)

// Client → server control event types
const (
	TypeMarkAsSeen = "MARK_AS_SEEN"
)

// Delivery status values
const (
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// Incoming is a client chat frame. Type is empty for regular sends and
// TypeMarkAsSeen for read receipts.
type Incoming struct {
	Type           string `json:"type,omitempty"`
	FromUserID     string `json:"fromUserId"`
	ToUserID       string `json:"toUserId"`
	MessageBody    string `json:"messageBody"`
	ConversationID string `json:"conversationId"`
	SenderType     string `json:"senderType"`
}

// MessagePayload is the canonical message shape shared by the NEW_MESSAGE
// fan-out frame and the stream record. CreatedAt is stamped at gateway
// ingress; the id makes downstream persistence idempotent.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderType     string    `json:"senderType"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UnseenCountPayload carries the recipient's unread total for one conversation.
type UnseenCountPayload struct {
	ConversationID string `json:"conversationId"`
	Count          int64  `json:"count"`
}

// DeliveryStatusPayload acknowledges a send back to its author.
type DeliveryStatusPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
}

// ErrorPayload is a client-visible rejection of a malformed frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Envelope is the server → client frame wrapper.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Marshal renders an envelope for the socket.
func Marshal(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Payload: payload})
}

// ParseMessagePayload decodes a stream record back into the canonical shape.
func ParseMessagePayload(value []byte) (MessagePayload, error) {
	var payload MessagePayload
	err := json.Unmarshal(value, &payload)
	return payload, err
}
