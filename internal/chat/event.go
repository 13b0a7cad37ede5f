package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Event names exchanged with the backend chat namespace. Inbound names are
// emitted by the backend, outbound names by this client.
const (
	// inbound
	EventConnected      = "connected"
	EventRoomJoined     = "room_joined"
	EventRoomJoinError  = "room_join_error"
	EventMessage        = "message"
	EventSendAck        = "message_ack"
	EventSendError      = "message_error"
	EventTypingStarted  = "typing_started"
	EventTypingStopped  = "typing_stopped"
	EventReadAck        = "read_ack"
	EventReadError      = "read_error"
	EventConnectionLost = "connection_lost"

	// outbound
	EventPresence  = "presence"
	EventJoinRoom  = "join_room"
	EventSend      = "send_message"
	EventTypingOn  = "typing_started"
	EventTypingOff = "typing_stopped"
)

// Event is the wire unit of the chat channel. The payload is decoded into a
// concrete type by the handler registered for the event name.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Payload.Size: %d}", e.Type, len(e.Payload))
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

// NewEvent marshals payload into an Event ready for the write stream.
func NewEvent(t string, payload interface{}) (*Event, error) {
	if payload == nil {
		return &Event{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{Type: t, Payload: b}, nil
}

type PresencePayload struct {
	Shop string `json:"shop"`
}

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type RoomJoinedPayload struct {
	RoomID string `json:"room_id"`
}

type RoomJoinErrorPayload struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type MessagePayload struct {
	ID     string    `json:"id"`
	RoomID string    `json:"room_id"`
	Sender Sender    `json:"sender"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// SendPayload carries an outbound merchant message. Key is a client-generated
// idempotency key: delivery is at-least-once on the wire and the backend
// deduplicates retries by key.
type SendPayload struct {
	RoomID string `json:"room_id"`
	Sender Sender `json:"sender"`
	Body   string `json:"body"`
	Key    string `json:"idempotency_key"`
}

type SendAckPayload struct {
	ID  string `json:"id"`
	Key string `json:"idempotency_key"`
}

type SendErrorPayload struct {
	Key    string `json:"idempotency_key"`
	Reason string `json:"reason"`
}

type TypingPayload struct {
	RoomID string `json:"room_id"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}
