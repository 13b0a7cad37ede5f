package chat

import (
	"errors"
	"time"
)

// Sender classifies which side of a conversation produced a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderMerchant Sender = "merchant"
)

// RoomStatus represents the lifecycle state of a room. Rooms are created and
// closed by the backend; the client only ever reads the status.
type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomClosed RoomStatus = "closed"
)

// Room is a read-through projection of one customer-to-merchant conversation.
// The backend owns the room; the client never mutates it.
type Room struct {
	ID         string     `json:"id"`
	Status     RoomStatus `json:"status"`
	CustomerID string     `json:"customer_id"`
	// Messages may be partially loaded (most-recent-N).
	Messages []Message `json:"messages,omitempty"`
}

// Message is one unit of conversation. The ID is unique within a room across
// both the historical fetch and the live stream; Merge relies on that.
type Message struct {
	ID     string    `json:"id"`
	RoomID string    `json:"room_id"`
	Sender Sender    `json:"sender"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
	// Read transitions false -> true when the merchant views the message.
	// There is no un-reading.
	Read bool `json:"read"`
}

var (
	// ErrNotConnected is returned when an operation requires a live
	// connection and the session does not have one.
	ErrNotConnected = errors.New("not connected")
	// ErrNoRoom is returned when an operation requires a selected room.
	ErrNoRoom = errors.New("no room selected")
	// ErrRoomClosed is returned when sending to a closed room.
	ErrRoomClosed = errors.New("room closed")
	// ErrSessionClosed is returned when the session has been shut down.
	ErrSessionClosed = errors.New("session closed")
)
