package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHistoryLimit is the most-recent-N window requested from the
	// backend when a room is selected.
	DefaultHistoryLimit = 100

	// remoteTypingTimeout clears the remote typing flag after silence, in
	// case the backend's "typing stopped" event was dropped.
	remoteTypingTimeout = 10 * time.Second
)

// HistoryFetcher is the one-shot backend call returning the most-recent-N
// messages of a room. No ordering guarantee is assumed.
type HistoryFetcher interface {
	MessageHistory(ctx context.Context, roomID string, limit int) ([]Message, error)
}

// TranscriptCache persists merged transcripts locally so a failed history
// fetch can still render the last known state of a room.
type TranscriptCache interface {
	ReplaceRoom(ctx context.Context, roomID string, msgs []Message) error
	Append(ctx context.Context, msg Message) error
	RoomMessages(ctx context.Context, roomID string) ([]Message, error)
}

// SessionConfig wires a Session to its collaborators. Cache is optional.
type SessionConfig struct {
	Conn    *Conn
	History HistoryFetcher
	Marker  ReadMarker
	Cache   TranscriptCache
	// HistoryLimit defaults to DefaultHistoryLimit.
	HistoryLimit int
	// TypingIdle defaults to DefaultIdleThreshold.
	TypingIdle time.Duration
	Logger     *slog.Logger
}

// Status is a point-in-time snapshot of the observable session state.
type Status struct {
	Connection   string `json:"connection"`
	RoomID       string `json:"room_id,omitempty"`
	RemoteTyping bool   `json:"remote_typing"`
	// Error is the displayable connection-level failure, if any.
	Error string `json:"error,omitempty"`
	// RoomError is scoped to the most recent join attempt.
	RoomError string `json:"room_error,omitempty"`
	// SendError is scoped to the most recent send attempt.
	SendError string `json:"send_error,omitempty"`
}

// Session synchronizes one merchant chat view with the backend: it joins
// rooms over the connection, merges the history fetch with the live stream
// into one ordered duplicate-free transcript, tracks the remote typing flag,
// coalesces outbound typing signals and dispatches read receipts. A Session
// exclusively owns its Conn and must be released with Close.
type Session struct {
	conn     *Conn
	history  HistoryFetcher
	cache    TranscriptCache
	receipts *ReadReceiptDispatcher
	typing   *TypingNotifier
	logger   *slog.Logger

	historyLimit int

	mu sync.Mutex
	// epoch increments on every room switch; late async results carrying an
	// older epoch are discarded so stale room data never bleeds through.
	epoch         int
	roomID        string
	histMsgs      []Message
	liveMsgs      []Message
	historyLoaded bool
	remoteTyping  bool
	typingTimer   *time.Timer
	roomErr       string
	sendErr       string
	closed        bool

	baseCtx context.Context
}

func NewSession(ctx context.Context, cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	s := &Session{
		conn:         cfg.Conn,
		history:      cfg.History,
		cache:        cfg.Cache,
		receipts:     NewReadReceiptDispatcher(cfg.Marker, cfg.Logger),
		logger:       cfg.Logger,
		historyLimit: cfg.HistoryLimit,
		baseCtx:      ctx,
	}
	s.typing = NewTypingNotifier(cfg.TypingIdle, s.emitTyping)

	s.conn.On(EventRoomJoined, s.onRoomJoined)
	s.conn.On(EventRoomJoinError, s.onRoomJoinError)
	s.conn.On(EventMessage, s.onMessage)
	s.conn.On(EventTypingStarted, s.onRemoteTyping(true))
	s.conn.On(EventTypingStopped, s.onRemoteTyping(false))
	s.conn.On(EventSendError, s.onSendError)
	s.conn.OnConnected(s.onConnected)

	return s
}

// Open starts the underlying connection. Presence is announced and the active
// room, if any, rejoined as soon as the transport is up.
func (s *Session) Open() {
	s.conn.Open()
}

// Close tears down the session and the connection it owns. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTypingTimerLocked()
	s.mu.Unlock()
	s.typing.Stop()
	s.conn.Close()
}

// SetRoom selects the active room. All buffered state for the previous room
// is discarded before the new history fetch is issued; the connection itself
// is reused, only the room membership changes. When the transport is still
// connecting the join is queued and issued on connect.
func (s *Session) SetRoom(roomID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.epoch++
	epoch := s.epoch
	s.roomID = roomID
	s.histMsgs = nil
	s.liveMsgs = nil
	s.historyLoaded = false
	s.remoteTyping = false
	s.roomErr = ""
	s.sendErr = ""
	s.stopTypingTimerLocked()
	s.mu.Unlock()

	s.typing.Stop()
	s.receipts.Reset()

	if roomID == "" {
		return nil
	}

	switch s.conn.State() {
	case StateConnected:
		if err := s.conn.Emit(EventJoinRoom, JoinRoomPayload{RoomID: roomID}); err != nil {
			s.logger.Error(fmt.Sprintf("join room %s: %v", roomID, err))
		}
	case StateConnecting:
		// queued: onConnected rejoins the active room
	default:
		s.logger.Warn(fmt.Sprintf("join room %s while %s, caller retries after reconnect", roomID, s.conn.State()))
	}

	go s.loadHistory(epoch, roomID)
	return nil
}

// Send delivers a merchant message to the active room. Each send carries a
// client-generated idempotency key so the backend can deduplicate a retried
// send. The caller's input is never cleared here; on failure the caller keeps
// the text and retries.
func (s *Session) Send(body string) error {
	s.mu.Lock()
	roomID := s.roomID
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if roomID == "" {
		return ErrNoRoom
	}

	err := s.conn.Emit(EventSend, SendPayload{
		RoomID: roomID,
		Sender: SenderMerchant,
		Body:   body,
		Key:    uuid.New().String(),
	})
	if err != nil {
		s.mu.Lock()
		s.sendErr = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.sendErr = ""
	s.mu.Unlock()
	s.typing.MessageSent()
	return nil
}

// NotifyTyping records one local keystroke; emissions are burst-coalesced.
func (s *Session) NotifyTyping() {
	s.typing.Keystroke()
}

// Messages returns the current merged transcript for the active room, ordered
// by timestamp with each message identifier appearing exactly once.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Merge(s.histMsgs, s.liveMsgs)
}

// Status reports the observable state for the UI indicator.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Connection:   s.conn.State().String(),
		RoomID:       s.roomID,
		RemoteTyping: s.remoteTyping,
		Error:        s.conn.LastError(),
		RoomError:    s.roomErr,
		SendError:    s.sendErr,
	}
}

// Reset discards all buffered state without tearing down the connection.
func (s *Session) Reset() {
	s.SetRoom("")
}

func (s *Session) onConnected() {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	if roomID == "" {
		return
	}
	if err := s.conn.Emit(EventJoinRoom, JoinRoomPayload{RoomID: roomID}); err != nil {
		s.logger.Error(fmt.Sprintf("rejoin room %s: %v", roomID, err))
	}
}

func (s *Session) loadHistory(epoch int, roomID string) {
	msgs, err := s.history.MessageHistory(s.baseCtx, roomID, s.historyLimit)
	if err != nil {
		s.logger.Error(fmt.Sprintf("history fetch %s: %v", roomID, err))
		// read-through fallback: render the last cached transcript, but do
		// not treat it as a completed fetch (no read receipts for it)
		if s.cache == nil {
			return
		}
		cached, cerr := s.cache.RoomMessages(s.baseCtx, roomID)
		if cerr != nil {
			s.logger.Error(fmt.Sprintf("transcript cache read %s: %v", roomID, cerr))
			return
		}
		s.mu.Lock()
		if epoch == s.epoch {
			s.histMsgs = cached
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.histMsgs = msgs
	s.historyLoaded = true
	visible := len(Merge(s.histMsgs, s.liveMsgs))
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.ReplaceRoom(s.baseCtx, roomID, msgs); err != nil {
			s.logger.Error(fmt.Sprintf("transcript cache replace %s: %v", roomID, err))
		}
	}
	s.receipts.Observe(s.baseCtx, roomID, visible, true)
}

func (s *Session) onMessage(e *Event) {
	var p MessagePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		s.logger.Error(fmt.Sprintf("unmarshal message payload: %v", err))
		return
	}

	msg := Message{
		ID:     p.ID,
		RoomID: p.RoomID,
		Sender: p.Sender,
		Body:   p.Body,
		SentAt: p.SentAt,
	}

	s.mu.Lock()
	if s.roomID == "" || p.RoomID != s.roomID {
		// no cross-room bleed: events for other rooms are dropped
		s.mu.Unlock()
		return
	}
	s.liveMsgs = append(s.liveMsgs, msg)
	historyLoaded := s.historyLoaded
	visible := len(Merge(s.histMsgs, s.liveMsgs))
	roomID := s.roomID
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Append(s.baseCtx, msg); err != nil {
			s.logger.Error(fmt.Sprintf("transcript cache append: %v", err))
		}
	}
	s.receipts.Observe(s.baseCtx, roomID, visible, historyLoaded)
}

func (s *Session) onRoomJoined(e *Event) {
	var p RoomJoinedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		s.logger.Error(fmt.Sprintf("unmarshal room_joined payload: %v", err))
		return
	}
	s.mu.Lock()
	if p.RoomID == s.roomID {
		s.roomErr = ""
	}
	s.mu.Unlock()
	s.logger.Info(fmt.Sprintf("joined room %s", p.RoomID))
}

func (s *Session) onRoomJoinError(e *Event) {
	var p RoomJoinErrorPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		s.logger.Error(fmt.Sprintf("unmarshal room_join_error payload: %v", err))
		return
	}
	s.mu.Lock()
	if p.RoomID == s.roomID {
		s.roomErr = p.Reason
	}
	s.mu.Unlock()
	s.logger.Warn(fmt.Sprintf("join room %s rejected: %s", p.RoomID, p.Reason))
}

func (s *Session) onSendError(e *Event) {
	var p SendErrorPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		s.logger.Error(fmt.Sprintf("unmarshal message_error payload: %v", err))
		return
	}
	s.mu.Lock()
	s.sendErr = p.Reason
	s.mu.Unlock()
	s.logger.Warn(fmt.Sprintf("send rejected: %s", p.Reason))
}

func (s *Session) onRemoteTyping(started bool) EventHandler {
	return func(e *Event) {
		var p TypingPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			s.logger.Error(fmt.Sprintf("unmarshal typing payload: %v", err))
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if p.RoomID != s.roomID {
			return
		}
		s.remoteTyping = started
		s.stopTypingTimerLocked()
		if started {
			s.typingTimer = time.AfterFunc(remoteTypingTimeout, s.clearRemoteTyping)
		}
	}
}

func (s *Session) clearRemoteTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteTyping = false
	s.typingTimer = nil
}

func (s *Session) stopTypingTimerLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}

func (s *Session) emitTyping(started bool) {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	if roomID == "" {
		return
	}
	event := EventTypingOff
	if started {
		event = EventTypingOn
	}
	if err := s.conn.Emit(event, TypingPayload{RoomID: roomID}); err != nil {
		s.logger.Debug(fmt.Sprintf("emit %s: %v", event, err))
	}
}
