package chat

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound events buffered per connection. Emit fails fast when full
	// rather than blocking the caller.
	writeStreamSize = 64

	DefaultMaxAttempts = 5
	DefaultBackoff     = time.Second
)

// ConnState is the process-local connection lifecycle state. Transitions are
// driven by the transport, never by application logic.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventHandler consumes one decoded inbound event. Handlers run on the read
// loop goroutine so per-room event order is preserved.
type EventHandler func(*Event)

// ConnConfig carries everything needed to establish the authenticated chat
// channel for one shop.
type ConnConfig struct {
	// URL is the websocket endpoint of the backend chat namespace.
	URL string
	// Shop is the tenant routing identifier, sent as the X-Fishook-Shop header.
	Shop string
	// AccessToken is the platform access token. It is never sent raw; it is
	// obfuscated with Secret before dialing.
	AccessToken string
	// Secret is the app shared secret used to derive the obfuscation key.
	Secret []byte
	// MaxAttempts bounds consecutive failed dials before the connection
	// settles into StateError. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// Backoff is the fixed delay between failed dials. Zero means DefaultBackoff.
	Backoff time.Duration

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Conn owns exactly one live chat connection for one shop. It dials,
// authenticates, announces presence, relays events both ways and redials with
// a bounded fixed-backoff policy on transport loss. A Conn is exclusively
// owned by one Session and must be released with Close on every exit path.
type Conn struct {
	cfg ConnConfig

	mu      sync.RWMutex
	state   ConnState
	lastErr string
	out     chan *Event

	handlers    *SyncMap[string, EventHandler]
	onState     func(ConnState, string)
	onConnected func()

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger *slog.Logger
}

func NewConn(cfg ConnConfig) *Conn {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Conn{
		cfg:      cfg,
		state:    StateDisconnected,
		handlers: NewSyncMap[string, EventHandler](),
		closed:   make(chan struct{}),
		logger:   cfg.Logger.With(slog.String("shop", cfg.Shop)),
	}
}

// On registers the handler for an inbound event type. At most one handler per
// type; later registrations replace earlier ones.
func (c *Conn) On(eventType string, h EventHandler) {
	c.handlers.Store(eventType, h)
}

// OnStateChange registers a callback invoked on every state transition with
// the new state and, for StateError, a displayable reason.
func (c *Conn) OnStateChange(f func(ConnState, string)) {
	c.onState = f
}

// OnConnected registers a callback invoked after presence has been announced
// on every successful (re)connect. The Session uses it to rejoin the active
// room without waiting for a separate caller action.
func (c *Conn) OnConnected(f func()) {
	c.onConnected = f
}

func (c *Conn) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the displayable reason for the most recent failure, empty
// when none.
func (c *Conn) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Conn) setState(s ConnState, reason string) {
	c.mu.Lock()
	c.state = s
	c.lastErr = reason
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(s, reason)
	}
}

// Open starts the connection lifecycle in the background. It returns
// immediately; observe progress via OnStateChange.
func (c *Conn) Open() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
}

// Close tears down the connection and releases all registered listeners.
// It is idempotent and blocks until the read and write loops have exited.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.wg.Wait()
	c.handlers.Clear()
	c.setState(StateDisconnected, "")
}

// Emit queues an outbound event. It fails when the connection is not in
// StateConnected or the write stream is full.
func (c *Conn) Emit(t string, payload interface{}) error {
	e, err := NewEvent(t, payload)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.out == nil {
		return ErrNotConnected
	}
	select {
	case c.out <- e:
		return nil
	default:
		return fmt.Errorf("write stream full")
	}
}

func (c *Conn) run() {
	attempts := 0
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.setState(StateConnecting, "")
		ws, fatal, err := c.dial()
		if err != nil {
			if fatal {
				c.logger.Error(fmt.Sprintf("dial: %v", err))
				c.setState(StateError, err.Error())
				return
			}
			attempts++
			c.logger.Warn(fmt.Sprintf("dial attempt %d/%d: %v", attempts, c.cfg.MaxAttempts, err))
			if attempts >= c.cfg.MaxAttempts {
				c.setState(StateError, fmt.Sprintf("connection failed after %d attempts: %v", attempts, err))
				return
			}
			select {
			case <-c.closed:
				return
			case <-time.After(c.cfg.Backoff):
			}
			continue
		}
		attempts = 0

		out := make(chan *Event, writeStreamSize)
		c.mu.Lock()
		c.out = out
		c.state = StateConnected
		c.lastErr = ""
		c.mu.Unlock()
		if c.onState != nil {
			c.onState(StateConnected, "")
		}
		c.logger.Info("connected")

		if err := c.Emit(EventPresence, PresencePayload{Shop: c.cfg.Shop}); err != nil {
			c.logger.Error(fmt.Sprintf("announce presence: %v", err))
		}
		if c.onConnected != nil {
			c.onConnected()
		}

		lost := make(chan struct{})
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.readLoop(ws, lost)
		}()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.writeLoop(ws, out)
		}()

		select {
		case <-c.closed:
			c.detach(out)
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			ws.Close()
			return
		case <-lost:
			c.detach(out)
			ws.Close()
			c.setState(StateDisconnected, "connection lost")
			c.logger.Warn("connection lost, redialing")
		}
	}
}

// detach drops the current write stream so Emit fails fast during redial.
func (c *Conn) detach(out chan *Event) {
	c.mu.Lock()
	if c.out == out {
		c.out = nil
	}
	c.mu.Unlock()
	close(out)
}

// dial opens and authenticates one connection. fatal reports rejections that
// retrying cannot fix, such as a refused credential.
func (c *Conn) dial() (ws *websocket.Conn, fatal bool, err error) {
	credential, err := ObfuscateToken(c.cfg.AccessToken, c.cfg.Secret)
	if err != nil {
		return nil, true, fmt.Errorf("obfuscate token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	header.Set("X-Fishook-Shop", c.cfg.Shop)

	ws, resp, err := c.cfg.Dialer.Dial(c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, true, fmt.Errorf("authentication rejected: %s", resp.Status)
		}
		return nil, false, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return ws, false, nil
}

func (c *Conn) readLoop(ws *websocket.Conn, lost chan struct{}) {
	defer close(lost)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := ws.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Error(err.Error())
			continue
		}
		c.logger.Debug(event.String())

		// Handlers run inline: the single reader goroutine preserves the
		// backend's emission order for the merger.
		if h, ok := c.handlers.Load(event.Type); ok {
			h(&event)
		}
	}
}

func (c *Conn) writeLoop(ws *websocket.Conn, out chan *Event) {
	ticker := time.NewTicker(pingPeriod)
	var werr error
	defer func() {
		ticker.Stop()
		if werr != nil {
			// unblock the read loop so the redial cycle starts
			ws.Close()
		}
	}()

	for {
		select {
		case e, ok := <-out:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := ws.NextWriter(websocket.TextMessage)
			if err != nil {
				werr = err
				c.logger.Error(fmt.Sprintf("NextWriter: %v", err))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			w.Close()
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				werr = err
				c.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}
