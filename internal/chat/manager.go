package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CredentialSource resolves the platform access token for a shop. The
// merchant session store itself is an external collaborator.
type CredentialSource interface {
	AccessToken(ctx context.Context, shop string) (string, error)
}

// SessionBackend bundles the one-shot backend calls a session makes for one
// shop.
type SessionBackend interface {
	HistoryFetcher
	ReadMarker
}

// ManagerConfig carries the collaborators shared by every shop session.
type ManagerConfig struct {
	// URL is the backend chat websocket endpoint.
	URL string
	// Secret is the app shared secret used for token obfuscation.
	Secret      []byte
	Credentials CredentialSource
	// Backend resolves the shop-scoped one-shot call surface.
	Backend func(shop string) SessionBackend
	Cache   TranscriptCache

	MaxAttempts int
	Backoff     time.Duration
	TypingIdle  time.Duration
	Logger      *slog.Logger
}

// Manager owns at most one live chat session per shop. No two sessions share
// a connection; enabling an already-enabled shop reuses its session.
type Manager struct {
	cfg      ManagerConfig
	baseCtx  context.Context
	logger   *slog.Logger
	sessions *SyncMap[string, *Session]
	mu       sync.Mutex
}

func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		baseCtx:  ctx,
		logger:   cfg.Logger,
		sessions: NewSyncMap[string, *Session](),
	}
}

// Session returns the live session for a shop, opening one on first use.
func (m *Manager) Session(ctx context.Context, shop string) (*Session, error) {
	if s, ok := m.sessions.Load(shop); ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions.Load(shop); ok {
		return s, nil
	}

	token, err := m.cfg.Credentials.AccessToken(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("resolve credential for %s: %w", shop, err)
	}

	conn := NewConn(ConnConfig{
		URL:         m.cfg.URL,
		Shop:        shop,
		AccessToken: token,
		Secret:      m.cfg.Secret,
		MaxAttempts: m.cfg.MaxAttempts,
		Backoff:     m.cfg.Backoff,
		Logger:      m.logger,
	})
	be := m.cfg.Backend(shop)
	s := NewSession(m.baseCtx, SessionConfig{
		Conn:       conn,
		History:    be,
		Marker:     be,
		Cache:      m.cfg.Cache,
		TypingIdle: m.cfg.TypingIdle,
		Logger:     m.logger.With(slog.String("shop", shop)),
	})
	s.Open()
	m.sessions.Store(shop, s)
	m.logger.Info(fmt.Sprintf("chat session opened for %s", shop))
	return s, nil
}

// Disable closes and removes the session for a shop. No-op when none exists.
func (m *Manager) Disable(shop string) {
	s, ok := m.sessions.Load(shop)
	if !ok {
		return
	}
	m.sessions.Delete(shop)
	s.Close()
	m.logger.Info(fmt.Sprintf("chat session closed for %s", shop))
}

// Close releases every open session. Used on shutdown.
func (m *Manager) Close() {
	m.sessions.RRange(func(shop string, s *Session) bool {
		s.Close()
		return true
	})
	m.sessions.Clear()
}
