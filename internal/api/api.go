// Package api is the HTTP surface the embedded merchant UI talks to. It
// verifies session tokens, validates requests and orchestrates calls to the
// backend client and the live chat sessions.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/fishook/fishook/internal/backend"
	"github.com/fishook/fishook/internal/cache"
	"github.com/fishook/fishook/internal/chat"
)

type ApiConfig struct {
	// Secret verifies session tokens.
	Secret         []byte
	AllowedOrigins []string
}

type Api struct {
	config   ApiConfig
	mux      *chi.Mux
	backend  *backend.Client
	sessions *chat.Manager
	stats    *cache.StatsCache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewApi wires the admin API. stats may be nil when Redis is not configured.
func NewApi(config ApiConfig, be *backend.Client, sessions *chat.Manager, stats *cache.StatsCache, logger *slog.Logger) *Api {
	a := &Api{
		config:   config,
		mux:      chi.NewRouter(),
		backend:  be,
		sessions: sessions,
		stats:    stats,
		validate: validator.New(),
		logger:   logger,
	}
	a.mountHandlers()
	return a
}

func (a *Api) Mux() http.Handler {
	return a.mux
}

func (a *Api) mountHandlers() {
	a.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	a.mux.Use(SessionMiddleware(a.config.Secret))

	a.mux.Route("/chat", func(r chi.Router) {
		r.Get("/status", a.ChatStatusHandler)
		r.Get("/rooms", a.RoomsHandler)
		r.Get("/rooms/{roomID}/messages", a.RoomMessagesHandler)
		r.Post("/rooms/{roomID}/select", a.SelectRoomHandler)
		r.Post("/rooms/{roomID}/messages", a.SendMessageHandler)
		r.Post("/rooms/{roomID}/typing", a.TypingHandler)
		r.Post("/disable", a.DisableChatHandler)
	})

	a.mux.Route("/plans", func(r chi.Router) {
		r.Get("/", a.PlansHandler)
		r.Post("/select", a.SelectPlanHandler)
	})

	a.mux.Route("/billing", func(r chi.Router) {
		r.Post("/topup", a.TopUpHandler)
	})

	a.mux.Route("/account", func(r chi.Router) {
		r.Post("/password", a.ChangePasswordHandler)
	})

	a.mux.Route("/widget", func(r chi.Router) {
		r.Get("/", a.WidgetHandler)
		r.Put("/", a.UpdateWidgetHandler)
	})

	a.mux.Route("/analytics", func(r chi.Router) {
		r.Get("/dashboard", a.DashboardHandler)
		r.Get("/export", a.ExportDashboardHandler)
	})
}
