package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/fishook/fishook/internal/api"
	"github.com/fishook/fishook/internal/backend"
	"github.com/fishook/fishook/internal/cache"
	"github.com/fishook/fishook/internal/chat"
	"github.com/fishook/fishook/internal/config"
)

// staticCredentials resolves every shop to the configured platform access
// token. The merchant session store that would resolve per-shop tokens is an
// external collaborator.
type staticCredentials struct {
	token string
}

func (s staticCredentials) AccessToken(_ context.Context, _ string) (string, error) {
	return s.token, nil
}

func main() {
	serverCtx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	// optional .env bootstrap for local development
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		failed(1, "failed to load config: %v\n", err)
	}
	if err := cfg.Validate(); err != nil {
		failed(1, config.FormatValidationErrors(err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	db, err := cache.NewSQLiteDB(cfg.SQLite.File, cfg.SQLite.Migrations, &cache.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	})
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	credentials := staticCredentials{token: cfg.Backend.AccessToken}
	backendClient := backend.NewClient(cfg.Backend.APIURL, cfg.Auth.Secret, credentials,
		backend.WithLogger(logger))

	var stats *cache.StatsCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer rdb.Close()
		stats = cache.NewStatsCache(rdb, cfg.Redis.TTL)
	}

	sessions := chat.NewManager(serverCtx, chat.ManagerConfig{
		URL:         cfg.Backend.ChatURL,
		Secret:      cfg.Auth.Secret,
		Credentials: credentials,
		Backend: func(shop string) chat.SessionBackend {
			return backendClient.ForShop(shop)
		},
		Cache:       cache.NewTranscriptStore(db.DB),
		MaxAttempts: cfg.Chat.MaxAttempts,
		Backoff:     cfg.Chat.Backoff,
		TypingIdle:  cfg.Chat.TypingIdle,
		Logger:      logger,
	})
	defer sessions.Close()

	_api := api.NewApi(api.ApiConfig{
		Secret:         cfg.Auth.Secret,
		AllowedOrigins: cfg.AllowedOrigins,
	}, backendClient, sessions, stats, logger)

	r := chi.NewRouter()
	r.Mount("/api", _api.Mux())

	server := &http.Server{
		Handler: r,
		Addr:    fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port),
		BaseContext: func(_ net.Listener) context.Context {
			return serverCtx
		},
	}

	done := make(chan struct{})
	go func() {
		<-serverCtx.Done()
		logger.Info("server is shutting down")

		exitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := server.Shutdown(exitCtx); err != nil {
			logger.Error(fmt.Sprintf("server shutdown: %v", err))
		}
		close(done)
	}()

	logger.Info(fmt.Sprintf("server started at %s", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		failed(1, "server exit: %v\n", err)
	}
	<-done
}

func failed(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}
