// Command notifyserver consumes the storage change feed and pushes chat and
// message events to connected users over SSE or WebSocket streams.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/chatspace/notify-server/internal/auth"
	"github.com/chatspace/notify-server/internal/config"
	"github.com/chatspace/notify-server/internal/feed"
	"github.com/chatspace/notify-server/internal/messaging"
	"github.com/chatspace/notify-server/internal/metrics"
	"github.com/chatspace/notify-server/internal/presence"
	"github.com/chatspace/notify-server/internal/ratelimit"
	"github.com/chatspace/notify-server/internal/registry"
	"github.com/chatspace/notify-server/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Printf("notify server starting")
	log.Printf("  listen_addr:   %s", cfg.ListenAddr)
	log.Printf("  feed_source:   %s", cfg.FeedSource)
	log.Printf("  redis_addr:    %s", cfg.RedisAddr)
	log.Printf("  server_name:   %s", cfg.ServerName)
	log.Printf("  buffer_size:   %d", cfg.EventBufferSize)
	log.Printf("  ping_interval: %s", cfg.PingInterval)

	if cfg.MigrateOnStart {
		runMigrations(cfg)
	}

	// --- feed source ---
	var source feed.Source
	switch cfg.FeedSource {
	case config.SourcePostgres:
		pgConfig := feed.DefaultPostgresConfig()
		pgConfig.DSN = cfg.DatabaseURL
		source = feed.NewPostgresSource(pgConfig)
	case config.SourceNATS:
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsClient, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		source = feed.NewNATSSource(natsClient)
	}

	// --- Redis (presence + rate limiting), optional ---
	var presenceStore *presence.Store
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		presenceStore, err = presence.NewStore(cfg.RedisAddr, cfg.ServerName)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		limiter = ratelimit.NewLimiter(presenceStore.Client())
	}

	reg := registry.New(cfg.EventBufferSize)
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	handlers := &stream.Handlers{
		Registry:     reg,
		Presence:     presenceStore,
		Limiter:      limiter,
		PingInterval: cfg.PingInterval,
	}

	// ctx cancels every stream session and the feed listener on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startedAt := time.Now()
	mux := http.NewServeMux()
	mux.Handle("/events", verifier.Middleware(handlers.SSE()))
	mux.Handle("/ws", verifier.Middleware(handlers.WS()))
	mux.Handle("/online", verifier.Middleware(handlers.Online()))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		resp := struct {
			Status string `json:"status"`
			Feed   string `json:"feed"`
			Uptime string `json:"uptime"`
		}{
			Status: "ok",
			Feed:   cfg.FeedSource,
			Uptime: time.Since(startedAt).Round(time.Second).String(),
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// The listener runs for the life of the process. Losing the feed is
	// fatal: we exit non-zero and let the supervisor restart us, per the
	// no-replay contract connected clients just miss the gap.
	listener := feed.NewListener(source, reg)
	listenerErr := make(chan error, 1)
	go func() {
		listenerErr <- listener.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var fatal bool
		select {
		case sig := <-sigCh:
			log.Printf("received signal %v, initiating graceful shutdown...", sig)
		case err := <-listenerErr:
			if err != nil {
				log.Printf("feed listener failed: %v", err)
				fatal = true
			}
		}

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}

		if err := source.Close(); err != nil {
			log.Printf("feed source close error: %v", err)
		}
		if presenceStore != nil {
			if err := presenceStore.Close(); err != nil {
				log.Printf("presence store close error: %v", err)
			}
		}

		if fatal {
			os.Exit(1)
		}
		os.Exit(0)
	}()

	log.Printf("listening on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}

	// Shutdown path exits via os.Exit above; block until it does.
	select {}
}

// runMigrations applies the schema and trigger migrations before serving.
func runMigrations(cfg config.Config) {
	m, err := migrate.New(cfg.MigrationsPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open migrations: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Printf("[migrate] database schema up to date")
}
