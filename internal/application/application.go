package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/config"
	"github.com/Sp1ker2/rat/internal/database"
	"github.com/Sp1ker2/rat/internal/handler"
	"github.com/Sp1ker2/rat/internal/hub"
	"github.com/Sp1ker2/rat/internal/router"
	"github.com/Sp1ker2/rat/internal/session"
	"github.com/Sp1ker2/rat/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket API application. Every component is
// constructed here once and passed down explicitly; there are no
// package-level singletons.
type API struct {
	cfg *config.Config
	srv *http.Server
	db  *gorm.DB
	hub *hub.Hub
	log *zap.Logger
}

// NewAPI creates the API application: validates config, runs migrations,
// opens the DB, wires registry/hub/handlers, builds the router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	dev := cfg.AppEnv == "development"
	db, err := database.Open(cfg.DSN(), dev)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if dev {
		logger, _ = zap.NewDevelopment()
	}

	store := storage.NewGormStore(db, logger)
	verifier := auth.NewVerifier(store, cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPasswordHash,
		time.Duration(cfg.JWTExpiryMinutes)*time.Minute)
	registry := session.NewRegistry(store, auth.GenerateDeviceToken, logger)
	h := hub.New(registry, store, cfg.MaxFrameSize, logger)

	authHandler := handler.NewAuthHandler(verifier, logger)
	deviceHandler := handler.NewDeviceHandler(registry, h, store)
	ingestHandler := handler.NewIngestHandler(store, registry, cfg.MaxFrameSize, logger)
	wsHandler := handler.NewWSHandler(h, verifier, cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	health := handler.NewHealthHandler()

	r := router.New(verifier, authHandler, deviceHandler, ingestHandler, wsHandler, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, hub: h, log: logger}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.srv.Addr)
	log.Printf("  Health:     %s/health", base)
	log.Printf("  Devices:    %s/api/devices", base)
	log.Printf("  Device WS:  ws://%s:%s/ws/device", host, a.cfg.HTTPPort)
	log.Printf("  Admin WS:   ws://%s:%s/ws/admin", host, a.cfg.HTTPPort)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	_ = a.log.Sync()
	return nil
}
