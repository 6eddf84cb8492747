package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gitpix/gitpix/internal/auth"
	"github.com/gitpix/gitpix/internal/blobstore"
	"github.com/gitpix/gitpix/internal/capacity"
	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/internal/deploy"
	"github.com/gitpix/gitpix/internal/settings"
	"github.com/gitpix/gitpix/internal/uploads"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadFromEnv()

	setupLogging(cfg.Logging)

	log.Info().Msg("starting gitpix server")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Redis backs the settings cache and, optionally, upload sessions.
	// Only the latter makes it mandatory.
	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		if cfg.Uploads.SessionStore == "redis" {
			log.Fatal().Err(err).Msg("failed to connect to Redis (required by SESSION_STORE=redis)")
		}
		log.Warn().Err(err).Msg("Redis unavailable, running without settings cache")
		cache = nil
	} else {
		defer cache.Close()
	}

	store := blobstore.NewGitHubFactory()
	registry := capacity.NewRegistry(db)
	settingsSvc := settings.NewService(db, cache)
	deploySvc := deploy.NewService(registry, cfg.GitHub.DeployHook)
	provisioner := capacity.NewProvisioner(registry, store, &cfg.GitHub, deploySvc)
	estimator := capacity.NewEstimator(registry, settingsSvc, store, &cfg.GitHub)
	router := capacity.NewRouter(registry, settingsSvc, provisioner)

	uploader := uploads.NewUploader(db, router, registry, settingsSvc, store, deploySvc,
		&cfg.GitHub, cfg.Server.SiteURL)

	var sessionStore uploads.SessionStore
	switch cfg.Uploads.SessionStore {
	case "redis":
		sessionStore = uploads.NewRedisStore(cache.Client(), cfg.Uploads.SessionTTL)
		log.Info().Msg("using redis-backed upload sessions")
	default:
		sessionStore = uploads.NewMemoryStore()
		log.Info().Msg("using in-memory upload sessions (single instance only)")
	}
	manager := uploads.NewManager(sessionStore, uploader, cfg.Uploads.SessionTTL)

	authSvc := auth.NewService(db, &cfg.Auth)

	engine := setupRouter(cfg, &services{
		auth:        authSvc,
		settings:    settingsSvc,
		registry:    registry,
		estimator:   estimator,
		provisioner: provisioner,
		uploader:    uploader,
		manager:     manager,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
