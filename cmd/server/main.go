package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dariusreyes/gitvault/internal/api"
	"github.com/dariusreyes/gitvault/internal/auth"
	"github.com/dariusreyes/gitvault/internal/common"
	"github.com/dariusreyes/gitvault/internal/materializer"
	"github.com/dariusreyes/gitvault/internal/metadata"
	"github.com/dariusreyes/gitvault/internal/remote"
	"github.com/dariusreyes/gitvault/internal/scratch"
	"github.com/dariusreyes/gitvault/internal/session"
	"github.com/dariusreyes/gitvault/pkg/config"
)

func main() {
	cfg := config.LoadFromEnv()
	setupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Msg("starting gitvault upload service")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer cache.Close()

	scratchStore, err := scratch.New(cfg.Upload.ScratchDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scratch store")
	}

	remoteClient := remote.New(cfg.GitHub)
	metadataSvc := metadata.NewService(db)
	materializerSvc := materializer.New(metadataSvc, scratchStore, remoteClient)
	sessionService := session.NewService(&cfg.Upload, cfg.GitHub.Repo, metadataSvc, scratchStore, cache, materializerSvc)
	authService := auth.NewService(db, cache)

	router := api.NewRouter(authService, sessionService, cfg.Server.ServiceKey)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
