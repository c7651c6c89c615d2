package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/adminapi"
	"github.com/eventflow-im/botapi-bridge/internal/botapi"
	"github.com/eventflow-im/botapi-bridge/internal/callback"
	"github.com/eventflow-im/botapi-bridge/internal/clients"
	"github.com/eventflow-im/botapi-bridge/internal/config"
	"github.com/eventflow-im/botapi-bridge/internal/httpapi"
	"github.com/eventflow-im/botapi-bridge/internal/ingest"
	"github.com/eventflow-im/botapi-bridge/internal/mtproto"
	"github.com/eventflow-im/botapi-bridge/internal/provision"
	"github.com/eventflow-im/botapi-bridge/internal/store"
	"github.com/eventflow-im/botapi-bridge/internal/updates"
)

func main() {
	// A missing .env is fine; deployments set the environment directly.
	_ = godotenv.Load()

	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "botapi-bridge").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	if err := os.MkdirAll(cfg.SessionsDir, 0o700); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.SessionsDir).Msg("cannot create sessions dir")
	}

	st, err := store.Open(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer st.Close(context.Background())

	tokens := store.NewTokenStore(st.Database())
	answers := store.NewAnswerStore(st.Database())
	userIndex := store.NewUserReadModel(st.Database())

	publicKey, err := mtproto.ParsePublicKey(cfg.PublicKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backend public key")
	}
	dialer := mtproto.NewDialer(mtproto.Config{
		APIID:     cfg.APIID,
		APIHash:   cfg.APIHash,
		Host:      cfg.Domain,
		Port:      cfg.DCPort,
		PublicKey: publicKey,
	})
	registry := clients.NewRegistry(dialer, cfg.SessionsDir)
	defer registry.Close()

	admin := adminapi.New(cfg.AdminAPIURL)
	manager := updates.NewManager()
	reconciler := callback.NewReconciler(answers, admin)
	installer := ingest.NewInstaller(manager, reconciler)

	provisioner := provision.NewService(tokens, userIndex, admin, registry, cfg.BotFatherPhone)
	if err := provisioner.EnsureBotFatherToken(ctx); err != nil {
		log.Error().Err(err).Msg("botfather bootstrap failed")
	}

	dispatcher := &botapi.Dispatcher{
		Tokens:  tokens,
		Clients: registry,
		Updates: manager,
		Answers: answers,
		Admin:   admin,
		Events:  installer,
	}
	srv := &httpapi.Server{Processor: dispatcher, Brand: cfg.Brand}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
		// Long polls hold a request open for up to 50s; the write timeout
		// leaves headroom past that.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
