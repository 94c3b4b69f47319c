package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"podium-backend/internal/config"
	"podium-backend/internal/gateway"
	"podium-backend/internal/room"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := config.Load(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("port", cfg.Server.Port).
		Int("grace_period_sec", cfg.Room.GracePeriodSec).
		Bool("nats_mirror", cfg.NATS.URL != "").
		Msg("starting podium server")

	// Optional NATS event mirror
	var publisher *gateway.EventPublisher
	if cfg.NATS.URL != "" {
		pubCfg := gateway.DefaultPublisherConfig()
		pubCfg.URL = cfg.NATS.URL
		pubCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		publisher, err = gateway.NewEventPublisher(pubCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect room event mirror")
		}
	}

	// Wire the room core to the gateway
	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	broadcaster := gateway.NewFanout(manager, publisher)
	rooms := room.NewService(
		room.NewRegistry(),
		broadcaster,
		clockwork.NewRealClock(),
		time.Duration(cfg.Room.GracePeriodSec)*time.Second,
	)
	service := gateway.NewService(manager, rooms, publisher)

	// Setup HTTP server
	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go service.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("podium server shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
