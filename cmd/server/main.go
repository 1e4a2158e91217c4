package main

import (
	"context"
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

	"github.com/despairhw/tourneycast/internal/board"
	"github.com/despairhw/tourneycast/internal/bracket"
	"github.com/despairhw/tourneycast/internal/config"
	"github.com/despairhw/tourneycast/internal/dispatch"
	"github.com/despairhw/tourneycast/internal/gateway"
	"github.com/despairhw/tourneycast/internal/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("TOURNEYCAST_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	configPath := getEnv("TOURNEYCAST_CONFIG", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	metrics.Register()

	clock := clockwork.NewRealClock()

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	store := gateway.NewFallbackStore()
	dispatcher := dispatch.New(cfg.DispatchConfig(), manager, store, clock)
	manager.OnAck(dispatcher.Acknowledge)

	client := bracket.NewClient(cfg.Bracket.BaseURL, cfg.Bracket.APIKey)
	boardSvc := board.New(client, dispatcher, clock, cfg.Display.Stations, cfg.Display.QueueLength, cfg.PollInterval())

	gatewaySvc := gateway.NewService(manager, store, dispatcher.Stats, cfg.FallbackDelay())

	mux := http.NewServeMux()
	gatewaySvc.RegisterRoutes(mux)
	mux.HandleFunc("/api/tournament/update", boardSvc.HandleTournamentUpdate)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)
	go boardSvc.Run(ctx)

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Strs("stations", cfg.Display.Stations).
			Msg("display server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
