package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sebastiankruger/mill-forecaster/internal/api"
	"github.com/sebastiankruger/mill-forecaster/internal/config"
	"github.com/sebastiankruger/mill-forecaster/internal/forecast"
	"github.com/sebastiankruger/mill-forecaster/internal/health"
	"github.com/sebastiankruger/mill-forecaster/internal/history"
	"github.com/sebastiankruger/mill-forecaster/internal/opcua"
	"github.com/sebastiankruger/mill-forecaster/internal/publish"
	"github.com/sebastiankruger/mill-forecaster/internal/refresh"
	"github.com/sebastiankruger/mill-forecaster/internal/timeseries"
	"github.com/sebastiankruger/mill-forecaster/internal/usage"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
		}
	}()

	log.Info().Msg("Starting Mill Tonnage Forecaster")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lines, err := config.LoadLines(cfg.LinesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load line configuration")
	}

	baseline, err := config.LoadBaseline(cfg.BaselineFile)
	if err != nil {
		log.Warn().Err(err).Msg("Baseline table unavailable - usage attribution runs without rates")
		baseline = usage.Baseline{}
	}

	log.Info().
		Str("name", cfg.ServiceName).
		Int("http_port", cfg.HTTPPort).
		Int("opcua_port", cfg.OPCUAPort).
		Str("historian", cfg.HistorianEndpoint).
		Int("lines", len(lines)).
		Int("horizon_days", cfg.HorizonDays).
		Dur("refresh_interval", cfg.RefreshInterval).
		Msg("Configuration loaded")

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize components
	runtimeCfg := config.NewRuntimeConfig(cfg)
	historian := timeseries.NewClient(cfg.HistorianEndpoint)
	analyzer := history.NewAnalyzer(historian)
	orchestrator := forecast.New(historian, analyzer)
	attributor := usage.NewAttributor(historian)
	healthHandler := health.NewHandler()

	var publisher refresh.SnapshotPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := publish.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Info().
			Strs("brokers", cfg.KafkaBrokers).
			Str("topic", cfg.KafkaTopic).
			Msg("Kafka snapshot publishing enabled")
	}

	coordinator := refresh.NewCoordinator(runtimeCfg, lines, historian,
		orchestrator, analyzer, attributor, baseline, publisher, cfg.Workers)
	coordinator.OnFirstPass(healthHandler.SetFirstPassDone)

	// Create OPC UA server and register one namespace per line
	opcuaServer, err := opcua.NewServer(cfg.OPCUAPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OPC UA server")
	}
	if err := coordinator.SetupOPCUA(opcuaServer); err != nil {
		log.Fatal().Err(err).Msg("Failed to register OPC UA namespaces")
	}
	if err := opcuaServer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start OPC UA server")
	}
	healthHandler.SetOPCUAReady(true)

	// Start HTTP server (API + health)
	apiHandler := api.NewHandler(cfg.ServiceName, coordinator)
	router := apiHandler.Router()
	router.HandleFunc("/health", healthHandler.HandleHealth)
	router.HandleFunc("/health/live", healthHandler.HandleLive)
	router.HandleFunc("/health/ready", healthHandler.HandleReady)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, router)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("Starting HTTP server (API + health)")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Run the refresh loop until shutdown
	coordinator.Run(ctx)

	log.Info().Msg("Shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Shutdown OPC UA server
	if err := opcuaServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("OPC UA server shutdown error")
	}

	log.Info().Msg("Forecaster stopped")
}
