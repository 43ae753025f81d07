package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caption-ingress-engine/internal/api/httpapi"
	"caption-ingress-engine/internal/app"
	"caption-ingress-engine/internal/assist"
	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/correct"
	"caption-ingress-engine/internal/engine"
	"caption-ingress-engine/internal/observability"
	"caption-ingress-engine/internal/provider"
	"caption-ingress-engine/internal/provider/mock"
	"caption-ingress-engine/internal/sink"
	"caption-ingress-engine/internal/source"
	"caption-ingress-engine/internal/store"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	logger := application.Logger

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Application startup failed")
	}

	var st engine.Store
	sqlStore, err := store.Open(cfg.Store)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Store.Path).
			Msg("Persistence unavailable, sessions will not survive restarts")
	} else {
		st = sqlStore
		defer sqlStore.Close()
	}

	transcriptSink := sink.NewKafka(cfg.Kafka)
	defer transcriptSink.Close()

	var chat provider.Provider
	switch cfg.Provider.Name {
	case "mock":
		chat = mock.New()
	default:
		chat = provider.NewOpenAI(cfg.Provider)
	}

	page := source.NewJSONPage()
	eng := engine.New(cfg, page, transcriptSink, st, source.DefaultDescriptors)

	supervisor := correct.New(cfg.Correction, chat, eng)
	eng.SetCorrectionHook(supervisor.Request)

	assistEngine := assist.New(cfg.Assist, chat, eng)

	metricsServer := observability.NewServer(cfg.Observability.MetricsAddr)
	metricsServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := eng.Activate()
	logger.Info().Str("sessionId", sessionID).Msg("Capture session activated")
	go eng.Run(ctx)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(eng, page, assistEngine),
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Shutdown()
	cancel()
	supervisor.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Metrics shutdown failed")
	}
}
