package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/lorry-checker/internal/api/handlers"
	"github.com/dvloznov/lorry-checker/internal/api/middleware"
	"github.com/dvloznov/lorry-checker/internal/config"
	"github.com/dvloznov/lorry-checker/internal/gcsuploader"
	"github.com/dvloznov/lorry-checker/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("LORRY_CONFIG"), "Path to YAML config (or set LORRY_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Storage.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - export publishing will be disabled")
	}

	auditHandler := handlers.NewAuditHandler(handlers.AuditSettings{
		Options:        cfg.Options(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Bucket:         cfg.Storage.Bucket,
		ExportPrefix:   cfg.Storage.ExportPrefix,
	}, gcsuploader.NewGCSStorageService(), log)

	handler := middleware.Chain(handlers.NewRouter(auditHandler), log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("checkpoint", cfg.Rules.Checkpoint).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
