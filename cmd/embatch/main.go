package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"embatch/internal/config"
	"embatch/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	host := flag.String("host", "", "listen host")
	port := flag.Int("port", 0, "listen port")
	maxBatchSize := flag.Int("max-batch-size", 0, "maximum caller requests per upstream call")
	maxWaitTimeMs := flag.Int("max-wait-time-ms", 0, "maximum time a batch stays open after its first request")
	maxTotalInputs := flag.Int("max-total-inputs", 0, "maximum input strings per upstream call, check your model's limits")
	upstreamURL := flag.String("upstream", "", "inference service base URL (replaces configured upstreams)")
	includeBatchInfo := flag.Bool("include-batch-info", false, "attach batch metadata to responses (development)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	flag.Parse()

	// Basic logger for startup errors
	startupLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			startupLog.Fatal().Err(err).Msg("failed to load config")
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Precedence: flags > LOG_LEVEL env > config file > defaults.
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "max-batch-size":
			cfg.MaxBatchSize = *maxBatchSize
		case "max-wait-time-ms":
			cfg.MaxWaitTime = *maxWaitTimeMs
		case "max-total-inputs":
			cfg.MaxTotalInputs = *maxTotalInputs
		case "upstream":
			cfg.Upstreams = []config.UpstreamConfig{{
				Name:   "default",
				URL:    *upstreamURL,
				Weight: config.DefaultUpstreamWeight,
			}}
		case "include-batch-info":
			cfg.IncludeBatchInfo = *includeBatchInfo
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := config.Validate(cfg); err != nil {
		startupLog.Fatal().Err(err).Msg("invalid config")
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("maxBatchSize", cfg.MaxBatchSize).
		Int("maxTotalInputs", cfg.MaxTotalInputs).
		Int("maxWaitTimeMs", cfg.MaxWaitTime).
		Int("upstreams", len(cfg.Upstreams)).
		Msg("starting embatch")

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
