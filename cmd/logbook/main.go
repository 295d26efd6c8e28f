package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akvo/logbook/internal/api"
	"github.com/akvo/logbook/internal/config"
	"github.com/akvo/logbook/internal/events"
	"github.com/akvo/logbook/internal/extractor"
	"github.com/akvo/logbook/internal/llm"
	"github.com/akvo/logbook/internal/processor"
	"github.com/akvo/logbook/internal/reply"
	"github.com/akvo/logbook/internal/store"
	"github.com/akvo/logbook/internal/twilio"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("logbook starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if err := store.Migrate(cfg.DatabaseURL, cfg.MigrationsPath, slog.Default()); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// OpenAI client — extraction, transcription, and reply generation
	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	llmClient := llm.New(llm.Config{
		APIKey:             cfg.OpenAIAPIKey,
		BaseURL:            cfg.OpenAIBaseURL,
		ExtractionModel:    cfg.ExtractionModel,
		TranscriptionModel: cfg.TranscriptionModel,
	}, slog.Default())
	slog.Info("llm client ready", "extraction_model", cfg.ExtractionModel, "transcription_model", cfg.TranscriptionModel)

	ext := extractor.New(llmClient, slog.Default())
	replier := reply.NewSynthesizer(llmClient, slog.Default())

	// Twilio — the WhatsApp channel
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		slog.Error("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required")
		os.Exit(1)
	}
	channel := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.WhatsAppNumber, slog.Default())

	// NATS (optional — lifecycle events are best-effort)
	var publisher processor.Publisher
	if cfg.NatsURL != "" {
		eventsClient, err := events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		publisher = eventsClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — lifecycle events disabled")
	}

	// Processor — the main pipeline
	proc := processor.New(db, ext, llmClient, replier, channel, publisher, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, db, proc, ext, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("logbook ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("logbook stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
