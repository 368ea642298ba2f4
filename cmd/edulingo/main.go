// Entry point for the tutoring backend: document processing pipeline, lesson
// sessions, tutor agent, speech adapters and the HTTP/WebSocket API. Set
// MCP_TRANSPORT=stdio to expose the document tools over MCP instead of HTTP.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/edulingo/edulingo/config"
	"github.com/edulingo/edulingo/docparse"
	"github.com/edulingo/edulingo/httpapi"
	"github.com/edulingo/edulingo/observability"
	"github.com/edulingo/edulingo/session"
	"github.com/edulingo/edulingo/speech"
	"github.com/edulingo/edulingo/tutor"
)

func main() {
	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Telemetry store.
	eventsDB, err := observability.OpenDB(cfg.Observability.DBPath)
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer eventsDB.Close()
	events := observability.NewEventLogger(eventsDB)
	if err := events.Init(ctx); err != nil {
		slog.Error("observability schema", "error", err)
		os.Exit(1)
	}
	if err := events.Cleanup(ctx, cfg.Observability.RetentionDays); err != nil {
		slog.Warn("observability cleanup", "error", err)
	}

	// Document processing pipeline.
	processor := docparse.NewProcessor(docparse.ProcessorConfig{
		MaxFileSize:      cfg.Upload.MaxFileSize,
		MaxContentLength: cfg.Content.MaxLength,
		Service: docparse.ServiceConfig{
			CacheSize:     cfg.Parser.CacheSize,
			MaxConcurrent: cfg.Parser.MaxConcurrent,
			Factory: docparse.FactoryConfig{
				PreferAdvanced: cfg.Parser.PreferAdvanced,
				EnableFallback: cfg.Parser.EnableFallback,
				Advanced: docparse.AdvancedConfig{
					EnableOCR:             cfg.Parser.EnableOCR,
					EnableTableExtraction: cfg.Parser.EnableTableExtraction,
					ProcessingMode:        cfg.Parser.ProcessingMode,
					MaxFileSize:           cfg.Parser.AdvancedMaxFileSize,
					Timeout:               cfg.Parser.ConversionTimeout,
					Logger:                logger,
				},
				Logger: logger,
			},
			Logger: logger,
		},
		Logger: logger,
	})

	// MCP stdio mode serves the document tools and exits on EOF.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "edulingo",
			Version: "1.0.0",
		}, nil)
		docparse.RegisterMCPTools(mcpSrv, processor)
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			slog.Error("mcp server", "error", err)
			os.Exit(1)
		}
		return
	}

	// Session store with expiry janitor.
	sessions := session.NewStore(session.Config{
		MaxAge:        cfg.Session.MaxAge,
		SweepInterval: cfg.Session.SweepInterval,
		Logger:        logger,
	})
	go sessions.Run(ctx)

	agent := tutor.NewAgent(tutor.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Logger:      logger,
	})
	speechSvc := speech.NewService(speech.Config{
		APIKey:          cfg.OpenAI.APIKey,
		TranscribeModel: cfg.Speech.TranscribeModel,
		SpeechModel:     cfg.Speech.SpeechModel,
		Voice:           cfg.Speech.Voice,
		Logger:          logger,
	})

	api := httpapi.NewServer(httpapi.Config{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxUploadBytes:    cfg.Upload.MaxFileSize,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		Logger:            logger,
	}, processor, sessions, agent, speechSvc, events)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr, "tutor_mock", agent.Mock())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
