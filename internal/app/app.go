package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"beru/backend/internal/api"
	"beru/backend/internal/config"
	"beru/backend/internal/database"
	"beru/backend/internal/llm"
	"beru/backend/internal/repository"
	"beru/backend/internal/service"
)

// App holds the long-lived resources built from a Config.
type App struct {
	DB     *sql.DB
	Server *http.Server
}

// NewApp validates cfg, ensures the schema exists and wires every layer.
// A database that cannot be reached fails here, before anything is served.
func NewApp(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ReplicateAPIToken == "" {
		slog.Warn("REPLICATE_API_TOKEN is not set; chat requests will fail until it is configured")
	}

	if err := database.EnsureSchema(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	repo := repository.NewSQLRepository(db)
	provider := llm.NewReplicateProvider(llm.ReplicateOptions{
		BaseURL:      cfg.ReplicateAPIURL,
		Token:        cfg.ReplicateAPIToken,
		Model:        cfg.ReplicateModel,
		MaxTokens:    cfg.ReplicateMaxTokens,
		PollInterval: cfg.ReplicatePollInterval,
		PollTimeout:  cfg.ReplicatePollTimeout,
	})
	chatService := service.NewChatService(repo, provider)

	chatHandler := api.NewChatHandler(chatService)
	router := api.NewRouter(chatHandler, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled: /chat blocks until the prediction finishes.
		IdleTimeout:       120 * time.Second,
	}

	return &App{DB: db, Server: server}, nil
}

func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to start application", "error", err)
		return 1
	}
	defer func() {
		if err := app.DB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()
	slog.Info("Database ready", "driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.AppPort)
		serveErr <- app.Server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
			return 1
		}
	}

	return 0
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
