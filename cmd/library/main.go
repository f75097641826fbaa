// @title           Library API
// @version         1.0
// @description     Library management: authors, categories, books, members and borrow records.
// @BasePath        /api/v1
// @securityDefinitions.apikey JWT
// @in header
// @name Authorization
// @description  Use:  JWT <access token>
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library-api/pkg/api"
	"library-api/pkg/auth"
	"library-api/pkg/config"
	"library-api/pkg/database"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	maxRetries      = 10
	retryWait       = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	setupLogger(cfg.Debug)
	slog.Info("Starting library service...", "engine", cfg.DB.Engine, "debug", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DB, cfg.Debug, maxRetries, retryWait)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := migrate(ctx, db); err != nil {
		return err
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Library service starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down library service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, db *gorm.DB) error {
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	slog.Info("Database migrated")
	return nil
}

func newRouter(cfg *config.Config, db *gorm.DB) *gin.Engine {
	return api.NewRouter(api.Options{
		DB:          db,
		Tokens:      auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		PageSize:    cfg.PageSize,
		Debug:       cfg.Debug,
		CORSOrigins: cfg.CORSOrigins,
	})
}

// setupLogger installs the default logger: text while debugging, JSON otherwise.
func setupLogger(debug bool) *slog.Logger {
	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
