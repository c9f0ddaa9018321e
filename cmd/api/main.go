package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/bootstrap"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/config"
	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(cfg.Logging.Service, cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := bootstrap.New(cfg, logger)

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     app.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// No write timeout: the ask endpoint streams for as long as
		// generation runs.
		WriteTimeout: 0,
	}

	// The server accepts connections right away; until warmup publishes the
	// pipeline, ask requests get a transient not-ready response.
	go func() {
		if err := app.Warmup(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("warmup_failed", "error", err)
			stop()
			_ = server.Close()
			os.Exit(1)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
		_ = server.Close()
	}
	logger.Info("server_stopped")
}
