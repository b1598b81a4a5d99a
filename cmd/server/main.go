// Package main is the entry point for the hpn-ask-relay HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"github.com/hpn/hpn-ask-relay/internal/config"
	"github.com/hpn/hpn-ask-relay/internal/handler"
	"github.com/hpn/hpn-ask-relay/internal/relay"
	"github.com/hpn/hpn-ask-relay/internal/ui"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config.yaml (default: search ., ./configs, /etc/hpn-ask-relay)")
	quiet := flag.BoolP("quiet", "q", false, "disable colored console output")
	flag.Parse()

	// =========================================================================
	// 1. Load configuration
	// =========================================================================
	cfg, err := config.Load(*configPath)
	if err != nil {
		reportConfigError(os.Stderr, err)
		os.Exit(1)
	}

	// =========================================================================
	// 2. Setup structured logger with key redaction
	// =========================================================================
	logger, closeLog, err := relay.NewLogger(cfg.Logging, os.Stdout, cfg.Secrets()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log output: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if !*quiet {
		ui.PrintBanner("SERVER")
	}
	logger.Info("configuration loaded",
		slog.String("address", cfg.Server.Addr()),
		slog.String("primary_chat_model", cfg.Primary.ChatModel),
		slog.String("primary_vision_model", cfg.Primary.VisionModel),
		slog.String("secondary_chat_model", cfg.Secondary.ChatModel),
		slog.Int("retry_attempts", cfg.Retry.Attempts),
		slog.Duration("retry_delay", cfg.Retry.Delay()),
		slog.String("images_dir", cfg.Images.Dir),
	)

	// =========================================================================
	// 3. Wire store, fetcher, key ring, providers and responder
	// =========================================================================
	app, err := relay.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize relay", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// =========================================================================
	// 4. Setup Gin router with middleware
	// =========================================================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(app, logger, cfg.AskDeadline(), !*quiet)

	// =========================================================================
	// 5. Start HTTP server with graceful shutdown
	// =========================================================================
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("address", srv.Addr))
		if !*quiet {
			ui.PrintStartupInfo(srv.Addr, app.Keys.ActiveCount(), cfg.Retry.Attempts, cfg.Retry.Delay())
		}

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// =========================================================================
	// 6. Graceful shutdown on SIGTERM/SIGINT
	// =========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	if !*quiet {
		ui.PrintShutdown()
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
	if !*quiet {
		ui.PrintGoodbye()
	}
}

// newRouter mounts the relay's HTTP surface.
func newRouter(app *relay.App, logger *slog.Logger, askTimeout time.Duration, console bool) *gin.Engine {
	h := handler.NewRelayHandler(app.Responder, app.Fetcher, app.Keys,
		handler.WithLogger(logger),
		handler.WithAskTimeout(askTimeout),
	)
	return handler.NewRouter(h, logger, console)
}

// reportConfigError explains a failed config.Load on w.
func reportConfigError(w io.Writer, err error) {
	switch {
	case config.IsValidationError(err):
		fmt.Fprintf(w, "invalid configuration: %v\n", err)
	case config.IsConfigError(err):
		fmt.Fprintf(w, "could not load configuration (check --config and config.yaml): %v\n", err)
	default:
		fmt.Fprintf(w, "failed to load configuration: %v\n", err)
	}
}
