package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/orchestre-dev/anthropic-bridge/internal/config"
	"github.com/orchestre-dev/anthropic-bridge/internal/forwarder"
	"github.com/orchestre-dev/anthropic-bridge/internal/lock"
	"github.com/orchestre-dev/anthropic-bridge/internal/logging"
	"github.com/orchestre-dev/anthropic-bridge/internal/ratelimit"
	"github.com/orchestre-dev/anthropic-bridge/internal/server"
)

// StartCmd runs the bridge in the foreground until interrupted
// (spec.md §6.4: exit codes 0 on clean shutdown, 2 on config error, 3
// on startup/bind failure, 130 on SIGINT).
func StartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "abridge.toml", "path to the TOML config file")
	return cmd
}

func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.Logging)
	ring := logger.Ring()

	if ring != nil && cfg.Logging.RequestLog != "" {
		flusher := logging.NewFlusher(ring, cfg.Logging.RequestLog, 2*time.Second)
		flusher.Start()
		defer flusher.Stop()
	}

	startupLock := lock.New(cfg.Port)
	acquired, err := startupLock.TryLock()
	if err != nil {
		logger.WithError(err).Error("startup lock error")
		os.Exit(3)
	}
	if !acquired {
		logger.Errorf("another abridge instance is already starting on port %d", cfg.Port)
		os.Exit(3)
	}
	defer startupLock.Unlock()

	apiKey, err := cfg.APIKey()
	if err != nil {
		logger.WithError(err).Error("config error")
		os.Exit(2)
	}

	httpClient := &http.Client{Timeout: cfg.Server.WriteTimeout}
	fwd := forwarder.New(httpClient, cfg.Provider, apiKey)

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimitRPS)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	handler := server.New(cfg, fwd, logger, ring, limiter)
	server.Register(engine, handler, limiter)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	interrupted := false
	select {
	case err := <-serveErr:
		logger.WithError(err).Error("listener failed")
		os.Exit(3)
	case sig := <-quit:
		logger.Infof("received %s, shutting down", sig)
		interrupted = sig == syscall.SIGINT
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		os.Exit(3)
	}

	logger.Info("shut down cleanly")
	if interrupted {
		os.Exit(130)
	}
	return nil
}
