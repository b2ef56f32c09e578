package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibestream/observability/logging"
	"vibestream/services/settlementd"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the settlementd configuration file")
	flag.Parse()

	cfg, err := settlementd.LoadConfig(configPath)
	if err != nil {
		logging.Setup(logging.Options{Service: "settlementd"}).Error("load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service:    "settlementd",
		Env:        cfg.Environment,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	service, err := settlementd.New(cfg, logger)
	if err != nil {
		logger.Error("initialise service", "error", err)
		os.Exit(1)
	}
	defer service.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           settlementd.NewAdminServer(service, cfg.Admin.BearerToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin server listening", "address", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
}
