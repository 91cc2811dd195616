package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lambdaguard/internal/config"
	"lambdaguard/internal/handlers"
	"lambdaguard/internal/logging"
	"lambdaguard/pkg/lambda"
	"lambdaguard/pkg/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	var loader config.Source
	if cfg.ConfigFile != "" {
		fl := config.NewFileLoader(cfg.ConfigFile, logger)
		if err := fl.Load(); err != nil {
			logger.WithError(err).Fatal("Failed to load configuration file")
		}
		if cfg.WatchConfig {
			fl.Watch()
		}
		loader = fl
	}

	api, err := handlers.NewProfileAPI(handlers.NewProfileStore(), lambda.OptionsFromConfig(cfg, logger, loader)...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build profile API")
	}

	emulator := server.New(cfg, logger)
	emulator.Mount("/profiles", api)
	emulator.Mount("/profiles/:id", api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           emulator.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"auth":        api.Authenticator().State(),
	}).Info("Emulator started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down emulator...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Emulator forced to shutdown")
	}

	logger.Info("Emulator exited")
}
