package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gate4ai/giftmessage/server"
	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/cenkalti/backoff.v1"
)

// Environment variable names
const (
	EnvDatabaseURL = "GIFTMESSAGE_DATABASE_URL"
	EnvConfigYAML  = "GIFTMESSAGE_CONFIG_YAML"
)

func main() {
	logerConfig := zap.NewProductionConfig()
	logerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logerConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configDB := flag.String("database-url", "", "PostgreSQL connection string for configuration and orders")
	configYAML := flag.String("config-yaml", "", "Path to YAML configuration file")
	listenAddr := flag.String("listen", "", "Listen address, overrides the configured one")
	events := flag.Bool("events", true, "Serve the admin gift message event stream")
	flag.Parse()

	if *configDB != "" && *configYAML != "" {
		logger.Fatal("Cannot specify both database-url and config-yaml")
	}

	dbURL := os.Getenv(EnvDatabaseURL)
	if *configDB != "" {
		dbURL = *configDB
	}
	yamlPath := os.Getenv(EnvConfigYAML)
	if *configYAML != "" {
		yamlPath = *configYAML
	}
	if yamlPath == "" && dbURL == "" {
		yamlPath = "config.yaml"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received termination signal")
		cancel()
	}()

	var cfg config.IConfig
	var options []server.ServerOption

	if dbURL != "" {
		logger.Info("Loading configuration from database")
		dbCfg, err := config.NewDatabaseConfig(dbURL, logger)
		if err != nil {
			logger.Fatal("Failed to create database config", zap.Error(err))
		}
		defer dbCfg.Close()
		waitForDatabase(ctx, logger, dbCfg)
		if err := dbCfg.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare settings schema", zap.Error(err))
		}

		store, err := order.NewPostgresStoreFromDB(ctx, dbCfg.DB(), logger)
		if err != nil {
			logger.Fatal("Failed to prepare order store", zap.Error(err))
		}
		defer store.Close()
		options = append(options, server.WithOrderStore(store))
		cfg = dbCfg
	} else {
		logger.Info("Loading configuration from YAML file", zap.String("path", yamlPath))
		yamlCfg, err := config.NewYamlConfig(yamlPath, logger)
		if err != nil {
			logger.Fatal("Failed to create YAML config", zap.Error(err))
		}
		defer yamlCfg.Close()
		go func() {
			if err := yamlCfg.Watch(ctx); err != nil {
				logger.Warn("Config hot reload disabled", zap.Error(err))
			}
		}()
		cfg = yamlCfg
	}

	logger = withConfiguredLevel(logger, logerConfig, cfg)

	if *listenAddr != "" {
		options = append(options, server.WithListenAddr(*listenAddr))
	}
	if *events {
		options = append(options, server.WithEventStream())
	}

	errChan, err := server.Start(ctx, logger, cfg, options...)
	if err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}

	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			logger.Fatal("Server listener failed", zap.Error(err))
		}
	case <-ctx.Done():
		// Give the shutdown goroutine in server.Start a moment to drain connections.
		select {
		case <-errChan:
		case <-time.After(20 * time.Second):
			logger.Warn("Server shutdown timed out")
		}
	}
	logger.Info("Gift message server stopped")
}

// waitForDatabase retries the settings database until it answers or ctx ends.
func waitForDatabase(ctx context.Context, logger *zap.Logger, cfg config.IConfig) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	err := backoff.RetryNotify(func() error {
		return cfg.Status(ctx)
	}, backoff.WithContext(expBackoff, ctx), func(err error, d time.Duration) {
		logger.Warn("Database not ready, retrying", zap.Error(err), zap.Duration("delay", d))
	})
	if err != nil {
		logger.Fatal("Database unavailable", zap.Error(err))
	}
}

func withConfiguredLevel(logger *zap.Logger, logerConfig zap.Config, cfg config.IConfig) *zap.Logger {
	logLevel, err := cfg.LogLevel()
	if err != nil {
		logger.Warn("Failed to get log level from config, using default", zap.Error(err))
		return logger
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		logger.Warn("Invalid log level in config, using default", zap.String("level", logLevel), zap.Error(err))
		return logger
	}
	logerConfig.Level = zap.NewAtomicLevelAt(level)
	newLogger, err := logerConfig.Build()
	if err != nil {
		logger.Warn("Failed to create logger with new level, keeping default", zap.Error(err))
		return logger
	}
	logger.Info("Updating log level", zap.String("level", logLevel))
	return newLogger
}
