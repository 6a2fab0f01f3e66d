package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gate4ai/giftmessage/server/extra"
	"github.com/gate4ai/giftmessage/server/transport"
	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
)

// Handler assembles the storefront without starting a listener. The idle
// cart cleanup runs until ctx is done.
func Handler(ctx context.Context, logger *zap.Logger, cfg config.IConfig, options ...ServerOption) (*ServerBuilder, http.Handler, error) {
	if logger == nil {
		return nil, nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, nil, errors.New("config cannot be nil")
	}

	listenAddr, err := cfg.ListenAddr()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get listen address: %w", err)
	}
	sslEnabled, _ := cfg.SSLEnabled()

	builder := &ServerBuilder{
		logger:        logger,
		cfg:           cfg,
		listenAddr:    listenAddr,
		mux:           http.NewServeMux(),
		transportOpts: []transport.TransportOption{transport.WithSecureCookies(sslEnabled)},
	}

	for _, option := range options {
		if err := option(builder); err != nil {
			return nil, nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}

	pipeline, err := builder.buildPipeline()
	if err != nil {
		return nil, nil, err
	}
	tr, err := transport.New(pipeline, logger, cfg, builder.transportOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}
	tr.RegisterHandlers(builder.mux)

	logger.Info("Registering status handler", zap.String("path", "/status"))
	builder.mux.HandleFunc("GET /status", extra.StatusHandler(cfg, builder.store, builder.carts.Count, logger))

	go tr.StartCleanup(ctx)
	return builder, builder.mux, nil
}

// Start builds the storefront and serves it until ctx is done. The returned
// channel reports listener errors after startup.
func Start(ctx context.Context, logger *zap.Logger, cfg config.IConfig, options ...ServerOption) (<-chan error, error) {
	builder, handler, err := Handler(ctx, logger, cfg, options...)
	if err != nil {
		return nil, err
	}

	serverInstance, listenerErrChan, err := transport.StartHTTPServer(ctx, logger, cfg, handler, builder.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP server: %w", err)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if builder.events != nil {
			builder.events.Close()
		}
		transport.ShutdownHTTPServer(shutdownCtx, logger, serverInstance)
	}()

	return listenerErrChan, nil
}
