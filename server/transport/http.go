package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

// tlsSetup describes how the listener serves TLS. A nil value means plain HTTP.
type tlsSetup struct {
	config   *tls.Config
	certFile string
	keyFile  string
	acme     bool
}

// StartHTTPServer starts the storefront listener. The returned channel reports
// listener errors that happen after startup; setup errors are returned directly.
func StartHTTPServer(ctx context.Context, logger *zap.Logger, cfg config.IConfig, handler http.Handler, overwriteListenAddr string) (*http.Server, <-chan error, error) {
	if logger == nil {
		return nil, nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, nil, errors.New("config cannot be nil")
	}
	if handler == nil {
		return nil, nil, errors.New("http handler cannot be nil")
	}

	listenAddr := overwriteListenAddr
	if listenAddr == "" {
		var err error
		if listenAddr, err = cfg.ListenAddr(); err != nil {
			return nil, nil, fmt.Errorf("failed to get listen address: %w", err)
		}
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// The admin event stream stays open, so no WriteTimeout.
		IdleTimeout: 90 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	setup, err := configureTLS(logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	if setup != nil {
		server.TLSConfig = setup.config
	}

	listenerErrChan := make(chan error, 1)
	go func() {
		defer close(listenerErrChan)

		var err error
		if setup != nil {
			logger.Info("Starting HTTPS server", zap.String("addr", listenAddr), zap.Bool("isACME", setup.acme))
			err = server.ListenAndServeTLS(setup.certFile, setup.keyFile)
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", listenAddr))
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server listener error", zap.Error(err))
			listenerErrChan <- err
			return
		}
		logger.Info("Server listener stopped")
	}()

	return server, listenerErrChan, nil
}

func configureTLS(logger *zap.Logger, cfg config.IConfig) (*tlsSetup, error) {
	enabled, err := cfg.SSLEnabled()
	if err != nil {
		logger.Warn("Failed to read SSL enabled setting, assuming disabled", zap.Error(err))
		return nil, nil
	}
	if !enabled {
		return nil, nil
	}

	mode, _ := cfg.SSLMode()
	if mode != "acme" {
		certFile, err := cfg.SSLCertFile()
		if err != nil || certFile == "" {
			return nil, fmt.Errorf("manual SSL mode requires a certificate file (ssl.cert_file): %w", err)
		}
		keyFile, err := cfg.SSLKeyFile()
		if err != nil || keyFile == "" {
			return nil, fmt.Errorf("manual SSL mode requires a private key file (ssl.key_file): %w", err)
		}
		return &tlsSetup{certFile: certFile, keyFile: keyFile}, nil
	}

	domains, err := cfg.SSLAcmeDomains()
	if err != nil || len(domains) == 0 {
		return nil, fmt.Errorf("ACME mode requires at least one domain (ssl.acme_domains): %w", err)
	}
	email, _ := cfg.SSLAcmeEmail()
	cacheDir, err := cfg.SSLAcmeCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get ACME cache directory: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cache directory '%s': %w", cacheDir, err)
	}

	certManager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Email:      email,
		Cache:      autocert.DirCache(cacheDir),
	}
	go func() {
		challengeServer := &http.Server{
			Addr:              ":80",
			Handler:           certManager.HTTPHandler(nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("Starting ACME HTTP challenge listener", zap.String("addr", ":80"))
		if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ACME HTTP challenge listener error", zap.Error(err))
		}
	}()
	return &tlsSetup{config: certManager.TLSConfig(), acme: true}, nil
}

// ShutdownHTTPServer attempts a graceful shutdown of the server.
func ShutdownHTTPServer(ctx context.Context, logger *zap.Logger, server *http.Server) {
	if server == nil {
		logger.Warn("Shutdown requested but server instance is nil")
		return
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return
	}
	logger.Info("Server shut down gracefully")
}
