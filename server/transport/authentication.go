package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
)

const (
	// AuthKeyQueryParam carries the admin key for clients that cannot set headers, like EventSource.
	AuthKeyQueryParam = "key"
	bearerPrefix      = "Bearer "
)

var (
	ErrUnauthorized = errors.New("valid admin key required")
	ErrForbidden    = errors.New("user is not an administrator")
)

// AuthenticationManager decides who may use the admin endpoints
type AuthenticationManager interface {
	// Authenticate returns the admin user ID for authKey. With authorization
	// disabled an empty key is accepted and the user ID is empty.
	Authenticate(authKey string, remoteAddr string) (userID string, err error)
}

// DefaultAuthManager checks admin keys against the configured users
type DefaultAuthManager struct {
	logger *zap.Logger
	config config.IConfig
}

var _ AuthenticationManager = (*DefaultAuthManager)(nil)

// NewAuthenticator creates an authenticator backed by cfg
func NewAuthenticator(cfg config.IConfig, logger *zap.Logger) *DefaultAuthManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultAuthManager{
		config: cfg,
		logger: logger.Named("auth"),
	}
}

func (a *DefaultAuthManager) Authenticate(authKey string, remoteAddr string) (string, error) {
	authType, err := a.config.AuthorizationType()
	if err != nil {
		return "", err
	}
	if authType == config.NotAuthorizedEverywhere {
		return "", nil
	}
	if authKey == "" {
		a.logger.Debug("Admin request without key", zap.String("remoteAddr", remoteAddr))
		return "", ErrUnauthorized
	}

	keyHash := config.HashAPIKey(authKey)
	userID, err := a.config.GetUserIDByKeyHash(keyHash)
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			a.logger.Error("Error checking key hash", zap.Error(err))
		}
		a.logger.Warn("Unknown admin key", zap.String("remoteAddr", remoteAddr))
		return "", ErrUnauthorized
	}

	params, err := a.config.GetUserParams(userID)
	if err != nil {
		a.logger.Error("Failed to load user params", zap.String("userID", userID), zap.Error(err))
		return "", ErrUnauthorized
	}
	if params["role"] != config.RoleAdmin {
		a.logger.Warn("Non admin user rejected", zap.String("userID", userID), zap.String("remoteAddr", remoteAddr))
		return "", ErrForbidden
	}
	return userID, nil
}

// extractAuthKey reads a Bearer token, falling back to the key query parameter.
func extractAuthKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return r.URL.Query().Get(AuthKeyQueryParam)
}

// requireAdmin wraps next so only authenticated administrators reach it.
func (t *Transport) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := t.authManager.Authenticate(extractAuthKey(r), r.RemoteAddr)
		switch {
		case errors.Is(err, ErrForbidden):
			sendError(w, http.StatusForbidden, "forbidden", err.Error(), t.logger)
			return
		case err != nil:
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			sendError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized.Error(), t.logger)
			return
		}
		if userID != "" {
			t.logger.Debug("Admin request", zap.String("userID", userID), zap.String("path", r.URL.Path))
		}
		next(w, r)
	}
}
