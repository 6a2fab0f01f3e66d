package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gate4ai/giftmessage/server/cart"
	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/email"
	"github.com/gate4ai/giftmessage/server/export"
	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/server/validator"
	"github.com/gate4ai/giftmessage/shared/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionCookieName = "giftmessage_session"

	contentTypeJSON = "application/json"
	maxBodyBytes    = 64 << 10
)

// Pipeline groups the gift message components the storefront handlers drive
type Pipeline struct {
	Validator *validator.Validator
	Presenter *presenter.Presenter
	Carts     *cart.Manager
	Checkout  *order.Service
	Display   *display.Adapter
	Emails    *email.Section
	Exporter  *export.Exporter
}

func (p *Pipeline) check() error {
	switch {
	case p == nil:
		return errors.New("pipeline cannot be nil")
	case p.Validator == nil, p.Presenter == nil, p.Carts == nil, p.Checkout == nil,
		p.Display == nil, p.Emails == nil, p.Exporter == nil:
		return errors.New("pipeline is missing a component")
	}
	return nil
}

// Transport maps storefront and admin HTTP requests onto the pipeline
type Transport struct {
	pipeline        *Pipeline
	logger          *zap.Logger
	authManager     AuthenticationManager
	config          config.IConfig
	throttling      *Throttling
	events          *Events
	secureCookies   bool
	sessionTimeout  time.Duration
	cleanupInterval time.Duration
}

// TransportOption defines a function type for configuring the Transport.
type TransportOption func(*Transport) error

// WithSessionTimeout sets the idle timeout for shopper carts.
func WithSessionTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) error {
		if timeout <= 0 {
			return errors.New("session timeout must be positive")
		}
		t.sessionTimeout = timeout
		return nil
	}
}

// WithCleanupInterval sets how often idle carts are evicted
func WithCleanupInterval(interval time.Duration) TransportOption {
	return func(t *Transport) error {
		if interval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
		t.cleanupInterval = interval
		return nil
	}
}

// WithThrottling replaces the configured request limits. Zero disables a limit.
func WithThrottling(rps, rpm int) TransportOption {
	return func(t *Transport) error {
		if rps <= 0 && rpm <= 0 {
			t.throttling = nil
			return nil
		}
		t.throttling = NewThrottling(rps, rpm)
		return nil
	}
}

// WithEvents publishes committed orders on the admin event stream
func WithEvents(events *Events) TransportOption {
	return func(t *Transport) error {
		t.events = events
		return nil
	}
}

// WithSecureCookies marks the session cookie Secure
func WithSecureCookies(secure bool) TransportOption {
	return func(t *Transport) error {
		t.secureCookies = secure
		return nil
	}
}

// New creates the storefront transport.
func New(pipeline *Pipeline, logger *zap.Logger, cfg config.IConfig, options ...TransportOption) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pipeline.check(); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	sessionTimeout, err := cfg.SessionTimeout()
	if err != nil {
		return nil, fmt.Errorf("failed to get session timeout from config: %w", err)
	}
	rps, rpm, err := cfg.Throttling()
	if err != nil {
		return nil, fmt.Errorf("failed to get throttling from config: %w", err)
	}

	t := &Transport{
		pipeline:        pipeline,
		logger:          logger.Named("transport"),
		authManager:     NewAuthenticator(cfg, logger),
		config:          cfg,
		sessionTimeout:  sessionTimeout,
		cleanupInterval: 5 * time.Minute,
	}
	if err := WithThrottling(rps, rpm)(t); err != nil {
		return nil, err
	}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, fmt.Errorf("failed to apply transport option: %w", err)
		}
	}

	if t.events != nil {
		pipeline.Checkout.OnCommit(t.events.PublishCommitted)
	}

	t.logger.Info("Storefront transport created",
		zap.Duration("sessionTimeout", t.sessionTimeout),
		zap.Bool("throttling", t.throttling != nil),
		zap.Bool("events", t.events != nil),
	)
	return t, nil
}

// SetAuthManager allows changing the authentication manager.
func (t *Transport) SetAuthManager(authManager AuthenticationManager) {
	t.authManager = authManager
}

// RegisterHandlers registers the storefront, admin and asset routes with mux.
func (t *Transport) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("GET "+presenter.AssetPrefix, presenter.AssetHandler())

	mux.HandleFunc("GET /products", t.handleListProducts)
	mux.HandleFunc("GET /products/{id}", t.withSession(t.handleProductPage))

	mux.HandleFunc("GET /cart", t.withSession(t.handleGetCart))
	mux.HandleFunc("POST /cart/lines", t.withSession(t.throttled(t.handleAddToCart)))
	mux.HandleFunc("POST /cart/lines/{token}/gift-message", t.withSession(t.throttled(t.handleUpdateGiftMessage)))
	mux.HandleFunc("DELETE /cart/lines/{token}", t.withSession(t.throttled(t.handleRemoveLine)))
	mux.HandleFunc("POST /checkout", t.withSession(t.throttled(t.handleCheckout)))

	mux.HandleFunc("GET /orders/{id}", t.handleOrderPage)
	mux.HandleFunc("GET /orders/{id}/email", t.handleOrderEmail)

	mux.HandleFunc("GET /admin/orders/{id}", t.requireAdmin(t.handleAdminOrder))
	mux.HandleFunc("GET /admin/orders/export.csv", t.requireAdmin(t.handleExportCSV))
	if t.events != nil {
		mux.HandleFunc("GET /admin/events", t.requireAdmin(t.events.ServeHTTP))
	}

	t.logger.Info("Registered storefront handlers")
}

// StartCleanup evicts idle carts and throttle state until ctx is done.
func (t *Transport) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()
	t.logger.Info("Starting cart cleanup routine",
		zap.Duration("interval", t.cleanupInterval),
		zap.Duration("timeout", t.sessionTimeout),
	)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Cart cleanup routine stopped")
			return
		case <-ticker.C:
			t.pipeline.Carts.CleanupIdle(t.sessionTimeout)
			if t.throttling != nil {
				t.throttling.Forget(t.sessionTimeout)
			}
		}
	}
}

type sessionKey struct{}

// sessionInfo is the shopper session of a request. issued marks a session
// created for a request that arrived without a valid cookie.
type sessionInfo struct {
	id     string
	issued bool
}

// withSession resolves the shopper session from its cookie, issuing a new one when absent.
func (t *Transport) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var session sessionInfo
		if c, err := r.Cookie(SessionCookieName); err == nil {
			if _, parseErr := uuid.Parse(c.Value); parseErr == nil {
				session.id = c.Value
			}
		}
		if session.id == "" {
			session = sessionInfo{id: uuid.NewString(), issued: true}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    session.id,
				Path:     "/",
				HttpOnly: true,
				Secure:   t.secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
			t.logger.Debug("Issued shopper session", zap.String("sessionID", session.id))
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	}
}

func sessionFromContext(ctx context.Context) string {
	session, _ := ctx.Value(sessionKey{}).(sessionInfo)
	return session.id
}

func sessionIssued(ctx context.Context) bool {
	session, _ := ctx.Value(sessionKey{}).(sessionInfo)
	return session.issued
}

// errorResponse is the JSON body of every failed storefront request
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Failed to encode JSON response", zap.Error(err))
		}
	}
}

func sendError(w http.ResponseWriter, statusCode int, code, message string, logger *zap.Logger) {
	sendJSONResponse(w, statusCode, errorResponse{Code: code, Message: message}, logger)
}

// sendValidationError reports a rejected gift message as 422 with its stable code.
func sendValidationError(w http.ResponseWriter, err error, logger *zap.Logger) bool {
	ve, ok := validator.AsValidationError(err)
	if !ok {
		return false
	}
	logger.Debug("Gift message rejected", zap.String("code", string(ve.Code)))
	sendError(w, http.StatusUnprocessableEntity, string(ve.Code), ve.Message, logger)
	return true
}
