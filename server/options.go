package server

import (
	"errors"
	"time"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/server/transport"
	"github.com/gate4ai/giftmessage/server/validator"
	"go.uber.org/zap"
)

// WithListenAddr overrides the listen address from the config.
func WithListenAddr(addr string) ServerOption {
	return func(b *ServerBuilder) error {
		// Empty means "use config default"
		if addr != "" {
			b.listenAddr = addr
			b.logger.Info("Overriding listen address", zap.String("newAddress", addr))
		}
		return nil
	}
}

// WithSessionTimeout overrides the idle cart timeout from the config.
func WithSessionTimeout(timeout time.Duration) ServerOption {
	return func(b *ServerBuilder) error {
		if timeout <= 0 {
			return errors.New("session timeout must be positive")
		}
		b.transportOpts = append(b.transportOpts, transport.WithSessionTimeout(timeout))
		return nil
	}
}

// WithCleanupInterval sets how often idle carts are evicted.
func WithCleanupInterval(interval time.Duration) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOpts = append(b.transportOpts, transport.WithCleanupInterval(interval))
		return nil
	}
}

// WithThrottling overrides the per-session request limits from the config.
func WithThrottling(rps, rpm int) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOpts = append(b.transportOpts, transport.WithThrottling(rps, rpm))
		return nil
	}
}

// WithOrderStore sets where orders are persisted. The caller keeps ownership.
func WithOrderStore(store order.Store) ServerOption {
	return func(b *ServerBuilder) error {
		if store == nil {
			return errors.New("order store cannot be nil")
		}
		b.store = store
		return nil
	}
}

// WithValidationRule appends a rule run after the built-in checks.
func WithValidationRule(rule validator.Rule) ServerOption {
	return func(b *ServerBuilder) error {
		if rule == nil {
			return errors.New("validation rule cannot be nil")
		}
		b.rules = append(b.rules, rule)
		return nil
	}
}

// WithEligibility lets the host override which products offer the field.
func WithEligibility(fn presenter.EligibilityFunc) ServerOption {
	return func(b *ServerBuilder) error {
		b.presenterOpts = append(b.presenterOpts, presenter.WithEligibility(fn))
		return nil
	}
}

// WithDisplayFormatter installs a post-processor for rendered messages.
func WithDisplayFormatter(fn display.FormatFunc) ServerOption {
	return func(b *ServerBuilder) error {
		b.displayOpts = append(b.displayOpts, display.WithFormatter(fn))
		return nil
	}
}

// WithEventStream enables the admin event stream at /admin/events.
func WithEventStream() ServerOption {
	return func(b *ServerBuilder) error {
		if b.events == nil {
			b.events = transport.NewEvents(b.logger)
			b.transportOpts = append(b.transportOpts, transport.WithEvents(b.events))
		}
		return nil
	}
}
