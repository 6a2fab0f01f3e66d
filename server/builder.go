package server

import (
	"fmt"
	"net/http"

	"github.com/gate4ai/giftmessage/server/cart"
	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/email"
	"github.com/gate4ai/giftmessage/server/export"
	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/server/transport"
	"github.com/gate4ai/giftmessage/server/validator"
	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
)

// ServerBuilder collects the pieces the options customise before the
// pipeline is assembled.
type ServerBuilder struct {
	logger     *zap.Logger
	cfg        config.IConfig
	listenAddr string
	mux        *http.ServeMux

	store         order.Store
	rules         []validator.Rule
	presenterOpts []presenter.Option
	displayOpts   []display.Option
	transportOpts []transport.TransportOption
	events        *transport.Events
	carts         *cart.Manager
}

// ServerOption defines a function type for configuring the ServerBuilder.
type ServerOption func(*ServerBuilder) error

// buildPipeline reads the gift message settings and wires every component.
func (b *ServerBuilder) buildPipeline() (*transport.Pipeline, error) {
	maxLength, err := b.cfg.MaxMessageLength()
	if err != nil {
		return nil, fmt.Errorf("failed to get max message length: %w", err)
	}
	metaKey, err := b.cfg.MetaKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get meta key: %w", err)
	}
	excluded, err := b.cfg.ExcludedProductKinds()
	if err != nil {
		return nil, fmt.Errorf("failed to get excluded product kinds: %w", err)
	}
	categories, err := b.cfg.EmailCategories()
	if err != nil {
		return nil, fmt.Errorf("failed to get email categories: %w", err)
	}

	if b.store == nil {
		b.logger.Info("No order store configured, keeping orders in memory")
		b.store = order.NewMemoryStore()
	}
	if b.carts == nil {
		b.carts = cart.NewManager(b.logger)
	}

	displayOpts := append([]display.Option{display.WithLogger(b.logger)}, b.displayOpts...)
	adapter := display.New(metaKey, displayOpts...)
	presenterOpts := append([]presenter.Option{presenter.WithExcludedKinds(excluded...)}, b.presenterOpts...)

	b.logger.Info("Gift message pipeline configured",
		zap.Int("maxLength", maxLength),
		zap.String("metaKey", metaKey),
		zap.Int("customRules", len(b.rules)),
		zap.Strings("emailCategories", categories),
	)

	return &transport.Pipeline{
		Validator: validator.New(maxLength, b.rules...),
		Presenter: presenter.New(maxLength, presenterOpts...),
		Carts:     b.carts,
		Checkout:  order.NewService(b.store, metaKey, b.logger),
		Display:   adapter,
		Emails:    email.New(adapter, categories),
		Exporter:  export.New(adapter),
	}, nil
}
