package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gate4ai/giftmessage/server/cart"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmptyCart = errors.New("cart is empty")

// CommitListener is notified after an order with gift messages was persisted.
type CommitListener func(o *commerce.Order, giftMessages int)

// Service converts session carts into persisted orders
type Service struct {
	store     Store
	metaKey   string
	logger    *zap.Logger
	listeners []CommitListener
}

// NewService creates a checkout service writing gift messages under metaKey
func NewService(store Store, metaKey string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		metaKey: metaKey,
		logger:  logger.Named("checkout"),
	}
}

// OnCommit registers a listener for orders that carry gift messages.
func (s *Service) OnCommit(listener CommitListener) {
	s.listeners = append(s.listeners, listener)
}

// Store returns the underlying order store
func (s *Service) Store() Store {
	return s.store
}

// MetaKey returns the order line attribute holding the gift message
func (s *Service) MetaKey() string {
	return s.metaKey
}

// Checkout builds an order from a snapshot of the cart lines in cart order,
// commits each line's gift message exactly once and persists the order. The
// ordered lines leave the cart only after the order was stored; a failed
// store commits nothing. Cart edits made meanwhile stay in the cart.
func (s *Service) Checkout(ctx context.Context, c *cart.Cart, customer commerce.Customer) (*commerce.Order, error) {
	snapshot := c.Snapshot()
	lines := snapshot.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	committer := NewCommitter(snapshot, s.metaKey)
	o := &commerce.Order{
		Key:      "order_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:   commerce.StatusProcessing,
		Customer: customer,
		Lines:    make([]*commerce.OrderLine, 0, len(lines)),
	}
	committed := 0
	for _, cartLine := range lines {
		orderLine := &commerce.OrderLine{
			ProductID: cartLine.ProductID,
			Label:     cartLine.Label,
			Quantity:  cartLine.Quantity,
		}
		if committer.Commit(cartLine, orderLine) {
			committed++
		}
		o.Lines = append(o.Lines, orderLine)
	}

	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	c.Release(snapshot)

	s.logger.Info("Order created",
		zap.Int64("orderID", o.ID),
		zap.Int("lines", len(o.Lines)),
		zap.Int("giftMessages", committed),
	)
	if committed > 0 {
		for _, listener := range s.listeners {
			listener(o, committed)
		}
	}
	return o, nil
}
