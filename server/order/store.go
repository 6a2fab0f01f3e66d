// Package order turns carts into orders and keeps the committed order lines,
// including their key/value attributes.
package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
)

var ErrOrderNotFound = errors.New("order not found")

// Store persists orders. CreateOrder assigns order and line IDs and the
// creation time when unset; it either stores the whole order or nothing.
type Store interface {
	CreateOrder(ctx context.Context, o *commerce.Order) error
	GetOrder(ctx context.Context, id int64) (*commerce.Order, error)
	ListOrders(ctx context.Context, ids []int64) ([]*commerce.Order, error)
	Status(ctx context.Context) error
	Close() error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps orders in process memory
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[int64]*commerce.Order
	nextOrder  int64
	nextLineID int64
}

// NewMemoryStore creates an empty in-memory order store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[int64]*commerce.Order)}
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o *commerce.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrder++
	o.ID = s.nextOrder
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	for _, line := range o.Lines {
		s.nextLineID++
		line.ID = s.nextLineID
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int64) (*commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// ListOrders returns the requested orders sorted by ID; unknown IDs are skipped.
// An empty ids slice lists every order.
func (s *MemoryStore) ListOrders(ctx context.Context, ids []int64) ([]*commerce.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*commerce.Order
	if len(ids) == 0 {
		for _, o := range s.orders {
			out = append(out, cloneOrder(o))
		}
	} else {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if o, ok := s.orders[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, cloneOrder(o))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Status(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func cloneOrder(o *commerce.Order) *commerce.Order {
	c := *o
	c.Lines = make([]*commerce.OrderLine, 0, len(o.Lines))
	for _, line := range o.Lines {
		l := *line
		if line.Meta != nil {
			l.Meta = make(map[string]string, len(line.Meta))
			for k, v := range line.Meta {
				l.Meta[k] = v
			}
		}
		c.Lines = append(c.Lines, &l)
	}
	return &c
}
