package cart

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager handles all active carts, one per shopper session
type Manager struct {
	carts  map[string]*Cart
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewManager creates a new cart manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		carts:  make(map[string]*Cart),
		logger: logger.Named("cart"),
	}
}

// Get retrieves the cart of a session, if any
func (m *Manager) Get(sessionID string) (*Cart, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[sessionID]
	return c, ok
}

// GetOrCreate returns the cart of a session, creating an empty one on first use
func (m *Manager) GetOrCreate(sessionID string) *Cart {
	if c, ok := m.Get(sessionID); ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[sessionID]; ok {
		return c
	}
	c := newCart(sessionID)
	m.carts[sessionID] = c
	m.logger.Debug("Created new cart", zap.String("sessionID", sessionID))
	return c
}

// Drop removes the cart of a session
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.carts[sessionID]; exists {
		delete(m.carts, sessionID)
		m.logger.Debug("Dropped cart", zap.String("sessionID", sessionID))
	}
}

// Count returns the number of live carts
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.carts)
}

// CleanupIdle drops carts not touched within timeout. Gift messages live
// exactly as long as their cart.
func (m *Manager) CleanupIdle(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, c := range m.carts {
		if c.LastActivity().Before(cutoff) {
			delete(m.carts, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Removed idle carts", zap.Int("count", removed))
	}
	return removed
}
