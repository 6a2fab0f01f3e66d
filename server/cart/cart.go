// Package cart holds per-session carts and the gift message attached to each line.
package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
)

var ErrLineNotFound = errors.New("cart line not found")

// Store is the gift message side of a cart: one normalized message per line token.
type Store interface {
	Put(lineToken, normalizedText string)
	Get(lineToken string) (string, bool)
	HasAny() bool
}

var _ Store = (*Cart)(nil)

// LineToken derives the identity of a cart line. Lines for the same product
// and variation share a token only when their gift messages are identical,
// so lines carrying different messages are never merged.
func LineToken(productID, variationID int64, giftMessage string) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(productID, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(variationID, 10)))
	if giftMessage != "" {
		h.Write([]byte{0})
		h.Write([]byte(giftMessage))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cart is a session cart. Lines keep insertion order.
type Cart struct {
	ID string

	mu           sync.Mutex
	lines        []*commerce.CartLine
	lastActivity time.Time
}

func newCart(id string) *Cart {
	return &Cart{ID: id, lastActivity: time.Now()}
}

func (c *Cart) touch() {
	c.lastActivity = time.Now()
}

// LastActivity returns when the cart was last read or modified
func (c *Cart) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// AddLine adds quantity of product to the cart. An identical line (same
// product, variation and gift message) has its quantity increased instead.
func (c *Cart) AddLine(product commerce.Product, variationID int64, quantity int, giftMessage string) commerce.CartLine {
	if quantity < 1 {
		quantity = 1
	}
	token := LineToken(product.ID, variationID, giftMessage)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	if line := c.find(token); line != nil {
		line.Quantity += quantity
		return *line
	}
	line := &commerce.CartLine{
		Token:       token,
		ProductID:   product.ID,
		VariationID: variationID,
		Label:       product.Name,
		Quantity:    quantity,
		GiftMessage: giftMessage,
	}
	c.lines = append(c.lines, line)
	return *line
}

// UpdateGiftMessage replaces the message of a line. The line is re-keyed; if
// an identical line already exists the two are merged into that one.
func (c *Cart) UpdateGiftMessage(token, giftMessage string) (commerce.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	idx := c.index(token)
	if idx < 0 {
		return commerce.CartLine{}, ErrLineNotFound
	}
	line := c.lines[idx]
	newToken := LineToken(line.ProductID, line.VariationID, giftMessage)
	if newToken == token {
		return *line, nil
	}
	if existing := c.find(newToken); existing != nil {
		existing.Quantity += line.Quantity
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		return *existing, nil
	}
	line.Token = newToken
	line.GiftMessage = giftMessage
	return *line, nil
}

// RemoveLine drops a line from the cart.
func (c *Cart) RemoveLine(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	idx := c.index(token)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	return nil
}

// Lines returns a snapshot of the cart lines in insertion order.
func (c *Cart) Lines() []commerce.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	out := make([]commerce.CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, *line)
	}
	return out
}

// Line returns a copy of the line with token.
func (c *Cart) Line(token string) (commerce.CartLine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if line := c.find(token); line != nil {
		return *line, true
	}
	return commerce.CartLine{}, false
}

// Snapshot copies the cart lines in one step.
func (c *Cart) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	s := &Snapshot{lines: make([]commerce.CartLine, 0, len(c.lines))}
	for _, line := range c.lines {
		s.lines = append(s.lines, *line)
	}
	return s
}

// Release removes the lines of s from the cart. Lines edited after s was
// taken stay in the cart; a line whose quantity grew keeps the difference.
func (c *Cart) Release(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	for _, taken := range s.lines {
		idx := c.index(taken.Token)
		if idx < 0 {
			continue
		}
		if line := c.lines[idx]; line.Quantity > taken.Quantity {
			line.Quantity -= taken.Quantity
			continue
		}
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	}
}

// Snapshot is a point-in-time copy of a cart. As a Store it serves the
// messages the lines carried when it was taken.
type Snapshot struct {
	lines []commerce.CartLine
}

var _ Store = (*Snapshot)(nil)

// Lines returns the copied lines in cart order.
func (s *Snapshot) Lines() []commerce.CartLine {
	return append([]commerce.CartLine(nil), s.lines...)
}

func (s *Snapshot) Put(lineToken, normalizedText string) {
	for i := range s.lines {
		if s.lines[i].Token == lineToken {
			s.lines[i].GiftMessage = normalizedText
		}
	}
}

func (s *Snapshot) Get(lineToken string) (string, bool) {
	for _, line := range s.lines {
		if line.Token == lineToken && line.GiftMessage != "" {
			return line.GiftMessage, true
		}
	}
	return "", false
}

func (s *Snapshot) HasAny() bool {
	for _, line := range s.lines {
		if line.GiftMessage != "" {
			return true
		}
	}
	return false
}

// --- Store implementation ---

// Put stores the message for an existing line. Unknown tokens are ignored:
// a message never exists without its owning line.
func (c *Cart) Put(lineToken, normalizedText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if line := c.find(lineToken); line != nil {
		line.GiftMessage = normalizedText
	}
}

// Get returns the non-empty message held for a line.
func (c *Cart) Get(lineToken string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := c.find(lineToken)
	if line == nil || line.GiftMessage == "" {
		return "", false
	}
	return line.GiftMessage, true
}

// HasAny reports whether any line of the cart carries a gift message.
func (c *Cart) HasAny() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range c.lines {
		if line.GiftMessage != "" {
			return true
		}
	}
	return false
}

func (c *Cart) find(token string) *commerce.CartLine {
	if idx := c.index(token); idx >= 0 {
		return c.lines[idx]
	}
	return nil
}

func (c *Cart) index(token string) int {
	for i, line := range c.lines {
		if line.Token == token {
			return i
		}
	}
	return -1
}
