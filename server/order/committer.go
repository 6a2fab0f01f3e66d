package order

import (
	"github.com/gate4ai/giftmessage/server/cart"
	"github.com/gate4ai/giftmessage/shared/commerce"
)

// Committer copies gift messages from cart lines into order lines.
type Committer struct {
	store   cart.Store
	metaKey string
}

// NewCommitter reads messages from store and writes them under metaKey.
func NewCommitter(store cart.Store, metaKey string) *Committer {
	return &Committer{store: store, metaKey: metaKey}
}

// MetaKey returns the order line attribute the message is written to
func (c *Committer) MetaKey() string {
	return c.metaKey
}

// Commit copies the gift message of cartLine into orderLine. Lines without a
// message get no attribute at all. It reports whether a message was written.
func (c *Committer) Commit(cartLine commerce.CartLine, orderLine *commerce.OrderLine) bool {
	text, ok := c.store.Get(cartLine.Token)
	if !ok || text == "" {
		return false
	}
	orderLine.SetMeta(c.metaKey, text)
	return true
}
