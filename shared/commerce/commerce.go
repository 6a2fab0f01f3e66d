// Package commerce holds the minimal catalog, cart and order model the gift
// message pipeline runs against.
package commerce

import (
	"strings"
	"time"
)

// ProductKind identifies the catalog type of a purchasable item
type ProductKind string

const (
	KindSimple       ProductKind = "simple"
	KindVariable     ProductKind = "variable"
	KindGrouped      ProductKind = "grouped"
	KindExternal     ProductKind = "external"
	KindVirtual      ProductKind = "virtual"
	KindDownloadable ProductKind = "downloadable"
)

// Product is a purchasable catalog item
type Product struct {
	ID           int64       `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	Kind         ProductKind `json:"kind" yaml:"kind"`
	Virtual      bool        `json:"virtual,omitempty" yaml:"virtual"`
	Downloadable bool        `json:"downloadable,omitempty" yaml:"downloadable"`
}

// Intangible reports whether the product has no physical delivery.
func (p Product) Intangible() bool {
	return p.Virtual || p.Downloadable || p.Kind == KindVirtual || p.Kind == KindDownloadable
}

// CartLine is one line of a session cart. Token is derived from the
// product, variation and gift message, see cart.LineToken.
type CartLine struct {
	Token       string `json:"token"`
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id,omitempty"`
	Label       string `json:"label"`
	Quantity    int    `json:"quantity"`
	GiftMessage string `json:"gift_message,omitempty"`
}

// Customer is the billing identity of an order
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// FullName joins first and last name, skipping empty parts.
func (c Customer) FullName() string {
	return strings.TrimSpace(strings.Join([]string{c.FirstName, c.LastName}, " "))
}

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Order is a committed checkout. Key grants shopper access to the order pages.
type Order struct {
	ID        int64        `json:"id"`
	Key       string       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	Status    string       `json:"status"`
	Customer  Customer     `json:"customer"`
	Lines     []*OrderLine `json:"lines"`
}

// OrderLine is a permanent order line. Meta is the generic key/value
// attribute store of the line.
type OrderLine struct {
	ID        int64             `json:"id"`
	ProductID int64             `json:"product_id"`
	Label     string            `json:"label"`
	Quantity  int               `json:"quantity"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// MetaValue returns the attribute stored under key or "" when absent.
func (l *OrderLine) MetaValue(key string) string {
	if l == nil || l.Meta == nil {
		return ""
	}
	return l.Meta[key]
}

// SetMeta stores value under key, allocating the attribute map on demand.
func (l *OrderLine) SetMeta(key, value string) {
	if l.Meta == nil {
		l.Meta = make(map[string]string)
	}
	l.Meta[key] = value
}
