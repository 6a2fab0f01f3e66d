package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
)

// AuthorizationType represents different authorization strategies for the admin endpoints
type AuthorizationType int

const (
	// AuthorizedUsersOnly requires an admin API key for admin endpoints
	AuthorizedUsersOnly AuthorizationType = iota
	// NotAuthorizedEverywhere allows all requests without authentication
	NotAuthorizedEverywhere
)

// Helper method for AuthorizationType string representation
func (at AuthorizationType) String() string {
	names := [...]string{"AuthorizedUsersOnly", "NotAuthorizedEverywhere"}
	if at < 0 || int(at) >= len(names) {
		return "Unknown"
	}
	return names[at]
}

// Role granted to users allowed to use the admin endpoints
const RoleAdmin = "ADMIN"

// Defaults shared by every config implementation
const (
	DefaultListenAddr       = ":8080"
	DefaultMaxMessageLength = 150
	DefaultMetaKey          = "_gift_message"
	DefaultSessionTimeout   = 2 * time.Hour
	DefaultThrottleRPS      = 10
	DefaultThrottleRPM      = 120
)

// DefaultEmailCategories are the customer facing emails that carry the gift
// message summary section.
var DefaultEmailCategories = []string{
	"customer_processing_order",
	"customer_completed_order",
	"customer_invoice",
}

// DefaultExcludedKinds are product kinds the gift message field is never shown for.
var DefaultExcludedKinds = []commerce.ProductKind{
	commerce.KindVirtual,
	commerce.KindDownloadable,
}

type IConfig interface {
	// Core Server Settings
	ListenAddr() (string, error)
	ServerName() (string, error)
	ServerVersion() (string, error)
	AuthorizationType() (AuthorizationType, error)
	LogLevel() (string, error)
	SessionTimeout() (time.Duration, error)
	Throttling() (rps int, rpm int, err error)

	// Gift Message Settings
	MaxMessageLength() (int, error)
	MetaKey() (string, error)
	ExcludedProductKinds() ([]commerce.ProductKind, error)
	EmailCategories() ([]string, error)

	// Catalog
	GetProduct(id int64) (*commerce.Product, error)
	ListProducts() ([]commerce.Product, error)

	// User & Auth Settings
	GetUserIDByKeyHash(keyHash string) (userID string, err error)
	GetUserParams(userID string) (params map[string]string, err error)

	// SSL Settings
	SSLEnabled() (bool, error)
	SSLMode() (string, error)          // Returns "manual" or "acme"
	SSLCertFile() (string, error)      // Path to certificate file (manual mode)
	SSLKeyFile() (string, error)       // Path to private key file (manual mode)
	SSLAcmeDomains() ([]string, error) // List of domains for ACME
	SSLAcmeEmail() (string, error)     // Contact email for ACME
	SSLAcmeCacheDir() (string, error)  // Directory to cache ACME certificates

	// Lifecycle & Status
	Status(ctx context.Context) error
	Close() error
}

// HashAPIKey converts a plaintext API key to its SHA-256 hash representation
func HashAPIKey(key string) string {
	if key == "" {
		return ""
	}
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}

func copyProducts(src map[int64]*commerce.Product) []commerce.Product {
	out := make([]commerce.Product, 0, len(src))
	for _, p := range src {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
