package config

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
)

var _ IConfig = (*InternalConfig)(nil)
var ErrNotFound = errors.New("not found")

// InternalConfig implements all configuration interfaces with in-memory storage
type InternalConfig struct {
	mu                     sync.RWMutex
	ServerAddress          string
	ServerNameValue        string
	ServerVersionValue     string
	AuthorizationTypeValue AuthorizationType
	LogLevelValue          string
	SessionTimeoutValue    time.Duration
	ThrottleRPSValue       int
	ThrottleRPMValue       int

	MaxMessageLengthValue int
	MetaKeyValue          string
	ExcludedKindsValue    []commerce.ProductKind
	EmailCategoriesValue  []string

	SSLEnabledValue      bool
	SSLModeValue         string
	SSLCertFileValue     string
	SSLKeyFileValue      string
	SSLAcmeDomainsValue  []string
	SSLAcmeEmailValue    string
	SSLAcmeCacheDirValue string

	UserKeyHashes map[string]string            // keyHash -> userID
	userParams    map[string]map[string]string // userID -> paramName -> paramValue
	Products      map[int64]*commerce.Product  // productID -> Product
}

// NewInternalConfig creates a new in-memory configuration
func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		ServerAddress:         DefaultListenAddr,
		ServerNameValue:       "Unknown",
		ServerVersionValue:    "0.0.0",
		LogLevelValue:         "info",
		SessionTimeoutValue:   DefaultSessionTimeout,
		ThrottleRPSValue:      DefaultThrottleRPS,
		ThrottleRPMValue:      DefaultThrottleRPM,
		MaxMessageLengthValue: DefaultMaxMessageLength,
		MetaKeyValue:          DefaultMetaKey,
		ExcludedKindsValue:    append([]commerce.ProductKind{}, DefaultExcludedKinds...),
		EmailCategoriesValue:  append([]string{}, DefaultEmailCategories...),
		SSLModeValue:          "manual",
		SSLAcmeCacheDirValue:  "./.autocert-cache",

		UserKeyHashes: make(map[string]string),
		userParams:    make(map[string]map[string]string),
		Products:      make(map[int64]*commerce.Product),
	}
}

// ServerConfig implementation

func (c *InternalConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerAddress, nil
}

func (c *InternalConfig) SetListenAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerAddress = addr
}

func (c *InternalConfig) AuthorizationType() (AuthorizationType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AuthorizationTypeValue, nil
}

func (c *InternalConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerNameValue, nil
}

func (c *InternalConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerVersionValue, nil
}

// LogLevel returns the configured log level
func (c *InternalConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogLevelValue, nil
}

func (c *InternalConfig) SessionTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SessionTimeoutValue, nil
}

func (c *InternalConfig) Throttling() (int, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ThrottleRPSValue, c.ThrottleRPMValue, nil
}

// Gift message settings

func (c *InternalConfig) MaxMessageLength() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxMessageLengthValue, nil
}

func (c *InternalConfig) SetMaxMessageLength(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MaxMessageLengthValue = n
}

func (c *InternalConfig) MetaKey() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MetaKeyValue, nil
}

func (c *InternalConfig) ExcludedProductKinds() ([]commerce.ProductKind, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]commerce.ProductKind, len(c.ExcludedKindsValue))
	copy(kinds, c.ExcludedKindsValue)
	return kinds, nil
}

func (c *InternalConfig) EmailCategories() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	categories := make([]string, len(c.EmailCategoriesValue))
	copy(categories, c.EmailCategoriesValue)
	return categories, nil
}

// Catalog implementation

func (c *InternalConfig) GetProduct(id int64) (*commerce.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	product, exists := c.Products[id]
	if !exists {
		return nil, ErrNotFound
	}
	productCopy := *product
	return &productCopy, nil
}

func (c *InternalConfig) ListProducts() ([]commerce.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyProducts(c.Products), nil
}

func (c *InternalConfig) SetProduct(product commerce.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Products[product.ID] = &product
}

// UsersConfig implementation

func (c *InternalConfig) GetUserIDByKeyHash(keyHash string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If empty key hash, return empty user ID
	if keyHash == "" {
		return "", nil
	}

	userID, exists := c.UserKeyHashes[keyHash]
	if !exists {
		return "", ErrNotFound
	}
	return userID, nil
}

func (c *InternalConfig) GetUserParams(userID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	params, exists := c.userParams[userID]
	if !exists {
		return make(map[string]string), nil
	}

	// Return a copy to prevent concurrent modification
	paramsCopy := make(map[string]string, len(params))
	for k, v := range params {
		paramsCopy[k] = v
	}
	return paramsCopy, nil
}

func (c *InternalConfig) SetUserParam(userID, paramName, paramValue string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params, exists := c.userParams[userID]
	if !exists {
		params = make(map[string]string)
		c.userParams[userID] = params
	}

	params[paramName] = paramValue
}

// AddAdminKey registers a plaintext API key for an admin user.
func (c *InternalConfig) AddAdminKey(userID, key string) {
	c.mu.Lock()
	c.UserKeyHashes[HashAPIKey(key)] = userID
	c.mu.Unlock()
	c.SetUserParam(userID, "role", RoleAdmin)
}

// SSL implementation

func (c *InternalConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLEnabledValue, nil
}

func (c *InternalConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLModeValue, nil
}

func (c *InternalConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLCertFileValue, nil
}

func (c *InternalConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLKeyFileValue, nil
}

func (c *InternalConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	domainsCopy := make([]string, len(c.SSLAcmeDomainsValue))
	copy(domainsCopy, c.SSLAcmeDomainsValue)
	return domainsCopy, nil
}

func (c *InternalConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLAcmeEmailValue, nil
}

func (c *InternalConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SSLAcmeCacheDirValue, nil
}

func (c *InternalConfig) Close() error {
	return nil
}

func (c *InternalConfig) Status(ctx context.Context) error {
	return nil
}
