package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var _ IConfig = (*YamlConfig)(nil)

// YamlConfig implements all configuration interfaces with YAML file-based storage
type YamlConfig struct {
	mu                sync.RWMutex
	configPath        string
	logger            *zap.Logger
	serverAddress     string
	serverName        string
	serverVersion     string
	logLevel          string
	authorizationType AuthorizationType
	sessionTimeout    time.Duration
	throttleRPS       int
	throttleRPM       int

	maxMessageLength int
	metaKey          string
	excludedKinds    []commerce.ProductKind
	emailCategories  []string

	userKeyHashes map[string]string            // keyHash -> userID
	userParams    map[string]map[string]string // userID -> paramName -> paramValue
	products      map[int64]*commerce.Product  // productID -> Product

	// SSL Fields
	sslEnabled      bool
	sslMode         string
	sslCertFile     string
	sslKeyFile      string
	sslAcmeDomains  []string
	sslAcmeEmail    string
	sslAcmeCacheDir string
}

// YAML configuration structure matching the required format
type yamlConfig struct {
	Server struct {
		Address        string `yaml:"address"`
		Name           string `yaml:"name"`
		Version        string `yaml:"version"`
		LogLevel       string `yaml:"log_level"`
		Authorization  string `yaml:"authorization"` // "users_only" or "none"
		SessionTimeout string `yaml:"session_timeout"`
		Throttling     struct {
			RPS int `yaml:"rps"`
			RPM int `yaml:"rpm"`
		} `yaml:"throttling"`
		SSL struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
	} `yaml:"server"`

	GiftMessage struct {
		MaxLength       int      `yaml:"max_length"`
		MetaKey         string   `yaml:"meta_key"`
		ExcludedKinds   []string `yaml:"excluded_kinds"`
		EmailCategories []string `yaml:"email_categories"`
	} `yaml:"gift_message"`

	Users map[string]struct {
		Keys []string `yaml:"keys"` // Store hashes directly
		Role string   `yaml:"role"`
	} `yaml:"users"`

	Products []commerce.Product `yaml:"products"`
}

// NewYamlConfig creates a new YAML-based configuration
func NewYamlConfig(configPath string, logger *zap.Logger) (*YamlConfig, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	config := &YamlConfig{
		configPath:        configPath,
		logger:            logger.Named("yaml-config"),
		userKeyHashes:     make(map[string]string),
		userParams:        make(map[string]map[string]string),
		products:          make(map[int64]*commerce.Product),
		authorizationType: AuthorizedUsersOnly, // Default
		sslMode:           "manual",
		sslAcmeCacheDir:   "./.autocert-cache",
	}

	if err := config.Update(); err != nil {
		return nil, err
	}
	return config, nil
}

// Update reloads configuration from the YAML file
func (c *YamlConfig) Update() error {
	c.logger.Debug("Updating configuration from YAML file", zap.String("path", c.configPath))

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return err
	}

	sessionTimeout := DefaultSessionTimeout
	if yamlCfg.Server.SessionTimeout != "" {
		sessionTimeout, err = time.ParseDuration(yamlCfg.Server.SessionTimeout)
		if err != nil {
			return fmt.Errorf("invalid server.session_timeout %q: %w", yamlCfg.Server.SessionTimeout, err)
		}
	}

	// --- Process Users Section ---
	newUserKeyHashes := make(map[string]string)
	newUserParams := make(map[string]map[string]string)
	for userID, user := range yamlCfg.Users {
		for _, keyHash := range user.Keys { // Assume keys in YAML are already hashes
			newUserKeyHashes[keyHash] = userID
		}
		if user.Role != "" {
			newUserParams[userID] = map[string]string{"role": strings.ToUpper(user.Role)}
		}
	}

	// --- Process Products Section ---
	newProducts := make(map[int64]*commerce.Product, len(yamlCfg.Products))
	for i := range yamlCfg.Products {
		product := yamlCfg.Products[i]
		if product.ID <= 0 {
			return fmt.Errorf("product %q has no positive id", product.Name)
		}
		if product.Kind == "" {
			product.Kind = commerce.KindSimple
		}
		newProducts[product.ID] = &product
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// --- Process Server Section ---
	c.serverAddress = yamlCfg.Server.Address
	if c.serverAddress == "" {
		c.serverAddress = DefaultListenAddr
	}
	c.serverName = yamlCfg.Server.Name
	c.serverVersion = yamlCfg.Server.Version
	c.logLevel = yamlCfg.Server.LogLevel
	switch strings.ToLower(yamlCfg.Server.Authorization) {
	case "none":
		c.authorizationType = NotAuthorizedEverywhere
	default:
		c.authorizationType = AuthorizedUsersOnly
	}
	c.sessionTimeout = sessionTimeout
	c.throttleRPS = orDefault(yamlCfg.Server.Throttling.RPS, DefaultThrottleRPS)
	c.throttleRPM = orDefault(yamlCfg.Server.Throttling.RPM, DefaultThrottleRPM)

	// --- Process SSL Section ---
	c.sslEnabled = yamlCfg.Server.SSL.Enabled
	c.sslMode = strings.ToLower(yamlCfg.Server.SSL.Mode)
	if c.sslMode != "acme" {
		c.sslMode = "manual"
	}
	c.sslCertFile = yamlCfg.Server.SSL.CertFile
	c.sslKeyFile = yamlCfg.Server.SSL.KeyFile
	c.sslAcmeDomains = yamlCfg.Server.SSL.AcmeDomains
	c.sslAcmeEmail = yamlCfg.Server.SSL.AcmeEmail
	c.sslAcmeCacheDir = yamlCfg.Server.SSL.AcmeCacheDir
	if c.sslAcmeCacheDir == "" {
		c.sslAcmeCacheDir = "./.autocert-cache"
	}

	// --- Process Gift Message Section ---
	c.maxMessageLength = orDefault(yamlCfg.GiftMessage.MaxLength, DefaultMaxMessageLength)
	c.metaKey = yamlCfg.GiftMessage.MetaKey
	if c.metaKey == "" {
		c.metaKey = DefaultMetaKey
	}
	if yamlCfg.GiftMessage.ExcludedKinds != nil {
		c.excludedKinds = make([]commerce.ProductKind, 0, len(yamlCfg.GiftMessage.ExcludedKinds))
		for _, kind := range yamlCfg.GiftMessage.ExcludedKinds {
			c.excludedKinds = append(c.excludedKinds, commerce.ProductKind(strings.ToLower(kind)))
		}
	} else {
		c.excludedKinds = append([]commerce.ProductKind{}, DefaultExcludedKinds...)
	}
	if yamlCfg.GiftMessage.EmailCategories != nil {
		c.emailCategories = append([]string{}, yamlCfg.GiftMessage.EmailCategories...)
	} else {
		c.emailCategories = append([]string{}, DefaultEmailCategories...)
	}

	c.userKeyHashes = newUserKeyHashes
	c.userParams = newUserParams
	c.products = newProducts

	return nil
}

// Watch reloads the configuration whenever the YAML file changes. It blocks
// until ctx is cancelled. Reload failures are logged and the previous
// configuration stays active.
func (c *YamlConfig) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory and filter by name.
	dir := filepath.Dir(c.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}
	target := filepath.Clean(c.configPath)
	c.logger.Info("Watching configuration file", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.Update(); err != nil {
				c.logger.Warn("Config reload failed, keeping previous configuration", zap.Error(err))
				continue
			}
			c.logger.Info("Configuration reloaded", zap.String("path", target))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// --- IConfig Implementation (Rest of methods) ---

func (c *YamlConfig) Close() error { return nil }
func (c *YamlConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverAddress, nil
}
func (c *YamlConfig) AuthorizationType() (AuthorizationType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorizationType, nil
}
func (c *YamlConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName, nil
}
func (c *YamlConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion, nil
}
func (c *YamlConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel, nil
}
func (c *YamlConfig) SessionTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionTimeout, nil
}
func (c *YamlConfig) Throttling() (int, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.throttleRPS, c.throttleRPM, nil
}

func (c *YamlConfig) MaxMessageLength() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxMessageLength, nil
}
func (c *YamlConfig) MetaKey() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metaKey, nil
}
func (c *YamlConfig) ExcludedProductKinds() ([]commerce.ProductKind, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]commerce.ProductKind, len(c.excludedKinds))
	copy(kinds, c.excludedKinds)
	return kinds, nil
}
func (c *YamlConfig) EmailCategories() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	categories := make([]string, len(c.emailCategories))
	copy(categories, c.emailCategories)
	return categories, nil
}

func (c *YamlConfig) GetProduct(id int64) (*commerce.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, exists := c.products[id]
	if !exists {
		return nil, ErrNotFound
	}
	productCopy := *product // Return a copy
	return &productCopy, nil
}
func (c *YamlConfig) ListProducts() ([]commerce.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyProducts(c.products), nil
}

func (c *YamlConfig) GetUserIDByKeyHash(keyHash string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if keyHash == "" {
		return "", nil
	}
	userID, exists := c.userKeyHashes[keyHash]
	if !exists {
		return "", ErrNotFound
	}
	return userID, nil
}

func (c *YamlConfig) GetUserParams(userID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	params, exists := c.userParams[userID]
	if !exists {
		return make(map[string]string), nil
	}
	paramsCopy := make(map[string]string, len(params))
	for k, v := range params {
		paramsCopy[k] = v
	}
	return paramsCopy, nil
}

func (c *YamlConfig) Status(ctx context.Context) error {
	// Check if config file exists and is readable
	if _, err := os.Stat(c.configPath); err != nil {
		c.logger.Error("YAML config file status check failed", zap.String("path", c.configPath), zap.Error(err))
		return fmt.Errorf("config file error: %w", err)
	}
	return nil // Basic check passed
}

// --- SSL Methods ---
func (c *YamlConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslEnabled, nil
}
func (c *YamlConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslMode, nil
}
func (c *YamlConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslCertFile, nil
}
func (c *YamlConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslKeyFile, nil
}
func (c *YamlConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	domainsCopy := make([]string, len(c.sslAcmeDomains))
	copy(domainsCopy, c.sslAcmeDomains)
	return domainsCopy, nil
}
func (c *YamlConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeEmail, nil
}
func (c *YamlConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeCacheDir, nil
}
