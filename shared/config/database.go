package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var _ IConfig = (*DatabaseConfig)(nil)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS "Settings" (
	key   TEXT PRIMARY KEY,
	value TEXT
);
CREATE TABLE IF NOT EXISTS "Product" (
	id           BIGINT PRIMARY KEY,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL DEFAULT 'simple',
	virtual      BOOLEAN NOT NULL DEFAULT FALSE,
	downloadable BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS "User" (
	id     TEXT PRIMARY KEY,
	name   TEXT,
	status TEXT,
	role   TEXT
);
CREATE TABLE IF NOT EXISTS "ApiKey" (
	"keyHash" TEXT PRIMARY KEY,
	"userId"  TEXT NOT NULL REFERENCES "User"(id) ON DELETE CASCADE
);
`

// DatabaseConfig implements all configuration interfaces with PostgreSQL database-based storage
type DatabaseConfig struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewDatabaseConfig opens the settings database. The connection is verified
// lazily by Status.
func NewDatabaseConfig(dbConnectionString string, logger *zap.Logger) (*DatabaseConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dbConnectionString)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return NewDatabaseConfigFromDB(db, logger), nil
}

// NewDatabaseConfigFromDB wraps an already opened database handle.
func NewDatabaseConfigFromDB(db *sql.DB, logger *zap.Logger) *DatabaseConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseConfig{
		db:     db,
		logger: logger.Named("db-config"),
	}
}

// DB exposes the underlying handle so other stores can share the pool.
func (c *DatabaseConfig) DB() *sql.DB {
	return c.db
}

// EnsureSchema creates the settings, catalog and user tables when missing.
func (c *DatabaseConfig) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, settingsSchema); err != nil {
		return fmt.Errorf("create settings schema: %w", err)
	}
	return nil
}

// Close closes any resources held by the config
func (c *DatabaseConfig) Close() error {
	return c.db.Close()
}

// --- IConfig Implementation ---

func (c *DatabaseConfig) ListenAddr() (string, error) {
	return c.getSettingString("giftmessage_listen_address", DefaultListenAddr)
}

func (c *DatabaseConfig) AuthorizationType() (AuthorizationType, error) {
	rawValue, err := c.getSettingJSON("giftmessage_authorization_type")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthorizedUsersOnly, nil
		}
		return AuthorizedUsersOnly, err
	}
	switch v := rawValue.(type) {
	case float64:
		return AuthorizationType(int(v)), nil
	case string:
		switch strings.ToLower(v) {
		case "authorizedusersonly", "users_only":
			return AuthorizedUsersOnly, nil
		case "notauthorizedeverywhere", "none":
			return NotAuthorizedEverywhere, nil
		default:
			return AuthorizedUsersOnly, fmt.Errorf("invalid authorization type string value: %s", v)
		}
	default:
		return AuthorizedUsersOnly, fmt.Errorf("invalid authorization type format in database: %T", rawValue)
	}
}

func (c *DatabaseConfig) ServerName() (string, error) {
	return c.getSettingString("giftmessage_server_name", "Gift Message Service")
}
func (c *DatabaseConfig) ServerVersion() (string, error) {
	return c.getSettingString("giftmessage_server_version", "1.0.0")
}
func (c *DatabaseConfig) LogLevel() (string, error) {
	return c.getSettingString("giftmessage_log_level", "info")
}
func (c *DatabaseConfig) SessionTimeout() (time.Duration, error) {
	raw, err := c.getSettingString("giftmessage_session_timeout", DefaultSessionTimeout.String())
	if err != nil {
		return DefaultSessionTimeout, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return DefaultSessionTimeout, fmt.Errorf("setting 'giftmessage_session_timeout': %w", err)
	}
	return d, nil
}
func (c *DatabaseConfig) Throttling() (int, int, error) {
	rps, err := c.getSettingInt("giftmessage_throttling_rps", DefaultThrottleRPS)
	if err != nil {
		return DefaultThrottleRPS, DefaultThrottleRPM, err
	}
	rpm, err := c.getSettingInt("giftmessage_throttling_rpm", DefaultThrottleRPM)
	if err != nil {
		return DefaultThrottleRPS, DefaultThrottleRPM, err
	}
	return rps, rpm, nil
}

func (c *DatabaseConfig) MaxMessageLength() (int, error) {
	return c.getSettingInt("gift_message_max_length", DefaultMaxMessageLength)
}
func (c *DatabaseConfig) MetaKey() (string, error) {
	return c.getSettingString("gift_message_meta_key", DefaultMetaKey)
}
func (c *DatabaseConfig) ExcludedProductKinds() ([]commerce.ProductKind, error) {
	defaults := make([]string, 0, len(DefaultExcludedKinds))
	for _, k := range DefaultExcludedKinds {
		defaults = append(defaults, string(k))
	}
	raw, err := c.getSettingStringSlice("gift_message_excluded_kinds", defaults)
	kinds := make([]commerce.ProductKind, 0, len(raw))
	for _, k := range raw {
		kinds = append(kinds, commerce.ProductKind(strings.ToLower(k)))
	}
	return kinds, err
}
func (c *DatabaseConfig) EmailCategories() ([]string, error) {
	return c.getSettingStringSlice("gift_message_email_categories", DefaultEmailCategories)
}

func (c *DatabaseConfig) GetProduct(id int64) (*commerce.Product, error) {
	query := `SELECT id, name, kind, virtual, downloadable FROM "Product" WHERE id = $1 LIMIT 1`
	var p commerce.Product
	var kind string
	err := c.db.QueryRow(query, id).Scan(&p.ID, &p.Name, &kind, &p.Virtual, &p.Downloadable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query product %d: %w", id, err)
	}
	p.Kind = commerce.ProductKind(kind)
	return &p, nil
}

func (c *DatabaseConfig) ListProducts() ([]commerce.Product, error) {
	rows, err := c.db.Query(`SELECT id, name, kind, virtual, downloadable FROM "Product" ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []commerce.Product
	for rows.Next() {
		var p commerce.Product
		var kind string
		if scanErr := rows.Scan(&p.ID, &p.Name, &kind, &p.Virtual, &p.Downloadable); scanErr != nil {
			return nil, fmt.Errorf("scan product: %w", scanErr)
		}
		p.Kind = commerce.ProductKind(kind)
		products = append(products, p)
	}
	return products, rows.Err()
}

func (c *DatabaseConfig) GetUserIDByKeyHash(keyHash string) (string, error) {
	if keyHash == "" {
		return "", nil
	}

	query := `SELECT "userId" FROM "ApiKey" WHERE "keyHash" = $1 LIMIT 1`
	var userID string
	err := c.db.QueryRow(query, keyHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query user by key hash: %w", err)
	}
	return userID, nil
}

func (c *DatabaseConfig) GetUserParams(userID string) (map[string]string, error) {
	query := `SELECT name, status, role FROM "User" WHERE id = $1 LIMIT 1`
	var name, status, role sql.NullString
	err := c.db.QueryRow(query, userID).Scan(&name, &status, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("query user params: %w", err)
	}
	params := make(map[string]string)
	if name.Valid {
		params["name"] = name.String
	}
	if status.Valid {
		params["status"] = status.String
	}
	if role.Valid {
		params["role"] = role.String
	}
	return params, nil
}

func (c *DatabaseConfig) Status(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		c.logger.Error("DB ping failed", zap.Error(err))
		return err
	}
	return nil
}
func (c *DatabaseConfig) SSLEnabled() (bool, error) {
	return c.getSettingBool("giftmessage_ssl_enabled", false)
}
func (c *DatabaseConfig) SSLMode() (string, error) {
	return c.getSettingString("giftmessage_ssl_mode", "manual")
}
func (c *DatabaseConfig) SSLCertFile() (string, error) {
	return c.getSettingString("giftmessage_ssl_cert_file", "")
}
func (c *DatabaseConfig) SSLKeyFile() (string, error) {
	return c.getSettingString("giftmessage_ssl_key_file", "")
}
func (c *DatabaseConfig) SSLAcmeEmail() (string, error) {
	return c.getSettingString("giftmessage_ssl_acme_email", "")
}
func (c *DatabaseConfig) SSLAcmeCacheDir() (string, error) {
	return c.getSettingString("giftmessage_ssl_acme_cache_dir", "./.autocert-cache")
}
func (c *DatabaseConfig) SSLAcmeDomains() ([]string, error) {
	return c.getSettingStringSlice("giftmessage_ssl_acme_domains", []string{})
}

// --- Database Helper Functions ---
func (c *DatabaseConfig) getSettingRaw(key string) ([]byte, error) {
	var valueStr sql.NullString
	err := c.db.QueryRowContext(context.Background(), `SELECT value FROM "Settings" WHERE key = $1 LIMIT 1`, key).Scan(&valueStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query setting '%s': %w", key, err)
	}
	if !valueStr.Valid {
		return nil, ErrNotFound
	}
	return []byte(valueStr.String), nil
}
func (c *DatabaseConfig) getSettingJSON(key string) (interface{}, error) {
	raw, err := c.getSettingRaw(key)
	if err != nil {
		return nil, err
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("unmarshal setting '%s': %w", key, err)
	}
	return value, nil
}
func (c *DatabaseConfig) getSettingString(key string, defaultValue string) (string, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%v", int(v)), nil
	default:
		return defaultValue, fmt.Errorf("setting '%s' has unexpected type %T", key, value)
	}
}
func (c *DatabaseConfig) getSettingInt(key string, defaultValue int) (int, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	switch v := value.(type) {
	case float64:
		if v <= 0 {
			return defaultValue, fmt.Errorf("setting '%s' must be positive, got %v", key, v)
		}
		return int(v), nil
	case string:
		var n int
		if _, scanErr := fmt.Sscanf(v, "%d", &n); scanErr != nil || n <= 0 {
			return defaultValue, fmt.Errorf("setting '%s' is not a positive integer: %q", key, v)
		}
		return n, nil
	default:
		return defaultValue, fmt.Errorf("setting '%s' has unexpected type %T", key, value)
	}
}
func (c *DatabaseConfig) getSettingBool(key string, defaultValue bool) (bool, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	boolValue, ok := value.(bool)
	if !ok {
		return defaultValue, fmt.Errorf("setting '%s' is not a boolean (type: %T)", key, value)
	}
	return boolValue, nil
}
func (c *DatabaseConfig) getSettingStringSlice(key string, defaultValue []string) ([]string, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	if sliceInterface, ok := value.([]interface{}); ok {
		strSlice := make([]string, 0, len(sliceInterface))
		for i, item := range sliceInterface {
			if strVal, ok := item.(string); ok {
				strSlice = append(strSlice, strVal)
			} else {
				return defaultValue, fmt.Errorf("non-string value at index %d in setting '%s'", i, key)
			}
		}
		return strSlice, nil
	}
	return defaultValue, fmt.Errorf("setting '%s' is not a JSON array of strings (type: %T)", key, value)
}
