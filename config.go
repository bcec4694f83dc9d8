package auth

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/tidwall/jsonc"
)

// EnvPrefix is the prefix of environment variables overriding config values
const EnvPrefix = "HRAUTH_"

// BaseConfig implements Config and holds the server settings
type BaseConfig struct {
	SigningKey                     string        `koanf:"signing_key" json:"signing_key"`
	SigningMethod                  string        `koanf:"signing_method" json:"signing_method"`
	ContextKey                     string        `koanf:"context_key" json:"context_key"`
	TokenExpiration                time.Duration `koanf:"token_expiration" json:"token_expiration"`
	RefreshTokenExpiration         time.Duration `koanf:"refresh_token_expiration" json:"refresh_token_expiration"`
	ExtendedRefreshTokenExpiration time.Duration `koanf:"extended_refresh_token_expiration" json:"extended_refresh_token_expiration"`
	RefreshCookieName              string        `koanf:"refresh_cookie_name" json:"refresh_cookie_name"`
	RefreshCookiePath              string        `koanf:"refresh_cookie_path" json:"refresh_cookie_path"`
	RefreshCookieSecure            bool          `koanf:"refresh_cookie_secure" json:"refresh_cookie_secure"`
	TokenLookup                    string        `koanf:"token_lookup" json:"token_lookup"`
	AuthScheme                     string        `koanf:"auth_scheme" json:"auth_scheme"`
	Issuer                         string        `koanf:"issuer" json:"issuer"`
	Audience                       []string      `koanf:"audience" json:"audience"`

	Address          string        `koanf:"address" json:"address"`
	DatabaseDriver   string        `koanf:"database_driver" json:"database_driver"`
	DatabaseDSN      string        `koanf:"database_dsn" json:"database_dsn"`
	DatabaseDebug    bool          `koanf:"database_debug" json:"database_debug"`
	PingTimeout      time.Duration `koanf:"ping_timeout" json:"ping_timeout"`
	MaxLoginAttempts int           `koanf:"max_login_attempts" json:"max_login_attempts"`
	CoolDownPeriod   time.Duration `koanf:"cool_down_period" json:"cool_down_period"`
	Debug            bool          `koanf:"debug" json:"debug"`
}

var _ Config = (*BaseConfig)(nil)

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() *BaseConfig {
	return &BaseConfig{
		SigningMethod:                  "HS256",
		ContextKey:                     "user",
		TokenExpiration:                15 * time.Minute,
		RefreshTokenExpiration:         24 * time.Hour,
		ExtendedRefreshTokenExpiration: 30 * 24 * time.Hour,
		RefreshCookieName:              "refresh_token",
		RefreshCookiePath:              "/auth",
		RefreshCookieSecure:            true,
		TokenLookup:                    "header:Authorization",
		AuthScheme:                     "Bearer",
		Issuer:                         "hrauth",
		Address:                        ":8080",
		DatabaseDriver:                 DriverSQLite,
		DatabaseDSN:                    "file:hrauth.db?cache=shared",
		PingTimeout:                    5 * time.Second,
		MaxLoginAttempts:               5,
		CoolDownPeriod:                 24 * time.Hour,
	}
}

// LoadConfig layers a YAML or JSON (comments allowed) file and HRAUTH_*
// environment variables on top of the defaults. An empty path only applies
// defaults and environment.
func LoadConfig(path string) (*BaseConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := loadConfigFile(k, path); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load environment")
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid config value")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadConfigFile(k *koanf.Koanf, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return k.Load(rawbytes.Provider(jsonc.ToJSON(data)), json.Parser())
	default:
		return k.Load(file.Provider(path), yaml.Parser())
	}
}

// HRAUTH_TOKEN_EXPIRATION -> token_expiration
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate checks the settings needed to issue tokens
func (c *BaseConfig) Validate() error {
	if c.SigningKey == "" {
		return errors.New("signing key is required", errors.CategoryValidation).
			WithTextCode("CONFIG_INVALID").
			WithMetadata(map[string]any{"field": "signing_key", "env": EnvPrefix + "SIGNING_KEY"})
	}
	if c.TokenExpiration <= 0 || c.RefreshTokenExpiration <= 0 {
		return errors.New("token expirations must be positive", errors.CategoryValidation).
			WithTextCode("CONFIG_INVALID")
	}
	if c.RefreshTokenExpiration <= c.TokenExpiration {
		return errors.New("refresh token must outlive the access token", errors.CategoryValidation).
			WithTextCode("CONFIG_INVALID")
	}
	return nil
}

func (c *BaseConfig) GetSigningKey() string                            { return c.SigningKey }
func (c *BaseConfig) GetSigningMethod() string                         { return c.SigningMethod }
func (c *BaseConfig) GetContextKey() string                            { return c.ContextKey }
func (c *BaseConfig) GetTokenExpiration() time.Duration                { return c.TokenExpiration }
func (c *BaseConfig) GetRefreshTokenExpiration() time.Duration         { return c.RefreshTokenExpiration }
func (c *BaseConfig) GetExtendedRefreshTokenExpiration() time.Duration { return c.ExtendedRefreshTokenExpiration }
func (c *BaseConfig) GetRefreshCookieName() string                     { return c.RefreshCookieName }
func (c *BaseConfig) GetRefreshCookiePath() string                     { return c.RefreshCookiePath }
func (c *BaseConfig) GetRefreshCookieSecure() bool                     { return c.RefreshCookieSecure }
func (c *BaseConfig) GetTokenLookup() string                           { return c.TokenLookup }
func (c *BaseConfig) GetAuthScheme() string                            { return c.AuthScheme }
func (c *BaseConfig) GetIssuer() string                                { return c.Issuer }
func (c *BaseConfig) GetAudience() []string                            { return c.Audience }

// GetPersistence exposes the database settings to the persistence client
func (c *BaseConfig) GetPersistence() PersistenceConfig {
	return PersistenceConfig{
		Driver:      c.DatabaseDriver,
		DSN:         c.DatabaseDSN,
		Debug:       c.DatabaseDebug,
		PingTimeout: c.PingTimeout,
	}
}

// PersistenceConfig is the database slice of BaseConfig
type PersistenceConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (p PersistenceConfig) GetDebug() bool                { return p.Debug }
func (p PersistenceConfig) GetDriver() string             { return p.Driver }
func (p PersistenceConfig) GetServer() string             { return p.DSN }
func (p PersistenceConfig) GetPingTimeout() time.Duration { return p.PingTimeout }
func (p PersistenceConfig) GetOtelIdentifier() string     { return "" }
