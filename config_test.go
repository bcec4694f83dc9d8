package auth_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	auth "github.com/goliatone/go-hr-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "hrauth.yaml", `
signing_key: yaml-key
token_expiration: 5m
refresh_token_expiration: 12h
refresh_cookie_secure: false
audience:
  - hr-api
max_login_attempts: 3
`)

	cfg, err := auth.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-key", cfg.GetSigningKey())
	assert.Equal(t, 5*time.Minute, cfg.GetTokenExpiration())
	assert.Equal(t, 12*time.Hour, cfg.GetRefreshTokenExpiration())
	assert.False(t, cfg.GetRefreshCookieSecure())
	assert.Equal(t, []string{"hr-api"}, cfg.GetAudience())
	assert.Equal(t, 3, cfg.MaxLoginAttempts)

	// untouched values keep their defaults
	assert.Equal(t, "refresh_token", cfg.GetRefreshCookieName())
	assert.Equal(t, "/auth", cfg.GetRefreshCookiePath())
	assert.Equal(t, 30*24*time.Hour, cfg.GetExtendedRefreshTokenExpiration())
	assert.Equal(t, "Bearer", cfg.GetAuthScheme())
}

func TestLoadConfigJSONWithComments(t *testing.T) {
	path := writeConfig(t, "hrauth.jsonc", `{
  // local development
  "signing_key": "json-key",
  "issuer": "hr-local",
  "database_driver": "sqlite",
}`)

	cfg, err := auth.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "json-key", cfg.GetSigningKey())
	assert.Equal(t, "hr-local", cfg.GetIssuer())
	assert.Equal(t, auth.DriverSQLite, cfg.DatabaseDriver)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("HRAUTH_SIGNING_KEY", "env-key")
	t.Setenv("HRAUTH_TOKEN_EXPIRATION", "2m")
	t.Setenv("HRAUTH_AUDIENCE", "hr-api,hr-web")
	t.Setenv("HRAUTH_DEBUG", "true")

	cfg, err := auth.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.SigningKey)
	assert.Equal(t, 2*time.Minute, cfg.TokenExpiration)
	assert.Equal(t, []string{"hr-api", "hr-web"}, cfg.Audience)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := auth.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad environment value", func(t *testing.T) {
		t.Setenv("HRAUTH_SIGNING_KEY", "env-key")
		t.Setenv("HRAUTH_COOL_DOWN_PERIOD", "forever")
		_, err := auth.LoadConfig("")
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*auth.BaseConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*auth.BaseConfig) {}},
		{name: "missing signing key", mutate: func(c *auth.BaseConfig) { c.SigningKey = "" }, wantErr: true},
		{name: "zero access ttl", mutate: func(c *auth.BaseConfig) { c.TokenExpiration = 0 }, wantErr: true},
		{name: "refresh shorter than access", mutate: func(c *auth.BaseConfig) { c.RefreshTokenExpiration = time.Minute }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
