package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is a leveled structured logger, args are key value pairs.
// glog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// PermissionedIdentity exposes the permission set granted to an identity
type PermissionedIdentity interface {
	Identity
	Permissions() []string
}

// Authenticator holds methods to deal with the session lifecycle
type Authenticator interface {
	Login(ctx context.Context, payload LoginPayload) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, claims AuthClaims) (*Profile, error)
}

// TokenPair is the result of a login or refresh. The refresh credential is
// delivered through a cookie and never serialized in the body.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	ExpiresAt        time.Time `json:"-"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() time.Duration
	GetRefreshTokenExpiration() time.Duration
	GetExtendedRefreshTokenExpiration() time.Duration
	GetRefreshCookieName() string
	GetRefreshCookiePath() string
	GetRefreshCookieSecure() bool
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("auth"),
		glog.WithAddSource(false),
	).GetLogger("auth")
}
