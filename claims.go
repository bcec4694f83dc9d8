package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenUse distinguishes short lived access tokens from refresh credentials
type TokenUse string

const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

// AuthClaims represents structured JWT claims with permission checking
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	TokenID() string
	Use() TokenUse
	Permissions() []string
	Can(permission string) bool
	HasRole(role string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string   `json:"uid,omitempty"`
	UserRole string   `json:"role,omitempty"`
	Perms    []string `json:"perms,omitempty"`
	TokenUse TokenUse `json:"use,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Use returns the token use, tokens without the claim are access tokens
func (c *JWTClaims) Use() TokenUse {
	if c.TokenUse == "" {
		return TokenUseAccess
	}
	return c.TokenUse
}

// Permissions returns the permission names embedded in the token
func (c *JWTClaims) Permissions() []string {
	return c.Perms
}

// Can checks the embedded permission list, falling back to the role table
func (c *JWTClaims) Can(permission string) bool {
	if slices.Contains(c.Perms, permission) {
		return true
	}
	return UserRole(c.UserRole).Can(permission)
}

// HasRole checks if the user has a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
