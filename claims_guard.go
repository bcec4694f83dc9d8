package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claimsSnapshot struct {
	id        string
	subject   string
	issuer    string
	uid       string
	role      string
	use       TokenUse
	audience  []string
	issuedAt  *time.Time
	expiresAt *time.Time
}

func captureClaims(claims *JWTClaims) claimsSnapshot {
	return claimsSnapshot{
		id:        claims.RegisteredClaims.ID,
		subject:   claims.RegisteredClaims.Subject,
		issuer:    claims.RegisteredClaims.Issuer,
		uid:       claims.UID,
		role:      claims.UserRole,
		use:       claims.TokenUse,
		audience:  slices.Clone([]string(claims.RegisteredClaims.Audience)),
		issuedAt:  numericTime(claims.RegisteredClaims.IssuedAt),
		expiresAt: numericTime(claims.RegisteredClaims.ExpiresAt),
	}
}

func (snap claimsSnapshot) validate(claims *JWTClaims) error {
	switch {
	case claims.RegisteredClaims.ID != snap.id:
		return immutableClaimViolation("jti")
	case claims.RegisteredClaims.Subject != snap.subject:
		return immutableClaimViolation("sub")
	case claims.RegisteredClaims.Issuer != snap.issuer:
		return immutableClaimViolation("iss")
	case claims.UID != snap.uid:
		return immutableClaimViolation("uid")
	case claims.UserRole != snap.role:
		return immutableClaimViolation("role")
	case claims.TokenUse != snap.use:
		return immutableClaimViolation("use")
	case !slices.Equal([]string(claims.RegisteredClaims.Audience), snap.audience):
		return immutableClaimViolation("aud")
	case !sameTime(numericTime(claims.RegisteredClaims.IssuedAt), snap.issuedAt):
		return immutableClaimViolation("iat")
	case !sameTime(numericTime(claims.RegisteredClaims.ExpiresAt), snap.expiresAt):
		return immutableClaimViolation("exp")
	}
	return nil
}

func numericTime(date *jwt.NumericDate) *time.Time {
	if date == nil {
		return nil
	}
	t := date.Time
	return &t
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
