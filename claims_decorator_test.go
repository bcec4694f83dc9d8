package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-hr-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsDecorator(t *testing.T) {
	identity := testIdentity{id: "user-1", role: string(auth.RoleProjectManager)}
	newService := func(d auth.ClaimsDecorator) *auth.TokenServiceImpl {
		return auth.NewTokenService([]byte("test-signing-key"), time.Minute, time.Hour, "hrauth", jwt.ClaimStrings{}, nopLogger{}).
			WithClaimsDecorator(d)
	}

	t.Run("may grant permissions", func(t *testing.T) {
		ts := newService(auth.ClaimsDecoratorFunc(func(_ auth.Identity, claims *auth.JWTClaims) error {
			claims.Perms = append(claims.Perms, auth.PermissionViewCollaborators)
			return nil
		}))

		token, _, err := ts.GenerateAccess(identity)
		require.NoError(t, err)

		claims, err := ts.Validate(token)
		require.NoError(t, err)
		assert.True(t, claims.Can(auth.PermissionViewCollaborators))
	})

	t.Run("refresh credentials are not decorated", func(t *testing.T) {
		ts := newService(auth.ClaimsDecoratorFunc(func(auth.Identity, *auth.JWTClaims) error {
			return errors.New("should not run")
		}))

		_, _, err := ts.GenerateRefresh(identity, 0)
		assert.NoError(t, err)
	})

	t.Run("decorator errors stop issuance", func(t *testing.T) {
		boom := errors.New("directory unavailable")
		ts := newService(auth.ClaimsDecoratorFunc(func(auth.Identity, *auth.JWTClaims) error {
			return boom
		}))

		_, _, err := ts.GenerateAccess(identity)
		assert.ErrorIs(t, err, boom)
	})

	mutations := map[string]func(*auth.JWTClaims){
		"sub":  func(c *auth.JWTClaims) { c.RegisteredClaims.Subject = "someone-else" },
		"uid":  func(c *auth.JWTClaims) { c.UID = "someone-else" },
		"role": func(c *auth.JWTClaims) { c.UserRole = string(auth.RoleAdmin) },
		"use":  func(c *auth.JWTClaims) { c.TokenUse = auth.TokenUseRefresh },
		"jti":  func(c *auth.JWTClaims) { c.RegisteredClaims.ID = "fixed" },
		"aud":  func(c *auth.JWTClaims) { c.RegisteredClaims.Audience = jwt.ClaimStrings{"payroll"} },
		"exp": func(c *auth.JWTClaims) {
			c.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(24 * time.Hour))
		},
	}

	for field, mutate := range mutations {
		t.Run("rejects "+field, func(t *testing.T) {
			ts := newService(auth.ClaimsDecoratorFunc(func(_ auth.Identity, claims *auth.JWTClaims) error {
				mutate(claims)
				return nil
			}))

			_, _, err := ts.GenerateAccess(identity)
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrImmutableClaimMutation)
		})
	}
}

func TestAutherWithClaimsDecorator(t *testing.T) {
	f := newAutherFixture(t)
	f.auther.WithClaimsDecorator(auth.ClaimsDecoratorFunc(func(_ auth.Identity, claims *auth.JWTClaims) error {
		claims.Perms = nil
		return nil
	}))

	pair := f.login(t, false)

	claims, err := f.auther.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, claims.Permissions())
}
