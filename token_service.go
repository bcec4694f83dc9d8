package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService issues and validates access and refresh tokens
type TokenService interface {
	GenerateAccess(identity Identity) (string, time.Time, error)
	GenerateRefresh(identity Identity, ttl time.Duration) (string, *JWTClaims, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	ValidateRefresh(tokenString string) (*JWTClaims, error)
	AccessTTL() time.Duration
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	decorator  ClaimsDecorator
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, accessTTL, refreshTTL time.Duration, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defaultLogger()
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		audience:   audience,
		logger:     logger,
		decorator:  noopClaimsDecorator{},
		now:        time.Now,
	}
}

// WithClaimsDecorator sets a hook that may adjust access token permissions
func (ts *TokenServiceImpl) WithClaimsDecorator(d ClaimsDecorator) *TokenServiceImpl {
	ts.decorator = normalizeClaimsDecorator(d)
	return ts
}

// WithClock overrides the time source, used in tests
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// AccessTTL returns the lifetime of access tokens
func (ts *TokenServiceImpl) AccessTTL() time.Duration {
	return ts.accessTTL
}

// GenerateAccess creates a short lived bearer token carrying role and permissions
func (ts *TokenServiceImpl) GenerateAccess(identity Identity) (string, time.Time, error) {
	claims := ts.newClaims(identity, TokenUseAccess, ts.accessTTL)
	claims.Perms = identityPermissions(identity)

	if err := decorate(ts.decorator, identity, claims); err != nil {
		ts.logger.Error("TokenService claims decorator rejected", "error", err)
		return "", time.Time{}, err
	}

	token, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.Expires(), nil
}

// GenerateRefresh creates a refresh credential. A zero ttl uses the default.
func (ts *TokenServiceImpl) GenerateRefresh(identity Identity, ttl time.Duration) (string, *JWTClaims, error) {
	if ttl <= 0 {
		ttl = ts.refreshTTL
	}
	claims := ts.newClaims(identity, TokenUseRefresh, ttl)

	token, err := ts.SignClaims(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses an access token and returns its claims
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	claims, err := ts.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use() != TokenUseAccess {
		ts.logger.Debug("TokenService rejected token presented as access token", "use", claims.Use())
		return nil, ErrTokenWrongUse
	}
	return claims, nil
}

// ValidateRefresh parses a refresh credential and returns its claims
func (ts *TokenServiceImpl) ValidateRefresh(tokenString string) (*JWTClaims, error) {
	claims, err := ts.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use() != TokenUseRefresh {
		ts.logger.Debug("TokenService rejected token presented as refresh token", "use", claims.Use())
		return nil, ErrTokenWrongUse
	}
	if claims.TokenID() == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (ts *TokenServiceImpl) parse(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, withCause(ErrTokenExpired, err)
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrTokenMalformed
}

func (ts *TokenServiceImpl) newClaims(identity Identity, use TokenUse, ttl time.Duration) *JWTClaims {
	now := ts.now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:      identity.ID(),
		UserRole: identity.Role(),
		TokenUse: use,
	}
}

func identityPermissions(identity Identity) []string {
	if pi, ok := identity.(PermissionedIdentity); ok {
		return pi.Permissions()
	}
	return UserRole(identity.Role()).Permissions()
}
