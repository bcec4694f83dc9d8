package auth

import (
	"context"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

type Auther struct {
	provider       IdentityProvider
	refreshStore   RefreshTokenStore
	refreshTTL     time.Duration
	extendedTTL    time.Duration
	logger         Logger
	tokenService   TokenService
	tokenValidator TokenValidator
	activitySink   ActivitySink
	now            func() time.Time
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, store RefreshTokenStore, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetRefreshTokenExpiration(),
		opts.GetIssuer(),
		jwt.ClaimStrings(opts.GetAudience()),
		defaultLogger(),
	)

	if store == nil {
		store = NewMemoryRefreshStore()
	}

	return &Auther{
		provider:     provider,
		refreshStore: store,
		refreshTTL:   opts.GetRefreshTokenExpiration(),
		extendedTTL:  opts.GetExtendedRefreshTokenExpiration(),
		logger:       defaultLogger(),
		tokenService: tokenService,
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger == nil {
		return s
	}
	s.logger = logger
	if ts, ok := s.tokenService.(*TokenServiceImpl); ok {
		ts.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenValidator sets a custom validator for access tokens, e.g. a
// MultiTokenValidator during a signing key rotation.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// WithClaimsDecorator installs a decorator on the default token service
func (s *Auther) WithClaimsDecorator(d ClaimsDecorator) *Auther {
	if ts, ok := s.tokenService.(*TokenServiceImpl); ok {
		ts.WithClaimsDecorator(d)
	}
	return s
}

// WithTokenService replaces the token service
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithClock overrides the time source
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// TokenValidator returns the validator used for access tokens
func (s *Auther) TokenValidator() TokenValidator {
	if s.tokenValidator != nil {
		return s.tokenValidator
	}
	return s.tokenService
}

// Login verifies credentials and issues an access token plus a refresh
// credential. Extended sessions get a longer refresh lifetime.
func (s *Auther) Login(ctx context.Context, payload LoginPayload) (*TokenPair, error) {
	identifier := payload.GetIdentifier()

	identity, err := s.provider.VerifyIdentity(ctx, identifier, payload.GetPassword())
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata:  map[string]any{"identifier": identifier, "error": err.Error()},
		})
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata:  map[string]any{"identifier": identifier, "error": ErrIdentityNotFound.Error()},
		})
		return nil, ErrIdentityNotFound
	}

	ttl := s.refreshTTL
	if payload.GetExtendedSession() && s.extendedTTL > 0 {
		ttl = s.extendedTTL
	}

	pair, err := s.issue(ctx, identity, ttl, "")
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     actorFromIdentity(identity),
			UserID:    identity.ID(),
			Metadata:  map[string]any{"identifier": identifier, "error": err.Error()},
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actorFromIdentity(identity),
		UserID:    identity.ID(),
		Metadata:  map[string]any{"identifier": identifier, "extended": payload.GetExtendedSession()},
	})

	return pair, nil
}

// Refresh exchanges a refresh credential for a new token pair. The presented
// credential is revoked. Presenting an already revoked credential revokes
// every credential of that user.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenMissing
	}

	claims, err := s.tokenService.ValidateRefresh(refreshToken)
	if err != nil {
		s.logger.Debug("Refresh rejected credential", "error", err)
		s.emitAuthEvent(ctx, ActivityEvent{
			EventType: ActivityEventRefreshFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata:  map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	userID := claims.UserID()
	now := s.now()

	record, err := s.refreshStore.Get(ctx, claims.TokenID())
	if err != nil {
		if hasTextCode(err, TextCodeRefreshRevoked) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token")
	}

	if record.RevokedAt != nil {
		return nil, s.refreshReused(ctx, userID, record.ID, now)
	}

	if !record.Active(now) {
		return nil, ErrTokenExpired
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, userID)
	if err != nil {
		s.logger.Error("Refresh find identity error", "error", err)
		if errors.IsNotFound(err) || hasTextCode(err, TextCodeIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	// the conditional revoke decides between concurrent exchanges of one credential
	revoked, err := s.refreshStore.Revoke(ctx, record.ID, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token")
	}
	if !revoked {
		return nil, s.refreshReused(ctx, userID, record.ID, now)
	}

	pair, err := s.issue(ctx, identity, record.ExpiresAt.Sub(record.CreatedAt), record.ID)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEvent{
		EventType: ActivityEventRefreshSuccess,
		Actor:     actorFromIdentity(identity),
		UserID:    identity.ID(),
		TokenID:   record.ID,
	})

	return pair, nil
}

// refreshReused ends every session of the user after a revoked credential
// was presented again
func (s *Auther) refreshReused(ctx context.Context, userID, tokenID string, now time.Time) error {
	s.logger.Warn("Refresh credential reused, revoking sessions", "token_id", tokenID, "user_id", userID)
	if err := s.refreshStore.RevokeUser(ctx, userID, now); err != nil {
		s.logger.Error("Refresh failed to revoke token family", "error", err)
	}
	s.emitAuthEvent(ctx, ActivityEvent{
		EventType: ActivityEventRefreshReuse,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		TokenID:   tokenID,
	})
	return ErrRefreshTokenReused
}

// Logout revokes the refresh credential. Invalid credentials are ignored,
// logging out always succeeds from the caller's point of view.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.tokenService.ValidateRefresh(refreshToken)
	if err != nil {
		s.logger.Debug("Logout ignoring invalid refresh credential", "error", err)
		return nil
	}

	if _, err := s.refreshStore.Revoke(ctx, claims.TokenID(), s.now()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token")
	}

	s.emitAuthEvent(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorRef{ID: claims.UserID(), Type: "user"},
		UserID:    claims.UserID(),
		TokenID:   claims.TokenID(),
	})

	return nil
}

// Me returns the profile of the identity the access token belongs to
func (s *Auther) Me(ctx context.Context, claims AuthClaims) (*Profile, error) {
	if claims == nil {
		return nil, ErrUnauthenticated
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("Me find identity error", "error", err)
		if errors.IsNotFound(err) || hasTextCode(err, TextCodeIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	if user, ok := UserFromIdentity(identity); ok {
		return ProfileFromUser(user), nil
	}

	return &Profile{
		ID:          identity.ID(),
		Name:        identity.Username(),
		Username:    identity.Username(),
		Email:       identity.Email(),
		Role:        identity.Role(),
		Permissions: identityPermissions(identity),
	}, nil
}

// ValidateAccess checks an access token using the configured validator
func (s *Auther) ValidateAccess(token string) (AuthClaims, error) {
	return s.TokenValidator().Validate(token)
}

func (s *Auther) issue(ctx context.Context, identity Identity, ttl time.Duration, parentID string) (*TokenPair, error) {
	access, expiresAt, err := s.tokenService.GenerateAccess(identity)
	if err != nil {
		return nil, err
	}

	refresh, claims, err := s.tokenService.GenerateRefresh(identity, ttl)
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		ID:        claims.TokenID(),
		UserID:    identity.ID(),
		ParentID:  parentID,
		ExpiresAt: claims.Expires(),
		CreatedAt: claims.IssuedAt(),
	}

	if err := s.refreshStore.Save(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh token")
	}

	return &TokenPair{
		AccessToken:      access,
		TokenType:        "bearer",
		ExpiresIn:        int(s.tokenService.AccessTTL().Seconds()),
		ExpiresAt:        expiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, event ActivityEvent) {
	sink := normalizeActivitySink(s.activitySink)

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}
