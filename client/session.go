package client

import (
	"context"
	"sync"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// SessionView is the read side of a session used by the route guard
type SessionView interface {
	IsAuthenticated() bool
	User() *Profile
}

// SessionManager owns the token store. It is the only component that
// writes the token or the profile.
type SessionManager struct {
	mu        sync.Mutex
	state     State
	store     *TokenStore
	identity  IdentityService
	logger    Logger
	listeners []func(State)
}

type SessionOption func(*SessionManager)

func WithSessionLogger(l Logger) SessionOption {
	return func(s *SessionManager) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnStateChange registers fn to be called after every transition
func OnStateChange(fn func(State)) SessionOption {
	return func(s *SessionManager) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

func NewSessionManager(store *TokenStore, identity IdentityService, opts ...SessionOption) *SessionManager {
	s := &SessionManager{
		state:    StateAnonymous,
		store:    store,
		identity: identity,
		logger:   defaultLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Attempt loads the profile for token. An empty token does nothing. A 401
// clears the stored token, any other failure leaves it in place.
func (s *SessionManager) Attempt(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	s.setState(StateAuthenticating)

	profile, err := s.identity.Me(ctx, token)
	if err != nil {
		if IsUnauthorized(err) {
			s.clear()
		}
		s.setState(StateAnonymous)
		return err
	}

	s.persist(token)
	s.store.SetUser(profile)
	s.setState(StateAuthenticated)

	return nil
}

// Resume attempts the token persisted by a previous run
func (s *SessionManager) Resume(ctx context.Context) error {
	token, _ := s.store.Get()
	return s.Attempt(ctx, token)
}

func (s *SessionManager) Login(ctx context.Context, identifier, password string, remember bool) error {
	token, err := s.identity.Login(ctx, identifier, password, remember)
	if err != nil {
		return err
	}
	return s.Attempt(ctx, token)
}

// Logout always ends with an anonymous session. Server failures are only
// logged.
func (s *SessionManager) Logout(ctx context.Context) {
	if token, ok := s.store.Get(); ok {
		if err := s.identity.Logout(ctx, token); err != nil {
			s.logger.Warn("logout request failed", "error", err)
		}
	}

	s.clear()
	s.setState(StateAnonymous)
}

// RefreshToken exchanges the refresh credential for a new access token.
// On failure the session is cleared and the error reports SESSION_EXPIRED.
func (s *SessionManager) RefreshToken(ctx context.Context) (string, error) {
	s.setState(StateRefreshing)

	token, err := s.identity.Refresh(ctx)
	if err != nil {
		s.logger.Debug("token refresh failed", "error", err)
		s.clear()
		s.setState(StateAnonymous)
		return "", newSessionExpiredError(err)
	}

	s.persist(token)
	s.setState(StateAuthenticated)

	return token, nil
}

func (s *SessionManager) UpdateUser(user *Profile) {
	s.store.SetUser(user)
}

// IsAuthenticated reports whether a token is held. The token may still be
// rejected by the server.
func (s *SessionManager) IsAuthenticated() bool {
	_, ok := s.store.Get()
	return ok
}

func (s *SessionManager) User() *Profile {
	return s.store.User()
}

func (s *SessionManager) Token() string {
	token, _ := s.store.Get()
	return token
}

func (s *SessionManager) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SessionManager) persist(token string) {
	if err := s.store.Set(token); err != nil {
		s.logger.Error("failed to persist token", "error", err)
	}
}

func (s *SessionManager) clear() {
	s.persist("")
	s.store.SetUser(nil)
}

func (s *SessionManager) setState(state State) {
	s.mu.Lock()
	s.state = state
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
