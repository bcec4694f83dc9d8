package client

import (
	"sync"
)

// TokenKey is the storage key of the persisted bearer token
const TokenKey = "token"

// TokenStore holds the current bearer token and user profile. Every Set is
// written through to the Storage. Values are not validated.
type TokenStore struct {
	mu      sync.RWMutex
	storage Storage
	token   string
	user    *Profile
}

// NewTokenStore loads a previously persisted token from storage
func NewTokenStore(storage Storage) (*TokenStore, error) {
	if storage == nil {
		storage = NewMemoryStorage()
	}

	token, _, err := storage.Get(TokenKey)
	if err != nil {
		return nil, err
	}

	return &TokenStore{storage: storage, token: token}, nil
}

// Get returns the token and whether one is present
func (s *TokenStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the token. An empty token removes the persisted value.
func (s *TokenStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	if token == "" {
		return s.storage.Delete(TokenKey)
	}
	return s.storage.Set(TokenKey, token)
}

// User returns the loaded profile, nil when none is loaded
func (s *TokenStore) User() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser replaces the profile
func (s *TokenStore) SetUser(user *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}
