package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

// RefreshTokenStore keeps track of issued refresh credentials so they can be
// rotated and revoked. Get returns ErrRefreshTokenRevoked for unknown ids.
// Revoke reports false when the credential was unknown or already revoked.
type RefreshTokenStore interface {
	Save(ctx context.Context, token *RefreshToken) error
	Get(ctx context.Context, id string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeUser(ctx context.Context, userID string, at time.Time) error
}

// MemoryRefreshStore is a process local RefreshTokenStore
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]RefreshToken
}

// NewMemoryRefreshStore returns an empty store
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: map[string]RefreshToken{}}
}

func (s *MemoryRefreshStore) Save(_ context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = *token
	return nil
}

func (s *MemoryRefreshStore) Get(_ context.Context, id string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, ErrRefreshTokenRevoked
	}
	return &t, nil
}

func (s *MemoryRefreshStore) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	s.tokens[id] = t
	return true, nil
}

func (s *MemoryRefreshStore) RevokeUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tokens {
		if t.UserID != userID || t.RevokedAt != nil {
			continue
		}
		t.RevokedAt = &at
		s.tokens[id] = t
	}
	return nil
}

// BunRefreshStore persists refresh credentials in the refresh_tokens table
type BunRefreshStore struct {
	db bun.IDB
}

// NewBunRefreshStore returns a store backed by db
func NewBunRefreshStore(db bun.IDB) *BunRefreshStore {
	return &BunRefreshStore{db: db}
}

func (s *BunRefreshStore) Save(ctx context.Context, token *RefreshToken) error {
	_, err := s.db.NewInsert().Model(token).Exec(ctx)
	return err
}

func (s *BunRefreshStore) Get(ctx context.Context, id string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenRevoked
		}
		return nil, err
	}
	return record, nil
}

func (s *BunRefreshStore) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", at).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *BunRefreshStore) RevokeUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", at).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	return err
}
