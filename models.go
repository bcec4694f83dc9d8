package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model. Only the columns the session lifecycle needs are
// mapped, collaborator records live in the HR API.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name           string     `bun:"name,notnull" json:"name,omitempty"`
	Username       string     `bun:"username,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	ImagePath      string     `bun:"image_path" json:"image_path,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// RefreshToken tracks an issued refresh credential by its jti
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            string     `bun:"id,pk" json:"id"`
	UserID        string     `bun:"user_id,notnull" json:"user_id"`
	ParentID      string     `bun:"parent_id" json:"parent_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Active reports whether the token can still be exchanged
func (r *RefreshToken) Active(now time.Time) bool {
	return r != nil && r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Profile is the public representation returned by /auth/me
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone_number,omitempty"`
	ImagePath   string   `json:"image_path,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// ProfileFromUser builds the public profile for a user
func ProfileFromUser(u *User) *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:          u.ID.String(),
		Name:        u.Name,
		Username:    u.Username,
		Email:       u.Email,
		Phone:       u.Phone,
		ImagePath:   u.ImagePath,
		Role:        string(u.Role),
		Permissions: u.Role.Permissions(),
	}
}
