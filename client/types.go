package client

import (
	"slices"

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

// Profile is the authenticated user as returned by GET /auth/me
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

// Can reports whether the profile carries the permission
func (p *Profile) Can(permission string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Permissions, permission)
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("client"),
		glog.WithAddSource(false),
	).GetLogger("client")
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

