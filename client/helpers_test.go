package client

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

func httpError(status int, body string) error {
	return newHTTPError(&http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	})
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Error(message string, _ ...time.Duration) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return ""
}

func (r *recordingNotifier) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (r *recordingNavigator) Navigate(_ context.Context, name string, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, name)
	return nil
}

func (r *recordingNavigator) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

type fakeIdentity struct {
	mu sync.Mutex

	profile    *Profile
	meErr      error
	meCalls    int
	meTokens   []string
	loginToken string
	loginErr   error

	refreshToken string
	refreshErr   error
	refreshCalls int

	logoutErr   error
	logoutCalls int
}

func (f *fakeIdentity) Me(_ context.Context, token string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	f.meTokens = append(f.meTokens, token)
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.profile, nil
}

func (f *fakeIdentity) Login(_ context.Context, _, _ string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginToken, f.loginErr
}

func (f *fakeIdentity) Logout(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeIdentity) Refresh(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshToken, f.refreshErr
}

type staticView struct {
	token string
	user  *Profile
}

func (s staticView) IsAuthenticated() bool { return s.token != "" }
func (s staticView) User() *Profile        { return s.user }
