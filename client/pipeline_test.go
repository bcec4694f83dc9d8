package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiServer accepts a single valid token on /api routes and hands out that
// token from /auth/refresh
type apiServer struct {
	*httptest.Server

	validToken     string
	issuedToken    string
	rejectAll      bool
	refreshStatus  int
	refreshCalls   atomic.Int32
	refreshRelease chan struct{}

	mu      sync.Mutex
	headers map[string][]string
	bodies  []string
}

type serverOption func(*apiServer)

func newAPIServer(t *testing.T, validToken string, opts ...serverOption) *apiServer {
	t.Helper()

	s := &apiServer{
		validToken:    validToken,
		issuedToken:   validToken,
		refreshStatus: http.StatusOK,
		headers:       map[string][]string{},
	}

	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if s.refreshRelease != nil {
			<-s.refreshRelease
		}
		w.Header().Set("Content-Type", "application/json")
		if s.refreshStatus != http.StatusOK {
			w.WriteHeader(s.refreshStatus)
			_, _ = io.WriteString(w, `{"message":"Invalid or expired token"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": s.issuedToken,
			"token_type":   "Bearer",
			"expires_in":   900,
		})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.headers[r.URL.Path] = append(s.headers[r.URL.Path], auth)
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/forbidden"):
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"message":"This action is unauthorized."}`)
		case strings.HasSuffix(r.URL.Path, "/invalid"):
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"The given data was invalid.","errors":{"email":["is required"]}}`)
		case s.rejectAll || auth != "Bearer "+s.validToken:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Unauthenticated."}`)
		default:
			_, _ = io.WriteString(w, `{"ok":true}`)
		}
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

func (s *apiServer) authHeaders(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headers[path]...)
}

type pipelineFixture struct {
	server    *apiServer
	session   *SessionManager
	pipeline  *Pipeline
	notifier  *recordingNotifier
	navigator *recordingNavigator
	storage   Storage
}

func newPipelineFixture(t *testing.T, storedToken, validToken string, opts ...serverOption) *pipelineFixture {
	t.Helper()

	server := newAPIServer(t, validToken, opts...)

	identity, err := NewHTTPIdentity(server.URL, WithIdentityLogger(NopLogger{}))
	require.NoError(t, err)

	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(TokenKey, storedToken))
	store, err := NewTokenStore(storage)
	require.NoError(t, err)

	session := NewSessionManager(store, identity, WithSessionLogger(NopLogger{}))
	notifier := &recordingNotifier{}
	navigator := &recordingNavigator{}

	pipeline := NewPipeline(server.URL, session,
		WithNotifier(notifier),
		WithNavigator(navigator),
		WithPipelineLogger(NopLogger{}),
	)

	return &pipelineFixture{
		server:    server,
		session:   session,
		pipeline:  pipeline,
		notifier:  notifier,
		navigator: navigator,
		storage:   storage,
	}
}

func TestPipelineAttachesBearer(t *testing.T) {
	f := newPipelineFixture(t, "T1", "T1")

	out := map[string]bool{}
	require.NoError(t, f.pipeline.GetJSON(context.Background(), "/api/items", &out))

	assert.True(t, out["ok"])
	assert.Equal(t, []string{"Bearer T1"}, f.server.authHeaders("/api/items"))
	assert.Equal(t, int32(0), f.server.refreshCalls.Load())
	assert.Empty(t, f.notifier.Messages())
}

func TestPipelineRefreshesAndRetriesOnce(t *testing.T) {
	f := newPipelineFixture(t, "T1", "T2")

	out := map[string]bool{}
	require.NoError(t, f.pipeline.PostJSON(context.Background(), "/api/items", map[string]string{"name": "x"}, &out))

	assert.True(t, out["ok"])
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, f.server.authHeaders("/api/items"))
	assert.Equal(t, int32(1), f.server.refreshCalls.Load())
	assert.Equal(t, "T2", f.session.Token())

	// the body is replayed
	f.server.mu.Lock()
	assert.Equal(t, []string{`{"name":"x"}`, `{"name":"x"}`}, f.server.bodies)
	f.server.mu.Unlock()

	v, _, _ := f.storage.Get(TokenKey)
	assert.Equal(t, "T2", v)
	assert.Empty(t, f.notifier.Messages())
}

func TestPipelineRetriedRequestIsNotRefreshedAgain(t *testing.T) {
	f := newPipelineFixture(t, "T1", "T2", func(s *apiServer) {
		s.rejectAll = true
	})

	err := f.pipeline.GetJSON(context.Background(), "/api/items", nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, f.server.authHeaders("/api/items"))
	assert.Equal(t, int32(1), f.server.refreshCalls.Load())
	assert.Equal(t, []string{"Unauthenticated."}, f.notifier.Messages())
	assert.Empty(t, f.navigator.Routes())
}

func TestPipelineRefreshFailureExpiresSession(t *testing.T) {
	f := newPipelineFixture(t, "T1", "T2", func(s *apiServer) {
		s.refreshStatus = http.StatusUnauthorized
	})

	err := f.pipeline.GetJSON(context.Background(), "/api/items", nil)
	require.Error(t, err)
	assert.True(t, IsSessionExpired(err))

	assert.False(t, f.session.IsAuthenticated())
	_, ok, _ := f.storage.Get(TokenKey)
	assert.False(t, ok)

	assert.Equal(t, []string{NoticeSessionExpired}, f.notifier.Messages())
	assert.Equal(t, []string{RouteLogin}, f.navigator.Routes())
	assert.Equal(t, []string{"Bearer T1"}, f.server.authHeaders("/api/items"))
}

func TestPipelineConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 8

	release := make(chan struct{})
	f := newPipelineFixture(t, "T1", "T2", func(s *apiServer) {
		s.refreshRelease = release
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.pipeline.GetJSON(context.Background(), "/api/items", nil)
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.pipeline.queued() == n-1
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int32(1), f.server.refreshCalls.Load())

	headers := f.server.authHeaders("/api/items")
	require.Len(t, headers, 2*n)

	var t1, t2 int
	for _, h := range headers {
		switch h {
		case "Bearer T1":
			t1++
		case "Bearer T2":
			t2++
		}
	}
	assert.Equal(t, n, t1)
	assert.Equal(t, n, t2)
	assert.Empty(t, f.notifier.Messages())
}

func TestPipelineConcurrentRefreshFailureRejectsAll(t *testing.T) {
	const n = 4

	release := make(chan struct{})
	f := newPipelineFixture(t, "T1", "T2", func(s *apiServer) {
		s.refreshStatus = http.StatusUnauthorized
		s.refreshRelease = release
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.pipeline.GetJSON(context.Background(), "/api/items", nil)
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.pipeline.queued() == n-1
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, IsSessionExpired(err))
	}

	assert.Equal(t, int32(1), f.server.refreshCalls.Load())
	assert.Equal(t, []string{NoticeSessionExpired}, f.notifier.Messages())
	assert.Equal(t, []string{RouteLogin}, f.navigator.Routes())
	assert.Len(t, f.server.authHeaders("/api/items"), n)
}

func TestPipelineNotices(t *testing.T) {
	f := newPipelineFixture(t, "T1", "T1")
	ctx := context.Background()

	err := f.pipeline.GetJSON(ctx, "/api/forbidden", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, StatusCode(err))

	err = f.pipeline.PostJSON(ctx, "/api/invalid", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, map[string][]string{"email": {"is required"}}, ValidationErrors(err))

	err = f.pipeline.GetJSON(ctx, "/missing", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	assert.Equal(t, []string{NoticeForbidden, NoticeNotFound}, f.notifier.Messages())
	assert.Equal(t, int32(0), f.server.refreshCalls.Load())
}

func TestPipelineNetworkError(t *testing.T) {
	f := newPipelineFixture(t, "T1", "T1")
	f.server.Close()

	err := f.pipeline.GetJSON(context.Background(), "/api/items", nil)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, []string{NoticeNetworkError}, f.notifier.Messages())
}

func TestPipelineWaiterHonoursContext(t *testing.T) {
	release := make(chan struct{})
	f := newPipelineFixture(t, "T1", "T2", func(s *apiServer) {
		s.refreshRelease = release
	})
	defer close(release)

	go func() {
		_ = f.pipeline.GetJSON(context.Background(), "/api/first", nil)
	}()

	require.Eventually(t, func() bool {
		return f.server.refreshCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.pipeline.GetJSON(ctx, "/api/second", nil)
	}()

	require.Eventually(t, func() bool {
		return f.pipeline.queued() == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not return after cancel")
	}
}

func TestPipelineURL(t *testing.T) {
	p := NewPipeline("http://localhost:8080/", nil)

	assert.Equal(t, "http://localhost:8080/api/items", p.URL("/api/items"))
	assert.Equal(t, "http://localhost:8080/api/items", p.URL("api/items"))
	assert.Equal(t, "https://other/x", p.URL("https://other/x"))
}
