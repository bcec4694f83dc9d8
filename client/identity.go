package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// IdentityService talks to the auth endpoints of the API
type IdentityService interface {
	Me(ctx context.Context, token string) (*Profile, error)
	Login(ctx context.Context, identifier, password string, remember bool) (string, error)
	Logout(ctx context.Context, token string) error
	// Refresh exchanges the refresh credential held by the transport for a
	// new access token
	Refresh(ctx context.Context) (string, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type meResponse struct {
	Data *Profile `json:"data"`
}

// Paths of the auth endpoints relative to the base URL
type IdentityRoutes struct {
	Login   string
	Logout  string
	Refresh string
	Me      string
}

func DefaultIdentityRoutes() IdentityRoutes {
	return IdentityRoutes{
		Login:   "/auth/login",
		Logout:  "/auth/logout",
		Refresh: "/auth/refresh",
		Me:      "/auth/me",
	}
}

// HTTPIdentity implements IdentityService over net/http. It keeps its own
// client so auth calls never go through the pipeline's 401 handling.
type HTTPIdentity struct {
	baseURL string
	client  *http.Client
	routes  IdentityRoutes
	logger  Logger
	debug   bool
}

type IdentityOption func(*HTTPIdentity)

func WithHTTPClient(c *http.Client) IdentityOption {
	return func(h *HTTPIdentity) {
		if c != nil {
			h.client = c
		}
	}
}

// WithCookieJar sets the jar that carries the refresh cookie
func WithCookieJar(jar http.CookieJar) IdentityOption {
	return func(h *HTTPIdentity) {
		h.client.Jar = jar
	}
}

func WithIdentityRoutes(r IdentityRoutes) IdentityOption {
	return func(h *HTTPIdentity) {
		h.routes = r
	}
}

func WithIdentityLogger(l Logger) IdentityOption {
	return func(h *HTTPIdentity) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithIdentityDebug(debug bool) IdentityOption {
	return func(h *HTTPIdentity) {
		h.debug = debug
	}
}

func NewHTTPIdentity(baseURL string, opts ...IdentityOption) (*HTTPIdentity, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid base url").
			WithMetadata(map[string]any{"base_url": baseURL})
	}

	jar, _ := cookiejar.New(nil)

	h := &HTTPIdentity{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		routes: DefaultIdentityRoutes(),
		logger: defaultLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

func (h *HTTPIdentity) Me(ctx context.Context, token string) (*Profile, error) {
	out := &meResponse{}
	if err := h.call(ctx, http.MethodGet, h.routes.Me, token, nil, out); err != nil {
		return nil, err
	}

	if out.Data == nil {
		return nil, errors.New("profile missing from response", errors.CategoryInternal).
			WithTextCode("INVALID_RESPONSE")
	}

	if h.debug {
		h.logger.Debug("me", "profile", print.MaybePrettyJSON(out.Data))
	}

	return out.Data, nil
}

func (h *HTTPIdentity) Login(ctx context.Context, identifier, password string, remember bool) (string, error) {
	in := map[string]any{
		"identifier":  identifier,
		"password":    password,
		"remember_me": remember,
	}

	out := &tokenResponse{}
	if err := h.call(ctx, http.MethodPost, h.routes.Login, "", in, out); err != nil {
		return "", err
	}

	return accessToken(out)
}

func (h *HTTPIdentity) Logout(ctx context.Context, token string) error {
	return h.call(ctx, http.MethodPost, h.routes.Logout, token, nil, nil)
}

func (h *HTTPIdentity) Refresh(ctx context.Context) (string, error) {
	out := &tokenResponse{}
	if err := h.call(ctx, http.MethodPost, h.routes.Refresh, "", nil, out); err != nil {
		return "", err
	}

	return accessToken(out)
}

func (h *HTTPIdentity) call(ctx context.Context, method, path, token string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to encode request body")
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newNetworkError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return newHTTPError(res)
	}
	defer res.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to decode response").
			WithTextCode("INVALID_RESPONSE")
	}

	return nil
}

func accessToken(out *tokenResponse) (string, error) {
	if out.AccessToken == "" {
		return "", errors.New("access token missing from response", errors.CategoryAuth).
			WithTextCode("INVALID_RESPONSE")
	}
	return out.AccessToken, nil
}

// PersistentJar is a cookie jar that writes its cookies to Storage so the
// refresh cookie survives process restarts
type PersistentJar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	storage Storage
	key     string
	records map[string]cookieRecord
	now     func() time.Time
}

type cookieRecord struct {
	URL    string       `json:"url"`
	Cookie *http.Cookie `json:"cookie"`
}

// NewPersistentJar loads the cookies stored under key
func NewPersistentJar(storage Storage, key string) (*PersistentJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create cookie jar")
	}

	p := &PersistentJar{
		jar:     jar,
		storage: storage,
		key:     key,
		records: map[string]cookieRecord{},
		now:     time.Now,
	}

	raw, ok, err := storage.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return p, nil
	}

	var records []cookieRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		// unreadable cookies are dropped, the user logs in again
		return p, nil
	}

	for _, rec := range records {
		u, err := url.Parse(rec.URL)
		if err != nil || rec.Cookie == nil || p.expired(rec.Cookie) {
			continue
		}
		rec.Cookie.MaxAge = 0
		p.jar.SetCookies(u, []*http.Cookie{rec.Cookie})
		p.records[recordKey(u, rec.Cookie)] = rec
	}

	return p, nil
}

func (p *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.jar.SetCookies(u, cookies)

	for _, c := range cookies {
		k := recordKey(u, c)
		if c.MaxAge < 0 || c.Value == "" || p.expired(c) {
			delete(p.records, k)
			continue
		}

		stored := *c
		if stored.MaxAge > 0 {
			stored.Expires = p.now().Add(time.Duration(stored.MaxAge) * time.Second)
			stored.MaxAge = 0
		}
		p.records[k] = cookieRecord{URL: originOf(u), Cookie: &stored}
	}

	_ = p.flush()
}

func (p *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jar.Cookies(u)
}

// Clear forgets every cookie
func (p *PersistentJar) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to reset cookie jar")
	}
	p.jar = jar
	p.records = map[string]cookieRecord{}
	return p.storage.Delete(p.key)
}

func (p *PersistentJar) flush() error {
	records := make([]cookieRecord, 0, len(p.records))
	for _, rec := range p.records {
		records = append(records, rec)
	}

	raw, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode cookies")
	}
	return p.storage.Set(p.key, string(raw))
}

func (p *PersistentJar) expired(c *http.Cookie) bool {
	return !c.Expires.IsZero() && c.Expires.Before(p.now())
}

func recordKey(u *url.URL, c *http.Cookie) string {
	return u.Hostname() + "|" + c.Path + "|" + c.Name
}

func originOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}
