package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// TokenSource is the session as seen by the pipeline
type TokenSource interface {
	Token() string
	RefreshToken(ctx context.Context) (string, error)
}

// Navigator moves the application to a named route
type Navigator interface {
	Navigate(ctx context.Context, name string, params map[string]string) error
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type pendingRequest struct {
	resolve func(token string)
	reject  func(err error)
}

type settlement struct {
	token string
	err   error
}

type retriedKey struct{}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// Pipeline sends API requests with the session token. A 401 triggers one
// token refresh shared by every request that fails while it runs, after
// which each of them is replayed once with the new token.
type Pipeline struct {
	baseURL   string
	client    Doer
	session   TokenSource
	notifier  ErrorNotifier
	navigator Navigator
	logger    Logger
	debug     bool

	mu         sync.Mutex
	refreshing bool
	queue      []pendingRequest
}

type PipelineOption func(*Pipeline)

func WithDoer(d Doer) PipelineOption {
	return func(p *Pipeline) {
		if d != nil {
			p.client = d
		}
	}
}

func WithNotifier(n ErrorNotifier) PipelineOption {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

func WithNavigator(n Navigator) PipelineOption {
	return func(p *Pipeline) {
		if n != nil {
			p.navigator = n
		}
	}
}

func WithPipelineLogger(l Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithPipelineDebug(debug bool) PipelineOption {
	return func(p *Pipeline) {
		p.debug = debug
	}
}

func NewPipeline(baseURL string, session TokenSource, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		session:   session,
		notifier:  nopNotifier{},
		navigator: nopNavigator{},
		logger:    defaultLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Do sends req with the current token. Non 2xx responses are returned as
// errors and the response body is consumed.
func (p *Pipeline) Do(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	res, err := p.do(req, body, p.session.Token())
	if err != nil {
		return p.handle(req, body, err)
	}
	return res, nil
}

func (p *Pipeline) handle(req *http.Request, body []byte, err error) (*http.Response, error) {
	ctx := req.Context()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if StatusCode(err) == http.StatusUnauthorized && !isRetried(ctx) {
		return p.refreshAndRetry(req.Clone(withRetried(ctx)), body)
	}

	p.announce(err)
	return nil, err
}

func (p *Pipeline) refreshAndRetry(req *http.Request, body []byte) (*http.Response, error) {
	ctx := req.Context()

	p.mu.Lock()
	if p.refreshing {
		ch := make(chan settlement, 1)
		p.queue = append(p.queue, pendingRequest{
			resolve: func(token string) { ch <- settlement{token: token} },
			reject:  func(err error) { ch <- settlement{err: err} },
		})
		p.mu.Unlock()

		select {
		case s := <-ch:
			if s.err != nil {
				return nil, s.err
			}
			return p.replay(req, body, s.token)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.refreshing = true
	p.mu.Unlock()

	token, err := p.refresh(ctx)
	if err != nil {
		p.expire(ctx)
		return nil, err
	}

	return p.replay(req, body, token)
}

// refresh runs the token refresh and settles the queue on every exit,
// including a panic in the session
func (p *Pipeline) refresh(ctx context.Context) (token string, err error) {
	err = ErrRefreshAborted
	defer func() {
		p.settle(token, err)
	}()

	token, err = p.session.RefreshToken(context.WithoutCancel(ctx))
	return token, err
}

func (p *Pipeline) settle(token string, err error) {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.refreshing = false
	p.mu.Unlock()

	if p.debug {
		p.logger.Debug("refresh settled", "queued", len(queue), "error", err)
	}

	for _, pending := range queue {
		if err != nil {
			pending.reject(err)
			continue
		}
		pending.resolve(token)
	}
}

func (p *Pipeline) replay(req *http.Request, body []byte, token string) (*http.Response, error) {
	res, err := p.do(req, body, token)
	if err != nil {
		return p.handle(req, body, err)
	}
	return res, nil
}

func (p *Pipeline) expire(ctx context.Context) {
	p.notifier.Error(NoticeSessionExpired)

	if err := p.navigator.Navigate(context.WithoutCancel(ctx), RouteLogin, nil); err != nil {
		p.logger.Error("navigate to login after session expired", "error", err)
	}
}

func (p *Pipeline) announce(err error) {
	status := StatusCode(err)
	if status == 0 && !IsNetworkError(err) {
		return
	}

	if msg := noticeFor(status, ServerMessage(err)); msg != "" {
		p.notifier.Error(msg)
	}
}

func (p *Pipeline) do(req *http.Request, body []byte, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}

	res, err := p.client.Do(out)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, newNetworkError(err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, newHTTPError(res)
	}

	return res, nil
}

func (p *Pipeline) GetJSON(ctx context.Context, path string, out any) error {
	return p.sendJSON(ctx, http.MethodGet, path, nil, out)
}

func (p *Pipeline) PostJSON(ctx context.Context, path string, in, out any) error {
	return p.sendJSON(ctx, http.MethodPost, path, in, out)
}

func (p *Pipeline) PutJSON(ctx context.Context, path string, in, out any) error {
	return p.sendJSON(ctx, http.MethodPut, path, in, out)
}

func (p *Pipeline) DeleteJSON(ctx context.Context, path string, out any) error {
	return p.sendJSON(ctx, http.MethodDelete, path, nil, out)
}

func (p *Pipeline) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, errors.CategoryBadInput, "failed to encode request body")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL(path), body)
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "failed to build request").
			WithMetadata(map[string]any{"path": path})
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := p.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil && err != io.EOF {
		return errors.Wrap(err, errors.CategoryInternal, "failed to decode response").
			WithTextCode("INVALID_RESPONSE")
	}

	if p.debug {
		p.logger.Debug("response", "method", method, "path", path, "body", print.MaybePrettyJSON(out))
	}

	return nil
}

// URL joins path to the base URL
func (p *Pipeline) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return p.baseURL + "/" + strings.TrimLeft(path, "/")
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to read request body")
	}
	return body, nil
}

type nopNotifier struct{}

func (nopNotifier) Error(string, ...time.Duration) string { return "" }

type nopNavigator struct{}

func (nopNavigator) Navigate(context.Context, string, map[string]string) error { return nil }
