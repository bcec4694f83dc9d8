package client

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MaxRedirects bounds how many guard redirects one navigation may follow
const MaxRedirects = 5

// Router applies the Guard to every navigation and remembers where the
// application is
type Router struct {
	mu       sync.Mutex
	session  SessionView
	table    RouteTable
	current  Location
	history  []Location
	onChange []func(Location)
	logger   Logger
}

type RouterOption func(*Router)

func WithRouterLogger(l Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// OnNavigate registers fn to be called with every committed location
func OnNavigate(fn func(Location)) RouterOption {
	return func(r *Router) {
		if fn != nil {
			r.onChange = append(r.onChange, fn)
		}
	}
}

func NewRouter(session SessionView, table RouteTable, opts ...RouterOption) *Router {
	if table == nil {
		table = DefaultRoutes()
	}

	r := &Router{
		session: session,
		table:   table,
		logger:  defaultLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve runs the guard for the target and follows its redirects without
// moving the router
func (r *Router) Resolve(name string, params map[string]string) (Location, error) {
	to := Location{Name: name, Params: maps.Clone(params)}

	for range MaxRedirects + 1 {
		if _, ok := r.table[to.Name]; !ok {
			return Location{}, ErrUnknownRoute.Clone().
				WithMetadata(map[string]any{"route": to.Name})
		}

		decision := Guard(r.session, to, r.table)
		if decision.Allow {
			return to, nil
		}
		to = *decision.Redirect
	}

	return Location{}, ErrRedirectLoop.Clone().
		WithMetadata(map[string]any{"route": name})
}

// Push navigates to the named route, landing wherever the guard sends it
func (r *Router) Push(ctx context.Context, name string, params map[string]string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}

	to, err := r.Resolve(name, params)
	if err != nil {
		return Location{}, err
	}

	r.mu.Lock()
	r.current = to
	r.history = append(r.history, to)
	listeners := r.onChange
	r.mu.Unlock()

	if to.Name != name {
		r.logger.Debug("navigation redirected", "from", name, "to", to.Name)
	}

	for _, fn := range listeners {
		fn(to)
	}

	return to, nil
}

// PushPath navigates to the route matching path
func (r *Router) PushPath(ctx context.Context, path string) (Location, error) {
	loc, ok := r.table.Lookup(path)
	if !ok {
		return Location{}, ErrUnknownRoute.Clone().
			WithMetadata(map[string]any{"path": path})
	}
	return r.Push(ctx, loc.Name, loc.Params)
}

// Navigate implements Navigator
func (r *Router) Navigate(ctx context.Context, name string, params map[string]string) error {
	_, err := r.Push(ctx, name, params)
	return err
}

func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Router) History() []Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// Path renders the path of the current location
func (r *Router) Path() string {
	path, _ := r.table.Path(r.Current())
	return path
}
