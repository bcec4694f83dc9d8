package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-hr-auth/client"
)

const cookieKey = "cookies"

// session bundles the client components for one CLI invocation
type session struct {
	manager  *client.SessionManager
	pipeline *client.Pipeline
	router   *client.Router
	notifier *client.Notifier
	jar      *client.PersistentJar
	stop     func()
}

// openSession wires the client for one command and resumes the persisted
// session. An expired access token is exchanged with the refresh cookie.
func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	logger := newLogger(opts.debug).GetLogger("client")

	storage, err := client.NewFileStorage(opts.stateDir)
	if err != nil {
		return nil, err
	}

	store, err := client.NewTokenStore(storage)
	if err != nil {
		return nil, err
	}

	jar, err := client.NewPersistentJar(storage, cookieKey)
	if err != nil {
		return nil, err
	}

	identity, err := client.NewHTTPIdentity(opts.apiURL,
		client.WithCookieJar(jar),
		client.WithIdentityLogger(logger),
		client.WithIdentityDebug(opts.debug),
	)
	if err != nil {
		return nil, err
	}

	manager := client.NewSessionManager(store, identity,
		client.WithSessionLogger(logger),
		client.OnStateChange(func(s client.State) {
			logger.Debug("session state", "state", s.String())
		}),
	)

	notifier := client.NewNotifier()
	stop := printNotifications(notifier)

	router := client.NewRouter(manager, client.DefaultRoutes(), client.WithRouterLogger(logger))

	pipeline := client.NewPipeline(opts.apiURL, manager,
		client.WithNotifier(notifier),
		client.WithNavigator(router),
		client.WithPipelineLogger(logger),
		client.WithPipelineDebug(opts.debug),
	)

	if err := resume(ctx, manager); err != nil {
		logger.Warn("resume session", "error", err)
	}

	return &session{
		manager:  manager,
		pipeline: pipeline,
		router:   router,
		notifier: notifier,
		jar:      jar,
		stop:     stop,
	}, nil
}

// printNotifications echoes every new notification to stderr
func printNotifications(n *client.Notifier) func() {
	var mu sync.Mutex
	seen := map[string]bool{}

	return n.OnChange(func(list []client.Notification) {
		mu.Lock()
		defer mu.Unlock()
		for _, item := range list {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			fmt.Fprintf(os.Stderr, "[%s] %s\n", item.Severity, item.Message)
		}
	})
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var passwordFile string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login <email or username>",
		Short: "Start a session against the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.stop()

			password, err := readPassword(passwordFile, false)
			if err != nil {
				return err
			}

			if err := s.manager.Login(cmd.Context(), args[0], password, remember); err != nil {
				if msg := client.ServerMessage(err); msg != "" {
					return fmt.Errorf("login failed: %s", msg)
				}
				return fmt.Errorf("login failed: %w", err)
			}

			user := s.manager.User()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s <%s> (%s)\n", user.Name, user.Email, user.Role)

			landing, err := s.router.Push(cmd.Context(), client.RouteDashboard, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "landing page: %s\n", routePath(landing))

			return nil
		},
	}

	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from a file, - prompts")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the session for the extended period")

	return cmd
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the profile of the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.stop()

			if !s.manager.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in, use 'hrauth login'")
				return nil
			}

			out := struct {
				Data *client.Profile `json:"data"`
			}{}
			if err := s.pipeline.GetJSON(cmd.Context(), "/auth/me", &out); err != nil {
				if client.IsSessionExpired(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "session expired, use 'hrauth login'")
					return nil
				}
				return err
			}
			s.manager.UpdateUser(out.Data)

			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(out.Data))
			return nil
		},
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.stop()

			s.manager.Logout(cmd.Context())

			if err := s.jar.Clear(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "get <path>",
		Short:   "GET an API path with the session token",
		Example: "  hrauth get /api/claims",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.stop()

			var out any
			if err := s.pipeline.GetJSON(cmd.Context(), args[0], &out); err != nil {
				if fields := client.ValidationErrors(err); len(fields) > 0 {
					for field, errs := range fields {
						fmt.Fprintf(os.Stderr, "  %s: %s\n", field, strings.Join(errs, ", "))
					}
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(out))
			return nil
		},
	}
}

func resume(ctx context.Context, manager *client.SessionManager) error {
	err := manager.Resume(ctx)
	if err == nil || !client.IsUnauthorized(err) {
		return err
	}
	if _, err := manager.RefreshToken(ctx); err != nil {
		// no usable refresh cookie, stay anonymous
		return nil
	}
	return manager.Resume(ctx)
}

func routePath(loc client.Location) string {
	path, ok := client.DefaultRoutes().Path(loc)
	if !ok {
		return loc.Name
	}
	return path
}
