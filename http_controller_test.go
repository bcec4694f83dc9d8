package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-hr-auth"
	"github.com/goliatone/go-hr-auth/middleware/jwtware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	app  *fiber.App
	sink *recordingSink
}

func newAPIFixture(t *testing.T, opts ...auth.AuthControllerOption) *apiFixture {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()

	repo := auth.NewRepositoryManager(newTestDB(t))
	register := auth.NewRegisterUserHandler(repo)

	for _, msg := range []auth.RegisterUserMessage{
		{Name: "Jane Doe", Email: "jane@example.com", Role: string(auth.RoleHumanResources), Password: "correct horse"},
		{Name: "John Roe", Email: "john@example.com", Role: string(auth.RoleCollaborator), Password: "correct horse"},
	} {
		_, err := register.Execute(ctx, msg)
		require.NoError(t, err)
	}

	sink := &recordingSink{}
	provider := auth.NewUserProvider(repo.Users()).WithLogger(nopLogger{})
	auther := auth.NewAuthenticator(provider, repo.RefreshTokens(), cfg).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)

	app := fiber.New()
	controller := auth.RegisterAuthRoutes(app, append([]auth.AuthControllerOption{
		auth.WithAuther(auther),
		auth.WithControllerConfig(cfg),
		auth.WithControllerLogger(nopLogger{}),
	}, opts...)...)

	api := app.Group("/api", controller.ProtectedRoute())
	api.Get("/collaborators", controller.ProtectedRoute(auth.PermissionViewCollaborators), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": []string{}})
	})

	return &apiFixture{app: app, sink: sink}
}

type apiResponse struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
}

func (f *apiFixture) do(t *testing.T, method, path, body string, headers map[string]string, cookies ...*http.Cookie) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	res, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	out := apiResponse{status: res.StatusCode, body: map[string]any{}, cookies: res.Cookies()}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (r apiResponse) cookie(name string) *http.Cookie {
	for _, c := range r.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func bearer(token string) map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func (f *apiFixture) login(t *testing.T, email string) (string, *http.Cookie) {
	t.Helper()
	res := f.do(t, fiber.MethodPost, "/auth/login", `{"identifier":"`+email+`","password":"correct horse"}`, nil)
	require.Equal(t, fiber.StatusOK, res.status, res.body)

	token, _ := res.body["access_token"].(string)
	require.NotEmpty(t, token)

	cookie := res.cookie("refresh_token")
	require.NotNil(t, cookie)
	return token, cookie
}

func TestAuthControllerLogin(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("success sets the refresh cookie", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/login", `{"identifier":"jane@example.com","password":"correct horse","remember_me":true}`, nil)
		require.Equal(t, fiber.StatusOK, res.status)

		assert.NotEmpty(t, res.body["access_token"])
		assert.Equal(t, "bearer", res.body["token_type"])
		assert.EqualValues(t, 900, res.body["expires_in"])
		assert.NotContains(t, res.body, "refresh_token")

		cookie := res.cookie("refresh_token")
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, "/auth", cookie.Path)
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("validation errors", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/login", `{"identifier":"","password":""}`, nil)
		assert.Equal(t, fiber.StatusUnprocessableEntity, res.status)

		errs, ok := res.body["errors"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, errs, "identifier")
		assert.Contains(t, errs, "password")
	})

	t.Run("bad credentials", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/login", `{"identifier":"jane@example.com","password":"wrong"}`, nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, auth.TextCodeInvalidCredentials, res.body["text_code"])
		assert.Nil(t, res.cookie("refresh_token"))
	})

	t.Run("unknown user", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/login", `{"identifier":"nobody@example.com","password":"correct horse"}`, nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, auth.TextCodeInvalidCredentials, res.body["text_code"])
	})

	t.Run("malformed body", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/login", `{`, nil)
		assert.Equal(t, fiber.StatusBadRequest, res.status)
	})
}

func TestAuthControllerMe(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.login(t, "jane@example.com")

	t.Run("profile of the bearer", func(t *testing.T) {
		res := f.do(t, fiber.MethodGet, "/auth/me", "", bearer(token))
		require.Equal(t, fiber.StatusOK, res.status)

		data, ok := res.body["data"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Jane Doe", data["name"])
		assert.Equal(t, "jane@example.com", data["email"])
		assert.Equal(t, string(auth.RoleHumanResources), data["role"])
		assert.Contains(t, data["permissions"], auth.PermissionViewCollaborators)
	})

	t.Run("missing token", func(t *testing.T) {
		res := f.do(t, fiber.MethodGet, "/auth/me", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, auth.TextCodeUnauthenticatedAccess, res.body["text_code"])
	})

	t.Run("garbage token", func(t *testing.T) {
		res := f.do(t, fiber.MethodGet, "/auth/me", "", bearer("not-a-token"))
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
	})

	t.Run("refresh credential is not a bearer token", func(t *testing.T) {
		_, cookie := f.login(t, "jane@example.com")
		res := f.do(t, fiber.MethodGet, "/auth/me", "", bearer(cookie.Value))
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, auth.TextCodeTokenWrongUse, res.body["text_code"])
	})
}

func TestAuthControllerRefresh(t *testing.T) {
	f := newAPIFixture(t)
	token, cookie := f.login(t, "jane@example.com")

	res := f.do(t, fiber.MethodPost, "/auth/refresh", "", nil, cookie)
	require.Equal(t, fiber.StatusOK, res.status, res.body)

	next, _ := res.body["access_token"].(string)
	assert.NotEmpty(t, next)
	assert.NotEqual(t, token, next)

	rotated := res.cookie("refresh_token")
	require.NotNil(t, rotated)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	me := f.do(t, fiber.MethodGet, "/auth/me", "", bearer(next))
	assert.Equal(t, fiber.StatusOK, me.status)

	t.Run("body fallback", func(t *testing.T) {
		_, other := f.login(t, "john@example.com")
		res := f.do(t, fiber.MethodPost, "/auth/refresh", `{"refresh_token":"`+other.Value+`"}`, nil)
		assert.Equal(t, fiber.StatusOK, res.status)
	})

	t.Run("missing cookie", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/refresh", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, auth.TextCodeRefreshMissing, res.body["text_code"])
	})

	t.Run("reusing a rotated cookie ends every session", func(t *testing.T) {
		res := f.do(t, fiber.MethodPost, "/auth/refresh", "", nil, cookie)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)
		assert.Equal(t, auth.TextCodeRefreshReused, res.body["text_code"])

		cleared := res.cookie("refresh_token")
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)

		res = f.do(t, fiber.MethodPost, "/auth/refresh", "", nil, rotated)
		assert.Equal(t, fiber.StatusUnauthorized, res.status)

		assert.Contains(t, f.sink.types(), auth.ActivityEventRefreshReuse)
	})
}

func TestAuthControllerLogout(t *testing.T) {
	f := newAPIFixture(t)
	_, cookie := f.login(t, "jane@example.com")

	res := f.do(t, fiber.MethodPost, "/auth/logout", "", nil, cookie)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "Successfully logged out", res.body["message"])

	cleared := res.cookie("refresh_token")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	res = f.do(t, fiber.MethodPost, "/auth/refresh", "", nil, cookie)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	// logging out without a session still succeeds
	res = f.do(t, fiber.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, fiber.StatusOK, res.status)
}

func TestAuthControllerPermissions(t *testing.T) {
	f := newAPIFixture(t)

	manager, _ := f.login(t, "jane@example.com")
	collaborator, _ := f.login(t, "john@example.com")

	res := f.do(t, fiber.MethodGet, "/api/collaborators", "", bearer(manager))
	assert.Equal(t, fiber.StatusOK, res.status)

	res = f.do(t, fiber.MethodGet, "/api/collaborators", "", bearer(collaborator))
	assert.Equal(t, fiber.StatusForbidden, res.status)
	assert.Equal(t, auth.TextCodePermissionDenied, res.body["text_code"])
	assert.Equal(t, auth.PermissionViewCollaborators, res.body["permission"])

	res = f.do(t, fiber.MethodGet, "/api/collaborators", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
}

func TestAuthControllerValidationListeners(t *testing.T) {
	var seen []string
	f := newAPIFixture(t, auth.WithValidationListeners(func(c *fiber.Ctx, claims jwtware.AuthClaims) error {
		seen = append(seen, claims.UserID())
		if claims.Role() == string(auth.RoleCollaborator) {
			return auth.ErrUnauthenticated
		}
		return nil
	}))

	manager, _ := f.login(t, "jane@example.com")
	collaborator, _ := f.login(t, "john@example.com")

	res := f.do(t, fiber.MethodGet, "/auth/me", "", bearer(manager))
	assert.Equal(t, fiber.StatusOK, res.status)

	res = f.do(t, fiber.MethodGet, "/auth/me", "", bearer(collaborator))
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	assert.Len(t, seen, 2)
}
