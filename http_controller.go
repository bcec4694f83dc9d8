package auth

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-hr-auth/middleware/jwtware"
)

// RegisterAuthRoutes mounts the session endpoints on app and returns the
// controller so callers can reuse its middleware on resource routes
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	group := app.Group(controller.Routes.Prefix)

	group.Post(controller.Routes.Login, controller.LoginPost).Name("auth.login")
	group.Post(controller.Routes.Refresh, controller.RefreshPost).Name("auth.refresh")
	group.Post(controller.Routes.Logout, controller.LogoutPost).Name("auth.logout")
	group.Get(controller.Routes.Me, controller.ProtectedRoute(), controller.MeGet).Name("auth.me")

	return controller
}

type AuthControllerRoutes struct {
	Prefix  string
	Login   string
	Logout  string
	Refresh string
	Me      string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Auther       Authenticator
	Validator    TokenValidator
	Config       Config
	Routes       *AuthControllerRoutes
	ErrorHandler fiber.ErrorHandler
	Listeners    []ValidationListener
}

type AuthControllerOption func(*AuthController) *AuthController

// WithAuther sets the authenticator, and the access token validator when the
// authenticator exposes one
func WithAuther(auther Authenticator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Auther = auther
		if v, ok := auther.(interface{ TokenValidator() TokenValidator }); ok && ac.Validator == nil {
			ac.Validator = v.TokenValidator()
		}
		return ac
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Config = cfg
		return ac
	}
}

func WithTokenValidator(v TokenValidator) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Validator = v
		return ac
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if l != nil {
			ac.Logger = l
		}
		return ac
	}
}

// WithValidationListeners runs the listeners on every validated access token,
// a listener error rejects the request with 401
func WithValidationListeners(listeners ...ValidationListener) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Listeners = append(ac.Listeners, listeners...)
		return ac
	}
}

func WithDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defaultLogger(),
		Routes: &AuthControllerRoutes{
			Prefix:  "/auth",
			Login:   "/login",
			Logout:  "/logout",
			Refresh: "/refresh",
			Me:      "/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Validator == nil {
		panic("Missing TokenValidator in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrHandler
	}

	return c
}

// ProtectedRoute returns a middleware that requires a valid access token and
// optionally a set of permissions
func (a *AuthController) ProtectedRoute(permissions ...string) fiber.Handler {
	validator := a.Validator

	cfg := jwtware.Config{
		TokenValidator: jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
			claims, err := validator.Validate(token)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		ContextKey:          a.Config.GetContextKey(),
		TokenLookup:         a.Config.GetTokenLookup(),
		AuthScheme:          a.Config.GetAuthScheme(),
		ErrorHandler:        a.authErrHandler,
		ContextEnricher:     ContextEnricherAdapter,
		ValidationListeners: a.Listeners,
	}

	if len(permissions) > 0 {
		cfg.SuccessHandler = RequirePermission(a.Config.GetContextKey(), permissions...)
	}

	return jwtware.New(cfg)
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

var _ LoginPayload = LoginRequest{}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the user asked to be remembered
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(3, 255)),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest is accepted when the client cannot send the refresh cookie
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Failed to parse request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "The given data was invalid.",
			"errors":  FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login request", "payload", print.MaybePrettyJSON(fiber.Map{
			"identifier":  payload.Identifier,
			"remember_me": payload.RememberMe,
		}))
	}

	pair, err := a.Auther.Login(c.UserContext(), payload)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	a.setRefreshCookie(c, pair)

	return c.JSON(pair)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	token := c.Cookies(a.Config.GetRefreshCookieName())
	if token == "" && len(c.Body()) > 0 {
		payload := new(RefreshRequest)
		if err := c.BodyParser(payload); err == nil {
			token = payload.RefreshToken
		}
	}

	pair, err := a.Auther.Refresh(c.UserContext(), token)
	if err != nil {
		a.clearRefreshCookie(c)
		return a.ErrorHandler(c, err)
	}

	a.setRefreshCookie(c, pair)

	return c.JSON(pair)
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	token := c.Cookies(a.Config.GetRefreshCookieName())

	if err := a.Auther.Logout(c.UserContext(), token); err != nil {
		a.Logger.Error("logout revoke refresh token", "error", err)
	}

	a.clearRefreshCookie(c)

	return c.JSON(fiber.Map{
		"message": "Successfully logged out",
	})
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Config.GetContextKey())
	if !ok {
		return a.ErrorHandler(c, ErrUnauthenticated)
	}

	profile, err := a.Auther.Me(c.UserContext(), claims)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		a.Logger.Debug("me", "profile", print.MaybePrettyJSON(profile))
	}

	return c.JSON(fiber.Map{
		"data": profile,
	})
}

func (a *AuthController) setRefreshCookie(c *fiber.Ctx, pair *TokenPair) {
	c.Cookie(&fiber.Cookie{
		Name:     a.Config.GetRefreshCookieName(),
		Value:    pair.RefreshToken,
		Path:     a.Config.GetRefreshCookiePath(),
		Expires:  pair.RefreshExpiresAt,
		HTTPOnly: true,
		Secure:   a.Config.GetRefreshCookieSecure(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (a *AuthController) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.Config.GetRefreshCookieName(),
		Value:    "",
		Path:     a.Config.GetRefreshCookiePath(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.Config.GetRefreshCookieSecure(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (a *AuthController) authErrHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrForbidden) {
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryAuthz, ErrPermissionDenied.Message).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(TextCodePermissionDenied))
	}
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return a.ErrorHandler(c, ErrUnauthenticated)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		err = withCause(ErrTokenMalformed, err)
	}
	return a.ErrorHandler(c, err)
}

func (a *AuthController) defaultErrHandler(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)

	body := fiber.Map{
		"message": err.Error(),
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		body["message"] = richErr.Message
		if richErr.TextCode != "" {
			body["text_code"] = richErr.TextCode
		}
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("auth request failed", "method", c.Method(), "path", c.Path(), "error", err)
		body["message"] = "Server Error"
	}

	return c.Status(status).JSON(body)
}

// FormatValidationErrorToMap converts ozzo validation errors into the
// field -> messages shape clients render next to inputs
func FormatValidationErrorToMap(err error) map[string][]string {
	out := map[string][]string{}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		out["_"] = []string{err.Error()}
		return out
	}

	for field, ferr := range verrs {
		if ferr == nil {
			continue
		}
		out[field] = append(out[field], ferr.Error())
	}

	return out
}
