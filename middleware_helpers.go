package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-hr-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores the claims validated by jwtware in the
// request's standard context
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// RequirePermission answers 403 unless the claims stored under contextKey
// grant every permission. Mount it after a protected route middleware.
func RequirePermission(contextKey string, permissions ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := GetFiberClaims(c, contextKey)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message":   ErrUnauthenticated.Message,
				"text_code": ErrUnauthenticated.TextCode,
			})
		}

		for _, permission := range permissions {
			if !claims.Can(permission) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"message":    "This action is unauthorized.",
					"text_code":  ErrPermissionDenied.TextCode,
					"permission": permission,
				})
			}
		}

		return c.Next()
	}
}
