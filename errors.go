package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeIdentityNotFound      = "IDENTITY_NOT_FOUND"
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts       = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenWrongUse         = "TOKEN_WRONG_USE"
	TextCodeRefreshMissing        = "REFRESH_TOKEN_MISSING"
	TextCodeRefreshRevoked        = "REFRESH_TOKEN_REVOKED"
	TextCodeRefreshReused         = "REFRESH_TOKEN_REUSED"
	TextCodePermissionDenied      = "PERMISSION_DENIED"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
	TextCodeUnauthenticatedAccess = "UNAUTHENTICATED"
	TextCodeImmutableClaim        = "IMMUTABLE_CLAIM_MUTATION"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryAuth).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned on bad credentials. We do not
// distinguish unknown identifiers from wrong passwords.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned while an account is cooling down
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(429)

// ErrNoEmptyString password must not be empty
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired the token exp claim is in the past
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed the token could not be parsed or verified
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenWrongUse an access token was presented as refresh token or the other way around
var ErrTokenWrongUse = errors.New("token is malformed: unexpected token use", errors.CategoryAuth).
	WithTextCode(TextCodeTokenWrongUse).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenMissing the request carried no refresh credential
var ErrRefreshTokenMissing = errors.New("refresh token missing", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshMissing).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenRevoked the refresh credential was revoked or is unknown
var ErrRefreshTokenRevoked = errors.New("refresh token revoked", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenReused a rotated refresh credential was presented again
var ErrRefreshTokenReused = errors.New("refresh token reused", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshReused).
	WithCode(errors.CodeUnauthorized)

// ErrPermissionDenied the authenticated identity lacks a permission
var ErrPermissionDenied = errors.New("permission denied", errors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(errors.CodeForbidden)

// ErrUnauthenticated no valid claims were found on the request
var ErrUnauthenticated = errors.New("unauthenticated", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticatedAccess).
	WithCode(errors.CodeUnauthorized)

// ErrImmutableClaimMutation a claims decorator changed an identity or lifetime claim
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim).
	WithCode(errors.CodeInternal)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) || hasTextCode(err, TextCodeTokenWrongUse) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// HTTPStatus returns the status code carried by a rich error, or 500
func HTTPStatus(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}
	return errors.CodeInternal
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func withCause(base *errors.Error, cause error) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = cause
	return clone
}

// ValidationErrorFields returns the field errors attached to a validation
// failure, nil for any other error
func ValidationErrorFields(err error) map[string][]string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return nil
	}
	fields, _ := richErr.Metadata["errors"].(map[string][]string)
	return fields
}
