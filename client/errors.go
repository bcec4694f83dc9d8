package client

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeSessionExpired = "SESSION_EXPIRED"
	TextCodeNetworkError   = "NETWORK_ERROR"
	TextCodeRefreshAborted = "REFRESH_ABORTED"
	TextCodeUnknownRoute   = "UNKNOWN_ROUTE"
	TextCodeRedirectLoop   = "REDIRECT_LOOP"
)

// ErrRefreshAborted settles waiters when the refresh exits without a result
var ErrRefreshAborted = errors.New("token refresh aborted", errors.CategoryInternal).
	WithTextCode(TextCodeRefreshAborted)

var ErrNoToken = errors.New("no session token", errors.CategoryAuth).
	WithTextCode("NO_TOKEN").
	WithCode(http.StatusUnauthorized)

var ErrUnknownRoute = errors.New("unknown route", errors.CategoryNotFound).
	WithTextCode(TextCodeUnknownRoute)

var ErrRedirectLoop = errors.New("too many redirects", errors.CategoryInternal).
	WithTextCode(TextCodeRedirectLoop)

type errorBody struct {
	Message  string              `json:"message"`
	TextCode string              `json:"text_code"`
	Errors   map[string][]string `json:"errors"`
}

// newHTTPError drains res and turns a non 2xx response into an error
// carrying the status, the server message and any field errors
func newHTTPError(res *http.Response) *errors.Error {
	defer res.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	body := errorBody{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = http.StatusText(res.StatusCode)
	}

	err := errors.New(message, categoryForStatus(res.StatusCode)).
		WithCode(res.StatusCode)

	if body.TextCode != "" {
		err = err.WithTextCode(body.TextCode)
	}

	meta := map[string]any{
		"status": res.StatusCode,
	}
	if len(body.Errors) > 0 {
		meta["errors"] = body.Errors
	}
	if body.Message != "" {
		meta["server_message"] = body.Message
	}
	if res.Request != nil && res.Request.URL != nil {
		meta["url"] = res.Request.URL.String()
		meta["method"] = res.Request.Method
	}

	return err.WithMetadata(meta)
}

func newNetworkError(err error) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, "network request failed").
		WithTextCode(TextCodeNetworkError)
}

func newSessionExpiredError(cause error) *errors.Error {
	if cause == nil {
		cause = ErrRefreshAborted
	}
	return errors.Wrap(cause, errors.CategoryAuth, "session expired").
		WithTextCode(TextCodeSessionExpired).
		WithCode(http.StatusUnauthorized)
}

func categoryForStatus(status int) errors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return errors.CategoryAuth
	case status == http.StatusForbidden:
		return errors.CategoryAuthz
	case status == http.StatusNotFound:
		return errors.CategoryNotFound
	case status == http.StatusConflict:
		return errors.CategoryConflict
	case status == http.StatusTooManyRequests:
		return errors.CategoryRateLimit
	case status == http.StatusUnprocessableEntity:
		return errors.CategoryValidation
	case status >= 400 && status < 500:
		return errors.CategoryBadInput
	default:
		return errors.CategoryInternal
	}
}

// StatusCode returns the HTTP status carried by err, 0 when there is none
func StatusCode(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return 0
	}
	if status, ok := richErr.Metadata["status"].(int); ok {
		return status
	}
	return 0
}

// ValidationErrors returns the field errors of a 422 response
func ValidationErrors(err error) map[string][]string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return nil
	}
	fields, _ := richErr.Metadata["errors"].(map[string][]string)
	return fields
}

// ServerMessage returns the message field of the error response body
func ServerMessage(err error) string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return ""
	}
	msg, _ := richErr.Metadata["server_message"].(string)
	return msg
}

func IsSessionExpired(err error) bool {
	return hasTextCode(err, TextCodeSessionExpired)
}

func IsNetworkError(err error) bool {
	return hasTextCode(err, TextCodeNetworkError)
}

func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
