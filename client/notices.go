package client

import (
	"net/http"
)

// User facing messages for failed requests
const (
	NoticeForbidden      = "You do not have permission to perform this action."
	NoticeNotFound       = "The requested resource was not found."
	NoticeInternalError  = "An internal server error occurred. Please try again later."
	NoticeClientError    = "An error occurred. Please try again."
	NoticeServerError    = "A server error occurred. Please contact support."
	NoticeNetworkError   = "Network error. Please check your connection and try again."
	NoticeSessionExpired = "Your session has expired. Please log in again."
)

// noticeFor maps a failed request to the message shown to the user. An
// empty string means the failure is not announced. status 0 means no
// response was received.
func noticeFor(status int, serverMessage string) string {
	switch {
	case status == 0:
		return NoticeNetworkError
	case status == http.StatusForbidden:
		return NoticeForbidden
	case status == http.StatusNotFound:
		return NoticeNotFound
	case status == http.StatusUnprocessableEntity:
		// field errors are rendered by the caller
		return ""
	case status == http.StatusInternalServerError:
		return NoticeInternalError
	case status >= 400 && status < 500:
		if serverMessage != "" {
			return serverMessage
		}
		return NoticeClientError
	case status > 500:
		return NoticeServerError
	default:
		return ""
	}
}
