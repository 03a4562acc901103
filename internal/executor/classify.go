package executor

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError carries an HTTP-style status code from a remote call so the
// executor can classify it without parsing the message text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote call failed with status %d", e.Code)
	}
	return fmt.Sprintf("remote call failed with status %d: %s", e.Code, e.Message)
}

// terminalMarkers identify errors that will never succeed on retry:
// authentication and authorization failures, and malformed requests.
// These are checked before the retryable markers so that, for example,
// "401 Unauthorized" is not mistaken for an unknown (and therefore
// retryable) condition.
var terminalMarkers = []string{
	"401",
	"403",
	"400",
	"404",
	"unauthorized",
	"unauthenticated",
	"forbidden",
	"permission denied",
	"invalid api key",
	"invalid credentials",
	"bad request",
	"not found",
}

// retryableMarkers identify transient conditions: rate limiting, network
// trouble and server-side failures.
var retryableMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"service unavailable",
	"connection reset",
	"econnreset",
	"dns",
	"network",
	"timeout",
	"timed out",
}

// Retryable reports whether err represents a transient condition worth
// retrying. Rate limiting, network failures and 5xx responses are
// retryable; auth failures and malformed requests are not. Unrecognized
// errors default to retryable, favoring resilience over fast-failing on
// unknown conditions.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 429:
			return true
		case statusErr.Code >= 500:
			return true
		case statusErr.Code == 401 || statusErr.Code == 403:
			return false
		case statusErr.Code == 400 || statusErr.Code == 404:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range terminalMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return true
}
