package newsdata

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Failure classes. Match them with errors.Is.
var (
	ErrRateLimited       = errors.New("upstream rate limited")
	ErrUnauthorized      = errors.New("upstream unauthorized")
	ErrMalformedResponse = errors.New("upstream response malformed")
	ErrEmptyResult       = errors.New("upstream returned no results")
	ErrUpstream          = errors.New("upstream request failed")
)

// Error is a classified upstream failure.
type Error struct {
	Kind       error
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// retryable reports whether another attempt could succeed. Rate limits are
// not retried: hammering a limited upstream only extends the ban.
func (e *Error) retryable() bool {
	return e.Kind == ErrUpstream && (e.StatusCode == 0 || e.StatusCode >= 500)
}

// classifyStatus maps an HTTP status to a failure class.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrUpstream
	}
}

// classifyCode maps the code field of an error body. The provider reports
// some quota and key problems with HTTP 200.
func classifyCode(code string) error {
	c := strings.ToLower(code)
	switch {
	case strings.Contains(c, "ratelimit"), strings.Contains(c, "rate limit"), strings.Contains(c, "quota"), strings.Contains(c, "toomany"):
		return ErrRateLimited
	case strings.Contains(c, "unauthor"), strings.Contains(c, "apikey"), strings.Contains(c, "forbidden"):
		return ErrUnauthorized
	default:
		return ErrUpstream
	}
}
