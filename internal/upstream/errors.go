package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited indicates the upstream signalled a rate limit or
	// exhausted quota. Always retryable.
	ErrRateLimited = errors.New("upstream: rate limit exceeded")

	// ErrUnexpectedContentType indicates the upstream answered with a body of
	// the wrong media type, typically an HTML error page from an overloaded
	// server.
	ErrUnexpectedContentType = errors.New("upstream: unexpected content type")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as terminal: a retry policy returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsRateLimited reports whether err is a rate-limit signal.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
