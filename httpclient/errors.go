package httpclient

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds the response body quoted in a StatusError message.
const maxErrorBody = 256

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if len(body) == 0 {
		return fmt.Sprintf("httpclient: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("httpclient: HTTP %d: %s", e.StatusCode, body)
}

// Retryable reports 429 and 5xx responses.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TransportError is a request that got no response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "httpclient: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable is always true; the endpoint may come back.
func (e *TransportError) Retryable() bool { return true }

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// StatusOf returns the status code carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
