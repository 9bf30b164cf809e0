package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates the portal blocked the request (HTTP 403).
// Retryable at the HTTP layer because the session may simply have
// rotated; the coordinator treats repeats as a fallback trigger.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrMalformed indicates a response that decoded but did not have the
// expected shape. Never retried: the shape will not fix itself.
type ErrMalformed struct {
	Err error
}

func (e ErrMalformed) Error() string {
	return fmt.Errorf("malformed response: %w", e.Err).Error()
}

func (e ErrMalformed) Unwrap() error {
	return e.Err
}

// ErrMaxRetries wraps the last retryable error once attempts are
// exhausted.
type ErrMaxRetries struct {
	Attempts int
	Err      error
}

func (e ErrMaxRetries) Error() string {
	return fmt.Sprintf("max retries (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e ErrMaxRetries) Unwrap() error {
	return e.Err
}

// ErrBothStrategiesFailed is the coordinator's terminal error, carrying
// both underlying causes.
type ErrBothStrategiesFailed struct {
	API     error
	Browser error
}

func (e ErrBothStrategiesFailed) Error() string {
	return fmt.Sprintf("both strategies failed: api: %v; browser: %v", e.API, e.Browser)
}

func (e ErrBothStrategiesFailed) Unwrap() []error {
	return []error{e.API, e.Browser}
}

// classifyError maps transport errors and HTTP statuses onto the typed
// taxonomy. statusCode of zero means no response was received.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode >= http.StatusBadRequest:
			return ErrConnection{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var malformed ErrMalformed
	if errors.As(err, &malformed) {
		return "malformed"
	}
	var exhausted ErrMaxRetries
	if errors.As(err, &exhausted) {
		return "exhausted"
	}
	return "other"
}

// exhaustedRetries reports whether err already carries an ErrMaxRetries.
// Such errors are terminal for every policy: a nested policy has spent
// its attempts, and letting an outer policy retry it would multiply the
// attempt counts.
func exhaustedRetries(err error) bool {
	var exhausted ErrMaxRetries
	return errors.As(err, &exhausted)
}

// retryableTransport reports whether err is a transport-level failure
// worth retrying. Used as the retry predicate for every operation except
// the listing fetch, which additionally retries on 403.
func retryableTransport(err error) bool {
	if exhaustedRetries(err) {
		return false
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return true
	}
	return false
}

// retryableListing retries transport failures and blocked responses.
func retryableListing(err error) bool {
	if exhaustedRetries(err) {
		return false
	}
	if retryableTransport(err) {
		return true
	}
	var forbidden ErrForbidden
	return errors.As(err, &forbidden)
}
