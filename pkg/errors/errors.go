package errors

import (
	"errors"
	"fmt"
)

var (
	ErrTransport           = errors.New("portal transport error")
	ErrTimeout             = errors.New("portal request timed out")
	ErrAuthRejected        = errors.New("portal rejected credentials")
	ErrAuthPortal          = errors.New("portal authentication error")
	ErrParseDegraded       = errors.New("payload could not be parsed")
	ErrVaultCorrupt        = errors.New("credential vault record unreadable")
	ErrFetchFailed         = errors.New("resource fetch failed")
	ErrSessionExpired      = errors.New("portal session expired")
	ErrNoStoredCredentials = errors.New("no stored credentials")
	ErrNotFound            = errors.New("not found")
)

type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

func (e TransportError) Is(target error) bool { return target == ErrTransport }

type TimeoutError struct {
	Op   string
	Path string
	Err  error
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e TimeoutError) Unwrap() error { return e.Err }

func (e TimeoutError) Is(target error) bool { return target == ErrTimeout }

// AuthError carries the terminal state of a failed login attempt.
type AuthError struct {
	Rejected bool
	Reason   string
	Err      error
}

func (e AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e AuthError) Unwrap() error { return e.Err }

func (e AuthError) Is(target error) bool {
	if e.Rejected {
		return target == ErrAuthRejected
	}
	return target == ErrAuthPortal
}

type FetchError struct {
	Resource   string
	StatusCode int
	Err        error
}

func (e FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed (status %d): %v", e.Resource, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (status %d)", e.Resource, e.StatusCode)
}

func (e FetchError) Unwrap() error { return e.Err }

func (e FetchError) Is(target error) bool { return target == ErrFetchFailed }

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

// IsRetryable reports whether a caller-initiated retry could succeed.
// A FetchError is retryable only when its cause is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthRejected) {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrAuthPortal) || errors.Is(err, ErrSessionExpired)
}
