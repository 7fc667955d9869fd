package domain

import "errors"

// Error kinds. Match them with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("forbidden")
	ErrUnavailable    = errors.New("unavailable")
)

// Error carries a client-safe message next to its kind. Err holds the
// underlying cause, which is only ever logged.
type Error struct {
	Kind      error
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

func Authentication(msg string) error {
	return &Error{Kind: ErrAuthentication, Message: msg}
}

func Authorization(msg string) error {
	return &Error{Kind: ErrAuthorization, Message: msg}
}

// Unavailable wraps an unexpected infrastructure failure.
func Unavailable(msg string, cause error, retryable bool) error {
	return &Error{Kind: ErrUnavailable, Message: msg, Retryable: retryable, Err: cause}
}

// MessageOf returns the client-safe message of err, or fallback when err is
// not a *Error.
func MessageOf(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return fallback
}

// IsRetryable reports whether err is a retryable unavailability.
func IsRetryable(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Retryable
}
