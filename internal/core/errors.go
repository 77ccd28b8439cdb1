package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeNotInRoom    = "not_in_room"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotActive    = "not_active"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal"
)

var (
	// ErrValidation marks inputs that can never succeed as sent.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to a message that does not exist for the caller.
	ErrNotFound = errors.New("not found")
	// ErrNotInRoom marks a room-scoped action by a connection outside that room.
	ErrNotInRoom = errors.New("not in room")
	// ErrNotActive is returned for actions from connections that are not Active.
	ErrNotActive = errors.New("connection not active")
	// ErrHubStopped is returned when the hub is no longer running.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel the error was built from.
func (e *CoreError) Unwrap() error {
	return e.err
}

func coreError(code, msg string, sentinel error) *CoreError {
	return &CoreError{Code: code, Message: msg, err: sentinel}
}

func validationError(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg, ErrValidation)
}

// NewValidationError reports a malformed inbound payload.
func NewValidationError(msg string) *CoreError {
	return validationError(msg)
}

// NewRateLimitError reports a frame dropped by the connection's rate limiter.
func NewRateLimitError() *CoreError {
	return &CoreError{Code: ErrCodeRateLimited, Message: "rate limit exceeded"}
}

// AsCoreError converts any error into a CoreError suitable for the wire.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrNotActive):
		return coreError(ErrCodeNotActive, err.Error(), ErrNotActive)
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error(), ErrNotFound)
	case errors.Is(err, ErrValidation):
		return coreError(ErrCodeBadRequest, err.Error(), ErrValidation)
	default:
		return coreError(ErrCodeInternal, err.Error(), err)
	}
}
