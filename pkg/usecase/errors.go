package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")

	// Session errors
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")

	// Status errors
	ErrMessageNotPending = errors.New("message is not pending")
)
