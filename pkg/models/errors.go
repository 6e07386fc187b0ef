package models

import "errors"

// Common errors for store and engine operations.
var (
	// Session errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already exists")
	ErrSessionNotActive = errors.New("session is not active")

	// Channel errors
	ErrChannelNotFound = errors.New("channel not found")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Operator errors
	ErrOperatorNotFound  = errors.New("operator not found")
	ErrDuplicateOperator = errors.New("operator already exists")

	// Ledger errors
	ErrForwardNotFound    = errors.New("forward record not found")
	ErrInvalidTransition  = errors.New("invalid forward status transition")
	ErrDuplicateForward   = errors.New("forward record already exists")
	ErrForwardingDisabled = errors.New("forwarding is disabled for channel")
)
