package a2a

import "errors"

// Agent card validation errors.
var (
	ErrMissingName    = errors.New("agent card: missing name")
	ErrMissingVersion = errors.New("agent card: missing version")
)

// Protocol errors.
var (
	// ErrRemoteUnavailable indicates the remote agent could not be reached
	// or answered with a non-2xx status.
	ErrRemoteUnavailable = errors.New("a2a: remote agent unavailable")
	// ErrInvalidMessage indicates a body that is not a valid message.
	ErrInvalidMessage = errors.New("a2a: invalid message format")
	// ErrResponseTooLarge indicates a reply body over the client's limit.
	ErrResponseTooLarge = errors.New("a2a: response too large")
)

// Message validation errors.
var (
	ErrMessageMissingID          = errors.New("a2a message: missing id")
	ErrMessageInvalidType        = errors.New("a2a message: invalid type")
	ErrMessageMissingFrom        = errors.New("a2a message: missing from")
	ErrMessageMissingTo          = errors.New("a2a message: missing to")
	ErrMessageMissingTimestamp   = errors.New("a2a message: missing timestamp")
	ErrMessageInvalidPriority    = errors.New("a2a message: invalid priority")
	ErrMessageMissingCorrelation = errors.New("a2a message: response without correlation id")
)
