package bus

import "errors"

// Validation errors returned synchronously by the bus API.
var (
	ErrMissingSender    = errors.New("bus: missing sender")
	ErrMissingRecipient = errors.New("bus: missing recipient")
	ErrInvalidType      = errors.New("bus: invalid message type")
	ErrMissingName      = errors.New("bus: missing agent name")
	ErrMissingAddress   = errors.New("bus: missing agent address")
	ErrInvalidStatus    = errors.New("bus: invalid agent status")
)

// Runtime errors.
var (
	// ErrQueueFull is returned by Send when the queue has no free slot.
	ErrQueueFull = errors.New("bus: queue full")
	// ErrClosed is returned after Stop.
	ErrClosed = errors.New("bus: closed")
	// ErrAlreadyStarted is returned by Start and SetHandler once the bus runs.
	ErrAlreadyStarted = errors.New("bus: already started")
	// ErrAgentNotFound is returned for names that were never registered.
	ErrAgentNotFound = errors.New("bus: agent not found")
)
