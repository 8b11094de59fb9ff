package domain

import "errors"

// Domain errors.
var (
	// ErrNoCompliments is returned when the compliment table is empty.
	ErrNoCompliments = errors.New("compliment table is empty")

	// ErrQueueFull is returned when the worker queue cannot accept
	// another mention.
	ErrQueueFull = errors.New("work queue full")

	// ErrRecordNotFound is returned when a reply record cannot be found.
	ErrRecordNotFound = errors.New("reply record not found")
)
