package notification

import "errors"

var (
	// ErrRecordNotFound is returned when no record matches the given ID.
	ErrRecordNotFound = errors.New("notification record not found")

	// ErrInvalidContent is returned for content failing validation bounds.
	ErrInvalidContent = errors.New("invalid notification content")

	// ErrAlreadyDispatched is returned when cancelling or re-claiming a
	// record whose dispatch has already begun.
	ErrAlreadyDispatched = errors.New("notification already dispatched")

	// ErrNotTerminal is returned when marking read/clicked/dismissed on a
	// record that has not reached a terminal status yet.
	ErrNotTerminal = errors.New("notification has not reached a terminal status")

	// ErrTargetNotFound is returned when a delivery result references a
	// device that is not among the record's targets.
	ErrTargetNotFound = errors.New("target entry not found")
)
