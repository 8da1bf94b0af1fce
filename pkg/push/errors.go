package push

import "errors"

var (
	// ErrNoTargets is returned when a send request names neither users nor
	// devices.
	ErrNoTargets = errors.New("no targets specified")

	// ErrAmbiguousTargets is returned when a send request names both users
	// and devices.
	ErrAmbiguousTargets = errors.New("specify either user IDs or device IDs, not both")

	// ErrNoEligibleDevices is returned when target resolution yields no
	// deliverable devices. The record is still persisted in pending state.
	ErrNoEligibleDevices = errors.New("no eligible devices for notification")
)
