package notification

import (
	"context"
	"time"
)

// Storage handles record persistence. Like the device store, it must be a
// single logical store shared by all instances so aggregation stays correct
// under horizontal scaling.
type Storage interface {
	// Create stores a new record.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Update fully replaces a stored record.
	Update(ctx context.Context, rec *Record) error

	// ClaimPending atomically flips a pending record to sent and returns
	// whether this caller won the claim. A false result with a nil error
	// means another worker already claimed the record.
	ClaimPending(ctx context.Context, id string, now time.Time) (bool, error)

	// UpdateTarget persists one target entry's delivery outcome.
	UpdateTarget(ctx context.Context, id string, target TargetEntry) error

	// ListDue returns up to limit pending records whose scheduled time is
	// unset or at/before now, oldest first. limit <= 0 means no limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Record, error)

	// ListByOwner returns the owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error)
}
