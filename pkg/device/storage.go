package device

import (
	"context"
	"time"
)

// Storage handles device persistence. The registry and notification engine
// must share one logical store so eligibility stays correct when the service
// runs as multiple instances.
type Storage interface {
	// Get retrieves a device by its unique device ID.
	Get(ctx context.Context, deviceID string) (*Device, error)

	// Save creates or fully replaces a device record keyed by device ID.
	Save(ctx context.Context, d *Device) error

	// ListByOwner returns all devices registered to the owner. When
	// activeOnly is true, deactivated devices are excluded.
	ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]Device, error)

	// MarkInactiveBefore deactivates every active device whose last
	// activity is strictly before cutoff and returns the count affected.
	MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
