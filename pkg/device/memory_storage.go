package device

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	devices map[string]*Device // deviceID -> device
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory device storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		devices: make(map[string]*Device),
	}
}

func (s *MemoryStorage) Get(ctx context.Context, deviceID string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.devices[deviceID]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	return copyDevice(d), nil
}

func (s *MemoryStorage) Save(ctx context.Context, d *Device) error {
	if d.DeviceID == "" {
		return ErrInvalidRegistration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[d.DeviceID] = copyDevice(d)
	return nil
}

func (s *MemoryStorage) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Device
	for _, d := range s.devices {
		if d.OwnerID != ownerID {
			continue
		}
		if activeOnly && !d.IsActive {
			continue
		}
		out = append(out, *copyDevice(d))
	}
	return out, nil
}

func (s *MemoryStorage) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now()
	for _, d := range s.devices {
		if d.IsActive && d.LastActiveAt.Before(cutoff) {
			d.deactivate(now)
			count++
		}
	}
	return count, nil
}

// copyDevice deep-copies a device so callers never share token slices,
// capability maps, or preference maps with stored state.
func copyDevice(d *Device) *Device {
	out := *d
	out.Preferences = d.Preferences.clone()
	if d.Tokens != nil {
		out.Tokens = make([]PushToken, len(d.Tokens))
		copy(out.Tokens, d.Tokens)
	}
	if d.Capabilities != nil {
		out.Capabilities = make(map[string]bool, len(d.Capabilities))
		for k, v := range d.Capabilities {
			out.Capabilities[k] = v
		}
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
