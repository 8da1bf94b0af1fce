package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkit/pushkit/pkg/device"
)

func TestMemoryStorage_SaveAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := device.NewMemoryStorage()

	_, err := storage.Get(ctx, "missing")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)

	d := &device.Device{
		OwnerID:     "user-1",
		DeviceID:    "dev-1",
		Platform:    device.PlatformWeb,
		Preferences: device.DefaultPreferences(),
		IsActive:    true,
	}
	require.NoError(t, storage.Save(ctx, d))

	got, err := storage.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, d.OwnerID, got.OwnerID)

	// Stored state must not alias the returned copy.
	got.Preferences.Categories[device.CategoryAlert] = false
	again, err := storage.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, again.Preferences.Categories[device.CategoryAlert])
}

func TestMemoryStorage_SaveRequiresDeviceID(t *testing.T) {
	t.Parallel()

	err := device.NewMemoryStorage().Save(context.Background(), &device.Device{OwnerID: "u"})
	assert.ErrorIs(t, err, device.ErrInvalidRegistration)
}

func TestMemoryStorage_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := device.NewMemoryStorage()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = storage.Save(ctx, &device.Device{
				OwnerID:      "user-1",
				DeviceID:     "dev-1",
				Platform:     device.PlatformAndroid,
				Preferences:  device.DefaultPreferences(),
				IsActive:     true,
				LastActiveAt: time.Now(),
			})
		}()
	}
	wg.Wait()

	all, err := storage.ListByOwner(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
