package notification_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkit/pushkit/pkg/notification"
)

func TestMemoryStorage_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := notification.NewMemoryStorage()

	rec := pendingRecord("d1")
	require.NoError(t, storage.Create(ctx, rec))
	assert.Error(t, storage.Create(ctx, rec), "duplicate IDs are rejected")

	got, err := storage.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content.Title, got.Content.Title)

	// Mutating the returned copy must not leak into the store.
	got.Targets[0].Status = notification.TargetFailed
	again, err := storage.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.TargetPending, again.Targets[0].Status)

	_, err = storage.Get(ctx, "missing")
	assert.ErrorIs(t, err, notification.ErrRecordNotFound)
}

func TestMemoryStorage_ClaimPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := notification.NewMemoryStorage()
	require.NoError(t, storage.Create(ctx, pendingRecord("d1")))

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := storage.ClaimPending(ctx, "rec-1", now)
			require.NoError(t, err)
			if won {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins, "exactly one claimer wins")

	rec, err := storage.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusSent, rec.Status)
}

func TestMemoryStorage_ListDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := notification.NewMemoryStorage()

	seed := func(id string, scheduledFor *time.Time, status notification.Status, createdAt time.Time) {
		rec := pendingRecord("d1")
		rec.ID = id
		rec.ScheduledFor = scheduledFor
		rec.Status = status
		rec.CreatedAt = createdAt
		require.NoError(t, storage.Create(ctx, rec))
	}

	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	seed("due-unscheduled", nil, notification.StatusPending, now.Add(-3*time.Minute))
	seed("due-past", &past, notification.StatusPending, now.Add(-2*time.Minute))
	seed("not-due-future", &future, notification.StatusPending, now.Add(-time.Minute))
	seed("not-due-sent", nil, notification.StatusSent, now.Add(-time.Minute))

	due, err := storage.ListDue(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "due-unscheduled", due[0].ID, "oldest first")
	assert.Equal(t, "due-past", due[1].ID)

	limited, err := storage.ListDue(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStorage_UpdateTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := notification.NewMemoryStorage()
	require.NoError(t, storage.Create(ctx, pendingRecord("d1", "d2")))

	err := storage.UpdateTarget(ctx, "rec-1", notification.TargetEntry{
		DeviceID:          "d2",
		Status:            notification.TargetDelivered,
		ProviderMessageID: "pm-7",
		UpdatedAt:         now,
	})
	require.NoError(t, err)

	rec, err := storage.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, notification.TargetPending, rec.Targets[0].Status)
	assert.Equal(t, notification.TargetDelivered, rec.Targets[1].Status)
	assert.Equal(t, "pm-7", rec.Targets[1].ProviderMessageID)

	err = storage.UpdateTarget(ctx, "rec-1", notification.TargetEntry{DeviceID: "nope"})
	assert.ErrorIs(t, err, notification.ErrTargetNotFound)
}

func TestMemoryStorage_ListByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := notification.NewMemoryStorage()

	for i, id := range []string{"a", "b", "c"} {
		rec := pendingRecord("d1")
		rec.ID = id
		rec.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, storage.Create(ctx, rec))
	}

	recs, err := storage.ListByOwner(ctx, "user-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].ID, "newest first")

	rest, err := storage.ListByOwner(ctx, "user-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].ID)
}
