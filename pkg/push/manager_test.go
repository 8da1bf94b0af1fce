package push_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkit/pushkit/pkg/device"
	"github.com/pushkit/pushkit/pkg/dispatch"
	"github.com/pushkit/pushkit/pkg/notification"
	"github.com/pushkit/pushkit/pkg/push"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	manager   *push.Manager
	devices   *device.Registry
	storage   notification.Storage
	blacklist *dispatch.MemoryBlacklist
	sent      *sentLog
}

// sentLog records tokens each stub adapter was asked to deliver to.
type sentLog struct {
	mu     sync.Mutex
	tokens []string
}

func (l *sentLog) add(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = append(l.tokens, token)
}

func (l *sentLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tokens...)
}

// newFixture wires a manager over in-memory storage with a stub adapter per
// provider. respond decides the outcome per token; nil means accept all.
func newFixture(t *testing.T, respond func(token string) dispatch.Response) *fixture {
	t.Helper()
	if respond == nil {
		respond = func(token string) dispatch.Response {
			return dispatch.Response{Accepted: true, ProviderID: "msg-" + token}
		}
	}

	log := &sentLog{}
	stub := func(provider device.Provider) dispatch.Adapter {
		return dispatch.AdapterFunc{
			ProviderFamily: provider,
			Fn: func(_ context.Context, req dispatch.Request) dispatch.Response {
				log.add(req.Token)
				return respond(req.Token)
			},
		}
	}

	devices := device.NewRegistry(device.NewMemoryStorage(), device.WithRegistryClock(func() time.Time { return now }))
	storage := notification.NewMemoryStorage()
	blacklist := dispatch.NewMemoryBlacklist()
	manager := push.NewManager(devices, storage,
		dispatch.NewRegistry(stub(device.ProviderFCM), stub(device.ProviderAPNS), stub(device.ProviderWebPush)),
		push.WithBlacklist(blacklist),
		push.WithManagerClock(func() time.Time { return now }),
	)
	return &fixture{manager: manager, devices: devices, storage: storage, blacklist: blacklist, sent: log}
}

func (f *fixture) registerDevice(t *testing.T, ownerID, deviceID string, platform device.Platform, token string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.devices.Register(ctx, device.RegisterInput{
		OwnerID:  ownerID,
		DeviceID: deviceID,
		Platform: platform,
	})
	require.NoError(t, err)
	_, err = f.devices.RotateToken(ctx, deviceID, device.DefaultProvider(platform), token, nil)
	require.NoError(t, err)
}

func alertContent(title string) notification.Content {
	return notification.Content{
		Title:    title,
		Message:  "body",
		Category: device.CategoryAlert,
		Priority: device.PriorityNormal,
	}
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.Send(ctx, push.SendRequest{Content: alertContent("hi")})
	assert.ErrorIs(t, err, push.ErrNoTargets)

	_, err = f.manager.Send(ctx, push.SendRequest{
		UserIDs:   []string{"u1"},
		DeviceIDs: []string{"d1"},
		Content:   alertContent("hi"),
	})
	assert.ErrorIs(t, err, push.ErrAmbiguousTargets)

	_, err = f.manager.Send(ctx, push.SendRequest{
		UserIDs: []string{"u1"},
		Content: notification.Content{Message: "no title"},
	})
	assert.ErrorIs(t, err, notification.ErrInvalidContent)
}

func TestSend_DeliversToAllUserDevices(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "phone", device.PlatformIOS, "tok-phone")
	f.registerDevice(t, "u1", "laptop", device.PlatformWeb, "https://push.example.com/sub/laptop")
	f.registerDevice(t, "u2", "other", device.PlatformAndroid, "tok-other")

	res, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("deploy finished"),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, notification.StatusDelivered, res.Status)
	require.Len(t, res.Devices, 2)
	for _, d := range res.Devices {
		assert.Equal(t, notification.TargetDelivered, d.Status)
		assert.NotEmpty(t, d.ProviderMessageID)
	}
	assert.NotContains(t, f.sent.all(), "tok-other")

	rec, err := f.storage.Get(context.Background(), res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, rec.Status)
	assert.Equal(t, 2, rec.Stats.Delivered)
	require.NotNil(t, rec.CompletedAt)
}

func TestSend_PartialFailureBreakdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(token string) dispatch.Response {
		if token == "tok-bad" {
			return dispatch.Response{ErrorCode: dispatch.ErrCodeProvider, ErrorMessage: "internal", Retryable: true}
		}
		return dispatch.Response{Accepted: true, ProviderID: "msg-1"}
	})
	f.registerDevice(t, "u1", "good", device.PlatformIOS, "tok-good")
	f.registerDevice(t, "u1", "bad", device.PlatformAndroid, "tok-bad")

	res, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("hi"),
	})
	require.NoError(t, err)

	// One success is enough for the overall status.
	assert.Equal(t, notification.StatusDelivered, res.Status)
	byDevice := map[string]push.DeviceOutcome{}
	for _, d := range res.Devices {
		byDevice[d.DeviceID] = d
	}
	assert.Equal(t, notification.TargetDelivered, byDevice["good"].Status)
	assert.Equal(t, notification.TargetFailed, byDevice["bad"].Status)
	assert.Equal(t, dispatch.ErrCodeProvider, byDevice["bad"].ErrorCode)

	rec, err := f.storage.Get(context.Background(), res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Stats.Delivered)
	assert.Equal(t, 1, rec.Stats.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "bad", rec.Errors[0].DeviceID)
}

func TestSend_AllFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(string) dispatch.Response {
		return dispatch.Response{ErrorCode: dispatch.ErrCodeNetwork, ErrorMessage: "timeout", Retryable: true}
	})
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")

	res, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, res.Status)
	assert.False(t, res.Success)
}

func TestSend_NoEligibleDevices(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")
	_, err := f.devices.UpdatePreferences(context.Background(), "d1", device.PreferencesPatch{
		Categories: map[device.Category]bool{device.CategoryMarketing: false},
	})
	require.NoError(t, err)

	res, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: notification.Content{
			Title:    "sale",
			Message:  "50% off",
			Category: device.CategoryMarketing,
			Priority: device.PriorityLow,
		},
	})
	require.ErrorIs(t, err, push.ErrNoEligibleDevices)
	require.NotNil(t, res)

	// The record still exists so callers can inspect it.
	rec, getErr := f.storage.Get(context.Background(), res.NotificationID)
	require.NoError(t, getErr)
	assert.Equal(t, notification.StatusPending, rec.Status)
	assert.Empty(t, rec.Targets)
	assert.Empty(t, f.sent.all())
}

func TestDispatchRecord_TargetlessStaysPendingAndCancellable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.manager.Send(ctx, push.SendRequest{
		UserIDs: []string{"nobody"},
		Content: alertContent("hi"),
	})
	require.ErrorIs(t, err, push.ErrNoEligibleDevices)

	// Handing the targetless record to dispatch must not claim it.
	rec, err := f.storage.Get(ctx, res.NotificationID)
	require.NoError(t, err)
	_, err = f.manager.DispatchRecord(ctx, rec)
	require.ErrorIs(t, err, push.ErrNoEligibleDevices)

	rec, err = f.storage.Get(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, rec.Status)
	assert.Empty(t, f.sent.all())

	// Cancellation stays available as the only exit.
	require.NoError(t, f.manager.Cancel(ctx, res.NotificationID))
	rec, err = f.storage.Get(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusCancelled, rec.Status)
}

func TestSend_QuietHoursRespectedAndOverridden(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")
	_, err := f.devices.UpdatePreferences(context.Background(), "d1", device.PreferencesPatch{
		QuietHours: &device.QuietHours{Enabled: true, Start: "00:00", End: "23:59"},
	})
	require.NoError(t, err)

	_, err = f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("quiet"),
	})
	assert.ErrorIs(t, err, push.ErrNoEligibleDevices)

	urgent := notification.DefaultSettings()
	urgent.RespectQuietHours = false
	res, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs:  []string{"u1"},
		Content:  alertContent("urgent"),
		Settings: &urgent,
	})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, res.Status)
}

func TestSend_ScheduledStaysPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")

	at := now.Add(2 * time.Hour)
	res, err := f.manager.Schedule(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("later"),
	}, at)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusPending, res.Status)
	assert.Empty(t, f.sent.all())

	rec, err := f.storage.Get(context.Background(), res.NotificationID)
	require.NoError(t, err)
	require.NotNil(t, rec.ScheduledFor)
	assert.True(t, rec.ScheduledFor.Equal(at))
	require.Len(t, rec.Targets, 1)
	assert.Equal(t, notification.TargetPending, rec.Targets[0].Status)
}

func TestSend_InvalidTokenRetiresAndBlacklists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(string) dispatch.Response {
		return dispatch.Response{ErrorCode: dispatch.ErrCodeInvalidToken, ErrorMessage: "unregistered"}
	})
	f.registerDevice(t, "u1", "d1", device.PlatformAndroid, "tok-stale")

	_, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("hi"),
	})
	require.NoError(t, err)

	listed, err := f.blacklist.Contains(context.Background(), "tok-stale")
	require.NoError(t, err)
	assert.True(t, listed)

	d, err := f.devices.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Nil(t, d.ActiveToken(device.ProviderFCM))
}

func TestSend_BlacklistedTokenSkipsProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformAndroid, "tok-listed")
	require.NoError(t, f.blacklist.Add(context.Background(), "tok-listed"))

	res, err := f.manager.Send(context.Background(), push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, notification.StatusFailed, res.Status)
	require.Len(t, res.Devices, 1)
	assert.Equal(t, dispatch.ErrCodeBlacklisted, res.Devices[0].ErrorCode)
	assert.Empty(t, f.sent.all())
}

func TestSend_DirectDeviceTargets(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")

	res, err := f.manager.Send(context.Background(), push.SendRequest{
		DeviceIDs: []string{"d1", "missing"},
		Content:   alertContent("hi"),
	})
	require.NoError(t, err)
	require.Len(t, res.Devices, 1)
	assert.Equal(t, "d1", res.Devices[0].DeviceID)
	assert.Equal(t, notification.StatusDelivered, res.Status)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")
	ctx := context.Background()

	scheduled, err := f.manager.Schedule(ctx, push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("later"),
	}, now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, f.manager.Cancel(ctx, scheduled.NotificationID))
	rec, err := f.storage.Get(ctx, scheduled.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusCancelled, rec.Status)

	sent, err := f.manager.Send(ctx, push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("now"),
	})
	require.NoError(t, err)

	err = f.manager.Cancel(ctx, sent.NotificationID)
	require.ErrorIs(t, err, notification.ErrAlreadyDispatched)
	rec, err = f.storage.Get(ctx, sent.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, rec.Status)
}

func TestMarkInteractions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")
	ctx := context.Background()

	res, err := f.manager.Send(ctx, push.SendRequest{
		UserIDs: []string{"u1"},
		Content: alertContent("hi"),
	})
	require.NoError(t, err)

	require.NoError(t, f.manager.MarkRead(ctx, res.NotificationID))
	require.NoError(t, f.manager.MarkClicked(ctx, res.NotificationID))
	require.NoError(t, f.manager.MarkDismissed(ctx, res.NotificationID))

	rec, err := f.storage.Get(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.True(t, rec.Read)
	assert.True(t, rec.Clicked)
	assert.True(t, rec.Dismissed)
	assert.Equal(t, 1, rec.Stats.Reads)
}

func TestSendBulk(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.registerDevice(t, "u1", "d1", device.PlatformIOS, "tok-1")

	reqs := make([]push.SendRequest, 4)
	for i := range reqs {
		reqs[i] = push.SendRequest{UserIDs: []string{"u1"}, Content: alertContent("bulk")}
	}
	reqs[2] = push.SendRequest{Content: alertContent("no targets")}

	outcomes := f.manager.SendBulk(context.Background(), reqs)
	require.Len(t, outcomes, 4)
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		if i == 2 {
			assert.ErrorIs(t, o.Err, push.ErrNoTargets)
			continue
		}
		require.NoError(t, o.Err)
		assert.Equal(t, notification.StatusDelivered, o.Value.Status)
	}
}
