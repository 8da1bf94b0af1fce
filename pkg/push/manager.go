package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pushkit/pushkit/pkg/batch"
	"github.com/pushkit/pushkit/pkg/device"
	"github.com/pushkit/pushkit/pkg/dispatch"
	"github.com/pushkit/pushkit/pkg/logger"
	"github.com/pushkit/pushkit/pkg/notification"
)

// Manager orchestrates the full delivery path: target resolution through the
// device registry and eligibility filter, record persistence, concurrent
// per-device dispatch, and aggregation of the outcome.
type Manager struct {
	devices   *device.Registry
	storage   notification.Storage
	adapters  *dispatch.Registry
	blacklist dispatch.Blacklist
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBlacklist enables token blacklisting: tokens rejected as invalid are
// recorded and skipped on subsequent dispatches.
func WithBlacklist(b dispatch.Blacklist) ManagerOption {
	return func(m *Manager) {
		m.blacklist = b
	}
}

// WithManagerClock overrides the time source, primarily for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a push manager.
func NewManager(devices *device.Registry, storage notification.Storage, adapters *dispatch.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		devices:  devices,
		storage:  storage,
		adapters: adapters,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendRequest describes one notification send. Exactly one of UserIDs or
// DeviceIDs selects the targets: user IDs fan out to every eligible device
// of each user, device IDs address devices directly (still subject to the
// eligibility filter).
type SendRequest struct {
	UserIDs      []string
	DeviceIDs    []string
	Content      notification.Content
	Settings     *notification.Settings
	ScheduledFor *time.Time
}

// DeviceOutcome is the per-device delivery result surfaced to the caller.
type DeviceOutcome struct {
	DeviceID          string
	Provider          device.Provider
	Status            notification.TargetStatus
	ProviderMessageID string
	ErrorCode         string
	ErrorMessage      string
}

// Result is the caller-facing outcome of a send.
type Result struct {
	NotificationID string
	Status         notification.Status
	Success        bool
	Devices        []DeviceOutcome
}

// Send resolves targets, persists a notification record, and dispatches it
// unless it is scheduled for the future. The returned Result always carries
// the per-device breakdown; a single device's provider failure is never an
// error here.
//
// There is no engine-driven retry: a failed record is re-sent only by the
// caller submitting it again.
func (m *Manager) Send(ctx context.Context, req SendRequest) (*Result, error) {
	rec, err := m.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := m.storage.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	if len(rec.Targets) == 0 {
		// The record stays pending so the caller can inspect or cancel it;
		// nothing will ever dispatch it.
		m.logger.LogAttrs(ctx, slog.LevelWarn, "no eligible devices for notification",
			logger.NotificationID(rec.ID),
			logger.UserID(rec.OwnerID),
		)
		return m.result(rec), ErrNoEligibleDevices
	}

	if rec.ScheduledFor != nil && rec.ScheduledFor.After(m.now()) {
		return m.result(rec), nil
	}

	return m.DispatchRecord(ctx, rec)
}

// Schedule is Send with a mandatory future delivery time.
func (m *Manager) Schedule(ctx context.Context, req SendRequest, at time.Time) (*Result, error) {
	req.ScheduledFor = &at
	return m.Send(ctx, req)
}

// prepare validates the request and builds the pending record.
func (m *Manager) prepare(ctx context.Context, req SendRequest) (*notification.Record, error) {
	if len(req.UserIDs) > 0 && len(req.DeviceIDs) > 0 {
		return nil, ErrAmbiguousTargets
	}
	if len(req.UserIDs) == 0 && len(req.DeviceIDs) == 0 {
		return nil, ErrNoTargets
	}

	settings := notification.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	now := m.now()
	rec := &notification.Record{
		ID:           uuid.New().String(),
		Content:      req.Content,
		Settings:     settings,
		ScheduledFor: req.ScheduledFor,
		Status:       notification.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if rec.Content.Priority == "" {
		rec.Content.Priority = device.PriorityNormal
	}
	if rec.Content.Category == "" {
		rec.Content.Category = device.CategorySystem
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	devices, err := m.resolveDevices(ctx, req, settings)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		rec.OwnerID = devices[0].OwnerID
	} else if len(req.UserIDs) > 0 {
		rec.OwnerID = req.UserIDs[0]
	}

	for _, d := range devices {
		token := d.AnyActiveToken(now)
		if token == nil {
			continue
		}
		rec.Targets = append(rec.Targets, notification.TargetEntry{
			DeviceID: d.DeviceID,
			Platform: d.Platform,
			Provider: token.Provider,
			Token:    token.Token,
			Status:   notification.TargetPending,
		})
	}
	return rec, nil
}

// resolveDevices expands the request's target selection into eligible
// devices. Ineligible devices are silently excluded; that is preference
// enforcement, not an error.
func (m *Manager) resolveDevices(ctx context.Context, req SendRequest, settings notification.Settings) ([]device.Device, error) {
	category := req.Content.Category
	priority := req.Content.Priority
	now := m.now()

	eligible := func(d *device.Device) bool {
		if settings.RespectQuietHours {
			return device.Eligible(d, category, priority, now)
		}
		return device.EligibleIgnoringQuietHours(d, category, priority)
	}

	var out []device.Device
	if len(req.UserIDs) > 0 {
		for _, userID := range req.UserIDs {
			devices, err := m.devices.ListByOwner(ctx, userID, true)
			if err != nil {
				return nil, fmt.Errorf("failed to list devices for user %s: %w", userID, err)
			}
			for _, d := range devices {
				if eligible(&d) {
					out = append(out, d)
				}
			}
		}
		return out, nil
	}

	for _, deviceID := range req.DeviceIDs {
		d, err := m.devices.Get(ctx, deviceID)
		if err != nil {
			if isNotFound(err) {
				m.logger.LogAttrs(ctx, slog.LevelDebug, "skipping unknown device",
					logger.DeviceID(deviceID),
				)
				continue
			}
			return nil, fmt.Errorf("failed to load device %s: %w", deviceID, err)
		}
		if eligible(d) {
			out = append(out, *d)
		}
	}
	return out, nil
}

// DispatchRecord claims the record and delivers it to every target. Targets
// are sent concurrently; their results flow through a channel to this
// goroutine, which is the only writer of the record during dispatch, then
// the overall status resolves once every target is terminal.
func (m *Manager) DispatchRecord(ctx context.Context, rec *notification.Record) (*Result, error) {
	if len(rec.Targets) == 0 {
		// A record with no targets can never resolve; claiming it would
		// strand it in sent and make it uncancellable. It stays pending
		// until the caller cancels.
		return m.result(rec), ErrNoEligibleDevices
	}

	now := m.now()
	claimed, err := m.storage.ClaimPending(ctx, rec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim notification %s: %w", rec.ID, err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", notification.ErrAlreadyDispatched, rec.ID)
	}
	rec.Status = notification.StatusSent
	rec.DispatchedAt = &now
	rec.UpdatedAt = now

	type targetResult struct {
		deviceID string
		provider device.Provider
		token    string
		resp     dispatch.Response
	}
	results := make(chan targetResult, len(rec.Targets))

	for _, t := range rec.Targets {
		go func(t notification.TargetEntry) {
			results <- targetResult{
				deviceID: t.DeviceID,
				provider: t.Provider,
				token:    t.Token,
				resp:     m.sendToTarget(ctx, rec, t),
			}
		}(t)
	}

	// Join barrier: every target reports exactly once, and no result is
	// dropped even when a sibling fails first.
	for range rec.Targets {
		res := <-results
		m.applyResult(ctx, rec, res.deviceID, res.provider, res.token, res.resp)
	}

	rec.Resolve(m.now())
	if err := m.storage.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist notification %s: %w", rec.ID, err)
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "notification dispatched",
		logger.NotificationID(rec.ID),
		slog.String("status", string(rec.Status)),
		slog.Int("delivered", rec.Stats.Delivered),
		slog.Int("failed", rec.Stats.Failed),
	)
	return m.result(rec), nil
}

// sendToTarget performs one provider call, checking the blacklist first.
func (m *Manager) sendToTarget(ctx context.Context, rec *notification.Record, t notification.TargetEntry) dispatch.Response {
	if m.blacklist != nil {
		listed, err := m.blacklist.Contains(ctx, t.Token)
		if err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "blacklist lookup failed",
				logger.DeviceID(t.DeviceID),
				logger.Error(err),
			)
		} else if listed {
			return dispatch.Response{
				ErrorCode:    dispatch.ErrCodeBlacklisted,
				ErrorMessage: "token is blacklisted",
			}
		}
	}

	return m.adapters.Send(ctx, t.Provider, dispatch.Request{
		Token:    t.Token,
		Title:    rec.Content.Title,
		Body:     rec.Content.Message,
		Data:     rec.Content.Data,
		Priority: rec.Content.Priority,
		TTL:      rec.Settings.TTL,
		MediaURL: rec.Content.MediaURL,
		Actions:  rec.Content.Actions,
		Badge:    rec.Settings.Badge,
		Sound:    rec.Settings.Sound,
	})
}

// applyResult folds one provider response into the record and persists the
// target entry. Runs only on the collector goroutine.
func (m *Manager) applyResult(ctx context.Context, rec *notification.Record, deviceID string, provider device.Provider, token string, resp dispatch.Response) {
	now := m.now()
	status := notification.TargetDelivered
	var deliveryErr *notification.DeliveryError
	if !resp.Accepted {
		status = notification.TargetFailed
		deliveryErr = &notification.DeliveryError{
			Code:    resp.ErrorCode,
			Message: resp.ErrorMessage,
		}
	}

	if err := rec.SetTargetResult(deviceID, status, resp.ProviderID, deliveryErr, now); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelError, "failed to record target result",
			logger.NotificationID(rec.ID),
			logger.DeviceID(deviceID),
			logger.Error(err),
		)
		return
	}
	if t := rec.Target(deviceID); t != nil {
		if err := m.storage.UpdateTarget(ctx, rec.ID, *t); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to persist target result",
				logger.NotificationID(rec.ID),
				logger.DeviceID(deviceID),
				logger.Error(err),
			)
		}
	}

	if resp.ErrorCode == dispatch.ErrCodeInvalidToken {
		m.retireToken(ctx, deviceID, provider, token)
	}
}

// retireToken blacklists a token the provider rejected and deactivates it on
// the device so future sends stop targeting it.
func (m *Manager) retireToken(ctx context.Context, deviceID string, provider device.Provider, token string) {
	if m.blacklist != nil {
		if err := m.blacklist.Add(ctx, token); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to blacklist token",
				logger.DeviceID(deviceID),
				logger.Error(err),
			)
		}
	}
	if err := m.devices.DeactivateToken(ctx, deviceID, provider); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deactivate rejected token",
			logger.DeviceID(deviceID),
			logger.Provider(provider),
			logger.Error(err),
		)
	}
}

// Cancel cancels a still-pending record. Cancelling after dispatch has
// begun returns notification.ErrAlreadyDispatched and changes nothing.
func (m *Manager) Cancel(ctx context.Context, notificationID string) error {
	rec, err := m.storage.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := rec.Cancel(m.now()); err != nil {
		return err
	}
	return m.storage.Update(ctx, rec)
}

// Get retrieves a record.
func (m *Manager) Get(ctx context.Context, notificationID string) (*notification.Record, error) {
	return m.storage.Get(ctx, notificationID)
}

// MarkRead reports a read event on a terminally-resolved record.
func (m *Manager) MarkRead(ctx context.Context, notificationID string) error {
	return m.mark(ctx, notificationID, (*notification.Record).MarkRead)
}

// MarkClicked reports a click event on a terminally-resolved record.
func (m *Manager) MarkClicked(ctx context.Context, notificationID string) error {
	return m.mark(ctx, notificationID, (*notification.Record).MarkClicked)
}

// MarkDismissed reports a dismiss event on a terminally-resolved record.
func (m *Manager) MarkDismissed(ctx context.Context, notificationID string) error {
	return m.mark(ctx, notificationID, (*notification.Record).MarkDismissed)
}

func (m *Manager) mark(ctx context.Context, notificationID string, fn func(*notification.Record, time.Time) error) error {
	rec, err := m.storage.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := fn(rec, m.now()); err != nil {
		return err
	}
	return m.storage.Update(ctx, rec)
}

// SendBulk processes many independent send requests through the batch
// coordinator: concurrent within a batch, sequential across batches, one
// outcome per request in input order.
func (m *Manager) SendBulk(ctx context.Context, reqs []SendRequest, opts ...batch.Option) []batch.Outcome[*Result] {
	return batch.Process(ctx, reqs, m.Send, opts...)
}

// result builds the caller-facing view of a record.
func (m *Manager) result(rec *notification.Record) *Result {
	out := &Result{
		NotificationID: rec.ID,
		Status:         rec.Status,
		Success:        rec.Status == notification.StatusDelivered,
		Devices:        make([]DeviceOutcome, 0, len(rec.Targets)),
	}
	for _, t := range rec.Targets {
		o := DeviceOutcome{
			DeviceID:          t.DeviceID,
			Provider:          t.Provider,
			Status:            t.Status,
			ProviderMessageID: t.ProviderMessageID,
		}
		for _, e := range rec.Errors {
			if e.DeviceID == t.DeviceID {
				o.ErrorCode = e.Code
				o.ErrorMessage = e.Message
			}
		}
		out.Devices = append(out.Devices, o)
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, device.ErrDeviceNotFound)
}
