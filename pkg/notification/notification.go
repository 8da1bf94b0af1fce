package notification

import (
	"fmt"
	"time"

	"github.com/pushkit/pushkit/pkg/device"
)

// MaxMessageLength bounds the notification body.
const MaxMessageLength = 2048

// Status is the overall delivery status of a record. Once dispatch begins it
// is derived from the per-target sub-statuses and never set independently.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the overall status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

// TargetStatus is the per-device delivery sub-status.
type TargetStatus string

const (
	TargetPending   TargetStatus = "pending"
	TargetSent      TargetStatus = "sent"
	TargetDelivered TargetStatus = "delivered"
	TargetFailed    TargetStatus = "failed"
)

// Terminal reports whether the target entry has resolved.
func (s TargetStatus) Terminal() bool {
	return s == TargetDelivered || s == TargetFailed
}

// Action is a call-to-action button attached to a notification.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// Content is the user-facing payload of a notification.
type Content struct {
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Category device.Category   `json:"category"`
	Priority device.Priority   `json:"priority"`
	Data     map[string]string `json:"data,omitempty"`
	Actions  []Action          `json:"actions,omitempty"`
	MediaURL string            `json:"media_url,omitempty"`
}

// Settings carries delivery behavior knobs.
type Settings struct {
	Badge             *int          `json:"badge,omitempty"`
	Sound             string        `json:"sound,omitempty"`
	Vibrate           bool          `json:"vibrate,omitempty"`
	TTL               time.Duration `json:"ttl,omitempty"`
	RespectQuietHours bool          `json:"respect_quiet_hours"`
}

// DefaultSettings returns the settings applied when the caller provides
// none: quiet hours respected, default sound, one-hour TTL.
func DefaultSettings() Settings {
	return Settings{
		Sound:             "default",
		TTL:               time.Hour,
		RespectQuietHours: true,
	}
}

// TargetEntry is the per-device delivery sub-record.
type TargetEntry struct {
	DeviceID          string          `json:"device_id"`
	Platform          device.Platform `json:"platform"`
	Provider          device.Provider `json:"provider"`
	Token             string          `json:"token"`
	Status            TargetStatus    `json:"status"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DeliveryError records one failed delivery attempt against a target.
type DeliveryError struct {
	DeviceID   string    `json:"device_id"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message"`
	RetryCount int       `json:"retry_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Stats holds the delivery and interaction counters kept on the record.
// Interaction counters are bumped once per reported event; reporting the
// same event twice double-counts, which callers must tolerate.
type Stats struct {
	Sent       int `json:"sent"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
	Reads      int `json:"reads"`
	Clicks     int `json:"clicks"`
	Dismissals int `json:"dismissals"`
}

// Record is the persisted unit of delivery work: one content payload fanned
// out to N target devices, with per-device outcomes folded into the overall
// status.
type Record struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Content      Content         `json:"content"`
	Settings     Settings        `json:"settings"`
	Targets      []TargetEntry   `json:"targets"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	Status       Status          `json:"status"`
	Errors       []DeliveryError `json:"errors,omitempty"`
	Read         bool            `json:"read"`
	ReadAt       *time.Time      `json:"read_at,omitempty"`
	Clicked      bool            `json:"clicked"`
	ClickedAt    *time.Time      `json:"clicked_at,omitempty"`
	Dismissed    bool            `json:"dismissed"`
	DismissedAt  *time.Time      `json:"dismissed_at,omitempty"`
	Stats        Stats           `json:"stats"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Validate checks the record's content bounds and priority/category values.
func (r *Record) Validate() error {
	if r.Content.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidContent)
	}
	if len(r.Content.Message) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidContent, MaxMessageLength)
	}
	return nil
}

// Due reports whether the record should be dispatched at the given instant:
// still pending and either unscheduled or scheduled at or before now.
func (r *Record) Due(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	return r.ScheduledFor == nil || !r.ScheduledFor.After(now)
}

// BeginDispatch claims the record for delivery, moving it from pending to
// sent. Claiming before any provider call is what keeps overlapping
// scheduler ticks from dispatching the same record twice.
func (r *Record) BeginDispatch(now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrAlreadyDispatched, r.Status)
	}
	r.Status = StatusSent
	r.DispatchedAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel moves a pending record to the cancelled terminal state. Cancelling
// after dispatch has begun is not supported and returns an error; the record
// is left untouched.
func (r *Record) Cancel(now time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: status is %s", ErrAlreadyDispatched, r.Status)
	}
	r.Status = StatusCancelled
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// Target returns the entry for the given device, or nil.
func (r *Record) Target(deviceID string) *TargetEntry {
	for i := range r.Targets {
		if r.Targets[i].DeviceID == deviceID {
			return &r.Targets[i]
		}
	}
	return nil
}

// SetTargetResult applies one per-device delivery outcome and updates the
// delivery counters. Callers must serialize invocations for a single record;
// the dispatch engine does so by funneling all results through one collector
// goroutine.
func (r *Record) SetTargetResult(deviceID string, status TargetStatus, providerMessageID string, deliveryErr *DeliveryError, now time.Time) error {
	t := r.Target(deviceID)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, deviceID)
	}
	t.Status = status
	t.ProviderMessageID = providerMessageID
	t.UpdatedAt = now
	r.UpdatedAt = now

	switch status {
	case TargetDelivered:
		r.Stats.Delivered++
		r.Stats.Sent++
	case TargetFailed:
		r.Stats.Failed++
		if deliveryErr != nil {
			e := *deliveryErr
			e.DeviceID = deviceID
			if e.OccurredAt.IsZero() {
				e.OccurredAt = now
			}
			r.Errors = append(r.Errors, e)
		}
	}
	return nil
}

// Resolve derives the overall status from the target entries. It is a no-op
// until every entry is terminal; then the record resolves to delivered if at
// least one target delivered, failed otherwise. Returns true when the
// overall status changed.
func (r *Record) Resolve(now time.Time) bool {
	if r.Status != StatusSent {
		return false
	}
	delivered := false
	for i := range r.Targets {
		if !r.Targets[i].Status.Terminal() {
			return false
		}
		if r.Targets[i].Status == TargetDelivered {
			delivered = true
		}
	}
	if len(r.Targets) == 0 {
		return false
	}
	if delivered {
		r.Status = StatusDelivered
	} else {
		r.Status = StatusFailed
	}
	r.CompletedAt = &now
	r.UpdatedAt = now
	return true
}

// MarkRead flags the record as read. Valid only once the overall status is
// terminal; each call bumps the read counter.
func (r *Record) MarkRead(now time.Time) error {
	if err := r.requireTerminal(); err != nil {
		return err
	}
	r.Read = true
	r.ReadAt = &now
	r.Stats.Reads++
	r.UpdatedAt = now
	return nil
}

// MarkClicked flags the record as clicked. Valid only after a terminal
// overall status.
func (r *Record) MarkClicked(now time.Time) error {
	if err := r.requireTerminal(); err != nil {
		return err
	}
	r.Clicked = true
	r.ClickedAt = &now
	r.Stats.Clicks++
	r.UpdatedAt = now
	return nil
}

// MarkDismissed flags the record as dismissed. Valid only after a terminal
// overall status.
func (r *Record) MarkDismissed(now time.Time) error {
	if err := r.requireTerminal(); err != nil {
		return err
	}
	r.Dismissed = true
	r.DismissedAt = &now
	r.Stats.Dismissals++
	r.UpdatedAt = now
	return nil
}

func (r *Record) requireTerminal() error {
	if !r.Status.Terminal() {
		return fmt.Errorf("%w: status is %s", ErrNotTerminal, r.Status)
	}
	return nil
}
