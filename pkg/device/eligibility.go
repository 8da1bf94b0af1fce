package device

import (
	"errors"
	"fmt"
	"time"
)

// Eligible reports whether the device should receive a notification with the
// given category and priority at the given instant. The check is a pure
// predicate over the device state: active, globally enabled, category flag,
// priority flag, and quiet hours.
//
// Quiet hours use the clock time of now in its own location; callers that
// track a per-device timezone should pass now already converted.
func Eligible(d *Device, category Category, priority Priority, now time.Time) bool {
	if !EligibleIgnoringQuietHours(d, category, priority) {
		return false
	}
	return !QuietHoursActive(d.Preferences.QuietHours, now)
}

// EligibleIgnoringQuietHours applies every eligibility rule except the
// quiet-hours window. Used for sends that are flagged to bypass quiet hours.
//
// A category or priority absent from the preference maps is allowed: only an
// explicit false blocks delivery. Defaults populate every known key, so the
// missing-key path matters only for custom categories, which would otherwise
// be silently undeliverable until every device opted in.
func EligibleIgnoringQuietHours(d *Device, category Category, priority Priority) bool {
	if d == nil || !d.IsActive {
		return false
	}
	if !d.Preferences.Enabled {
		return false
	}
	if enabled, ok := d.Preferences.Categories[category]; ok && !enabled {
		return false
	}
	if enabled, ok := d.Preferences.Priorities[priority]; ok && !enabled {
		return false
	}
	return true
}

// QuietHoursActive reports whether now falls inside the quiet window.
//
// Both boundaries are inclusive: with a 22:00-08:00 window, 08:00 sharp is
// still quiet and 08:01 is not. This matches the behavior clients already
// rely on and must be preserved by any storage- or transport-level
// reimplementation. Windows with start > end span midnight, blocking
// [start, 24:00) and [00:00, end]. A window whose start or end does not
// parse as "HH:MM" is treated as disabled so a corrupt preference cannot
// suppress delivery indefinitely.
func QuietHoursActive(q QuietHours, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// parseClock converts a minute-resolution "HH:MM" string into minutes since
// midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, errors.Join(ErrInvalidTimeFormat, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidTimeFormat, s)
	}
	return h*60 + m, nil
}
