package device_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pushkit/pushkit/pkg/device"
)

func clock(t *testing.T, hhmm string) time.Time {
	t.Helper()
	ts, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad clock %q: %v", hhmm, err)
	}
	return time.Date(2025, 6, 15, ts.Hour(), ts.Minute(), 0, 0, time.UTC)
}

func eligibleDevice() *device.Device {
	return &device.Device{
		OwnerID:     "user-1",
		DeviceID:    "dev-1",
		Platform:    device.PlatformAndroid,
		Preferences: device.DefaultPreferences(),
		IsActive:    true,
	}
}

func TestQuietHoursActive_MidnightSpanningWindow(t *testing.T) {
	t.Parallel()

	q := device.QuietHours{Enabled: true, Start: "22:00", End: "08:00"}

	tests := []struct {
		now     string
		blocked bool
	}{
		{"23:00", true},
		{"00:00", true},
		{"07:59", true},
		{"08:00", true}, // boundaries are inclusive
		{"08:01", false},
		{"12:00", false},
		{"21:59", false},
		{"22:00", true}, // start boundary inclusive too
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.now, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.blocked, device.QuietHoursActive(q, clock(t, tt.now)))
		})
	}
}

func TestQuietHoursActive_SameDayWindow(t *testing.T) {
	t.Parallel()

	q := device.QuietHours{Enabled: true, Start: "09:00", End: "17:00"}

	assert.True(t, device.QuietHoursActive(q, clock(t, "09:00")))
	assert.True(t, device.QuietHoursActive(q, clock(t, "12:30")))
	assert.True(t, device.QuietHoursActive(q, clock(t, "17:00")))
	assert.False(t, device.QuietHoursActive(q, clock(t, "08:59")))
	assert.False(t, device.QuietHoursActive(q, clock(t, "17:01")))
}

func TestQuietHoursActive_Disabled(t *testing.T) {
	t.Parallel()

	q := device.QuietHours{Enabled: false, Start: "00:00", End: "23:59"}
	assert.False(t, device.QuietHoursActive(q, clock(t, "12:00")))
}

func TestQuietHoursActive_MalformedWindowIsIgnored(t *testing.T) {
	t.Parallel()

	// A corrupt boundary must not block delivery forever.
	q := device.QuietHours{Enabled: true, Start: "always", End: "08:00"}
	assert.False(t, device.QuietHoursActive(q, clock(t, "12:00")))
}

func TestEligible(t *testing.T) {
	t.Parallel()

	noon := clock(t, "12:00")

	tests := []struct {
		name     string
		mutate   func(*device.Device)
		category device.Category
		priority device.Priority
		want     bool
	}{
		{
			name:     "active device with default preferences",
			mutate:   func(d *device.Device) {},
			category: device.CategoryAlert,
			priority: device.PriorityNormal,
			want:     true,
		},
		{
			name:     "inactive device",
			mutate:   func(d *device.Device) { d.IsActive = false },
			category: device.CategoryAlert,
			priority: device.PriorityNormal,
			want:     false,
		},
		{
			name:     "notifications globally disabled",
			mutate:   func(d *device.Device) { d.Preferences.Enabled = false },
			category: device.CategoryAlert,
			priority: device.PriorityNormal,
			want:     false,
		},
		{
			name:     "marketing disabled by default",
			mutate:   func(d *device.Device) {},
			category: device.CategoryMarketing,
			priority: device.PriorityNormal,
			want:     false,
		},
		{
			name:     "priority opted out",
			mutate:   func(d *device.Device) { d.Preferences.Priorities[device.PriorityLow] = false },
			category: device.CategoryAlert,
			priority: device.PriorityLow,
			want:     false,
		},
		{
			name: "quiet hours block regardless of flags",
			mutate: func(d *device.Device) {
				d.Preferences.QuietHours = device.QuietHours{Enabled: true, Start: "11:00", End: "13:00"}
			},
			category: device.CategoryAlert,
			priority: device.PriorityCritical,
			want:     false,
		},
		{
			name:     "unknown category defaults to allowed",
			mutate:   func(d *device.Device) {},
			category: device.Category("billing"),
			priority: device.PriorityNormal,
			want:     true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := eligibleDevice()
			tt.mutate(d)
			assert.Equal(t, tt.want, device.Eligible(d, tt.category, tt.priority, noon))
		})
	}
}

func TestEligibleIgnoringQuietHours(t *testing.T) {
	t.Parallel()

	d := eligibleDevice()
	d.Preferences.QuietHours = device.QuietHours{Enabled: true, Start: "00:00", End: "23:59"}

	assert.False(t, device.Eligible(d, device.CategoryAlert, device.PriorityHigh, clock(t, "12:00")))
	assert.True(t, device.EligibleIgnoringQuietHours(d, device.CategoryAlert, device.PriorityHigh))
}
