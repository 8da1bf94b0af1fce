package device

import (
	"time"
)

// Platform identifies the client platform a device runs on.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// Valid reports whether the platform is one of the supported values.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Provider identifies a push-delivery provider family. Each family has its
// own token format, so a device may hold one active token per provider.
type Provider string

const (
	ProviderFCM     Provider = "fcm"
	ProviderAPNS    Provider = "apns"
	ProviderWebPush Provider = "webpush"
)

// Valid reports whether the provider is one of the supported families.
func (p Provider) Valid() bool {
	switch p {
	case ProviderFCM, ProviderAPNS, ProviderWebPush:
		return true
	}
	return false
}

// DefaultProvider returns the provider family conventionally used for the
// given platform. Callers may still register tokens for other providers.
func DefaultProvider(p Platform) Provider {
	switch p {
	case PlatformIOS:
		return ProviderAPNS
	case PlatformWeb:
		return ProviderWebPush
	default:
		return ProviderFCM
	}
}

// Category classifies notification content for preference filtering.
type Category string

const (
	CategorySystem    Category = "system"
	CategoryAlert     Category = "alert"
	CategoryReminder  Category = "reminder"
	CategorySocial    Category = "social"
	CategoryMarketing Category = "marketing"
)

// Categories lists all known categories.
func Categories() []Category {
	return []Category{CategorySystem, CategoryAlert, CategoryReminder, CategorySocial, CategoryMarketing}
}

// Priority expresses delivery urgency, mapped by adapters into each
// provider's native urgency semantics.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists all known priorities.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
}

// PushToken is a provider-issued delivery token. A device keeps its token
// history; at most one token per provider is active at a time.
type PushToken struct {
	Provider  Provider   `json:"provider"`
	Token     string     `json:"token"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Device is a registered push endpoint owned by a single user.
type Device struct {
	OwnerID      string            `json:"owner_id"`
	DeviceID     string            `json:"device_id"`
	Platform     Platform          `json:"platform"`
	Tokens       []PushToken       `json:"tokens,omitempty"`
	Preferences  Preferences       `json:"preferences"`
	Capabilities map[string]bool   `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IsActive     bool              `json:"is_active"`
	IsVerified   bool              `json:"is_verified"`
	Interactions int64             `json:"interactions"`
	LastActiveAt time.Time         `json:"last_active_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ActiveToken returns the active token for the given provider, or nil when
// the device has none.
func (d *Device) ActiveToken(provider Provider) *PushToken {
	for i := range d.Tokens {
		if d.Tokens[i].Provider == provider && d.Tokens[i].IsActive {
			return &d.Tokens[i]
		}
	}
	return nil
}

// AnyActiveToken returns the first active, non-expired token on the device
// regardless of provider. Providers are scanned in token insertion order.
func (d *Device) AnyActiveToken(now time.Time) *PushToken {
	for i := range d.Tokens {
		t := &d.Tokens[i]
		if !t.IsActive {
			continue
		}
		if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
			continue
		}
		return t
	}
	return nil
}

// setToken deactivates any active token for the provider and appends token
// as the new active one. Tokens for other providers are untouched.
func (d *Device) setToken(provider Provider, token string, expiresAt *time.Time, now time.Time) {
	for i := range d.Tokens {
		if d.Tokens[i].Provider == provider && d.Tokens[i].IsActive {
			d.Tokens[i].IsActive = false
		}
	}
	d.Tokens = append(d.Tokens, PushToken{
		Provider:  provider,
		Token:     token,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
}

// deactivate marks the device and every token on it inactive. Irreversible
// without re-registration.
func (d *Device) deactivate(now time.Time) {
	d.IsActive = false
	for i := range d.Tokens {
		d.Tokens[i].IsActive = false
	}
	d.UpdatedAt = now
}
