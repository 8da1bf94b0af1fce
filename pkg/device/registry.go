package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInactiveAfter is the inactivity window after which the cleanup
// sweep deactivates a device.
const DefaultInactiveAfter = 90 * 24 * time.Hour

// Registry owns the device lifecycle: registration, token rotation,
// preference updates, deactivation, and the inactivity sweep. All mutations
// for a given device ID are serialized so a token rotation can never
// interleave with a concurrent re-registration.
type Registry struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // deviceID -> write lock
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger for the Registry.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryClock overrides the time source, primarily for tests.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a device registry backed by the given storage.
func NewRegistry(storage Storage, opts ...RegistryOption) *Registry {
	r := &Registry{
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterInput carries the fields accepted at registration time.
type RegisterInput struct {
	OwnerID      string
	DeviceID     string
	Platform     Platform
	Metadata     map[string]string
	Capabilities map[string]bool
	Preferences  *PreferencesPatch
	Verified     bool
}

func (in RegisterInput) validate() error {
	if in.DeviceID == "" {
		return fmt.Errorf("%w: device ID is required", ErrInvalidRegistration)
	}
	if in.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", ErrInvalidRegistration)
	}
	if !in.Platform.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPlatform, in.Platform)
	}
	return nil
}

// Register upserts a device keyed by its device ID. An unknown device ID
// creates a fresh record with default preferences; a known one is updated in
// place, merging metadata, capabilities, and any preference patch
// non-destructively. Re-registration reactivates a previously deactivated
// device.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*Device, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	unlock := r.lock(in.DeviceID)
	defer unlock()

	now := r.now()
	d, err := r.storage.Get(ctx, in.DeviceID)
	switch {
	case err == nil:
		d.OwnerID = in.OwnerID
		d.Platform = in.Platform
		d.IsActive = true
		if in.Verified {
			d.IsVerified = true
		}
		mergeStringMap(&d.Metadata, in.Metadata)
		mergeBoolMap(&d.Capabilities, in.Capabilities)
	case isNotFound(err):
		d = &Device{
			OwnerID:      in.OwnerID,
			DeviceID:     in.DeviceID,
			Platform:     in.Platform,
			Preferences:  DefaultPreferences(),
			Metadata:     in.Metadata,
			Capabilities: in.Capabilities,
			IsActive:     true,
			IsVerified:   in.Verified,
			CreatedAt:    now,
		}
	default:
		return nil, fmt.Errorf("failed to load device %s: %w", in.DeviceID, err)
	}

	if in.Preferences != nil {
		d.Preferences.merge(*in.Preferences)
	}
	d.LastActiveAt = now
	d.UpdatedAt = now

	if err := r.storage.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save device %s: %w", in.DeviceID, err)
	}
	return d, nil
}

// RotateToken replaces the active token for one provider on a device. The
// previous token for that provider is deactivated and kept in the token
// history; other providers' tokens are untouched.
func (r *Registry) RotateToken(ctx context.Context, deviceID string, provider Provider, token string, expiresAt *time.Time) (*Device, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidRegistration)
	}
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}

	unlock := r.lock(deviceID)
	defer unlock()

	d, err := r.storage.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, ErrDeviceInactive
	}

	now := r.now()
	d.setToken(provider, token, expiresAt, now)
	d.LastActiveAt = now
	d.UpdatedAt = now

	if err := r.storage.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save device %s: %w", deviceID, err)
	}

	r.logger.LogAttrs(ctx, slog.LevelDebug, "rotated push token",
		slog.String("device_id", deviceID),
		slog.String("provider", string(provider)),
	)
	return d, nil
}

// DeactivateToken marks the device's token for the given provider inactive
// without touching the device itself. Used when a provider reports the token
// as no longer registered.
func (r *Registry) DeactivateToken(ctx context.Context, deviceID string, provider Provider) error {
	unlock := r.lock(deviceID)
	defer unlock()

	d, err := r.storage.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	changed := false
	for i := range d.Tokens {
		if d.Tokens[i].Provider == provider && d.Tokens[i].IsActive {
			d.Tokens[i].IsActive = false
			changed = true
		}
	}
	if !changed {
		return nil
	}
	d.UpdatedAt = r.now()
	return r.storage.Save(ctx, d)
}

// UpdatePreferences shallow-merges the patch into the device's stored
// preferences.
func (r *Registry) UpdatePreferences(ctx context.Context, deviceID string, patch PreferencesPatch) (*Device, error) {
	unlock := r.lock(deviceID)
	defer unlock()

	d, err := r.storage.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	d.Preferences.merge(patch)
	d.UpdatedAt = r.now()

	if err := r.storage.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save device %s: %w", deviceID, err)
	}
	return d, nil
}

// Touch records activity on a device, refreshing its activity timestamp and
// bumping the interaction counter. Keeps the device clear of the inactivity
// sweep.
func (r *Registry) Touch(ctx context.Context, deviceID string) error {
	unlock := r.lock(deviceID)
	defer unlock()

	d, err := r.storage.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	now := r.now()
	d.Interactions++
	d.LastActiveAt = now
	d.UpdatedAt = now
	return r.storage.Save(ctx, d)
}

// Deactivate marks the device and all its tokens inactive. The device stays
// in storage and can be revived only by re-registration.
func (r *Registry) Deactivate(ctx context.Context, deviceID string) error {
	unlock := r.lock(deviceID)
	defer unlock()

	d, err := r.storage.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	d.deactivate(r.now())

	if err := r.storage.Save(ctx, d); err != nil {
		return fmt.Errorf("failed to save device %s: %w", deviceID, err)
	}

	r.logger.LogAttrs(ctx, slog.LevelInfo, "deactivated device",
		slog.String("device_id", deviceID),
	)
	return nil
}

// CleanupInactive deactivates devices with no recorded activity within
// maxAge and returns the number affected.
func (r *Registry) CleanupInactive(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = DefaultInactiveAfter
	}
	cutoff := r.now().Add(-maxAge)

	count, err := r.storage.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("inactivity sweep failed: %w", err)
	}
	if count > 0 {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "deactivated inactive devices",
			slog.Int64("count", count),
			slog.Time("cutoff", cutoff),
		)
	}
	return count, nil
}

// Get retrieves a single device.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Device, error) {
	return r.storage.Get(ctx, deviceID)
}

// ListByOwner returns the owner's devices.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]Device, error) {
	return r.storage.ListByOwner(ctx, ownerID, activeOnly)
}

// ListEligible returns the owner's devices that pass the eligibility filter
// for the given category and priority at the current instant.
func (r *Registry) ListEligible(ctx context.Context, ownerID string, category Category, priority Priority) ([]Device, error) {
	devices, err := r.storage.ListByOwner(ctx, ownerID, true)
	if err != nil {
		return nil, err
	}

	now := r.now()
	eligible := make([]Device, 0, len(devices))
	for _, d := range devices {
		if Eligible(&d, category, priority, now) {
			eligible = append(eligible, d)
		}
	}
	return eligible, nil
}

// lock acquires the per-device write lock and returns its release func.
// Lock entries are retained for the registry's lifetime; the set of device
// IDs a single instance writes is small relative to the store.
func (r *Registry) lock(deviceID string) func() {
	r.mu.Lock()
	l, ok := r.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[deviceID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

func mergeStringMap(dst *map[string]string, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

func mergeBoolMap(dst *map[string]bool, src map[string]bool) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = make(map[string]bool, len(src))
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}
