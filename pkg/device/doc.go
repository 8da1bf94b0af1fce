// Package device implements the push-device registry: device records, push
// tokens, delivery preferences, and the eligibility filter that decides
// whether a device should receive a given notification.
//
// # Architecture
//
//   - Storage: persistence behind a small interface (memory and postgres
//     implementations included)
//   - Registry: lifecycle operations, serialized per device ID
//   - Eligibility: pure predicates over a device snapshot
//
// # Usage
//
//	registry := device.NewRegistry(device.NewMemoryStorage())
//
//	d, err := registry.Register(ctx, device.RegisterInput{
//	    OwnerID:  "user-1",
//	    DeviceID: "phone-1",
//	    Platform: device.PlatformIOS,
//	})
//
//	_, err = registry.RotateToken(ctx, "phone-1", device.ProviderAPNS, apnsToken, nil)
//
//	eligible, err := registry.ListEligible(ctx, "user-1", device.CategoryAlert, device.PriorityHigh)
//
// Registration is an idempotent upsert: re-registering an existing device ID
// updates the record in place and never duplicates it.
//
// # Quiet hours
//
// Quiet-hours windows are minute-resolution "HH:MM" clock intervals,
// inclusive at both boundaries, and may span midnight (start > end). See
// QuietHoursActive for the exact contract.
package device
