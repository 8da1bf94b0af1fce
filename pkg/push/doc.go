// Package push is the delivery engine tying the other packages together: it
// resolves send requests into eligible target devices, persists notification
// records, fans dispatch out across provider adapters, and folds per-device
// outcomes back into an overall delivery status.
//
// # Usage
//
//	registry := device.NewRegistry(device.NewMemoryStorage())
//	adapters := dispatch.NewRegistry(fcmAdapter, apnsAdapter)
//	mgr := push.NewManager(registry, notification.NewMemoryStorage(), adapters)
//
//	result, err := mgr.Send(ctx, push.SendRequest{
//		UserIDs: []string{"user-1"},
//		Content: notification.Content{
//			Title:    "Deploy finished",
//			Message:  "api-gateway v2.14 is live",
//			Category: device.CategorySystem,
//			Priority: device.PriorityHigh,
//		},
//	})
//
// Result carries the per-device breakdown; a provider rejecting one device
// is reported there, not as a Go error. Delivery is best-effort with no
// engine-driven retries: resubmit a failed notification to try again.
//
// Scheduled sends persist the record and leave it pending; a scheduler (see
// package scheduler) picks it up via DispatchRecord when it comes due.
package push
