// Package notification defines the persisted unit of delivery work: a
// Record holding one content payload against N target devices, with
// per-device sub-statuses folded into a derived overall status.
//
// The record lifecycle is pending → sent → delivered|failed, with cancelled
// reachable only from pending. BeginDispatch (or Storage.ClaimPending) is
// the claim that keeps a record from being dispatched twice; Resolve derives
// the overall status once every target entry is terminal, delivered winning
// over failed when at least one device received the payload.
//
// Read, click, and dismiss flags are orthogonal to delivery and become valid
// only after the record reaches a terminal status.
package notification
