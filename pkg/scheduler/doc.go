// Package scheduler runs the delivery loop for scheduled notifications: a
// ticker polls storage for pending records whose time has come and hands
// each to the dispatcher.
//
// # Usage
//
//	s := scheduler.New(storage, manager,
//		scheduler.WithInterval(30*time.Second),
//	)
//	go s.Start(ctx)
//
// Multiple instances may poll the same storage; the dispatcher's
// claim-before-send step guarantees each record is delivered once.
package scheduler
