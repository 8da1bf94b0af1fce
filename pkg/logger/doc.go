// Package logger provides slog.Logger construction with environment-driven
// defaults and typed attribute helpers for the identifiers this module logs
// everywhere (user, device, notification, provider).
package logger
