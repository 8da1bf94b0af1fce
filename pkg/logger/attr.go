package logger

import (
	"log/slog"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// DeviceID records the device identifier under the key "device_id".
func DeviceID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("device_id", id)
}

// NotificationID records the record identifier under the key
// "notification_id".
func NotificationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("notification_id", id)
}

// Provider records the push provider family under the key "provider".
func Provider(p any) slog.Attr {
	if p == nil {
		return slog.Attr{}
	}
	return slog.Any("provider", p)
}
