package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Channel records a pub/sub channel name.
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

// Key records a store key.
func Key(key string) slog.Attr {
	return slog.String("key", key)
}

// Attempt records the attempt number of a retried operation.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// HandlerID records a subscription handler identifier.
// If id is nil, it returns an empty Attr.
func HandlerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("handler_id", id)
}

// MessageID records the message identifier under the key "message_id".
// If id is nil, it returns an empty Attr.
func MessageID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("message_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
