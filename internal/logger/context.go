package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds dispatch-scoped logging context. The dispatcher creates
// one per fan-out and threads it through the queue task so every log line of
// one delivery carries the same correlation fields.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Session   string    // Session phone performing the operation
	Channel   int64     // Source channel ID
	Recipient int64     // Recipient user ID
	MessageID int       // Source message ID
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for one source message dispatch.
func NewLogContext(session string, channel int64, messageID int) *LogContext {
	return &LogContext{
		Session:   session,
		Channel:   channel,
		MessageID: messageID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	copied := *lc
	return &copied
}

// WithRecipient returns a copy with the recipient set
func (lc *LogContext) WithRecipient(recipient int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Recipient = recipient
	}
	return clone
}
