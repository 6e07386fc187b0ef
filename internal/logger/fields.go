package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so session activity
// can be aggregated and queried per session, channel and recipient.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Session & Routing
	// ========================================================================
	KeySession   = "session"   // Session phone number
	KeyChannel   = "channel"   // Source channel ID
	KeyRecipient = "recipient" // Recipient user ID
	KeyMessage   = "msg_id"    // Source message ID
	KeyForwarded = "fwd_id"    // Forwarded-copy message ID
	KeyGrouped   = "grouped"   // Album / media group ID
	KeyEvent     = "event"     // Update event kind (new, edit, delete, ...)

	// ========================================================================
	// Dispatch & Rate Control
	// ========================================================================
	KeyDispatch   = "dispatch_id" // Correlation ID of one fan-out run
	KeyStatus     = "status"      // Ledger status (pending, sent, failed, ...)
	KeyErrorClass = "error_class" // Transport error classification
	KeyRetry      = "retry"       // Retry attempt number
	KeyChunk      = "chunk"       // Fan-out chunk index
	KeyRecipients = "recipients"  // Recipient count
	KeyWait       = "wait"        // Imposed wait / penalty duration
	KeyQueueDepth = "queue_depth" // Pending tasks on a session queue

	// ========================================================================
	// Performance & Errors
	// ========================================================================
	KeyDuration = "duration_ms" // Operation duration in milliseconds
	KeyError    = "error"       // Error message
	KeyCount    = "count"       // Generic count
)

// Err returns a standard error attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Session returns a standard session attribute.
func Session(phone string) slog.Attr {
	return slog.String(KeySession, phone)
}

// Channel returns a standard channel attribute.
func Channel(id int64) slog.Attr {
	return slog.Int64(KeyChannel, id)
}

// Recipient returns a standard recipient attribute.
func Recipient(id int64) slog.Attr {
	return slog.Int64(KeyRecipient, id)
}

// FormatFields renders key/value pairs for human-readable diagnostics.
func FormatFields(args ...any) string {
	out := ""
	for i := 0; i+1 < len(args); i += 2 {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%v=%v", args[i], args[i+1])
	}
	return out
}
