package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for spans. Format: <namespace>.<attribute>
const (
	// ========================================================================
	// Session & routing attributes
	// ========================================================================
	AttrSession   = "session.phone"
	AttrChannel   = "forward.channel_id"
	AttrMessage   = "forward.message_id"
	AttrRecipient = "forward.recipient_id"
	AttrForwarded = "forward.copy_id"
	AttrGrouped   = "forward.grouped_id"
	AttrStatus    = "forward.status"
	AttrChunk     = "forward.chunk"
	AttrEventKind = "event.kind"

	// ========================================================================
	// Error policy attributes
	// ========================================================================
	AttrErrorClass = "error.class"
	AttrRetry      = "retry.attempt"
	AttrPenalty    = "quarantine.penalty_seconds"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanDispatch       = "dispatch.fanout"
	SpanSend           = "transport.send"
	SpanDelete         = "transport.delete"
	SpanRevokeSweep    = "revoke.sweep"
	SpanMembershipSync = "membership.sync"
	SpanResumeSweep    = "supervisor.resume_sweep"
)

// Session returns an attribute for the session phone.
func Session(phone string) attribute.KeyValue {
	return attribute.String(AttrSession, phone)
}

// Channel returns an attribute for the source channel ID.
func Channel(id int64) attribute.KeyValue {
	return attribute.Int64(AttrChannel, id)
}

// MessageID returns an attribute for the source message ID.
func MessageID(id int) attribute.KeyValue {
	return attribute.Int(AttrMessage, id)
}

// Recipient returns an attribute for the recipient user ID.
func Recipient(id int64) attribute.KeyValue {
	return attribute.Int64(AttrRecipient, id)
}

// ForwardStatus returns an attribute for the ledger status.
func ForwardStatus(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// ErrorClass returns an attribute for the transport error class.
func ErrorClass(class string) attribute.KeyValue {
	return attribute.String(AttrErrorClass, class)
}

// StartDispatchSpan starts a span covering one source-message fan-out.
func StartDispatchSpan(ctx context.Context, session string, channelID int64, messageID int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Session(session),
		Channel(channelID),
		MessageID(messageID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanDispatch, trace.WithAttributes(allAttrs...))
}

// StartSendSpan starts a span covering one per-recipient send task.
func StartSendSpan(ctx context.Context, session string, recipientID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Session(session),
		Recipient(recipientID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanSend, trace.WithAttributes(allAttrs...))
}
