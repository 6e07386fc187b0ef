package models

import "time"

// ForwardStatus represents the state of one forwarded copy in the ledger.
type ForwardStatus string

const (
	// ForwardPending is the initial state, written at dispatch time.
	ForwardPending ForwardStatus = "pending"
	// ForwardSent means the copy was delivered; ForwardedMessageID is set.
	ForwardSent ForwardStatus = "sent"
	// ForwardFailed means delivery failed after retry exhaustion or a
	// permanent error class.
	ForwardFailed ForwardStatus = "failed"
	// ForwardSkipped means the copy was intentionally not sent (forwarding
	// disabled, no owning session, rate budget exhausted).
	ForwardSkipped ForwardStatus = "skipped"
	// ForwardDeleted means the previously sent copy was revoked.
	ForwardDeleted ForwardStatus = "deleted"
)

// IsValid checks if the status is a valid ForwardStatus.
func (s ForwardStatus) IsValid() bool {
	switch s {
	case ForwardPending, ForwardSent, ForwardFailed, ForwardSkipped, ForwardDeleted:
		return true
	}
	return false
}

// CanTransition reports whether the status may move to next. The transition
// graph is pending -> {sent, failed, skipped} and sent -> deleted; every
// other edge is rejected.
func (s ForwardStatus) CanTransition(next ForwardStatus) bool {
	switch s {
	case ForwardPending:
		return next == ForwardSent || next == ForwardFailed || next == ForwardSkipped
	case ForwardSent:
		return next == ForwardDeleted
	default:
		return false
	}
}

// ForwardRecord is one row of the forward ledger: one delivery attempt of one
// source message to one recipient.
//
// The triple (SourceChannelID, SourceMessageID, RecipientID) is unique, which
// makes pending inserts idempotent across dispatcher retries and restarts.
// ForwardedMessageID identifies the private copy placed in the recipient's
// chat; it is nil until the copy is sent and cleared again after revocation.
type ForwardRecord struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SourceChannelID int64 `gorm:"uniqueIndex:idx_forward_key;index:idx_forward_source" json:"source_channel_id"`
	SourceMessageID int   `gorm:"uniqueIndex:idx_forward_key;index:idx_forward_source" json:"source_message_id"`
	RecipientID     int64 `gorm:"uniqueIndex:idx_forward_key;index" json:"recipient_id"`

	SessionPhone       string `gorm:"size:32;index" json:"session_phone"`
	ForwardedMessageID *int   `gorm:"index" json:"forwarded_message_id,omitempty"`

	Status       ForwardStatus `gorm:"default:pending;size:16;index" json:"status"`
	RetryCount   int           `gorm:"default:0" json:"retry_count"`
	ErrorMessage string        `gorm:"size:500" json:"error_message,omitempty"`

	// GroupedID links the parts of an album / media group; parts of one
	// group are enqueued in observation order.
	GroupedID int64 `gorm:"default:0;index" json:"grouped_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for ForwardRecord.
func (ForwardRecord) TableName() string {
	return "forward_records"
}

// ForwardStats aggregates ledger rows for the statistics query.
type ForwardStats struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
	Deleted int64 `json:"deleted"`
}

// StatsFilter narrows a statistics query. Zero values mean "no filter".
type StatsFilter struct {
	SessionPhone string
	ChannelID    int64
	Since        time.Time
	Until        time.Time
}
