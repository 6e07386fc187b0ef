package store

import (
	"context"
	"time"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// Store is the persistence gateway consumed by the forwarding engine.
//
// All implementations must be safe for concurrent use: ledger writes arrive
// from every per-session queue in parallel. The unique index on
// (source_channel_id, source_message_id, recipient_id) makes InsertPending
// idempotent, and member replacement runs inside a single transaction.
type Store interface {
	SessionStore
	ChannelStore
	MemberStore
	OperatorStore
	Ledger
	MetricStore

	Ping(ctx context.Context) error
	Close() error
}

// SessionStore persists impersonating session records.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, phone string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	DeleteSession(ctx context.Context, phone string) error

	// SetSessionActive marks the session active and records the platform
	// user ID learned at connect time. Clears quarantine bookkeeping.
	SetSessionActive(ctx context.Context, phone string, userID int64) error

	// PauseSession marks the session paused. autoPaused distinguishes a
	// penalty pause (eligible for automatic resume once penaltyUntil has
	// passed) from an operator pause.
	PauseSession(ctx context.Context, phone, reason string, autoPaused bool, penaltyUntil *time.Time) error

	// SetSessionError marks the session failed; it will not be restarted
	// automatically.
	SetSessionError(ctx context.Context, phone, lastError string) error

	// TouchSession records activity for the session.
	TouchSession(ctx context.Context, phone string, at time.Time) error

	// SaveCredential stores the opaque transport credential for the session.
	SaveCredential(ctx context.Context, phone, credential string) error

	// ListResumable returns auto-paused sessions whose penalty expired at
	// or before now.
	ListResumable(ctx context.Context, now time.Time) ([]*models.Session, error)
}

// ChannelStore persists monitored channel records.
type ChannelStore interface {
	// UpsertChannel inserts or refreshes a channel observed during
	// membership sync. Operator-controlled policy fields (forward toggle,
	// delay overrides) are preserved on conflict.
	UpsertChannel(ctx context.Context, channel *models.Channel) error

	GetChannel(ctx context.Context, channelID int64) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]*models.Channel, error)

	// ListMonitored returns forward-enabled channels owned by the session.
	ListMonitored(ctx context.Context, owningSession string) ([]*models.Channel, error)

	SetChannelForwarding(ctx context.Context, channelID int64, enabled bool) error
	SetChannelDelays(ctx context.Context, channelID int64, baseMs, perMemberMs, minMs, maxMs int) error
}

// MemberStore persists channel membership.
type MemberStore interface {
	// ReplaceMembers atomically rewrites the member list of a channel:
	// recipients are upserted as users, the previous member rows are
	// removed and the new set inserted inside one transaction, and the
	// channel's member count is refreshed.
	ReplaceMembers(ctx context.Context, channelID int64, members []*models.User) error

	// ListRecipients returns the channel members eligible for fan-out:
	// non-bot users that are not active operators.
	ListRecipients(ctx context.Context, channelID int64) ([]*models.User, error)

	CountMembers(ctx context.Context, channelID int64) (int64, error)
}

// OperatorStore persists control-plane operators.
type OperatorStore interface {
	UpsertOperator(ctx context.Context, op *models.Operator) error
	ListActiveOperatorIDs(ctx context.Context) ([]int64, error)
	IsActiveOperator(ctx context.Context, userID int64) (bool, error)
}

// Ledger is the durable record of every forward attempt.
//
// Status transitions are confined to pending -> {sent, failed, skipped} and
// sent -> deleted; implementations reject every other edge with
// models.ErrInvalidTransition.
type Ledger interface {
	// InsertPending creates a pending row for (source, recipient), or leaves
	// an existing row untouched. Never downgrades an existing status.
	InsertPending(ctx context.Context, rec *models.ForwardRecord) error

	// MarkSent transitions pending -> sent and records the identifier of
	// the forwarded copy.
	MarkSent(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, forwardedID int) error

	// MarkFailed transitions pending -> failed with the terminal error.
	MarkFailed(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, errMsg string) error

	// MarkSkipped transitions pending -> skipped with the skip reason.
	MarkSkipped(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, reason string) error

	// IncrementRetry bumps the retry counter for the row.
	IncrementRetry(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64) error

	// MarkDeleted transitions sent -> deleted by the forwarded-copy
	// identifier and clears it.
	MarkDeleted(ctx context.Context, recipientID int64, forwardedID int) error

	// FindCopies returns the sent copies of one source message.
	FindCopies(ctx context.Context, sourceChannelID int64, sourceMessageID int) ([]*models.ForwardRecord, error)

	// FindOldSent returns sent rows created before the cutoff, oldest
	// first, up to limit rows (0 means no limit).
	FindOldSent(ctx context.Context, olderThan time.Time, limit int) ([]*models.ForwardRecord, error)

	// GetForward returns the ledger row for (source, recipient).
	GetForward(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64) (*models.ForwardRecord, error)

	// Statistics aggregates ledger rows under the filter.
	Statistics(ctx context.Context, filter models.StatsFilter) (*models.ForwardStats, error)
}

// MetricStore persists per-session, per-channel counter buckets.
type MetricStore interface {
	// AddMetric increments the hourly bucket for (session, channel).
	AddMetric(ctx context.Context, phone string, channelID int64, delta MetricDelta, at time.Time) error

	// QueryMetrics returns buckets for the filter, newest first.
	QueryMetrics(ctx context.Context, filter models.StatsFilter) ([]*models.MetricPoint, error)
}

// MetricDelta is one counter increment applied to a metric bucket.
type MetricDelta struct {
	Sent   int64
	Failed int64
	Flood  int64
	Spam   int64
}
