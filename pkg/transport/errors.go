package transport

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by transport implementations. Adapters translate
// platform-specific failures into these so the engine's error policy stays
// platform-agnostic.
var (
	// ErrPeerFlood is the platform's spam warning: the account is sending
	// too broadly, not just too fast.
	ErrPeerFlood = errors.New("peer flood: account flagged for spam")

	// ErrAuthLost means the session credential is no longer valid.
	ErrAuthLost = errors.New("authorization lost")

	// ErrRecipientGone means the recipient cannot receive messages
	// (deactivated, blocked the session, or forbids writes).
	ErrRecipientGone = errors.New("recipient unavailable")

	// ErrMessageNotFound is returned by DeleteMessage when the copy no
	// longer exists.
	ErrMessageNotFound = errors.New("message not found")
)

// FloodWaitError is the platform's rate-limit signal carrying the mandatory
// wait before the session may issue further requests.
type FloodWaitError struct {
	Duration time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.Duration)
}

// AsFloodWait extracts a flood-wait duration from an error chain.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Duration, true
	}
	return 0, false
}

// ErrorClass buckets a transport failure for the retry/quarantine policy.
type ErrorClass int

const (
	// ClassNone: no error.
	ClassNone ErrorClass = iota
	// ClassFloodWait: rate limited; quarantine the session for the
	// indicated duration and mark the send failed.
	ClassFloodWait
	// ClassSpam: spam warning; quarantine with the configured backoff and
	// surface to the operator.
	ClassSpam
	// ClassRecipientGone: permanent for this recipient; never retried.
	ClassRecipientGone
	// ClassAuthLost: fatal for the session; never retried automatically.
	ClassAuthLost
	// ClassTransient: network-level failure; retried with backoff.
	ClassTransient
	// ClassUnknown: unrecognized failure; retried once.
	ClassUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassFloodWait:
		return "flood_wait"
	case ClassSpam:
		return "spam"
	case ClassRecipientGone:
		return "recipient_gone"
	case ClassAuthLost:
		return "auth_lost"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether the dispatcher may retry a send that failed with
// this class. Flood-wait and spam need time, not retries; auth loss needs an
// operator; a gone recipient never comes back.
func (c ErrorClass) Retryable() bool {
	return c == ClassTransient || c == ClassUnknown
}

// Classify buckets an error into its ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case isFloodWait(err):
		return ClassFloodWait
	case errors.Is(err, ErrPeerFlood):
		return ClassSpam
	case errors.Is(err, ErrRecipientGone):
		return ClassRecipientGone
	case errors.Is(err, ErrAuthLost):
		return ClassAuthLost
	case isTimeout(err):
		return ClassTransient
	default:
		return ClassUnknown
	}
}

func isFloodWait(err error) bool {
	var fw *FloodWaitError
	return errors.As(err, &fw)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) {
		return t.Timeout()
	}
	return false
}
