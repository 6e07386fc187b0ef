package models

import (
	"time"
)

// SessionStatus represents the lifecycle state of an impersonating session.
type SessionStatus string

const (
	// SessionActive means the session holds a live client connection.
	SessionActive SessionStatus = "active"
	// SessionPaused means the session is stopped, either by an operator or
	// automatically after a rate-limit / spam signal (quarantine).
	SessionPaused SessionStatus = "paused"
	// SessionError means the session hit a fatal error (usually auth loss)
	// and will not be restarted without operator intervention.
	SessionError SessionStatus = "error"
)

// IsValid checks if the status is a valid SessionStatus.
func (s SessionStatus) IsValid() bool {
	return s == SessionActive || s == SessionPaused || s == SessionError
}

// Session represents one impersonating client account.
//
// The phone number is the primary identity; the platform user ID is learned
// after the first successful authentication. Credential holds the opaque
// string that restores the session and must never appear in logs.
type Session struct {
	Phone      string `gorm:"primaryKey;size:32" json:"phone"`
	UserID     int64  `gorm:"index" json:"user_id"`
	Credential string `gorm:"not null" json:"-"`

	Status SessionStatus `gorm:"default:paused;size:16;index" json:"status"`

	// Quarantine bookkeeping. AutoPaused distinguishes a penalty pause from
	// an operator pause; PenaltyUntil is when the session becomes eligible
	// for automatic resume.
	AutoPaused   bool       `gorm:"default:false" json:"auto_paused"`
	PauseReason  string     `gorm:"size:255" json:"pause_reason,omitempty"`
	PenaltyUntil *time.Time `json:"penalty_until,omitempty"`

	LastError  string     `gorm:"size:500" json:"last_error,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Session.
func (Session) TableName() string {
	return "sessions"
}

// ResumeEligible reports whether an auto-paused session may be reactivated
// at the given instant.
func (s *Session) ResumeEligible(now time.Time) bool {
	if s.Status != SessionPaused || !s.AutoPaused {
		return false
	}
	return s.PenaltyUntil == nil || !now.Before(*s.PenaltyUntil)
}
