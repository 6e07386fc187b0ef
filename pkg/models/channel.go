package models

import "time"

// Channel represents a monitored broadcast channel.
//
// OwningSession is the phone of the session that holds administrative rights
// in this channel; only messages observed through the owning session trigger
// fan-out. The delay fields form the per-channel throttle: the effective gap
// between consecutive sends originated from this channel is
// clamp(base + members*perMember, min, max), in milliseconds.
type Channel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccessHash  int64  `json:"-"`
	Title       string `gorm:"size:255" json:"title"`
	Username    string `gorm:"size:255" json:"username,omitempty"`
	MemberCount int    `json:"member_count"`

	ForwardEnabled bool   `gorm:"default:false;index" json:"forward_enabled"`
	OwningSession  string `gorm:"size:32;index" json:"owning_session"`

	BaseDelayMs      int `gorm:"default:0" json:"base_delay_ms"`
	PerMemberDelayMs int `gorm:"default:0" json:"per_member_delay_ms"`
	MinDelayMs       int `gorm:"default:0" json:"min_delay_ms"`
	MaxDelayMs       int `gorm:"default:0" json:"max_delay_ms"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Channel.
func (Channel) TableName() string {
	return "channels"
}

// SendGap computes the minimum interval between consecutive sends originated
// from this channel, scaled by the current member count.
func (c *Channel) SendGap() time.Duration {
	ms := c.BaseDelayMs + c.MemberCount*c.PerMemberDelayMs
	if c.MinDelayMs > 0 && ms < c.MinDelayMs {
		ms = c.MinDelayMs
	}
	if c.MaxDelayMs > 0 && ms > c.MaxDelayMs {
		ms = c.MaxDelayMs
	}
	return time.Duration(ms) * time.Millisecond
}

// ChannelMember is one row of the channel membership join table. The member
// list for a channel is rewritten atomically on every membership sync.
type ChannelMember struct {
	ChannelID int64 `gorm:"primaryKey;autoIncrement:false" json:"channel_id"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
}

// TableName returns the table name for ChannelMember.
func (ChannelMember) TableName() string {
	return "channel_members"
}
