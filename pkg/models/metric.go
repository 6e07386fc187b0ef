package models

import "time"

// MetricPoint is one hourly counter bucket for a (session, channel) pair.
// Prometheus covers live observability; these rows back the operator-facing
// statistics query across restarts.
type MetricPoint struct {
	ID uint `gorm:"primaryKey" json:"id"`

	SessionPhone string    `gorm:"size:32;uniqueIndex:idx_metric_bucket" json:"session_phone"`
	ChannelID    int64     `gorm:"uniqueIndex:idx_metric_bucket" json:"channel_id"`
	Bucket       time.Time `gorm:"uniqueIndex:idx_metric_bucket;index" json:"bucket"`

	MessagesSent   int64 `gorm:"default:0" json:"messages_sent"`
	MessagesFailed int64 `gorm:"default:0" json:"messages_failed"`
	FloodEvents    int64 `gorm:"default:0" json:"flood_events"`
	SpamEvents     int64 `gorm:"default:0" json:"spam_events"`
}

// TableName returns the table name for MetricPoint.
func (MetricPoint) TableName() string {
	return "metric_points"
}

// BucketFor truncates a timestamp to its hourly metric bucket.
func BucketFor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
