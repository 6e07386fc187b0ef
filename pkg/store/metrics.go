package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// ============================================
// METRIC OPERATIONS
// ============================================

// AddMetric increments the hourly counter bucket for (session, channel).
// The bucket row is created on first touch; later increments are additive
// upserts so concurrent queues never lose counts.
func (s *GORMStore) AddMetric(ctx context.Context, phone string, channelID int64, delta MetricDelta, at time.Time) error {
	point := &models.MetricPoint{
		SessionPhone:   phone,
		ChannelID:      channelID,
		Bucket:         models.BucketFor(at),
		MessagesSent:   delta.Sent,
		MessagesFailed: delta.Failed,
		FloodEvents:    delta.Flood,
		SpamEvents:     delta.Spam,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "session_phone"}, {Name: "channel_id"}, {Name: "bucket"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"messages_sent":   gorm.Expr("messages_sent + ?", delta.Sent),
			"messages_failed": gorm.Expr("messages_failed + ?", delta.Failed),
			"flood_events":    gorm.Expr("flood_events + ?", delta.Flood),
			"spam_events":     gorm.Expr("spam_events + ?", delta.Spam),
		}),
	}).Create(point).Error
}

func (s *GORMStore) QueryMetrics(ctx context.Context, filter models.StatsFilter) ([]*models.MetricPoint, error) {
	var points []*models.MetricPoint
	q := s.db.WithContext(ctx).Model(&models.MetricPoint{}).Order("bucket DESC")
	if filter.SessionPhone != "" {
		q = q.Where("session_phone = ?", filter.SessionPhone)
	}
	if filter.ChannelID != 0 {
		q = q.Where("channel_id = ?", filter.ChannelID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("bucket >= ?", models.BucketFor(filter.Since))
	}
	if !filter.Until.IsZero() {
		q = q.Where("bucket < ?", models.BucketFor(filter.Until))
	}
	if err := q.Find(&points).Error; err != nil {
		return nil, err
	}
	if points == nil {
		points = []*models.MetricPoint{}
	}
	return points, nil
}
