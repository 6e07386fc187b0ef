package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// ============================================
// LEDGER OPERATIONS
// ============================================
//
// Every transition is a guarded UPDATE: the WHERE clause pins the set of
// source statuses the transition is legal from, and zero affected rows is
// resolved to either "row missing" or "illegal edge" by re-reading the row.
// This keeps the status DAG intact under concurrent writers without locks.

// InsertPending creates a pending ledger row, or leaves an existing row for
// the same (source, recipient) untouched. The unique key makes dispatch
// idempotent: re-observing the same source message never duplicates rows and
// never downgrades a row that already progressed.
func (s *GORMStore) InsertPending(ctx context.Context, rec *models.ForwardRecord) error {
	if rec.Status == "" {
		rec.Status = models.ForwardPending
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source_channel_id"}, {Name: "source_message_id"}, {Name: "recipient_id"},
		},
		DoNothing: true,
	}).Create(rec).Error
}

func (s *GORMStore) MarkSent(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, forwardedID int) error {
	return s.transition(ctx, sourceChannelID, sourceMessageID, recipientID,
		[]models.ForwardStatus{models.ForwardPending},
		map[string]any{
			"status":               models.ForwardSent,
			"forwarded_message_id": forwardedID,
			"error_message":        "",
		})
}

func (s *GORMStore) MarkFailed(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, errMsg string) error {
	return s.transition(ctx, sourceChannelID, sourceMessageID, recipientID,
		[]models.ForwardStatus{models.ForwardPending},
		map[string]any{
			"status":        models.ForwardFailed,
			"error_message": truncateError(errMsg),
		})
}

func (s *GORMStore) MarkSkipped(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, reason string) error {
	return s.transition(ctx, sourceChannelID, sourceMessageID, recipientID,
		[]models.ForwardStatus{models.ForwardPending},
		map[string]any{
			"status":        models.ForwardSkipped,
			"error_message": truncateError(reason),
		})
}

func (s *GORMStore) IncrementRetry(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64) error {
	result := s.db.WithContext(ctx).Model(&models.ForwardRecord{}).
		Where("source_channel_id = ? AND source_message_id = ? AND recipient_id = ?",
			sourceChannelID, sourceMessageID, recipientID).
		Update("retry_count", gorm.Expr("retry_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrForwardNotFound
	}
	return nil
}

// MarkDeleted transitions sent -> deleted, keyed by the forwarded-copy
// identifier, and clears the identifier. Rows in any other status are left
// alone: deletion of a copy that was never sent is meaningless.
func (s *GORMStore) MarkDeleted(ctx context.Context, recipientID int64, forwardedID int) error {
	result := s.db.WithContext(ctx).Model(&models.ForwardRecord{}).
		Where("recipient_id = ? AND forwarded_message_id = ? AND status = ?",
			recipientID, forwardedID, models.ForwardSent).
		Updates(map[string]any{
			"status":               models.ForwardDeleted,
			"forwarded_message_id": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrForwardNotFound
	}
	return nil
}

func (s *GORMStore) FindCopies(ctx context.Context, sourceChannelID int64, sourceMessageID int) ([]*models.ForwardRecord, error) {
	return listWhere[models.ForwardRecord](s.db, ctx,
		"source_channel_id = ? AND source_message_id = ? AND status = ?",
		sourceChannelID, sourceMessageID, models.ForwardSent)
}

func (s *GORMStore) FindOldSent(ctx context.Context, olderThan time.Time, limit int) ([]*models.ForwardRecord, error) {
	var rows []*models.ForwardRecord
	q := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.ForwardSent, olderThan.UTC()).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*models.ForwardRecord{}
	}
	return rows, nil
}

func (s *GORMStore) GetForward(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64) (*models.ForwardRecord, error) {
	var rec models.ForwardRecord
	err := s.db.WithContext(ctx).
		Where("source_channel_id = ? AND source_message_id = ? AND recipient_id = ?",
			sourceChannelID, sourceMessageID, recipientID).
		First(&rec).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrForwardNotFound)
	}
	return &rec, nil
}

func (s *GORMStore) Statistics(ctx context.Context, filter models.StatsFilter) (*models.ForwardStats, error) {
	type row struct {
		Status models.ForwardStatus
		N      int64
	}
	var rows []row

	q := s.db.WithContext(ctx).Model(&models.ForwardRecord{}).
		Select("status, COUNT(*) AS n").Group("status")
	q = applyStatsFilter(q, filter)

	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &models.ForwardStats{}
	for _, r := range rows {
		stats.Total += r.N
		switch r.Status {
		case models.ForwardPending:
			stats.Pending = r.N
		case models.ForwardSent:
			stats.Sent = r.N
		case models.ForwardFailed:
			stats.Failed = r.N
		case models.ForwardSkipped:
			stats.Skipped = r.N
		case models.ForwardDeleted:
			stats.Deleted = r.N
		}
	}
	return stats, nil
}

func applyStatsFilter(q *gorm.DB, filter models.StatsFilter) *gorm.DB {
	if filter.SessionPhone != "" {
		q = q.Where("session_phone = ?", filter.SessionPhone)
	}
	if filter.ChannelID != 0 {
		q = q.Where("source_channel_id = ?", filter.ChannelID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at < ?", filter.Until.UTC())
	}
	return q
}

// transition performs a guarded status update. from lists the statuses the
// update is legal from; an update touching zero rows is classified as
// ErrForwardNotFound (no such row) or ErrInvalidTransition (row exists but
// sits outside the allowed set).
func (s *GORMStore) transition(ctx context.Context, sourceChannelID int64, sourceMessageID int, recipientID int64, from []models.ForwardStatus, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.ForwardRecord{}).
		Where("source_channel_id = ? AND source_message_id = ? AND recipient_id = ? AND status IN ?",
			sourceChannelID, sourceMessageID, recipientID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	_, err := s.GetForward(ctx, sourceChannelID, sourceMessageID, recipientID)
	if err != nil {
		if errors.Is(err, models.ErrForwardNotFound) {
			return models.ErrForwardNotFound
		}
		return err
	}
	return models.ErrInvalidTransition
}
