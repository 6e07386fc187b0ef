package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// ============================================
// CHANNEL OPERATIONS
// ============================================

// UpsertChannel inserts or refreshes a channel record discovered during
// membership sync. Only sync-owned columns are overwritten on conflict;
// operator policy (forward_enabled, delay overrides) survives re-sync.
func (s *GORMStore) UpsertChannel(ctx context.Context, channel *models.Channel) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_hash", "title", "username", "member_count", "owning_session", "updated_at",
		}),
	}).Create(channel).Error
}

func (s *GORMStore) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	return getByField[models.Channel](s.db, ctx, "id", channelID, models.ErrChannelNotFound)
}

func (s *GORMStore) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	return listAll[models.Channel](s.db, ctx, "title")
}

func (s *GORMStore) ListMonitored(ctx context.Context, owningSession string) ([]*models.Channel, error) {
	return listWhere[models.Channel](s.db, ctx,
		"forward_enabled = ? AND owning_session = ?", true, owningSession)
}

func (s *GORMStore) SetChannelForwarding(ctx context.Context, channelID int64, enabled bool) error {
	return updateFields[models.Channel](s.db, ctx, "id", channelID, map[string]any{
		"forward_enabled": enabled,
	}, models.ErrChannelNotFound)
}

func (s *GORMStore) SetChannelDelays(ctx context.Context, channelID int64, baseMs, perMemberMs, minMs, maxMs int) error {
	return updateFields[models.Channel](s.db, ctx, "id", channelID, map[string]any{
		"base_delay_ms":       baseMs,
		"per_member_delay_ms": perMemberMs,
		"min_delay_ms":        minMs,
		"max_delay_ms":        maxMs,
	}, models.ErrChannelNotFound)
}
