package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// ============================================
// MEMBERSHIP OPERATIONS
// ============================================

// ReplaceMembers atomically rewrites the member list of a channel.
//
// The clear-and-insert runs inside one transaction so no reader ever observes
// an empty member list for a populated channel; the dispatcher resolves
// recipients against either the old set or the new one, never a partial set.
func (s *GORMStore) ReplaceMembers(ctx context.Context, channelID int64, members []*models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Upsert user rows first so the join table never references a
		// missing user.
		for _, u := range members {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"access_hash", "first_name", "last_name", "username", "phone", "is_bot", "updated_at",
				}),
			}).Create(u).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("channel_id = ?", channelID).Delete(&models.ChannelMember{}).Error; err != nil {
			return err
		}

		if len(members) > 0 {
			rows := make([]models.ChannelMember, 0, len(members))
			for _, u := range members {
				rows = append(rows, models.ChannelMember{ChannelID: channelID, UserID: u.ID})
			}
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Channel{}).Where("id = ?", channelID).
			Update("member_count", len(members)).Error
	})
}

// ListRecipients returns the fan-out recipient set for a channel: member
// users that are not bots and not active operators.
func (s *GORMStore) ListRecipients(ctx context.Context, channelID int64) ([]*models.User, error) {
	var users []*models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN channel_members cm ON cm.user_id = users.id").
		Where("cm.channel_id = ?", channelID).
		Where("users.is_bot = ?", false).
		Where("users.id NOT IN (?)",
			s.db.Model(&models.Operator{}).Select("user_id").Where("is_active = ?", true)).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

func (s *GORMStore) CountMembers(ctx context.Context, channelID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ChannelMember{}).
		Where("channel_id = ?", channelID).Count(&count).Error
	return count, err
}
