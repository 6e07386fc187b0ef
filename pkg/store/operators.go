package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// ============================================
// OPERATOR OPERATIONS
// ============================================

func (s *GORMStore) UpsertOperator(ctx context.Context, op *models.Operator) error {
	if op.Role == "" {
		op.Role = models.RoleAdmin
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "is_active", "updated_at"}),
	}).Create(op).Error
}

func (s *GORMStore) ListActiveOperatorIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Operator{}).
		Where("is_active = ?", true).Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GORMStore) IsActiveOperator(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Operator{}).
		Where("user_id = ? AND is_active = ?", userID, true).Count(&count).Error
	return count > 0, err
}
