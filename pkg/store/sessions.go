package store

import (
	"context"
	"time"

	"github.com/tgmirror/tgmirror/pkg/models"
)

// ============================================
// SESSION OPERATIONS
// ============================================

func (s *GORMStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.Status == "" {
		session.Status = models.SessionPaused
	}
	return create(s.db, ctx, session, models.ErrDuplicateSession)
}

func (s *GORMStore) GetSession(ctx context.Context, phone string) (*models.Session, error) {
	return getByField[models.Session](s.db, ctx, "phone", phone, models.ErrSessionNotFound)
}

func (s *GORMStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return listAll[models.Session](s.db, ctx, "phone")
}

func (s *GORMStore) DeleteSession(ctx context.Context, phone string) error {
	return deleteByField[models.Session](s.db, ctx, "phone", phone, models.ErrSessionNotFound)
}

func (s *GORMStore) SetSessionActive(ctx context.Context, phone string, userID int64) error {
	now := time.Now().UTC()
	return updateFields[models.Session](s.db, ctx, "phone", phone, map[string]any{
		"status":        models.SessionActive,
		"user_id":       userID,
		"auto_paused":   false,
		"pause_reason":  "",
		"penalty_until": nil,
		"last_error":    "",
		"last_active":   now,
	}, models.ErrSessionNotFound)
}

func (s *GORMStore) PauseSession(ctx context.Context, phone, reason string, autoPaused bool, penaltyUntil *time.Time) error {
	return updateFields[models.Session](s.db, ctx, "phone", phone, map[string]any{
		"status":        models.SessionPaused,
		"auto_paused":   autoPaused,
		"pause_reason":  reason,
		"penalty_until": penaltyUntil,
	}, models.ErrSessionNotFound)
}

func (s *GORMStore) SetSessionError(ctx context.Context, phone, lastError string) error {
	return updateFields[models.Session](s.db, ctx, "phone", phone, map[string]any{
		"status":     models.SessionError,
		"last_error": truncateError(lastError),
	}, models.ErrSessionNotFound)
}

func (s *GORMStore) TouchSession(ctx context.Context, phone string, at time.Time) error {
	return updateFields[models.Session](s.db, ctx, "phone", phone, map[string]any{
		"last_active": at.UTC(),
	}, models.ErrSessionNotFound)
}

func (s *GORMStore) SaveCredential(ctx context.Context, phone, credential string) error {
	return updateFields[models.Session](s.db, ctx, "phone", phone, map[string]any{
		"credential": credential,
	}, models.ErrSessionNotFound)
}

func (s *GORMStore) ListResumable(ctx context.Context, now time.Time) ([]*models.Session, error) {
	return listWhere[models.Session](s.db, ctx,
		"status = ? AND auto_paused = ? AND (penalty_until IS NULL OR penalty_until <= ?)",
		models.SessionPaused, true, now.UTC())
}

// truncateError caps raw transport error text so arbitrary payloads cannot
// blow up the column.
func truncateError(msg string) string {
	const maxLen = 500
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
