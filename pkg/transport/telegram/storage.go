package telegram

import (
	"context"
	"errors"

	"github.com/gotd/td/session"

	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/store"
)

// sessionStorage adapts the database-backed credential of one session to
// gotd's session.Storage. The credential is the opaque session blob gotd
// produces; it is stored verbatim on the session row.
type sessionStorage struct {
	store store.SessionStore
	phone string
}

var _ session.Storage = (*sessionStorage)(nil)

func (s *sessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	sess, err := s.store.GetSession(ctx, s.phone)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	if sess.Credential == "" {
		return nil, session.ErrNotFound
	}
	return []byte(sess.Credential), nil
}

func (s *sessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.store.SaveCredential(ctx, s.phone, string(data))
}
