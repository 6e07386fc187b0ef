package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgmirror/tgmirror/pkg/models"
)

func TestSessionLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, &models.Session{
		Phone:      "+15550001111",
		Credential: "blob",
	}))

	// Duplicate registration is rejected.
	err := st.CreateSession(ctx, &models.Session{Phone: "+15550001111", Credential: "other"})
	assert.ErrorIs(t, err, models.ErrDuplicateSession)

	sess, err := st.GetSession(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPaused, sess.Status)

	require.NoError(t, st.SetSessionActive(ctx, "+15550001111", 9000))
	sess, err = st.GetSession(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, sess.Status)
	assert.Equal(t, int64(9000), sess.UserID)
	assert.NotNil(t, sess.LastActive)

	require.NoError(t, st.SetSessionError(ctx, "+15550001111", "authorization lost"))
	sess, err = st.GetSession(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, models.SessionError, sess.Status)
	assert.Equal(t, "authorization lost", sess.LastError)

	require.NoError(t, st.DeleteSession(ctx, "+15550001111"))
	_, err = st.GetSession(ctx, "+15550001111")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionQuarantineBookkeeping(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, st.CreateSession(ctx, &models.Session{
		Phone:      "+15550001111",
		Credential: "blob",
	}))

	until := now.Add(time.Minute)
	require.NoError(t, st.PauseSession(ctx, "+15550001111", "flood_wait", true, &until))

	sess, err := st.GetSession(ctx, "+15550001111")
	require.NoError(t, err)
	assert.True(t, sess.AutoPaused)
	assert.Equal(t, "flood_wait", sess.PauseReason)
	require.NotNil(t, sess.PenaltyUntil)

	// Reactivation clears the quarantine fields.
	require.NoError(t, st.SetSessionActive(ctx, "+15550001111", 9000))
	sess, err = st.GetSession(ctx, "+15550001111")
	require.NoError(t, err)
	assert.False(t, sess.AutoPaused)
	assert.Empty(t, sess.PauseReason)
	assert.Nil(t, sess.PenaltyUntil)
}

func TestListResumable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := now.Add(-time.Minute)
	pending := now.Add(time.Hour)

	seed := []struct {
		phone string
		auto  bool
		until *time.Time
	}{
		{"+15550000001", true, &expired},  // eligible
		{"+15550000002", true, &pending},  // penalty still running
		{"+15550000003", false, nil},      // operator pause, never auto-resumed
		{"+15550000004", true, nil},       // auto pause without penalty: eligible
	}
	for _, s := range seed {
		require.NoError(t, st.CreateSession(ctx, &models.Session{Phone: s.phone, Credential: "c"}))
		require.NoError(t, st.PauseSession(ctx, s.phone, "r", s.auto, s.until))
	}

	eligible, err := st.ListResumable(ctx, now)
	require.NoError(t, err)

	phones := make([]string, 0, len(eligible))
	for _, s := range eligible {
		phones = append(phones, s.Phone)
	}
	assert.ElementsMatch(t, []string{"+15550000001", "+15550000004"}, phones)
}

func TestSaveCredentialRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, &models.Session{Phone: "+15550001111", Credential: "v1"}))
	require.NoError(t, st.SaveCredential(ctx, "+15550001111", "v2"))

	sess, err := st.GetSession(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "v2", sess.Credential)

	assert.ErrorIs(t, st.SaveCredential(ctx, "+15550009999", "x"), models.ErrSessionNotFound)
}
