package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgmirror/tgmirror/pkg/models"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	st, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func pendingRecord(msgID int, recipientID int64) *models.ForwardRecord {
	return &models.ForwardRecord{
		SourceChannelID: 100,
		SourceMessageID: msgID,
		RecipientID:     recipientID,
		SessionPhone:    "+15550001111",
		Status:          models.ForwardPending,
	}
}

func TestInsertPendingIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertPending(ctx, pendingRecord(1, 10)))
	require.NoError(t, st.MarkSent(ctx, 100, 1, 10, 555))

	// Re-inserting the same key must not resurrect the pending state.
	require.NoError(t, st.InsertPending(ctx, pendingRecord(1, 10)))

	rec, err := st.GetForward(ctx, 100, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, models.ForwardSent, rec.Status)
	require.NotNil(t, rec.ForwardedMessageID)
	assert.Equal(t, 555, *rec.ForwardedMessageID)
}

func TestStatusTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("pending to sent to deleted", func(t *testing.T) {
		require.NoError(t, st.InsertPending(ctx, pendingRecord(2, 10)))
		require.NoError(t, st.MarkSent(ctx, 100, 2, 10, 600))
		require.NoError(t, st.MarkDeleted(ctx, 10, 600))

		rec, err := st.GetForward(ctx, 100, 2, 10)
		require.NoError(t, err)
		assert.Equal(t, models.ForwardDeleted, rec.Status)
		assert.Nil(t, rec.ForwardedMessageID)
	})

	t.Run("pending to failed", func(t *testing.T) {
		require.NoError(t, st.InsertPending(ctx, pendingRecord(3, 10)))
		require.NoError(t, st.MarkFailed(ctx, 100, 3, 10, "flood wait"))

		rec, err := st.GetForward(ctx, 100, 3, 10)
		require.NoError(t, err)
		assert.Equal(t, models.ForwardFailed, rec.Status)
		assert.Equal(t, "flood wait", rec.ErrorMessage)
	})

	t.Run("pending to skipped", func(t *testing.T) {
		require.NoError(t, st.InsertPending(ctx, pendingRecord(4, 10)))
		require.NoError(t, st.MarkSkipped(ctx, 100, 4, 10, "recipient_gone"))

		rec, err := st.GetForward(ctx, 100, 4, 10)
		require.NoError(t, err)
		assert.Equal(t, models.ForwardSkipped, rec.Status)
	})

	t.Run("failed row refuses sent", func(t *testing.T) {
		require.NoError(t, st.InsertPending(ctx, pendingRecord(5, 10)))
		require.NoError(t, st.MarkFailed(ctx, 100, 5, 10, "x"))

		err := st.MarkSent(ctx, 100, 5, 10, 700)
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("deleted row refuses everything", func(t *testing.T) {
		require.NoError(t, st.InsertPending(ctx, pendingRecord(6, 10)))
		require.NoError(t, st.MarkSent(ctx, 100, 6, 10, 800))
		require.NoError(t, st.MarkDeleted(ctx, 10, 800))

		assert.ErrorIs(t, st.MarkSent(ctx, 100, 6, 10, 801), models.ErrInvalidTransition)
		assert.ErrorIs(t, st.MarkFailed(ctx, 100, 6, 10, "x"), models.ErrInvalidTransition)
	})

	t.Run("missing row is not found", func(t *testing.T) {
		assert.ErrorIs(t, st.MarkSent(ctx, 100, 999, 10, 1), models.ErrForwardNotFound)
		assert.ErrorIs(t, st.MarkDeleted(ctx, 10, 9999), models.ErrForwardNotFound)
		assert.ErrorIs(t, st.IncrementRetry(ctx, 100, 999, 10), models.ErrForwardNotFound)
	})
}

func TestIncrementRetry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertPending(ctx, pendingRecord(7, 10)))
	require.NoError(t, st.IncrementRetry(ctx, 100, 7, 10))
	require.NoError(t, st.IncrementRetry(ctx, 100, 7, 10))

	rec, err := st.GetForward(ctx, 100, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RetryCount)
}

func TestFindCopiesReturnsOnlySent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertPending(ctx, pendingRecord(8, 10)))
	require.NoError(t, st.InsertPending(ctx, pendingRecord(8, 11)))
	require.NoError(t, st.InsertPending(ctx, pendingRecord(8, 12)))
	require.NoError(t, st.MarkSent(ctx, 100, 8, 10, 900))
	require.NoError(t, st.MarkSent(ctx, 100, 8, 11, 901))
	require.NoError(t, st.MarkFailed(ctx, 100, 8, 12, "x"))

	copies, err := st.FindCopies(ctx, 100, 8)
	require.NoError(t, err)
	assert.Len(t, copies, 2)
	for _, c := range copies {
		assert.Equal(t, models.ForwardSent, c.Status)
	}
}

func TestFindOldSentRespectsCutoffAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertPending(ctx, pendingRecord(20+i, 10)))
		require.NoError(t, st.MarkSent(ctx, 100, 20+i, 10, 1000+i))
	}

	// Everything was just created; a past cutoff matches nothing.
	rows, err := st.FindOldSent(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = st.FindOldSent(ctx, time.Now().Add(time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStatisticsAggregatesByStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertPending(ctx, pendingRecord(30, 10)))
	require.NoError(t, st.InsertPending(ctx, pendingRecord(30, 11)))
	require.NoError(t, st.InsertPending(ctx, pendingRecord(30, 12)))
	require.NoError(t, st.MarkSent(ctx, 100, 30, 10, 1100))
	require.NoError(t, st.MarkFailed(ctx, 100, 30, 11, "x"))

	other := pendingRecord(31, 10)
	other.SourceChannelID = 200
	other.SessionPhone = "+15550002222"
	require.NoError(t, st.InsertPending(ctx, other))

	stats, err := st.Statistics(ctx, models.StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Pending)

	byChannel, err := st.Statistics(ctx, models.StatsFilter{ChannelID: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byChannel.Total)

	bySession, err := st.Statistics(ctx, models.StatsFilter{SessionPhone: "+15550001111"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), bySession.Total)
}
