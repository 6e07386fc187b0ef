package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgmirror/tgmirror/pkg/models"
)

func seedChannel(t *testing.T, st *GORMStore, id int64, owner string) {
	t.Helper()
	require.NoError(t, st.UpsertChannel(context.Background(), &models.Channel{
		ID:            id,
		Title:         "test channel",
		OwningSession: owner,
	}))
}

func TestReplaceMembersRewritesRoster(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, 100, "+15550001111")

	first := []*models.User{
		{ID: 1, FirstName: "Ann"},
		{ID: 2, FirstName: "Ben"},
		{ID: 3, FirstName: "Cap"},
	}
	require.NoError(t, st.ReplaceMembers(ctx, 100, first))

	n, err := st.CountMembers(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// A later sync drops one member and adds another.
	second := []*models.User{
		{ID: 1, FirstName: "Ann"},
		{ID: 4, FirstName: "Dee"},
	}
	require.NoError(t, st.ReplaceMembers(ctx, 100, second))

	n, err = st.CountMembers(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ch, err := st.GetChannel(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, ch.MemberCount)

	recipients, err := st.ListRecipients(ctx, 100)
	require.NoError(t, err)
	ids := recipientIDs(recipients)
	assert.ElementsMatch(t, []int64{1, 4}, ids)
}

func TestReplaceMembersEmptyRoster(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, 100, "+15550001111")

	require.NoError(t, st.ReplaceMembers(ctx, 100, []*models.User{{ID: 1}}))
	require.NoError(t, st.ReplaceMembers(ctx, 100, nil))

	n, err := st.CountMembers(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListRecipientsExcludesBotsAndOperators(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, 100, "+15550001111")

	members := []*models.User{
		{ID: 1, FirstName: "Ann"},
		{ID: 2, FirstName: "Ben"},
		{ID: 3, FirstName: "Ops"},
		{ID: 4, FirstName: "Bot", IsBot: true},
		{ID: 5, FirstName: "ExOps"},
	}
	require.NoError(t, st.ReplaceMembers(ctx, 100, members))

	require.NoError(t, st.UpsertOperator(ctx, &models.Operator{UserID: 3, IsActive: true}))
	// A deactivated operator is an ordinary recipient again.
	require.NoError(t, st.UpsertOperator(ctx, &models.Operator{UserID: 5, IsActive: false}))

	recipients, err := st.ListRecipients(ctx, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 5}, recipientIDs(recipients))
}

func TestUpsertChannelPreservesPolicy(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, st, 100, "+15550001111")

	require.NoError(t, st.SetChannelForwarding(ctx, 100, true))
	require.NoError(t, st.SetChannelDelays(ctx, 100, 100, 10, 50, 5000))

	// The periodic sync re-upserts the channel with fresh platform data.
	require.NoError(t, st.UpsertChannel(ctx, &models.Channel{
		ID:            100,
		Title:         "renamed",
		MemberCount:   42,
		OwningSession: "+15550001111",
	}))

	ch, err := st.GetChannel(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "renamed", ch.Title)
	assert.Equal(t, 42, ch.MemberCount)
	assert.True(t, ch.ForwardEnabled)
	assert.Equal(t, 100, ch.BaseDelayMs)
	assert.Equal(t, 10, ch.PerMemberDelayMs)
}

func TestListMonitored(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedChannel(t, st, 100, "+15550001111")
	seedChannel(t, st, 200, "+15550001111")
	seedChannel(t, st, 300, "+15550002222")

	require.NoError(t, st.SetChannelForwarding(ctx, 100, true))
	require.NoError(t, st.SetChannelForwarding(ctx, 300, true))

	monitored, err := st.ListMonitored(ctx, "+15550001111")
	require.NoError(t, err)
	require.Len(t, monitored, 1)
	assert.Equal(t, int64(100), monitored[0].ID)
}

func recipientIDs(users []*models.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
