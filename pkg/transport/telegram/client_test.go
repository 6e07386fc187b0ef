package telegram

import (
	"context"
	"testing"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/store"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

func TestSentMessageID(t *testing.T) {
	t.Run("ShortSent", func(t *testing.T) {
		assert.Equal(t, 5, sentMessageID(&tg.UpdateShortSentMessage{ID: 5}))
	})

	t.Run("UpdateMessageID", func(t *testing.T) {
		updates := &tg.Updates{Updates: []tg.UpdateClass{
			&tg.UpdateMessageID{ID: 9},
		}}
		assert.Equal(t, 9, sentMessageID(updates))
	})

	t.Run("UpdateNewMessage", func(t *testing.T) {
		updates := &tg.Updates{Updates: []tg.UpdateClass{
			&tg.UpdateNewMessage{Message: &tg.Message{ID: 12}},
		}}
		assert.Equal(t, 12, sentMessageID(updates))
	})

	t.Run("Unrecognized", func(t *testing.T) {
		assert.Equal(t, 0, sentMessageID(&tg.UpdatesTooLong{}))
	})
}

func TestCopyableMedia(t *testing.T) {
	t.Run("TextOnly", func(t *testing.T) {
		msg := &transport.Message{Text: "hello", Payload: &tg.Message{Message: "hello"}}
		assert.Nil(t, copyableMedia(msg))
	})

	t.Run("NoPayload", func(t *testing.T) {
		assert.Nil(t, copyableMedia(&transport.Message{Text: "hello"}))
	})

	t.Run("Photo", func(t *testing.T) {
		msg := &transport.Message{Payload: &tg.Message{
			Media: &tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 42, AccessHash: 7}},
		}}
		media := copyableMedia(msg)
		require.NotNil(t, media)
		photo, ok := media.(*tg.InputMediaPhoto)
		require.True(t, ok)
		assert.Equal(t, int64(42), photo.ID.(*tg.InputPhoto).ID)
	})

	t.Run("Document", func(t *testing.T) {
		msg := &transport.Message{Payload: &tg.Message{
			Media: &tg.MessageMediaDocument{Document: &tg.Document{ID: 99, AccessHash: 3}},
		}}
		media := copyableMedia(msg)
		require.NotNil(t, media)
		doc, ok := media.(*tg.InputMediaDocument)
		require.True(t, ok)
		assert.Equal(t, int64(99), doc.ID.(*tg.InputDocument).ID)
	})

	t.Run("WebPagePreviewDropped", func(t *testing.T) {
		msg := &transport.Message{Payload: &tg.Message{
			Media: &tg.MessageMediaWebPage{},
		}}
		assert.Nil(t, copyableMedia(msg))
	})
}

func TestCopyFormatting(t *testing.T) {
	t.Run("NoPayload", func(t *testing.T) {
		entities, markup := copyFormatting(&transport.Message{Text: "plain"})
		assert.Nil(t, entities)
		assert.Nil(t, markup)
	})

	t.Run("PlainMessage", func(t *testing.T) {
		entities, markup := copyFormatting(&transport.Message{
			Payload: &tg.Message{Message: "plain"},
		})
		assert.Nil(t, entities)
		assert.Nil(t, markup)
	})

	t.Run("EntitiesAndMarkup", func(t *testing.T) {
		wire := &tg.Message{Message: "bold link"}
		wire.SetEntities([]tg.MessageEntityClass{
			&tg.MessageEntityBold{Offset: 0, Length: 4},
			&tg.MessageEntityTextURL{Offset: 5, Length: 4, URL: "https://example.com"},
		})
		wire.SetReplyMarkup(&tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{{
			Buttons: []tg.KeyboardButtonClass{
				&tg.KeyboardButtonURL{Text: "open", URL: "https://example.com"},
			},
		}}})

		entities, markup := copyFormatting(&transport.Message{Payload: wire})
		require.Len(t, entities, 2)
		bold, ok := entities[0].(*tg.MessageEntityBold)
		require.True(t, ok)
		assert.Equal(t, 4, bold.Length)
		require.NotNil(t, markup)
		_, ok = markup.(*tg.ReplyInlineMarkup)
		assert.True(t, ok)
	})
}

func TestObservedMessage(t *testing.T) {
	wire := &tg.Message{
		ID:        17,
		Message:   "update text",
		GroupedID: 555,
		Date:      1700000000,
		PeerID:    &tg.PeerChannel{ChannelID: 100200300},
	}

	msg := observedMessage(wire)
	assert.Equal(t, 17, msg.ID)
	assert.Equal(t, int64(100200300), msg.ChannelID)
	assert.Equal(t, "update text", msg.Text)
	assert.Equal(t, int64(555), msg.GroupedID)
	assert.Equal(t, int64(1700000000), msg.Date.Unix())
	assert.Same(t, wire, msg.Payload)
}

func TestSessionStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.CreateSession(ctx, &models.Session{Phone: "+15550001111"}))

	storage := &sessionStorage{store: db, phone: "+15550001111"}

	// Empty credential reads as not-found so gotd starts a fresh session
	_, err = storage.LoadSession(ctx)
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, storage.StoreSession(ctx, []byte(`{"dc":2}`)))

	data, err := storage.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"dc":2}`, string(data))
}

func TestSessionStorageUnknownPhone(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewMemory()
	require.NoError(t, err)
	defer db.Close()

	storage := &sessionStorage{store: db, phone: "+15559998888"}
	_, err = storage.LoadSession(ctx)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDialRequiresCredentials(t *testing.T) {
	d := &Dialer{}
	_, err := d.Dial(context.Background(), "+15550001111")
	assert.Error(t, err)
}
