package telegram

import (
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgmirror/tgmirror/pkg/transport"
)

func TestMapRPCErrorFloodWait(t *testing.T) {
	err := mapRPCError(tgerr.New(420, "FLOOD_WAIT_30"))

	wait, ok := transport.AsFloodWait(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, wait)
	assert.Equal(t, transport.ClassFloodWait, transport.Classify(err))
}

func TestMapRPCErrorPeerFlood(t *testing.T) {
	err := mapRPCError(tgerr.New(400, "PEER_FLOOD"))

	assert.ErrorIs(t, err, transport.ErrPeerFlood)
	assert.Equal(t, transport.ClassSpam, transport.Classify(err))
}

func TestMapRPCErrorRecipientGone(t *testing.T) {
	for _, typ := range []string{"USER_IS_BLOCKED", "INPUT_USER_DEACTIVATED", "PEER_ID_INVALID"} {
		err := mapRPCError(tgerr.New(400, typ))
		assert.ErrorIs(t, err, transport.ErrRecipientGone, typ)
		assert.Equal(t, transport.ClassRecipientGone, transport.Classify(err), typ)
	}
}

func TestMapRPCErrorAuthLost(t *testing.T) {
	err := mapRPCError(tgerr.New(401, "AUTH_KEY_UNREGISTERED"))

	assert.ErrorIs(t, err, transport.ErrAuthLost)
	assert.Equal(t, transport.ClassAuthLost, transport.Classify(err))
}

func TestMapRPCErrorMessageGone(t *testing.T) {
	err := mapRPCError(tgerr.New(400, "MESSAGE_ID_INVALID"))
	assert.ErrorIs(t, err, transport.ErrMessageNotFound)
}

func TestMapRPCErrorPassthrough(t *testing.T) {
	original := errors.New("dial tcp: connection refused")
	assert.Equal(t, original, mapRPCError(original))
	assert.Nil(t, mapRPCError(nil))
}

func TestIsNotParticipant(t *testing.T) {
	assert.True(t, isNotParticipant(tgerr.New(400, "USER_NOT_PARTICIPANT")))
	assert.False(t, isNotParticipant(tgerr.New(400, "PEER_FLOOD")))
	assert.False(t, isNotParticipant(nil))
}
