package telegram

import (
	"github.com/gotd/td/tgerr"

	"github.com/tgmirror/tgmirror/pkg/transport"
)

// RPC error types that mean the recipient can never receive our messages.
var recipientGoneTypes = []string{
	"USER_IS_BLOCKED",
	"USER_DEACTIVATED",
	"INPUT_USER_DEACTIVATED",
	"PEER_ID_INVALID",
	"USER_PRIVACY_RESTRICTED",
	"CHAT_WRITE_FORBIDDEN",
}

// RPC error types that mean the session credential is dead.
var authLostTypes = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED_BAN",
}

// mapRPCError translates a gotd RPC error into the transport sentinel
// vocabulary. Errors that do not match any known type pass through
// unchanged and classify as unknown.
func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &transport.FloodWaitError{Duration: wait}
	}
	if tgerr.Is(err, "PEER_FLOOD") {
		return transport.ErrPeerFlood
	}
	if tgerr.Is(err, recipientGoneTypes...) {
		return transport.ErrRecipientGone
	}
	if tgerr.Is(err, authLostTypes...) {
		return transport.ErrAuthLost
	}
	if tgerr.Is(err, "MESSAGE_ID_INVALID", "MESSAGE_DELETE_FORBIDDEN") {
		return transport.ErrMessageNotFound
	}
	return err
}

// isNotParticipant reports whether the RPC error means the user is simply
// not in the channel, which callers treat as a role of none rather than a
// failure.
func isNotParticipant(err error) bool {
	return tgerr.Is(err, "USER_NOT_PARTICIPANT", "PARTICIPANT_ID_INVALID")
}
