// Package transport defines the chat-platform client capability the
// forwarding engine consumes. One Client exists per impersonating session;
// the concrete implementation lives in transport/telegram, and tests swap in
// fakes.
package transport

import (
	"context"
	"time"
)

// EventKind classifies a raw update observed by a session's client.
type EventKind string

const (
	// EventNewMessage is a message newly posted to a channel.
	EventNewMessage EventKind = "new"
	// EventEditMessage is an edit of an existing channel message.
	EventEditMessage EventKind = "edit"
	// EventDeleteMessages is a deletion of one or more channel messages.
	EventDeleteMessages EventKind = "delete"
	// EventChannelUpdate is a channel metadata change (title, photo, pins).
	EventChannelUpdate EventKind = "channel_update"
	// EventMemberUpdate is a participant join/leave/role change.
	EventMemberUpdate EventKind = "member_update"
	// EventPoll is a poll state update.
	EventPoll EventKind = "poll"
)

// Message is one channel message as observed on the wire. Payload carries the
// platform-native message so sends can preserve media and reply markup; the
// engine never inspects it.
type Message struct {
	ID        int
	ChannelID int64
	Text      string
	GroupedID int64
	Date      time.Time
	Payload   any
}

// Event is the tagged union handed to the event router.
type Event struct {
	Kind      EventKind
	ChannelID int64

	// Message is set for new and edit events.
	Message *Message

	// DeletedIDs is set for delete events.
	DeletedIDs []int
}

// Peer addresses one user for send and delete operations.
type Peer struct {
	UserID     int64
	AccessHash int64
}

// Member is one channel participant returned by enumeration.
type Member struct {
	ID         int64
	AccessHash int64
	FirstName  string
	LastName   string
	Username   string
	Phone      string
	IsBot      bool
}

// ChannelInfo describes one channel visible to the session.
type ChannelInfo struct {
	ID          int64
	AccessHash  int64
	Title       string
	Username    string
	MemberCount int
	IsAdmin     bool
}

// Role is the session's standing inside a channel.
type Role string

const (
	RoleNone    Role = "none"
	RoleMember  Role = "member"
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
)

// IsAdmin reports whether the role carries administrative rights.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleCreator
}

// Client is one session's connection to the chat platform.
//
// Connect must be called before any other method; Events delivers raw
// updates until Close. All methods returning errors surface the sentinel
// classes of this package (FloodWaitError, ErrPeerFlood, ...) so callers can
// apply the error policy without platform knowledge.
type Client interface {
	// Connect authenticates with the stored credential and returns the
	// platform user ID of the session account.
	Connect(ctx context.Context) (int64, error)

	// Close terminates the connection. The Events channel is closed.
	Close() error

	// Events yields raw updates observed by this session.
	Events() <-chan Event

	// SendMessage delivers a private copy of the message to the peer and
	// returns the identifier of the copy.
	SendMessage(ctx context.Context, peer Peer, msg *Message) (int, error)

	// DeleteMessage revokes a previously delivered copy. Returns
	// ErrMessageNotFound if the copy is already gone.
	DeleteMessage(ctx context.Context, peer Peer, forwardedID int) error

	// GetParticipantRole resolves the standing of a user in a channel.
	GetParticipantRole(ctx context.Context, channelID, userID int64) (Role, error)

	// GetParticipants enumerates up to limit channel members.
	GetParticipants(ctx context.Context, channelID int64, limit int) ([]Member, error)

	// GetChannels enumerates channels visible to the session.
	GetChannels(ctx context.Context, limit int) ([]ChannelInfo, error)
}

// Dialer constructs a Client for a session phone. The engine owns the
// returned client's lifecycle.
type Dialer interface {
	Dial(ctx context.Context, phone string) (Client, error)
}
