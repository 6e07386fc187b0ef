// Package telegram implements the transport.Client capability on the MTProto
// API via gotd. One Client wraps one authorized account; its credential is
// persisted through the session store so restarts reconnect without a login.
package telegram

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/pkg/store"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// Dialer builds gotd-backed clients for session phones. Credentials are
// loaded from and persisted to the session store.
type Dialer struct {
	APIID    int
	APIHash  string
	Sessions store.SessionStore
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial constructs a disconnected client for the given phone. The caller must
// Connect it before use.
func (d *Dialer) Dial(ctx context.Context, phone string) (transport.Client, error) {
	if d.APIID == 0 || d.APIHash == "" {
		return nil, fmt.Errorf("telegram: api_id and api_hash are required")
	}

	c := &Client{
		phone:      phone,
		events:     make(chan transport.Event, 256),
		chanHashes: make(map[int64]int64),
		userHashes: make(map[int64]int64),
	}

	dispatcher := tg.NewUpdateDispatcher()
	c.registerHandlers(dispatcher)

	c.client = telegram.NewClient(d.APIID, d.APIHash, telegram.Options{
		SessionStorage: &sessionStorage{store: d.Sessions, phone: phone},
		UpdateHandler:  dispatcher,
	})

	return c, nil
}

// Client is one authorized account's MTProto connection.
type Client struct {
	phone  string
	client *telegram.Client
	api    *tg.Client

	selfID int64
	events chan transport.Event

	mu         sync.Mutex
	chanHashes map[int64]int64
	userHashes map[int64]int64

	runCancel context.CancelFunc
	runDone   chan struct{}
	closeOnce sync.Once
}

var _ transport.Client = (*Client)(nil)

// Connect starts the MTProto run loop, verifies the stored credential and
// returns the account's user ID. The connection stays up until Close.
func (c *Client) Connect(ctx context.Context) (int64, error) {
	ready := make(chan struct{})
	errCh := make(chan error, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	c.runDone = make(chan struct{})

	go func() {
		defer close(c.runDone)
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("auth status: %w", err)
			}
			if !status.Authorized {
				return transport.ErrAuthLost
			}

			self, err := c.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("resolve self: %w", mapRPCError(err))
			}
			c.selfID = self.ID
			c.api = c.client.API()

			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		errCh <- err
	}()

	select {
	case <-ready:
		return c.selfID, nil
	case err := <-errCh:
		cancel()
		if err == nil {
			err = fmt.Errorf("telegram: run loop exited during connect")
		}
		return 0, mapRPCError(err)
	case <-ctx.Done():
		cancel()
		<-c.runDone
		return 0, ctx.Err()
	}
}

// Close tears down the connection and closes the Events channel.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.runCancel != nil {
			c.runCancel()
			<-c.runDone
		}
		close(c.events)
	})
	return nil
}

// Events yields raw updates observed by this session.
func (c *Client) Events() <-chan transport.Event {
	return c.events
}

// registerHandlers maps gotd channel updates onto the transport event union.
func (c *Client) registerHandlers(dispatcher tg.UpdateDispatcher) {
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok || msg.Out {
			return nil
		}
		c.rememberEntities(e)
		c.emit(ctx, transport.Event{
			Kind:      transport.EventNewMessage,
			ChannelID: peerChannelID(msg.PeerID),
			Message:   observedMessage(msg),
		})
		return nil
	})

	dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok || msg.Out {
			return nil
		}
		c.rememberEntities(e)
		c.emit(ctx, transport.Event{
			Kind:      transport.EventEditMessage,
			ChannelID: peerChannelID(msg.PeerID),
			Message:   observedMessage(msg),
		})
		return nil
	})

	dispatcher.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		c.rememberEntities(e)
		c.emit(ctx, transport.Event{
			Kind:       transport.EventDeleteMessages,
			ChannelID:  u.ChannelID,
			DeletedIDs: u.Messages,
		})
		return nil
	})

	dispatcher.OnChannel(func(ctx context.Context, e tg.Entities, u *tg.UpdateChannel) error {
		c.rememberEntities(e)
		c.emit(ctx, transport.Event{
			Kind:      transport.EventChannelUpdate,
			ChannelID: u.ChannelID,
		})
		return nil
	})

	dispatcher.OnChannelParticipant(func(ctx context.Context, e tg.Entities, u *tg.UpdateChannelParticipant) error {
		c.rememberEntities(e)
		c.emit(ctx, transport.Event{
			Kind:      transport.EventMemberUpdate,
			ChannelID: u.ChannelID,
		})
		return nil
	})

	dispatcher.OnMessagePoll(func(ctx context.Context, e tg.Entities, u *tg.UpdateMessagePoll) error {
		c.emit(ctx, transport.Event{Kind: transport.EventPoll})
		return nil
	})
}

// emit hands an event to the consumer, honoring cancellation so a slow
// consumer cannot wedge the update loop forever.
func (c *Client) emit(ctx context.Context, ev transport.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// rememberEntities records channel and user access hashes seen in updates.
// These are needed later to address peers in RPC calls.
func (c *Client) rememberEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range e.Channels {
		c.chanHashes[id] = ch.AccessHash
	}
	for id, u := range e.Users {
		c.userHashes[id] = u.AccessHash
	}
}

// observedMessage converts a wire message to the transport representation.
// The original *tg.Message rides along as Payload so sends can preserve media.
func observedMessage(msg *tg.Message) *transport.Message {
	return &transport.Message{
		ID:        msg.ID,
		ChannelID: peerChannelID(msg.PeerID),
		Text:      msg.Message,
		GroupedID: msg.GroupedID,
		Date:      time.Unix(int64(msg.Date), 0),
		Payload:   msg,
	}
}

func peerChannelID(peer tg.PeerClass) int64 {
	if ch, ok := peer.(*tg.PeerChannel); ok {
		return ch.ChannelID
	}
	return 0
}

// SendMessage delivers a private copy of the message to the peer. Media from
// the original message is re-attached when possible; otherwise the text is
// sent alone. Formatting entities and the reply markup of the original ride
// along so the copy renders like the source.
func (c *Client) SendMessage(ctx context.Context, peer transport.Peer, msg *transport.Message) (int, error) {
	input := &tg.InputPeerUser{UserID: peer.UserID, AccessHash: peer.AccessHash}
	entities, markup := copyFormatting(msg)

	if media := copyableMedia(msg); media != nil {
		updates, err := c.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:        input,
			Media:       media,
			Message:     msg.Text,
			Entities:    entities,
			ReplyMarkup: markup,
			RandomID:    rand.Int64(),
		})
		if err != nil {
			return 0, mapRPCError(err)
		}
		return sentMessageID(updates), nil
	}

	updates, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:        input,
		Message:     msg.Text,
		Entities:    entities,
		ReplyMarkup: markup,
		RandomID:    rand.Int64(),
	})
	if err != nil {
		return 0, mapRPCError(err)
	}
	return sentMessageID(updates), nil
}

// copyFormatting extracts the formatting entities and reply markup from the
// original wire message. Both are optional; absent values stay nil and the
// request flags stay unset.
func copyFormatting(msg *transport.Message) ([]tg.MessageEntityClass, tg.ReplyMarkupClass) {
	original, ok := msg.Payload.(*tg.Message)
	if !ok {
		return nil, nil
	}
	entities, _ := original.GetEntities()
	markup, _ := original.GetReplyMarkup()
	return entities, markup
}

// copyableMedia extracts re-sendable media from the original wire message.
// Only photos and documents can be re-attached by reference; everything else
// degrades to a text-only copy.
func copyableMedia(msg *transport.Message) tg.InputMediaClass {
	original, ok := msg.Payload.(*tg.Message)
	if !ok || original.Media == nil {
		return nil
	}

	switch m := original.Media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		return &tg.InputMediaPhoto{
			ID: &tg.InputPhoto{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
			},
		}
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return &tg.InputMediaDocument{
			ID: &tg.InputDocument{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}
	default:
		return nil
	}
}

// sentMessageID extracts the assigned message ID from a send response.
func sentMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, upd := range u.Updates {
			switch inner := upd.(type) {
			case *tg.UpdateMessageID:
				return inner.ID
			case *tg.UpdateNewMessage:
				if m, ok := inner.Message.(*tg.Message); ok {
					return m.ID
				}
			}
		}
	}
	return 0
}

// DeleteMessage revokes a delivered copy from the recipient's chat.
func (c *Client) DeleteMessage(ctx context.Context, peer transport.Peer, forwardedID int) error {
	_, err := c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     []int{forwardedID},
	})
	return mapRPCError(err)
}

// GetParticipantRole resolves the standing of a user in a channel. The
// session's own account is addressed as self; other users need an access
// hash observed earlier.
func (c *Client) GetParticipantRole(ctx context.Context, channelID, userID int64) (transport.Role, error) {
	input, err := c.inputChannel(ctx, channelID)
	if err != nil {
		return transport.RoleNone, err
	}

	var participant tg.InputPeerClass
	if userID == c.selfID {
		participant = &tg.InputPeerSelf{}
	} else {
		c.mu.Lock()
		hash, ok := c.userHashes[userID]
		c.mu.Unlock()
		if !ok {
			return transport.RoleNone, fmt.Errorf("telegram: no access hash for user %d", userID)
		}
		participant = &tg.InputPeerUser{UserID: userID, AccessHash: hash}
	}

	res, err := c.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     input,
		Participant: participant,
	})
	if err != nil {
		if isNotParticipant(err) {
			return transport.RoleNone, nil
		}
		return transport.RoleNone, mapRPCError(err)
	}

	switch res.Participant.(type) {
	case *tg.ChannelParticipantCreator:
		return transport.RoleCreator, nil
	case *tg.ChannelParticipantAdmin:
		return transport.RoleAdmin, nil
	case *tg.ChannelParticipant, *tg.ChannelParticipantSelf:
		return transport.RoleMember, nil
	default:
		return transport.RoleNone, nil
	}
}

// GetParticipants enumerates up to limit channel members, paging through the
// recent-participants filter.
func (c *Client) GetParticipants(ctx context.Context, channelID int64, limit int) ([]transport.Member, error) {
	input, err := c.inputChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	const pageSize = 200

	members := make([]transport.Member, 0, limit)
	for offset := 0; offset < limit; offset += pageSize {
		page := pageSize
		if remaining := limit - offset; remaining < page {
			page = remaining
		}

		res, err := c.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
			Channel: input,
			Filter:  &tg.ChannelParticipantsRecent{},
			Offset:  offset,
			Limit:   page,
		})
		if err != nil {
			return nil, mapRPCError(err)
		}

		participants, ok := res.(*tg.ChannelsChannelParticipants)
		if !ok {
			// channels.channelParticipantsNotModified: nothing new
			break
		}

		c.mu.Lock()
		for _, uc := range participants.Users {
			user, ok := uc.(*tg.User)
			if !ok {
				continue
			}
			c.userHashes[user.ID] = user.AccessHash
			members = append(members, transport.Member{
				ID:         user.ID,
				AccessHash: user.AccessHash,
				FirstName:  user.FirstName,
				LastName:   user.LastName,
				Username:   user.Username,
				Phone:      user.Phone,
				IsBot:      user.Bot,
			})
		}
		c.mu.Unlock()

		if len(participants.Participants) < page {
			break
		}
	}

	if len(members) > limit {
		members = members[:limit]
	}
	return members, nil
}

// GetChannels enumerates broadcast channels and supergroups visible to the
// session, refreshing the access hash cache as a side effect.
func (c *Client) GetChannels(ctx context.Context, limit int) ([]transport.ChannelInfo, error) {
	res, err := c.api.MessagesGetAllChats(ctx, []int64{})
	if err != nil {
		return nil, mapRPCError(err)
	}

	channels := make([]transport.ChannelInfo, 0, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chat := range res.GetChats() {
		ch, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		c.chanHashes[ch.ID] = ch.AccessHash

		_, hasAdmin := ch.GetAdminRights()
		count, _ := ch.GetParticipantsCount()
		channels = append(channels, transport.ChannelInfo{
			ID:          ch.ID,
			AccessHash:  ch.AccessHash,
			Title:       ch.Title,
			Username:    ch.Username,
			MemberCount: count,
			IsAdmin:     hasAdmin || ch.Creator,
		})
		if len(channels) >= limit {
			break
		}
	}
	return channels, nil
}

// inputChannel resolves the access hash for a channel, refreshing the chat
// list once if the hash has not been observed yet.
func (c *Client) inputChannel(ctx context.Context, channelID int64) (*tg.InputChannel, error) {
	c.mu.Lock()
	hash, ok := c.chanHashes[channelID]
	c.mu.Unlock()
	if ok {
		return &tg.InputChannel{ChannelID: channelID, AccessHash: hash}, nil
	}

	logger.Debug("channel access hash missing, refreshing chat list",
		logger.KeySession, c.phone, logger.KeyChannel, channelID)
	if _, err := c.GetChannels(ctx, 500); err != nil {
		return nil, err
	}

	c.mu.Lock()
	hash, ok = c.chanHashes[channelID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("telegram: channel %d not visible to session", channelID)
	}
	return &tg.InputChannel{ChannelID: channelID, AccessHash: hash}, nil
}
