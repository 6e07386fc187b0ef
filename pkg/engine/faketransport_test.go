package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tgmirror/tgmirror/pkg/transport"
)

// fakeDialer hands out scripted clients keyed by phone.
type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{clients: make(map[string]*fakeClient)}
}

func (d *fakeDialer) add(phone string, c *fakeClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[phone] = c
}

func (d *fakeDialer) Dial(ctx context.Context, phone string) (transport.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[phone]
	if !ok {
		return nil, transport.ErrAuthLost
	}
	// A client may be re-dialed after quarantine; hand back a fresh event
	// channel for the new connection.
	c.reset()
	return c, nil
}

type sentCopy struct {
	Peer transport.Peer
	Msg  transport.Message
}

// fakeClient is a scripted transport.Client. Sends succeed with increasing
// copy IDs unless an error script is installed for the recipient.
type fakeClient struct {
	mu sync.Mutex

	selfID     int64
	connectErr error

	events chan transport.Event
	closed bool

	role         transport.Role
	roleErr      error
	channels     []transport.ChannelInfo
	participants map[int64][]transport.Member

	sendScript map[int64][]error
	sendDelay  time.Duration
	sent       []sentCopy
	nextCopyID int

	deleted   []int
	deleteErr error
}

func newFakeClient(selfID int64) *fakeClient {
	return &fakeClient{
		selfID:       selfID,
		role:         transport.RoleAdmin,
		participants: make(map[int64][]transport.Member),
		sendScript:   make(map[int64][]error),
		nextCopyID:   1000,
	}
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = make(chan transport.Event, 64)
	c.closed = false
}

// failNext schedules errors for the next sends to the recipient, consumed in
// order; a nil entry means that attempt succeeds.
func (c *fakeClient) failNext(recipientID int64, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendScript[recipientID] = append(c.sendScript[recipientID], errs...)
}

func (c *fakeClient) emit(ev transport.Event) {
	c.mu.Lock()
	ch := c.events
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		ch <- ev
	}
}

func (c *fakeClient) sentCopies() []sentCopy {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentCopy, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) deletedIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.deleted))
	copy(out, c.deleted)
	return out
}

func (c *fakeClient) Connect(ctx context.Context) (int64, error) {
	if c.connectErr != nil {
		return 0, c.connectErr
	}
	return c.selfID, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeClient) Events() <-chan transport.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *fakeClient) SendMessage(ctx context.Context, peer transport.Peer, msg *transport.Message) (int, error) {
	c.mu.Lock()
	delay := c.sendDelay
	c.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if script := c.sendScript[peer.UserID]; len(script) > 0 {
		err := script[0]
		c.sendScript[peer.UserID] = script[1:]
		if err != nil {
			return 0, err
		}
	}

	c.nextCopyID++
	c.sent = append(c.sent, sentCopy{Peer: peer, Msg: *msg})
	return c.nextCopyID, nil
}

func (c *fakeClient) DeleteMessage(ctx context.Context, peer transport.Peer, forwardedID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, forwardedID)
	return nil
}

func (c *fakeClient) GetParticipantRole(ctx context.Context, channelID, userID int64) (transport.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roleErr != nil {
		return transport.RoleNone, c.roleErr
	}
	return c.role, nil
}

func (c *fakeClient) GetParticipants(ctx context.Context, channelID int64, limit int) ([]transport.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := c.participants[channelID]
	if len(members) > limit {
		members = members[:limit]
	}
	out := make([]transport.Member, len(members))
	copy(out, members)
	return out, nil
}

func (c *fakeClient) GetChannels(ctx context.Context, limit int) ([]transport.ChannelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.ChannelInfo, len(c.channels))
	copy(out, c.channels)
	return out, nil
}

// quarantineReport is one SessionQuarantined call.
type quarantineReport struct {
	Phone  string
	Reason string
	Until  time.Time
}

// recordingNotifier captures operator notifications.
type recordingNotifier struct {
	mu          sync.Mutex
	quarantined []quarantineReport
	authLost    []string
}

func (n *recordingNotifier) SessionQuarantined(phone, reason string, until time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quarantined = append(n.quarantined, quarantineReport{Phone: phone, Reason: reason, Until: until})
}

func (n *recordingNotifier) SessionAuthLost(phone string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.authLost = append(n.authLost, phone)
}

func (n *recordingNotifier) quarantines() []quarantineReport {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]quarantineReport, len(n.quarantined))
	copy(out, n.quarantined)
	return out
}

func (n *recordingNotifier) authLosses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.authLost))
	copy(out, n.authLost)
	return out
}
