package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// routerHooks are the downstream reactions to admitted events.
type routerHooks struct {
	onNew    func(ctx context.Context, msg *transport.Message)
	onDelete func(ctx context.Context, channelID int64, deletedIDs []int)
	onRoster func(ctx context.Context)
}

// router decides which raw events reach the dispatcher. A new message is
// admitted when its channel is forward-enabled, owned by this session, and
// the session still holds admin rights there (verified against the platform,
// cached for AdminCacheTTL).
type router struct {
	e      *Engine
	phone  string
	selfID int64
	client transport.Client
	hooks  routerHooks

	mu         sync.Mutex
	adminCache map[int64]adminEntry
}

type adminEntry struct {
	admitted bool
	at       time.Time
}

func newRouter(e *Engine, phone string, selfID int64, client transport.Client, hooks routerHooks) *router {
	return &router{
		e:          e,
		phone:      phone,
		selfID:     selfID,
		client:     client,
		hooks:      hooks,
		adminCache: make(map[int64]adminEntry),
	}
}

// route classifies one raw event. Edits are observed but never re-forwarded;
// deletions propagate to the copies; roster-affecting events trigger an
// early sync.
func (r *router) route(ctx context.Context, ev transport.Event) error {
	switch ev.Kind {
	case transport.EventNewMessage:
		if ev.Message == nil {
			return nil
		}
		verdict, err := r.admit(ctx, ev.ChannelID)
		if err != nil {
			return err
		}
		switch verdict {
		case admitForward:
			r.hooks.onNew(ctx, ev.Message)
		case admitDisabled:
			r.recordDisabledSkip(ctx, ev.Message)
		}
		return nil

	case transport.EventEditMessage:
		if ev.Message == nil {
			return nil
		}
		verdict, err := r.admit(ctx, ev.ChannelID)
		if err != nil || verdict != admitForward {
			return err
		}
		// Copies already delivered keep the original content.
		logger.Debug("source message edited, copies unchanged",
			logger.KeySession, r.phone,
			logger.KeyChannel, ev.ChannelID,
			logger.KeyMessage, ev.Message.ID)
		return nil

	case transport.EventDeleteMessages:
		verdict, err := r.admit(ctx, ev.ChannelID)
		if err != nil || verdict != admitForward {
			return err
		}
		r.hooks.onDelete(ctx, ev.ChannelID, ev.DeletedIDs)
		return nil

	case transport.EventChannelUpdate, transport.EventMemberUpdate:
		r.invalidate(ev.ChannelID)
		r.hooks.onRoster(ctx)
		return nil

	default:
		return nil
	}
}

// admitVerdict is the outcome of the monitored-set check.
type admitVerdict int

const (
	// admitDrop: the channel is unknown, foreign, or the session lost its
	// admin rights there.
	admitDrop admitVerdict = iota
	// admitDisabled: the channel is monitored but forwarding is switched
	// off. New messages leave a skipped ledger trace instead of copies.
	admitDisabled
	admitForward
)

// admit checks the monitored-set condition for a channel.
func (r *router) admit(ctx context.Context, channelID int64) (admitVerdict, error) {
	if channelID == 0 {
		return admitDrop, nil
	}

	ch, err := r.e.store.GetChannel(ctx, channelID)
	if errors.Is(err, models.ErrChannelNotFound) {
		return admitDrop, nil
	}
	if err != nil {
		return admitDrop, err
	}
	if ch.OwningSession != r.phone {
		return admitDrop, nil
	}
	if !ch.ForwardEnabled {
		return admitDisabled, nil
	}

	admin, err := r.isAdmin(ctx, channelID)
	if err != nil || !admin {
		return admitDrop, err
	}
	return admitForward, nil
}

// recordDisabledSkip leaves a single ledger row (recipient 0) witnessing that
// the message arrived while forwarding was switched off, so the gap in the
// copy history is explainable later.
func (r *router) recordDisabledSkip(ctx context.Context, msg *transport.Message) {
	rec := &models.ForwardRecord{
		SourceChannelID: msg.ChannelID,
		SourceMessageID: msg.ID,
		RecipientID:     0,
		SessionPhone:    r.phone,
		Status:          models.ForwardPending,
		GroupedID:       msg.GroupedID,
	}
	if err := r.e.store.InsertPending(ctx, rec); err != nil {
		logger.Warn("skip trace insert failed",
			logger.KeySession, r.phone,
			logger.KeyChannel, msg.ChannelID,
			logger.KeyMessage, msg.ID,
			logger.KeyError, err)
		return
	}
	if err := r.e.store.MarkSkipped(ctx, msg.ChannelID, msg.ID, 0, "forwarding_disabled"); err != nil {
		logger.Warn("skip trace mark failed",
			logger.KeySession, r.phone,
			logger.KeyChannel, msg.ChannelID,
			logger.KeyMessage, msg.ID,
			logger.KeyError, err)
		return
	}

	logger.Debug("forwarding disabled, message skipped",
		logger.KeySession, r.phone,
		logger.KeyChannel, msg.ChannelID,
		logger.KeyMessage, msg.ID)
}

// isAdmin verifies the session's standing in the channel, trusting a cached
// answer for AdminCacheTTL.
func (r *router) isAdmin(ctx context.Context, channelID int64) (bool, error) {
	now := r.e.now()

	r.mu.Lock()
	entry, ok := r.adminCache[channelID]
	r.mu.Unlock()
	if ok && now.Sub(entry.at) < r.e.cfg.AdminCacheTTL {
		return entry.admitted, nil
	}

	role, err := r.client.GetParticipantRole(ctx, channelID, r.selfID)
	if err != nil {
		return false, err
	}

	admitted := role.IsAdmin()
	r.mu.Lock()
	r.adminCache[channelID] = adminEntry{admitted: admitted, at: now}
	r.mu.Unlock()

	if !admitted {
		logger.Warn("admin rights lost, channel not forwarded",
			logger.KeySession, r.phone, logger.KeyChannel, channelID)
	}
	return admitted, nil
}

// invalidate drops the cached admin answer for a channel.
func (r *router) invalidate(channelID int64) {
	r.mu.Lock()
	delete(r.adminCache, channelID)
	r.mu.Unlock()
}
