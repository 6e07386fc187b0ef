package engine

import (
	"context"
	"time"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/internal/telemetry"
	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// channelEnumerationLimit bounds the dialog scan per sync pass.
const channelEnumerationLimit = 500

// syncer keeps one session's channel and member rosters current. Every pass
// upserts the admin-owned channels, then atomically replaces the member list
// of each monitored channel and republishes the channel's send gap.
type syncer struct {
	e      *Engine
	phone  string
	client transport.Client
}

func newSyncer(e *Engine, phone string, client transport.Client) *syncer {
	return &syncer{e: e, phone: phone, client: client}
}

// run refreshes rosters every MembershipSyncInterval until ctx ends.
func (m *syncer) run(ctx context.Context) {
	ticker := time.NewTicker(m.e.cfg.MembershipSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.syncAll(ctx); err != nil {
				logger.Warn("membership sync failed",
					logger.KeySession, m.phone, logger.KeyError, err)
			}
		}
	}
}

// syncAll performs one full roster pass.
func (m *syncer) syncAll(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMembershipSync)
	defer span.End()

	channels, err := m.client.GetChannels(ctx, channelEnumerationLimit)
	if err != nil {
		return err
	}

	for _, info := range channels {
		if !info.IsAdmin {
			continue
		}
		if err := m.e.store.UpsertChannel(ctx, &models.Channel{
			ID:            info.ID,
			AccessHash:    info.AccessHash,
			Title:         info.Title,
			Username:      info.Username,
			MemberCount:   info.MemberCount,
			OwningSession: m.phone,
		}); err != nil {
			logger.Warn("channel upsert failed",
				logger.KeySession, m.phone,
				logger.KeyChannel, info.ID,
				logger.KeyError, err)
		}
	}

	monitored, err := m.e.store.ListMonitored(ctx, m.phone)
	if err != nil {
		return err
	}

	for _, ch := range monitored {
		if err := m.syncMembers(ctx, ch); err != nil {
			logger.Warn("member sync failed",
				logger.KeySession, m.phone,
				logger.KeyChannel, ch.ID,
				logger.KeyError, err)
		}
	}
	return nil
}

// syncMembers replaces the member list of one channel and republishes its
// send gap for the new roster size. Bots never enter the roster.
func (m *syncer) syncMembers(ctx context.Context, ch *models.Channel) error {
	participants, err := m.client.GetParticipants(ctx, ch.ID, m.e.cfg.MaxParticipants)
	if err != nil {
		return err
	}

	users := make([]*models.User, 0, len(participants))
	for _, p := range participants {
		if p.IsBot {
			continue
		}
		users = append(users, &models.User{
			ID:         p.ID,
			AccessHash: p.AccessHash,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Username:   p.Username,
			Phone:      p.Phone,
			IsBot:      false,
		})
	}

	if err := m.e.store.ReplaceMembers(ctx, ch.ID, users); err != nil {
		return err
	}

	ch.MemberCount = len(users)
	m.e.gov.SetChannelGap(ch.ID, ch.SendGap())

	if m.e.metrics != nil {
		m.e.metrics.RecordMembershipSync(ch.ID, len(users))
	}

	logger.Debug("roster refreshed",
		logger.KeySession, m.phone,
		logger.KeyChannel, ch.ID,
		logger.KeyCount, len(users))
	return nil
}
