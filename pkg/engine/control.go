package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/pkg/models"
)

// The control surface is the in-process API the CLI (and an external
// operator bot) drives the fleet with. All calls are safe while the engine
// is running; session mutations take effect immediately.

// AddSession registers a session and, if the engine is running, connects it.
// The phone must already hold a completed credential (stored by a prior
// login); connecting without one fails with an authorization error.
func (e *Engine) AddSession(ctx context.Context, phone string) error {
	err := e.store.CreateSession(ctx, &models.Session{
		Phone:  phone,
		Status: models.SessionPaused,
	})
	if err != nil && !errors.Is(err, models.ErrDuplicateSession) {
		return fmt.Errorf("register session: %w", err)
	}

	e.mu.Lock()
	running := e.started
	e.mu.Unlock()
	if !running {
		return nil
	}
	return e.startSession(ctx, phone)
}

// PauseSession stops a session on operator request. Operator pauses are
// never auto-resumed.
func (e *Engine) PauseSession(ctx context.Context, phone, reason string) error {
	if err := e.store.PauseSession(ctx, phone, reason, false, nil); err != nil {
		return err
	}

	if s := e.supervisorFor(phone); s != nil {
		e.detachSession(phone)
		s.stop()
	}

	logger.Info("session paused by operator",
		logger.KeySession, phone, logger.KeyStatus, reason)
	return nil
}

// ResumeSession reconnects a paused or errored session.
func (e *Engine) ResumeSession(ctx context.Context, phone string) error {
	if _, err := e.store.GetSession(ctx, phone); err != nil {
		return err
	}

	e.mu.Lock()
	running := e.started
	e.mu.Unlock()
	if !running {
		return fmt.Errorf("engine not running")
	}
	return e.startSession(ctx, phone)
}

// RemoveSession disconnects and deletes a session. Its ledger rows remain;
// copies it delivered can no longer be revoked.
func (e *Engine) RemoveSession(ctx context.Context, phone string) error {
	if s := e.supervisorFor(phone); s != nil {
		e.detachSession(phone)
		s.stop()
	}
	e.gov.ForgetSession(phone)
	return e.store.DeleteSession(ctx, phone)
}

// SetChannelForwarding flips the forward toggle of a channel.
func (e *Engine) SetChannelForwarding(ctx context.Context, channelID int64, enabled bool) error {
	if err := e.store.SetChannelForwarding(ctx, channelID, enabled); err != nil {
		return err
	}
	logger.Info("channel forwarding changed",
		logger.KeyChannel, channelID, "enabled", enabled)
	return nil
}

// SetChannelDelays overrides the pacing parameters of a channel and
// republishes its send gap.
func (e *Engine) SetChannelDelays(ctx context.Context, channelID int64, baseMs, perMemberMs, minMs, maxMs int) error {
	if err := e.store.SetChannelDelays(ctx, channelID, baseMs, perMemberMs, minMs, maxMs); err != nil {
		return err
	}

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	e.gov.SetChannelGap(channelID, ch.SendGap())
	return nil
}

// ListSessions returns every registered session.
func (e *Engine) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return e.store.ListSessions(ctx)
}

// ListChannels returns every known channel.
func (e *Engine) ListChannels(ctx context.Context) ([]*models.Channel, error) {
	return e.store.ListChannels(ctx)
}

// Statistics aggregates the forward ledger under the filter.
func (e *Engine) Statistics(ctx context.Context, filter models.StatsFilter) (*models.ForwardStats, error) {
	return e.store.Statistics(ctx, filter)
}

// MetricPoints returns the persisted hourly counter buckets for the filter.
func (e *Engine) MetricPoints(ctx context.Context, filter models.StatsFilter) ([]*models.MetricPoint, error) {
	return e.store.QueryMetrics(ctx, filter)
}
