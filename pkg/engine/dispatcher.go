package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/internal/telemetry"
	"github.com/tgmirror/tgmirror/pkg/governor"
	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/store"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// dispatcher fans one admitted source message out to the channel's
// recipients: ledger row first, then a serialized send task per recipient
// through the session queue. Grouped (album) parts keep their order because
// tasks enter the queue in observation order.
type dispatcher struct {
	e      *Engine
	sup    *supervisor
	client transport.Client
}

func newDispatcher(e *Engine, sup *supervisor, client transport.Client) *dispatcher {
	return &dispatcher{e: e, sup: sup, client: client}
}

// outcome tallies one recipient's dispatch result.
type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
	// outcomeFatal means the session itself is going down (quarantine or
	// auth loss); the remaining recipients are abandoned for this message.
	outcomeFatal
)

// fanout delivers private copies of msg to every eligible recipient.
func (d *dispatcher) fanout(ctx context.Context, msg *transport.Message) {
	phone := d.sup.phone

	ctx, span := telemetry.StartDispatchSpan(ctx, phone, msg.ChannelID, msg.ID)
	defer span.End()

	ctx = logger.WithContext(ctx, logger.NewLogContext(phone, msg.ChannelID, msg.ID))

	recipients, err := d.e.store.ListRecipients(ctx, msg.ChannelID)
	if err != nil {
		logger.ErrorCtx(ctx, "recipient lookup failed", logger.KeyError, err)
		return
	}
	if len(recipients) == 0 {
		logger.DebugCtx(ctx, "no eligible recipients")
		return
	}

	// Refresh the channel pacing from the current roster size.
	if ch, chErr := d.e.store.GetChannel(ctx, msg.ChannelID); chErr == nil {
		d.e.gov.SetChannelGap(ch.ID, ch.SendGap())
	}

	// One ID per fan-out run so the lines of one message can be grouped.
	dispatchID := uuid.NewString()

	logger.InfoCtx(ctx, "fan-out started",
		logger.KeyDispatch, dispatchID,
		logger.KeyRecipients, len(recipients))
	start := d.e.now()

	var sent, failed, skipped int
	cfg := d.e.cfg

	for chunkStart := 0; chunkStart < len(recipients); chunkStart += cfg.ChunkSize {
		chunkEnd := min(chunkStart+cfg.ChunkSize, len(recipients))

		for _, user := range recipients[chunkStart:chunkEnd] {
			switch d.dispatchOne(ctx, msg, user) {
			case outcomeSent:
				sent++
			case outcomeFailed:
				failed++
			case outcomeSkipped:
				skipped++
			case outcomeFatal:
				logger.WarnCtx(ctx, "fan-out aborted, session going down",
					logger.KeyDispatch, dispatchID,
					logger.KeyStatus, "aborted",
					"sent", sent, "failed", failed, "skipped", skipped)
				return
			}
		}

		if chunkEnd < len(recipients) {
			if err := sleepCtx(ctx, governor.Jittered(cfg.InterChunkDelay, 0.2)); err != nil {
				return
			}
		}
	}

	logger.InfoCtx(ctx, "fan-out complete",
		logger.KeyDispatch, dispatchID,
		logger.KeyRecipients, len(recipients),
		"sent", sent, "failed", failed, "skipped", skipped,
		logger.KeyDuration, logger.Duration(start))
}

// dispatchOne writes the pending ledger row and runs the send through the
// session queue. A row already resolved by an earlier run is not re-sent.
func (d *dispatcher) dispatchOne(ctx context.Context, msg *transport.Message, user *models.User) outcome {
	rec := &models.ForwardRecord{
		SourceChannelID: msg.ChannelID,
		SourceMessageID: msg.ID,
		RecipientID:     user.ID,
		SessionPhone:    d.sup.phone,
		Status:          models.ForwardPending,
		GroupedID:       msg.GroupedID,
	}
	if err := d.e.store.InsertPending(ctx, rec); err != nil {
		logger.ErrorCtx(ctx, "ledger insert failed",
			logger.KeyRecipient, user.ID, logger.KeyError, err)
		return outcomeFailed
	}

	existing, err := d.e.store.GetForward(ctx, msg.ChannelID, msg.ID, user.ID)
	if err == nil && existing.Status != models.ForwardPending {
		// Resolved by a previous run of the same message.
		return outcomeSkipped
	}

	err = d.sup.queue.Enqueue(ctx, func(taskCtx context.Context) error {
		return d.sendOne(taskCtx, msg, user)
	})

	switch transport.Classify(err) {
	case transport.ClassNone:
		return outcomeSent
	case transport.ClassRecipientGone:
		return outcomeSkipped
	case transport.ClassFloodWait, transport.ClassSpam, transport.ClassAuthLost:
		return outcomeFatal
	default:
		return outcomeFailed
	}
}

// sendOne runs inside the session queue: acquire the rate budget, send, and
// resolve the ledger row. Transient failures are retried with exponential
// backoff; terminal classes resolve the row immediately.
func (d *dispatcher) sendOne(ctx context.Context, msg *transport.Message, user *models.User) error {
	phone := d.sup.phone
	cfg := d.e.cfg
	peer := transport.Peer{UserID: user.ID, AccessHash: user.AccessHash}

	var lastErr error
	var unknownFailures int
	for attempt := 0; attempt < cfg.RetryMaxAttempts; attempt++ {
		if attempt > 0 {
			if err := d.e.store.IncrementRetry(ctx, msg.ChannelID, msg.ID, user.ID); err != nil {
				logger.WarnCtx(ctx, "retry bookkeeping failed",
					logger.KeyRecipient, user.ID, logger.KeyError, err)
			}
			if d.e.metrics != nil {
				d.e.metrics.RecordRetry(phone)
			}
			if err := sleepCtx(ctx, retryDelay(cfg, attempt)); err != nil {
				return err
			}
		}

		if err := d.e.gov.Acquire(ctx, phone, msg.ChannelID, user.ID); err != nil {
			return err
		}

		sendCtx, span := telemetry.StartSendSpan(ctx, phone, user.ID)
		sendStart := time.Now()
		copyID, err := d.client.SendMessage(sendCtx, peer, msg)
		if d.e.metrics != nil {
			d.e.metrics.ObserveSendDuration(phone, time.Since(sendStart))
		}
		if err != nil {
			telemetry.RecordError(sendCtx, err)
		}
		span.End()

		switch class := transport.Classify(err); class {
		case transport.ClassNone:
			return d.resolveSent(ctx, msg, user, copyID)

		case transport.ClassRecipientGone:
			return d.resolveSkipped(ctx, msg, user, class, err)

		case transport.ClassFloodWait:
			d.resolveFailed(ctx, msg, user, err)
			wait, _ := transport.AsFloodWait(err)
			d.sup.quarantine(class, wait)
			return err

		case transport.ClassSpam:
			d.resolveFailed(ctx, msg, user, err)
			d.sup.quarantine(class, 0)
			return err

		case transport.ClassAuthLost:
			d.resolveFailed(ctx, msg, user, err)
			d.sup.authLost(err)
			return err

		default:
			lastErr = err
			// Transient failures retry up to the configured budget. An
			// unrecognized failure gets a single retry, then the row is
			// marked failed.
			if class == transport.ClassUnknown {
				unknownFailures++
				if unknownFailures >= 2 {
					d.resolveFailed(ctx, msg, user, lastErr)
					return lastErr
				}
			}
			logger.WarnCtx(ctx, "send failed, will retry",
				logger.KeyRecipient, user.ID,
				logger.KeyErrorClass, class.String(),
				logger.KeyRetry, attempt+1,
				logger.KeyError, err)
		}
	}

	d.resolveFailed(ctx, msg, user, lastErr)
	return lastErr
}

func (d *dispatcher) resolveSent(ctx context.Context, msg *transport.Message, user *models.User, copyID int) error {
	phone := d.sup.phone
	if err := d.e.store.MarkSent(ctx, msg.ChannelID, msg.ID, user.ID, copyID); err != nil {
		logger.ErrorCtx(ctx, "ledger sent mark failed",
			logger.KeyRecipient, user.ID, logger.KeyError, err)
	}
	if d.e.metrics != nil {
		d.e.metrics.RecordForward(phone, msg.ChannelID, string(models.ForwardSent))
	}
	d.addMetricPoint(ctx, msg.ChannelID, store.MetricDelta{Sent: 1})

	logger.DebugCtx(ctx, "copy delivered",
		logger.KeyRecipient, user.ID, logger.KeyForwarded, copyID)
	return nil
}

func (d *dispatcher) resolveSkipped(ctx context.Context, msg *transport.Message, user *models.User, class transport.ErrorClass, cause error) error {
	phone := d.sup.phone
	if err := d.e.store.MarkSkipped(ctx, msg.ChannelID, msg.ID, user.ID, class.String()); err != nil {
		logger.ErrorCtx(ctx, "ledger skip mark failed",
			logger.KeyRecipient, user.ID, logger.KeyError, err)
	}
	if d.e.metrics != nil {
		d.e.metrics.RecordForward(phone, msg.ChannelID, string(models.ForwardSkipped))
	}

	logger.DebugCtx(ctx, "recipient skipped",
		logger.KeyRecipient, user.ID,
		logger.KeyErrorClass, class.String(),
		logger.KeyError, cause)
	return cause
}

func (d *dispatcher) resolveFailed(ctx context.Context, msg *transport.Message, user *models.User, cause error) {
	phone := d.sup.phone
	errMsg := "send failed"
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := d.e.store.MarkFailed(ctx, msg.ChannelID, msg.ID, user.ID, errMsg); err != nil {
		logger.ErrorCtx(ctx, "ledger failure mark failed",
			logger.KeyRecipient, user.ID, logger.KeyError, err)
	}
	if d.e.metrics != nil {
		d.e.metrics.RecordForward(phone, msg.ChannelID, string(models.ForwardFailed))
	}

	delta := store.MetricDelta{Failed: 1}
	switch transport.Classify(cause) {
	case transport.ClassFloodWait:
		delta.Flood = 1
	case transport.ClassSpam:
		delta.Spam = 1
	}
	d.addMetricPoint(ctx, msg.ChannelID, delta)

	logger.WarnCtx(ctx, "copy failed",
		logger.KeyRecipient, user.ID, logger.KeyError, cause)
}

// addMetricPoint persists the hourly counter bucket alongside the prometheus
// counters, so statistics survive restarts.
func (d *dispatcher) addMetricPoint(ctx context.Context, channelID int64, delta store.MetricDelta) {
	if err := d.e.store.AddMetric(ctx, d.sup.phone, channelID, delta, d.e.now()); err != nil {
		logger.WarnCtx(ctx, "metric bucket update failed", logger.KeyError, err)
	}
}

// retryDelay computes the exponential backoff before the given attempt
// (attempt >= 1), jittered and capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.RetryBaseDelay << (attempt - 1)
	if delay > cfg.RetryMaxDelay {
		delay = cfg.RetryMaxDelay
	}
	return governor.Jittered(delay, 0.2)
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
