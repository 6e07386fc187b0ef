package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/internal/telemetry"
	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// sweepAgedCopies revokes delivered copies older than the retention age.
// One pass handles at most SweepBatchSize rows; older rows wait for the
// next tick, which keeps a large backlog from monopolizing the queues.
func (e *Engine) sweepAgedCopies() {
	ctx, cancel := context.WithTimeout(e.runCtx, e.cfg.CleanupInterval)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRevokeSweep)
	defer span.End()

	cutoff := e.now().Add(-e.cfg.RetentionAge)
	rows, err := e.store.FindOldSent(ctx, cutoff, e.cfg.SweepBatchSize)
	if err != nil {
		logger.Error("retention sweep query failed", logger.KeyError, err)
		return
	}
	if len(rows) == 0 {
		return
	}

	logger.Info("retention sweep", logger.KeyCount, len(rows))
	e.revokeCopies(ctx, rows, "age")
}

// revokeCopies deletes the given sent copies from their recipients. Each
// delete runs through the queue of the session that placed the copy; copies
// belonging to a session that is not running are left for a later pass.
func (e *Engine) revokeCopies(ctx context.Context, copies []*models.ForwardRecord, reason string) {
	for _, rec := range copies {
		if rec.Status != models.ForwardSent || rec.ForwardedMessageID == nil {
			continue
		}

		s := e.supervisorFor(rec.SessionPhone)
		if s == nil {
			logger.Debug("copy revocation deferred, session not running",
				logger.KeySession, rec.SessionPhone,
				logger.KeyRecipient, rec.RecipientID)
			continue
		}

		rec := rec
		err := s.queue.Enqueue(ctx, func(taskCtx context.Context) error {
			return e.revokeOne(taskCtx, s, rec, reason)
		})
		if err != nil {
			logger.Warn("copy revocation failed",
				logger.KeySession, rec.SessionPhone,
				logger.KeyRecipient, rec.RecipientID,
				logger.KeyError, err)
		}
	}
}

// revokeOne deletes one copy and marks the ledger row. A copy that is
// already gone on the platform still transitions to deleted.
func (e *Engine) revokeOne(ctx context.Context, s *supervisor, rec *models.ForwardRecord, reason string) error {
	forwardedID := *rec.ForwardedMessageID

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanDelete,
		traceAttributes(s.phone, rec)...)
	defer span.End()

	err := s.client.DeleteMessage(ctx, transport.Peer{UserID: rec.RecipientID}, forwardedID)
	if err != nil && !errors.Is(err, transport.ErrMessageNotFound) {
		if wait, ok := transport.AsFloodWait(err); ok {
			s.quarantine(transport.ClassFloodWait, wait)
		}
		return err
	}

	if err := e.store.MarkDeleted(ctx, rec.RecipientID, forwardedID); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordRevocation(reason)
	}

	logger.Debug("copy revoked",
		logger.KeySession, s.phone,
		logger.KeyRecipient, rec.RecipientID,
		logger.KeyForwarded, forwardedID,
		logger.KeyStatus, reason)
	return nil
}

// traceAttributes builds span options for a revocation.
func traceAttributes(phone string, rec *models.ForwardRecord) []trace.SpanStartOption {
	return []trace.SpanStartOption{trace.WithAttributes(
		telemetry.Session(phone),
		telemetry.Channel(rec.SourceChannelID),
		telemetry.MessageID(rec.SourceMessageID),
		telemetry.Recipient(rec.RecipientID),
	)}
}
