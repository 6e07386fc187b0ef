package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/pkg/queue"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// fanoutBacklog bounds how many admitted messages may wait for the fan-out
// worker before the event loop applies backpressure.
const fanoutBacklog = 256

// supervisor is the runtime of one impersonating session: its transport
// connection, serial queue, event router, dispatcher and roster syncer. A
// failing session tears down only its own supervisor; the rest of the fleet
// is untouched.
type supervisor struct {
	e     *Engine
	phone string

	client     transport.Client
	queue      *queue.Queue
	router     *router
	dispatcher *dispatcher
	syncer     *syncer
	fanouts    chan *transport.Message

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newSupervisor(e *Engine, phone string) *supervisor {
	return &supervisor{e: e, phone: phone}
}

// start connects the session, refreshes its rosters and installs the event
// pipeline. The roster sync runs before the first event is consumed so the
// first fan-out sees a current member list.
func (s *supervisor) start(ctx context.Context, runCtx context.Context) error {
	client, err := s.e.dialer.Dial(ctx, s.phone)
	if err != nil {
		return err
	}

	userID, err := client.Connect(ctx)
	if err != nil {
		client.Close()
		s.reportConnectFailure(ctx, err)
		return err
	}
	s.client = client

	if err := s.e.store.SetSessionActive(ctx, s.phone, userID); err != nil {
		client.Close()
		return err
	}

	sessCtx, cancel := context.WithCancel(runCtx)
	s.cancel = cancel

	s.queue = queue.New(sessCtx, s.phone, s.e.cfg.Queue)
	s.fanouts = make(chan *transport.Message, fanoutBacklog)
	s.syncer = newSyncer(s.e, s.phone, client)
	s.dispatcher = newDispatcher(s.e, s, client)
	s.router = newRouter(s.e, s.phone, userID, client, routerHooks{
		onNew:    s.enqueueFanout,
		onDelete: s.handleDelete,
		onRoster: s.handleRosterChange,
	})

	if err := s.syncer.syncAll(sessCtx); err != nil {
		logger.Warn("initial membership sync failed",
			logger.KeySession, s.phone, logger.KeyError, err)
	}

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.consumeEvents(sessCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.runFanouts(sessCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.syncer.run(sessCtx)
	}()

	logger.Info("session started", logger.KeySession, s.phone)
	return nil
}

func (s *supervisor) reportConnectFailure(ctx context.Context, err error) {
	if stErr := s.e.store.SetSessionError(ctx, s.phone, err.Error()); stErr != nil {
		logger.Error("recording session error failed",
			logger.KeySession, s.phone, logger.KeyError, stErr)
	}
	if transport.Classify(err) == transport.ClassAuthLost {
		s.e.notifier.SessionAuthLost(s.phone)
	}
}

// stop tears the session down: cancels its context, drains the queue and
// closes the connection. Safe to call more than once.
func (s *supervisor) stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.queue != nil {
			s.queue.Close()
		}
		if s.client != nil {
			s.client.Close()
		}
		s.wg.Wait()
		logger.Info("session stopped", logger.KeySession, s.phone)
	})
}

// consumeEvents feeds raw transport events through the router until the
// session context ends or the connection closes.
func (s *supervisor) consumeEvents(ctx context.Context) {
	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.router.route(ctx, ev); err != nil {
				logger.Error("event routing failed",
					logger.KeySession, s.phone,
					logger.KeyEvent, string(ev.Kind),
					logger.KeyChannel, ev.ChannelID,
					logger.KeyError, err)
			}
			if s.e.metrics != nil {
				s.e.metrics.SetQueueDepth(s.phone, s.queue.Len())
			}
		}
	}
}

// enqueueFanout hands an admitted message to the fan-out worker. Fan-outs
// run on their own goroutine so delete and roster events are routed without
// waiting out a large delivery.
func (s *supervisor) enqueueFanout(ctx context.Context, msg *transport.Message) {
	select {
	case s.fanouts <- msg:
	case <-ctx.Done():
	}
}

// runFanouts delivers admitted messages one at a time. The single worker
// keeps grouped parts in observation order.
func (s *supervisor) runFanouts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.fanouts:
			s.dispatcher.fanout(ctx, msg)
		}
	}
}

// handleDelete revokes the copies of deleted source messages.
func (s *supervisor) handleDelete(ctx context.Context, channelID int64, deletedIDs []int) {
	for _, msgID := range deletedIDs {
		copies, err := s.e.store.FindCopies(ctx, channelID, msgID)
		if err != nil {
			logger.Error("copy lookup failed",
				logger.KeySession, s.phone,
				logger.KeyChannel, channelID,
				logger.KeyMessage, msgID,
				logger.KeyError, err)
			continue
		}
		s.e.revokeCopies(ctx, copies, "event")
	}
}

// handleRosterChange refreshes rosters outside the regular sync period after
// a membership or channel update event.
func (s *supervisor) handleRosterChange(ctx context.Context) {
	if err := s.syncer.syncAll(ctx); err != nil {
		logger.Warn("roster refresh failed",
			logger.KeySession, s.phone, logger.KeyError, err)
	}
}

// quarantine auto-pauses this session after a flood or spam signal. Called
// from inside a queue task, so the teardown runs on its own goroutine: the
// queue cannot be closed from within the task it is executing.
func (s *supervisor) quarantine(class transport.ErrorClass, wait time.Duration) {
	var reason string
	penalty := wait
	switch class {
	case transport.ClassFloodWait:
		reason = "flood_wait"
		if s.e.metrics != nil {
			s.e.metrics.RecordFloodWait(s.phone, wait)
		}
	case transport.ClassSpam:
		reason = "peer_flood"
		penalty = s.e.cfg.SpamBackoff
		if s.e.metrics != nil {
			s.e.metrics.RecordSpamBlock(s.phone)
		}
	default:
		return
	}

	until := s.e.now().Add(penalty)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.e.store.PauseSession(ctx, s.phone, reason, true, &until); err != nil {
		logger.Error("quarantine pause failed",
			logger.KeySession, s.phone, logger.KeyError, err)
	}

	logger.Warn("session quarantined",
		logger.KeySession, s.phone,
		logger.KeyStatus, reason,
		logger.KeyWait, penalty.String())

	s.e.notifier.SessionQuarantined(s.phone, reason, until)
	s.e.detachSession(s.phone)
	go s.stop()
}

// authLost marks the session failed after its credential died mid-flight.
func (s *supervisor) authLost(err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stErr := s.e.store.SetSessionError(ctx, s.phone, err.Error()); stErr != nil {
		logger.Error("recording session error failed",
			logger.KeySession, s.phone, logger.KeyError, stErr)
	}

	logger.Error("session authorization lost", logger.KeySession, s.phone)
	s.e.notifier.SessionAuthLost(s.phone)
	s.e.detachSession(s.phone)
	go s.stop()
}
