// Package engine ties the forwarding pipeline together: it supervises one
// runtime per impersonating session, routes channel events into the fan-out
// dispatcher, revokes delivered copies and keeps channel rosters fresh.
//
// The engine owns no policy state of its own; sessions, channels, operators
// and the forward ledger live in the store, and rate decisions live in the
// governor. Stopping the engine loses nothing: pending ledger rows are
// resolved on the next dispatch of the same message.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tgmirror/tgmirror/internal/logger"
	"github.com/tgmirror/tgmirror/pkg/governor"
	"github.com/tgmirror/tgmirror/pkg/metrics"
	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/queue"
	"github.com/tgmirror/tgmirror/pkg/store"
	"github.com/tgmirror/tgmirror/pkg/transport"
)

// Config parameterizes the engine. Zero values fall back to defaults.
type Config struct {
	// ChunkSize is the number of recipients dispatched per batch.
	ChunkSize int
	// InterChunkDelay is the pause between recipient batches.
	InterChunkDelay time.Duration

	// RetryMaxAttempts bounds send attempts per recipient; RetryBaseDelay
	// seeds the exponential backoff, capped at RetryMaxDelay.
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// RetentionAge is how long a delivered copy lives before the sweep
	// revokes it; CleanupInterval is the sweep period; SweepBatchSize
	// bounds rows per pass.
	RetentionAge    time.Duration
	CleanupInterval time.Duration
	SweepBatchSize  int

	// MembershipSyncInterval is the roster refresh period; MaxParticipants
	// caps members fetched per channel.
	MembershipSyncInterval time.Duration
	MaxParticipants        int

	// ResumeCheckInterval is the quarantine expiry poll period; SpamBackoff
	// is the penalty applied on a spam block.
	ResumeCheckInterval time.Duration
	SpamBackoff         time.Duration

	// AdminCacheTTL bounds how long a cached admin verification is trusted.
	AdminCacheTTL time.Duration

	// Queue parameterizes the per-session serial queues.
	Queue queue.Config
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 10
	}
	if c.InterChunkDelay <= 0 {
		c.InterChunkDelay = 2 * time.Second
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.RetentionAge <= 0 {
		c.RetentionAge = 24 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = 500
	}
	if c.MembershipSyncInterval <= 0 {
		c.MembershipSyncInterval = 2 * time.Minute
	}
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = 1000
	}
	if c.ResumeCheckInterval <= 0 {
		c.ResumeCheckInterval = 60 * time.Second
	}
	if c.SpamBackoff <= 0 {
		c.SpamBackoff = time.Hour
	}
	if c.AdminCacheTTL <= 0 {
		c.AdminCacheTTL = 10 * time.Minute
	}
}

// Notifier receives session health reports the operator should see. The
// engine calls it from supervisor goroutines; implementations must not block.
type Notifier interface {
	// SessionQuarantined reports an automatic pause and when it expires.
	SessionQuarantined(phone, reason string, until time.Time)

	// SessionAuthLost reports a dead credential needing operator action.
	SessionAuthLost(phone string)
}

type nopNotifier struct{}

func (nopNotifier) SessionQuarantined(string, string, time.Time) {}
func (nopNotifier) SessionAuthLost(string)                       {}

// Option customizes engine construction.
type Option func(*Engine)

// WithNotifier installs the operator notification hook.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithMetrics installs the metrics sink. A nil sink disables collection.
func WithMetrics(m metrics.ForwarderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// withClock overrides the engine's clock. Test use only.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs the forwarding fleet.
type Engine struct {
	cfg      Config
	store    store.Store
	dialer   transport.Dialer
	gov      *governor.Governor
	metrics  metrics.ForwarderMetrics
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*supervisor
	started  bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an engine. Start must be called before use.
func New(st store.Store, dialer transport.Dialer, gov *governor.Governor, cfg Config, opts ...Option) *Engine {
	cfg.ApplyDefaults()
	e := &Engine{
		cfg:      cfg,
		store:    st,
		dialer:   dialer,
		gov:      gov,
		notifier: nopNotifier{},
		now:      time.Now,
		sessions: make(map[string]*supervisor),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start connects every active session and launches the background workers
// (revocation sweep, resume sweep). Sessions that fail to connect are marked
// errored and skipped; Start only fails on store errors.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.runCtx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for _, sess := range sessions {
		if sess.Status != models.SessionActive {
			continue
		}
		if err := e.startSession(ctx, sess.Phone); err != nil {
			logger.Error("session failed to start",
				logger.KeySession, sess.Phone, logger.KeyError, err)
		}
	}

	e.wg.Add(2)
	go e.runRevocationSweep()
	go e.runResumeSweep()

	logger.Info("engine started", logger.KeyCount, e.activeCount())
	return nil
}

// Stop disconnects every session and waits for the background workers.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	supervisors := make([]*supervisor, 0, len(e.sessions))
	for _, s := range e.sessions {
		supervisors = append(supervisors, s)
	}
	e.sessions = make(map[string]*supervisor)
	e.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		for _, s := range supervisors {
			s.stop()
		}
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown timed out: %w", ctx.Err())
	}
}

// startSession spins up the supervisor for one session. The caller must hold
// no engine locks.
func (e *Engine) startSession(ctx context.Context, phone string) error {
	e.mu.Lock()
	if _, running := e.sessions[phone]; running {
		e.mu.Unlock()
		return nil
	}
	runCtx := e.runCtx
	e.mu.Unlock()

	s := newSupervisor(e, phone)
	if err := s.start(ctx, runCtx); err != nil {
		return err
	}

	e.mu.Lock()
	e.sessions[phone] = s
	active := len(e.sessions)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetSessionsActive(active)
	}
	return nil
}

// detachSession removes a supervisor from the running set without stopping
// it; the supervisor calls this as part of its own teardown.
func (e *Engine) detachSession(phone string) {
	e.mu.Lock()
	delete(e.sessions, phone)
	active := len(e.sessions)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetSessionsActive(active)
	}
}

func (e *Engine) supervisorFor(phone string) *supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[phone]
}

func (e *Engine) activeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// runResumeSweep periodically reconnects auto-paused sessions whose penalty
// has expired.
func (e *Engine) runResumeSweep() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ResumeCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.runCtx.Done():
			return
		case <-ticker.C:
			e.resumeEligible()
		}
	}
}

func (e *Engine) resumeEligible() {
	ctx, cancel := context.WithTimeout(e.runCtx, 30*time.Second)
	defer cancel()

	eligible, err := e.store.ListResumable(ctx, e.now())
	if err != nil {
		logger.Error("resume sweep query failed", logger.KeyError, err)
		return
	}

	for _, sess := range eligible {
		logger.Info("resuming quarantined session", logger.KeySession, sess.Phone)
		if err := e.startSession(ctx, sess.Phone); err != nil {
			logger.Error("session resume failed",
				logger.KeySession, sess.Phone, logger.KeyError, err)
		}
	}
}

// runRevocationSweep periodically revokes delivered copies older than the
// retention age.
func (e *Engine) runRevocationSweep() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.runCtx.Done():
			return
		case <-ticker.C:
			e.sweepAgedCopies()
		}
	}
}
