// Package governor enforces send pacing at four scopes: a global token
// bucket, a per-session token bucket, a per-channel minimum gap and a
// per-recipient minimum gap. Acquire blocks until all four admit the send;
// it never fails except by context cancellation.
package governor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config parameterizes the governor.
type Config struct {
	// GlobalCapacity is the burst size of the process-wide bucket.
	GlobalCapacity int `mapstructure:"capacity" yaml:"capacity"`

	// GlobalRefillPerMinute is the sustained process-wide send rate.
	GlobalRefillPerMinute int `mapstructure:"refill_per_minute" yaml:"refill_per_minute"`

	// SessionTokensPerMinute is the sustained per-session send rate.
	SessionTokensPerMinute int `mapstructure:"tokens_per_minute" yaml:"tokens_per_minute"`

	// RecipientGap is the minimum interval between two sends to the same
	// recipient, across all sessions.
	RecipientGap time.Duration `mapstructure:"recipient_gap" yaml:"recipient_gap"`

	// DefaultChannelGap applies to channels that have not announced a
	// computed gap via SetChannelGap.
	DefaultChannelGap time.Duration `mapstructure:"default_channel_gap" yaml:"default_channel_gap"`

	// Jitter is the uniform random fraction added to or subtracted from
	// every computed wait, to de-correlate concurrent senders. 0.2 means
	// +/-20%.
	Jitter float64 `mapstructure:"jitter" yaml:"jitter"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.GlobalCapacity <= 0 {
		c.GlobalCapacity = 30
	}
	if c.GlobalRefillPerMinute <= 0 {
		c.GlobalRefillPerMinute = 60
	}
	if c.SessionTokensPerMinute <= 0 {
		c.SessionTokensPerMinute = 20
	}
	if c.RecipientGap <= 0 {
		c.RecipientGap = 3 * time.Second
	}
	if c.DefaultChannelGap <= 0 {
		c.DefaultChannelGap = time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.2
	}
}

// Governor is the process-wide rate gate. One instance is shared by every
// per-session queue.
type Governor struct {
	cfg Config

	global *rate.Limiter

	mu            sync.Mutex
	sessions      map[string]*rate.Limiter
	channelGaps   map[int64]time.Duration
	lastChannel   map[int64]time.Time
	lastRecipient map[int64]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Governor from the configuration.
func New(cfg Config) *Governor {
	cfg.ApplyDefaults()
	return &Governor{
		cfg:           cfg,
		global:        rate.NewLimiter(perMinute(cfg.GlobalRefillPerMinute), cfg.GlobalCapacity),
		sessions:      make(map[string]*rate.Limiter),
		channelGaps:   make(map[int64]time.Duration),
		lastChannel:   make(map[int64]time.Time),
		lastRecipient: make(map[int64]time.Time),
		now:           time.Now,
	}
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// SetChannelGap announces the computed minimum gap for a channel
// (clamp(base + members*perMember, min, max), maintained by the dispatcher
// from the channel record).
func (g *Governor) SetChannelGap(channelID int64, gap time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gap <= 0 {
		delete(g.channelGaps, channelID)
		return
	}
	g.channelGaps[channelID] = gap
}

// ForgetSession drops the bucket of a removed session.
func (g *Governor) ForgetSession(phone string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, phone)
}

// Acquire blocks until a send from the session to the recipient, originated
// by the channel, is admitted by every scope. Scopes are taken in a fixed
// order (global, session, channel, recipient) so contention resolves
// deterministically. The only error is the context's.
func (g *Governor) Acquire(ctx context.Context, sessionPhone string, channelID, recipientID int64) error {
	if err := g.global.Wait(ctx); err != nil {
		return err
	}
	if err := g.sessionLimiter(sessionPhone).Wait(ctx); err != nil {
		return err
	}
	return g.waitGap(ctx, channelID, recipientID)
}

func (g *Governor) sessionLimiter(phone string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.sessions[phone]
	if !ok {
		l = rate.NewLimiter(perMinute(g.cfg.SessionTokensPerMinute), 1)
		g.sessions[phone] = l
	}
	return l
}

// waitGap sleeps out the remaining channel and recipient intervals. The
// check and the slot reservation happen atomically: both timestamps are
// recomputed and, once clear, written before the lock is released, so two
// acquirers racing for the same recipient cannot both observe a stale
// timestamp and proceed. The sleep itself runs without the lock so
// acquirers for unrelated scopes do not serialize on it.
func (g *Governor) waitGap(ctx context.Context, channelID, recipientID int64) error {
	for {
		now := g.now()
		g.mu.Lock()
		channelGap, ok := g.channelGaps[channelID]
		if !ok {
			channelGap = g.cfg.DefaultChannelGap
		}
		channelWait := remaining(g.lastChannel[channelID], channelGap, now)
		recipientWait := remaining(g.lastRecipient[recipientID], g.cfg.RecipientGap, now)
		if channelWait <= 0 && recipientWait <= 0 {
			g.lastChannel[channelID] = now
			g.lastRecipient[recipientID] = now
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		wait := channelWait
		if recipientWait > wait {
			wait = recipientWait
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func remaining(last time.Time, gap time.Duration, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	wait := gap - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

// sleep waits d adjusted by the configured jitter, or until ctx is done.
func (g *Governor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	d = Jittered(d, g.cfg.Jitter)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jittered scales d by a uniform random factor in [1-f, 1+f].
func Jittered(d time.Duration, f float64) time.Duration {
	if f <= 0 {
		return d
	}
	factor := 1 - f + 2*f*rand.Float64()
	return time.Duration(float64(d) * factor)
}
