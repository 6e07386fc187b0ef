package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig admits sends without measurable waits.
func fastConfig() Config {
	return Config{
		GlobalCapacity:         1000,
		GlobalRefillPerMinute:  6_000_000,
		SessionTokensPerMinute: 6_000_000,
		RecipientGap:           time.Millisecond,
		DefaultChannelGap:      time.Millisecond,
		Jitter:                 0.01,
	}
}

func TestAcquireAdmitsWithinBudget(t *testing.T) {
	g := New(fastConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, g.Acquire(ctx, "+1555", 100, int64(i)))
	}
}

func TestAcquireHonorsRecipientGap(t *testing.T) {
	cfg := fastConfig()
	cfg.RecipientGap = 80 * time.Millisecond
	g := New(cfg)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, "+1555", 100, 1))

	start := time.Now()
	require.NoError(t, g.Acquire(ctx, "+1555", 100, 1))
	elapsed := time.Since(start)

	// Jitter is 1%, so the wait stays close to the configured gap.
	assert.Greater(t, elapsed, 50*time.Millisecond)
}

func TestAcquireDifferentRecipientsDoNotSerialize(t *testing.T) {
	cfg := fastConfig()
	cfg.RecipientGap = time.Second
	g := New(cfg)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, "+1555", 100, 1))

	start := time.Now()
	require.NoError(t, g.Acquire(ctx, "+1555", 100, 2))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAcquireHonorsChannelGap(t *testing.T) {
	g := New(fastConfig())
	g.SetChannelGap(100, 80*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, "+1555", 100, 1))

	start := time.Now()
	require.NoError(t, g.Acquire(ctx, "+1555", 100, 2))
	assert.Greater(t, time.Since(start), 50*time.Millisecond)

	// Clearing the gap restores the (fast) default.
	g.SetChannelGap(100, 0)
	start = time.Now()
	require.NoError(t, g.Acquire(ctx, "+1555", 100, 3))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestConcurrentAcquiresSerializePerRecipient(t *testing.T) {
	cfg := fastConfig()
	cfg.RecipientGap = 150 * time.Millisecond
	g := New(cfg)
	ctx := context.Background()

	// Prime the recipient timestamp.
	require.NoError(t, g.Acquire(ctx, "+1555", 100, 42))

	// Two sessions race for the same recipient from different channels.
	// The reservation must admit them one full recipient gap apart.
	var (
		mu   sync.Mutex
		done []time.Time
		wg   sync.WaitGroup
	)
	acquirers := []struct {
		phone   string
		channel int64
	}{
		{"+1555", 100},
		{"+1666", 200},
	}
	for _, a := range acquirers {
		wg.Add(1)
		go func(phone string, channel int64) {
			defer wg.Done()
			assert.NoError(t, g.Acquire(ctx, phone, channel, 42))
			mu.Lock()
			done = append(done, time.Now())
			mu.Unlock()
		}(a.phone, a.channel)
	}
	wg.Wait()

	require.Len(t, done, 2)
	gap := done[1].Sub(done[0])
	if gap < 0 {
		gap = -gap
	}
	assert.Greater(t, gap, 100*time.Millisecond)
}

func TestAcquireCancellation(t *testing.T) {
	cfg := fastConfig()
	cfg.RecipientGap = time.Minute
	g := New(cfg)

	require.NoError(t, g.Acquire(context.Background(), "+1555", 100, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx, "+1555", 100, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionBucketsAreIndependent(t *testing.T) {
	cfg := fastConfig()
	// One token per minute and burst 1: a second acquire on the same session
	// would block for a long time.
	cfg.SessionTokensPerMinute = 1
	g := New(cfg)

	require.NoError(t, g.Acquire(context.Background(), "+1555", 100, 1))

	// A different session still has its token.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, g.Acquire(ctx, "+1666", 100, 2))
}

func TestForgetSessionResetsBucket(t *testing.T) {
	cfg := fastConfig()
	cfg.SessionTokensPerMinute = 1
	g := New(cfg)

	require.NoError(t, g.Acquire(context.Background(), "+1555", 100, 1))
	g.ForgetSession("+1555")

	// A fresh bucket carries a fresh burst token.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, g.Acquire(ctx, "+1555", 100, 2))
}

func TestJittered(t *testing.T) {
	d := time.Second
	for i := 0; i < 100; i++ {
		j := Jittered(d, 0.2)
		assert.GreaterOrEqual(t, j, 800*time.Millisecond)
		assert.LessOrEqual(t, j, 1200*time.Millisecond)
	}

	assert.Equal(t, d, Jittered(d, 0))
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, 30, cfg.GlobalCapacity)
	assert.Equal(t, 60, cfg.GlobalRefillPerMinute)
	assert.Equal(t, 20, cfg.SessionTokensPerMinute)
	assert.Equal(t, 3*time.Second, cfg.RecipientGap)
	assert.Equal(t, time.Second, cfg.DefaultChannelGap)
	assert.InDelta(t, 0.2, cfg.Jitter, 0.0001)
}
