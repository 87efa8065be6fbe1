package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_EleventhRequestDenied(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(DefaultLimit, DefaultWindow, WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := s.Allow(ctx, "0xAbC")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, i, d.Count)
	}

	d, err := s.Allow(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining())
	assert.Equal(t, 60*time.Second, d.RetryAfter(clock.Now()))

	rec, ok, err := s.Peek(ctx, "0XABC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, rec.Count, "denied requests do not count")
}

func TestMemoryStore_WindowResets(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(10, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = s.Allow(ctx, "sender")
	}
	d, _ := s.Allow(ctx, "sender")
	require.False(t, d.Allowed)

	// the reset instant itself still belongs to the old window
	clock.Advance(time.Minute)
	d, _ = s.Allow(ctx, "sender")
	assert.False(t, d.Allowed)

	clock.Advance(time.Millisecond)
	d, _ = s.Allow(ctx, "sender")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryStore(1, time.Minute)
	ctx := context.Background()

	d, _ := s.Allow(ctx, "a")
	assert.True(t, d.Allowed)
	d, _ = s.Allow(ctx, "b")
	assert.True(t, d.Allowed)
	d, _ = s.Allow(ctx, "a")
	assert.False(t, d.Allowed)
}

func TestMemoryStore_ConcurrentAllowNeverOveradmits(t *testing.T) {
	s := NewMemoryStore(10, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.Allow(ctx, "0xsame")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestMemoryStore_SweepAndEviction(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(2, time.Minute, WithClock(clock.Now), WithMaxKeys(3))
	ctx := context.Background()

	// k0 is throttled
	for i := 0; i < 3; i++ {
		_, _ = s.Allow(ctx, "k0")
	}
	for i := 1; i < 3; i++ {
		clock.Advance(time.Second)
		_, _ = s.Allow(ctx, fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, 3, s.Len())

	// table full of live windows: new keys are refused, nobody's window is dropped
	for i := 3; i < 10; i++ {
		d, err := s.Allow(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining())
		assert.Equal(t, time.Unix(1_700_000_000, 0).Add(time.Minute), d.ResetAt)
	}
	assert.Equal(t, 3, s.Len())
	d, _ := s.Allow(ctx, "k0")
	assert.False(t, d.Allowed, "throttled window survives the flood")

	// once k0 expires its slot is reused
	clock.Advance(time.Minute)
	d, _ = s.Allow(ctx, "k3")
	assert.True(t, d.Allowed)
	_, ok, _ := s.Peek(ctx, "k0")
	assert.False(t, ok)

	assert.Equal(t, 2, s.Len(), "expired k1 went with it")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Reset(t *testing.T) {
	s := NewMemoryStore(1, time.Minute)
	ctx := context.Background()
	_, _ = s.Allow(ctx, "0xAA")
	require.NoError(t, s.Reset(ctx, "0xaa"))
	d, _ := s.Allow(ctx, "0xAA")
	assert.True(t, d.Allowed)
}

func TestMemoryStore_RunStopsWithContext(t *testing.T) {
	s := NewMemoryStore(1, time.Millisecond)
	_, _ = s.Allow(context.Background(), "x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond, nil)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
