package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter()
	l.now = clock.Now
	return l, clock
}

func TestMemoryLimiter_AllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		d, err := l.Check(ctx, "export:1.2.3.4", 30, time.Minute)
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	d, _ := l.Check(ctx, "export:1.2.3.4", 30, time.Minute)
	if d.Allowed {
		t.Error("request 31 allowed, want denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want in (0, 1m]", d.RetryAfter)
	}
}

func TestMemoryLimiter_FirstRequestOpensWindow(t *testing.T) {
	l, _ := newTestLimiter()

	d, _ := l.Check(context.Background(), "page:a", 5, 30*time.Second)
	if !d.Allowed {
		t.Fatal("first request denied")
	}
	if d.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", d.RetryAfter)
	}
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Check(ctx, "k", 3, time.Minute)
	}
	if d, _ := l.Check(ctx, "k", 3, time.Minute); d.Allowed {
		t.Fatal("request 4 allowed inside window")
	}

	clock.Advance(30 * time.Second)
	d, _ := l.Check(ctx, "k", 3, time.Minute)
	if d.Allowed {
		t.Fatal("allowed before window reset")
	}
	if d.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", d.RetryAfter)
	}

	clock.Advance(30 * time.Second)
	if d, _ := l.Check(ctx, "k", 3, time.Minute); !d.Allowed {
		t.Error("denied after window reset")
	}
}

func TestMemoryLimiter_DeniedDoesNotCount(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()

	l.Check(ctx, "k", 1, time.Minute)
	for i := 0; i < 5; i++ {
		l.Check(ctx, "k", 1, time.Minute)
	}

	l.mu.Lock()
	count := l.entries["k"].Count
	l.mu.Unlock()
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}

	clock.Advance(time.Minute)
	if d, _ := l.Check(ctx, "k", 1, time.Minute); !d.Allowed {
		t.Error("denied after reset")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	ctx := context.Background()

	l.Check(ctx, Key("export", "a"), 1, time.Minute)
	if d, _ := l.Check(ctx, Key("export", "b"), 1, time.Minute); !d.Allowed {
		t.Error("client b limited by client a")
	}
	if d, _ := l.Check(ctx, Key("page", "a"), 1, time.Minute); !d.Allowed {
		t.Error("page limited by export")
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()

	for i := 0; i <= SweepThreshold; i++ {
		l.Check(ctx, fmt.Sprintf("old:%d", i), 10, time.Second)
	}
	if got := l.Len(); got != SweepThreshold+1 {
		t.Fatalf("Len() = %d, want %d", got, SweepThreshold+1)
	}

	clock.Advance(2 * time.Second)
	l.Check(ctx, "fresh", 10, time.Minute)

	if got := l.Len(); got != 1 {
		t.Errorf("Len() after sweep = %d, want 1", got)
	}
}

func TestMemoryLimiter_NoSweepBelowThreshold(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.Check(ctx, fmt.Sprintf("old:%d", i), 10, time.Second)
	}
	clock.Advance(2 * time.Second)
	l.Check(ctx, "fresh", 10, time.Minute)

	if got := l.Len(); got != 11 {
		t.Errorf("Len() = %d, want 11", got)
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter()
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
			d, _ := l.Check(ctx, "shared", 30, time.Minute)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 30 {
		t.Errorf("allowed = %d, want 30", allowed)
	}
}
