package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_ConcurrencyCapBlocksUntilRelease(t *testing.T) {
	l := New(Config{MaxConcurrent: 1})
	defer l.Close()

	ctx := context.Background()
	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx)
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		r()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked while first slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestLimiter_ContextCancelledDuringAcquire(t *testing.T) {
	l := New(Config{MaxConcurrent: 1})
	defer l.Close()

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := l.Acquire(ctx); err == nil {
		t.Fatal("expected acquire to fail once ctx is cancelled")
	}
}

func TestLimiter_RateTokensThrottle(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1000, BurstSize: 1})
	defer l.Close()

	ctx := context.Background()

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	release()

	start := time.Now()
	release, err = l.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	release()
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("second acquire took too long: %v", time.Since(start))
	}
}

func TestLimiter_ZeroConfigNeverBlocks(t *testing.T) {
	l := New(Config{})
	defer l.Close()

	for i := 0; i < 100; i++ {
		release, err := l.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		release()
	}
}
