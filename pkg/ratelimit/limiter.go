// Package ratelimit throttles outstanding embedding requests. Adapted from
// the teacher's pkg/ratelimit APIProtector: the same semaphore-then-
// token-bucket layering (Acquire blocks on a concurrency slot, then on a
// rate token), minus the Redis-backed sliding window and debounce layers,
// since this client runs in a single worker process with no replicas to
// coordinate across.
package ratelimit

import (
	"context"
	"time"
)

// Config controls how many embedding requests may be outstanding at once
// and how fast new ones may start.
type Config struct {
	MaxConcurrent     int // outstanding request cap (0 disables the semaphore)
	RequestsPerSecond int // steady-state token refill rate (0 disables the bucket)
	BurstSize         int // extra tokens available above the steady rate
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     8,
		RequestsPerSecond: 4,
		BurstSize:         4,
	}
}

// Limiter gates callers with a concurrency semaphore and a token bucket.
// A zero-value Limiter (via New with a zero Config) passes every Acquire
// through immediately.
type Limiter struct {
	sem    chan struct{}
	tokens chan struct{}
	stop   chan struct{}
}

func New(cfg Config) *Limiter {
	l := &Limiter{stop: make(chan struct{})}

	if cfg.MaxConcurrent > 0 {
		l.sem = make(chan struct{}, cfg.MaxConcurrent)
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.BurstSize
		if burst < 1 {
			burst = 1
		}
		l.tokens = make(chan struct{}, burst)
		for i := 0; i < burst; i++ {
			l.tokens <- struct{}{}
		}
		go l.refill(cfg.RequestsPerSecond)
	}

	return l
}

func (l *Limiter) refill(perSecond int) {
	interval := time.Second / time.Duration(perSecond)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			select {
			case l.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Acquire blocks until a concurrency slot and a rate token are both
// available, or ctx is cancelled. The returned func releases the
// concurrency slot and must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if l.tokens != nil {
		select {
		case <-l.tokens:
		case <-ctx.Done():
			if l.sem != nil {
				<-l.sem
			}
			return nil, ctx.Err()
		}
	}

	release := func() {
		if l.sem != nil {
			<-l.sem
		}
	}
	return release, nil
}

// Close stops the refill goroutine. Safe to call on a Limiter with no
// rate limit configured (it's a no-op in that case since refill never
// started, but Close is still idempotent-safe to call once).
func (l *Limiter) Close() {
	close(l.stop)
}
