// Package coordinator wraps outbound calls with retry, backoff, timeouts,
// and per-kind supersede handles so that a stale in-flight response never
// overwrites newer state.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 500 * time.Millisecond
	defaultTimeout   = 30 * time.Second
)

// Config tunes the coordinator. Zero values fall back to defaults.
type Config struct {
	Attempts  int           // attempt budget for retryable calls
	BaseDelay time.Duration // first backoff delay, doubled per attempt
	Timeout   time.Duration // per-attempt timeout
}

// Coordinator owns the per-kind cancellation registry and the retry policy.
type Coordinator struct {
	logger *slog.Logger

	attempts  int
	baseDelay time.Duration
	timeout   time.Duration

	mu       sync.Mutex
	inflight map[string]inflightCall
}

// inflightCall is the current registration for one call kind. The
// generation lets a done func tell whether it still owns the slot.
type inflightCall struct {
	gen    uint64
	cancel context.CancelFunc
}

// New creates a Coordinator.
func New(cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Coordinator{
		logger:    logger,
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
		timeout:   cfg.Timeout,
		inflight:  make(map[string]inflightCall),
	}
}

// Begin registers a new call of the given kind, aborting any still-pending
// previous call of the same kind. The returned context is canceled when a
// later call of the same kind begins.
func (c *Coordinator) Begin(parent context.Context, kind string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	gen := uint64(1)
	if prev, ok := c.inflight[kind]; ok {
		prev.cancel()
		gen = prev.gen + 1
	}
	c.inflight[kind] = inflightCall{gen: gen, cancel: cancel}
	c.mu.Unlock()

	return ctx, func() {
		c.mu.Lock()
		// Only unregister if this call still owns the slot; a newer call
		// of the same kind must keep its registration.
		if current, ok := c.inflight[kind]; ok && current.gen == gen {
			delete(c.inflight, kind)
		}
		c.mu.Unlock()
		cancel()
	}
}

// Retry runs fn with the coordinator's attempt budget and exponential
// backoff. Cancellation aborts immediately and is returned untouched;
// callers must not surface it as an error.
func (c *Coordinator) Retry(ctx context.Context, kind string, fn func(context.Context) error) error {
	var err error
	delay := c.baseDelay

	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = c.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if IsCanceled(err) {
			return err
		}

		c.logger.Warn("call failed", "kind", kind, "attempt", attempt, "error", err)

		if attempt == c.attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

// Once runs fn with a single attempt. Non-idempotent calls (a progress
// update, a library add) use this and rely on the offline queue for
// durability across outages.
func (c *Coordinator) Once(ctx context.Context, kind string, fn func(context.Context) error) error {
	err := c.attempt(ctx, fn)
	if err != nil && !IsCanceled(err) {
		c.logger.Warn("call failed", "kind", kind, "error", err)
	}
	return err
}

func (c *Coordinator) attempt(ctx context.Context, fn func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(attemptCtx)
}

// IsCanceled reports whether err is a cancellation. Deadline expiry is a
// transient failure, not a cancellation, and stays retryable.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
