package preview

// limiter.go bounds how many previews run at once.
//
// Limiter is a semaphore: callers wait up to maxWait for a slot and then
// fail with ErrTooManyPreviews. WaitForDrain supports graceful shutdown.

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/JonMunkholm/csvpreview/internal/csvstream"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

// ErrTooManyPreviews is returned when no slot frees up within the wait time.
var ErrTooManyPreviews = errors.New("too many concurrent previews, please try again later")

// DefaultMaxConcurrent is the default number of parallel previews.
const DefaultMaxConcurrent = 8

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// Limiter controls concurrent preview runs.
type Limiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewLimiter returns a limiter allowing maxConcurrent previews at a time.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &Limiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. The caller must call Release when done.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyPreviews
	}
}

// TryAcquire takes a slot if one is free.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// Compute runs Compute while holding a slot.
func (l *Limiter) Compute(ctx context.Context, file source.File, opts ParseOptions, deps Deps) (Result, error) {
	if err := l.Acquire(ctx); err != nil {
		return Result{}, err
	}
	defer l.Release()

	return Compute(ctx, file, opts, deps)
}

// Parser wraps next so every parse holds a slot. Previewers sharing one
// Limiter through their Deps are bounded together.
func (l *Limiter) Parser(next Parser) Parser {
	if next == nil {
		next = csvstream.New()
	}
	return limitedParser{limiter: l, next: next}
}

type limitedParser struct {
	limiter *Limiter
	next    Parser
}

func (p limitedParser) Parse(ctx context.Context, r io.Reader, cfg csvstream.Config) error {
	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer p.limiter.Release()

	return p.next.Parse(ctx, r, cfg)
}

// LimiterStatus is a snapshot of a Limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *Limiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}

// WaitForDrain blocks until no preview is running or ctx ends.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		l.mu.RLock()
		active := l.active
		l.mu.RUnlock()
		if active == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
