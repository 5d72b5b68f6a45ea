package core

// upload_limiter.go bounds outbound parse requests.
//
// Every session may have at most one submission outstanding; the limiter
// additionally caps how many sessions talk to the parsing service at once.
// When all slots are occupied, a submission waits up to maxWait before
// failing with ErrParserBusy.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrParserBusy is returned when all parse slots are occupied and the wait
// timeout expires.
var ErrParserBusy = errors.New("parser busy: too many concurrent parse requests")

// DefaultMaxConcurrentParses is the default limit for parallel parse requests.
const DefaultMaxConcurrentParses = 5

// DefaultMaxParseWait is how long to wait for a slot before rejecting.
const DefaultMaxParseWait = 10 * time.Second

// ParseLimiter controls concurrent parse requests using a semaphore.
type ParseLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewParseLimiter creates a limiter that allows at most maxConcurrent
// simultaneous parse requests. Non-positive arguments take the defaults.
func NewParseLimiter(maxConcurrent int, maxWait time.Duration) *ParseLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentParses
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxParseWait
	}

	return &ParseLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. It returns ErrParserBusy when maxWait elapses
// and ctx.Err() when ctx ends first. The caller MUST call Release after a
// nil return.
func (l *ParseLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrParserBusy
	}
}

// TryAcquire takes a slot without blocking.
func (l *ParseLimiter) TryAcquire() bool {
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

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ParseLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of parse requests in flight.
func (l *ParseLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no parse request is in flight or ctx ends.
// Used during shutdown so outstanding submissions can finish.
func (l *ParseLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ParseLimiterStatus is a snapshot of the limiter's state.
type ParseLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *ParseLimiter) Status() ParseLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return ParseLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
