package core

// limiter.go bounds the number of questions in flight to the assistant.
//
// Each question holds a slot of a buffered channel while the assistant is
// called. A question that finds every slot taken waits up to maxWait and
// then fails with ErrBusy, which the dashboard shows as a retryable error.
// Shutdown uses WaitForDrain to let answered questions finish.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrBusy is returned when no question slot frees up in time.
var ErrBusy = errors.New("too many questions in flight, please try again later")

const (
	// DefaultMaxConcurrent is the default number of questions in flight.
	DefaultMaxConcurrent = 4

	// DefaultMaxWait is how long a question waits for a slot.
	DefaultMaxWait = 5 * time.Second

	drainPoll = 50 * time.Millisecond
)

// Limiter bounds concurrent calls to the assistant.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewLimiter allows maxConcurrent calls, each waiting at most maxWait for a
// slot. Non-positive values select the defaults.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{slots: make(chan struct{}, maxConcurrent), maxWait: maxWait}
}

// Do runs fn while holding a slot. It fails with ErrBusy when no slot frees
// up within the wait, or with ctx's error when ctx ends first.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	wait := time.NewTimer(l.maxWait)
	defer wait.Stop()

	select {
	case l.slots <- struct{}{}:
	case <-wait.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}

	l.active.Add(1)
	defer func() {
		l.active.Add(-1)
		<-l.slots
	}()
	return fn(ctx)
}

// WaitForDrain blocks until no call holds a slot or ctx is done.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()

	for l.active.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// LimiterStatus is a snapshot of a limiter's state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports the limiter state for the health endpoint.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
