package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hold occupies a slot of l until the returned release is called.
func hold(t *testing.T, l *Limiter) (release func()) {
	t.Helper()
	entered := make(chan struct{})
	done := make(chan struct{})
	go l.Do(context.Background(), func(context.Context) error {
		close(entered)
		<-done
		return nil
	})
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("slot was not acquired")
	}
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func TestLimiter_DoReturnsResult(t *testing.T) {
	l := NewLimiter(1, time.Second)
	boom := errors.New("assistant down")

	err := l.Do(context.Background(), func(context.Context) error {
		assert.Equal(t, 1, l.Status().Active)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, LimiterStatus{Active: 0, Available: 1, MaxConcurrent: 1}, l.Status())
}

func TestLimiter_BusyAfterWait(t *testing.T) {
	l := NewLimiter(1, 30*time.Millisecond)
	release := hold(t, l)
	defer release()

	start := time.Now()
	err := l.Do(context.Background(), func(context.Context) error {
		t.Error("ran without a slot")
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	assert.Equal(t, 0, l.Status().Available)
}

func TestLimiter_WaiterGetsFreedSlot(t *testing.T) {
	l := NewLimiter(1, time.Second)
	release := hold(t, l)

	result := make(chan error, 1)
	go func() {
		result <- l.Do(context.Background(), func(context.Context) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter did not get the freed slot")
	}
}

func TestLimiter_ContextEndsWait(t *testing.T) {
	l := NewLimiter(1, 5*time.Second)
	release := hold(t, l)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_NeverExceedsMax(t *testing.T) {
	const limit = 3
	l := NewLimiter(limit, 5*time.Second)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, 0, l.Status().Active)
}

func TestLimiter_WaitForDrain(t *testing.T) {
	l := NewLimiter(2, time.Second)
	release := hold(t, l)

	drained := make(chan error, 1)
	go func() { drained <- l.WaitForDrain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("drained while a question was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	select {
	case err := <-drained:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("did not drain")
	}
}

func TestLimiter_WaitForDrainTimeout(t *testing.T) {
	l := NewLimiter(1, time.Second)
	release := hold(t, l)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitForDrain(ctx), context.DeadlineExceeded)
}

func TestLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)
	require.Equal(t, DefaultMaxConcurrent, l.Status().MaxConcurrent)
	assert.Equal(t, DefaultMaxWait, l.maxWait)
}
