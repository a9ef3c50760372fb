// Package loop provides the single control goroutine the session runs on.
//
// All session state (venues, markers, panels) is owned by one goroutine.
// Network completions, timers and HTTP actions never touch that state
// directly; they Post a callback which the loop runs in arrival order.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	appLog "concertmap/internal/log"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Scheduler queues work for the control goroutine.
type Scheduler interface {
	// Post queues fn to run on the control goroutine. Safe from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the control goroutine once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped it; false means it already ran or was already stopped.
	Stop() bool
}

// Loop is the production Scheduler backed by a buffered channel.
type Loop struct {
	queue chan func()
	done  chan struct{}
	ended atomic.Bool
}

const defaultBuffer = 1024

// New creates a loop. Call Run to start processing.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Loop{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post implements Scheduler. Callbacks posted after the loop exits are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.ended.Load() {
		return
	}
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have been called between expiry and this callback.
			if !t.state.CompareAndSwap(timerPending, timerFired) {
				return
			}
			fn()
		})
	})
	return t
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.ended.Load() {
		return ErrStopped
	}
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.ended.Store(true)
		close(l.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			l.run(fn)
		}
	}
}

// run executes one callback. A panicking callback is logged and the loop
// keeps going.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("loop callback panicked", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

type loopTimer struct {
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) Stop() bool {
	if !t.state.CompareAndSwap(timerPending, timerStopped) {
		return false
	}
	t.timer.Stop()
	return true
}
