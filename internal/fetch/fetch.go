// Package fetch issues one search per submitted query and applies only the
// results that still belong to the newest query.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"concertmap/internal/eventful"
	appLog "concertmap/internal/log"
	"concertmap/internal/loop"
	"concertmap/internal/query"
)

// DefaultTimeout is how long a search may run before the user is told.
const DefaultTimeout = 12 * time.Second

// ErrTimeout is alerted when a search outlives the timeout. The search
// keeps running.
var ErrTimeout = errors.New("fetch: request timed out")

// Error is alerted when a search fails.
type Error struct {
	Location string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch: search for %q failed: %v", e.Location, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Source runs a search. It is called off the loop goroutine.
type Source interface {
	Search(ctx context.Context, q query.Query) ([]eventful.Record, error)
}

// Alerter shows a failure to the user.
type Alerter interface {
	Alert(err error)
}

// Fetcher tracks the current query generation. Apart from the search
// itself, everything runs on the scheduler.
type Fetcher struct {
	source  Source
	sched   loop.Scheduler
	alert   Alerter
	timeout time.Duration

	gen      uint64
	active   bool
	timedOut bool
	timer    loop.Timer
}

// New returns a fetcher. A non-positive timeout uses DefaultTimeout.
func New(source Source, sched loop.Scheduler, alert Alerter, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{source: source, sched: sched, alert: alert, timeout: timeout}
}

// Start begins a new generation for q and returns it. The previous
// generation's timeout is disarmed and its results will be dropped. apply
// runs on the scheduler with the records of this generation.
func (f *Fetcher) Start(ctx context.Context, q query.Query, apply func([]eventful.Record)) uint64 {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	gen := f.gen
	f.active = true
	f.timedOut = false

	f.timer = f.sched.AfterFunc(f.timeout, func() { f.expire(gen) })

	appLog.Info("search started", "generation", gen, "location", q.Location, "date", q.DateRange)
	go func() {
		records, err := f.source.Search(ctx, q)
		f.sched.Post(func() { f.finish(gen, q, records, err, apply) })
	}()
	return gen
}

func (f *Fetcher) expire(gen uint64) {
	if gen != f.gen || !f.active {
		return
	}
	f.timer = nil
	f.timedOut = true
	appLog.Warn("search timed out", "generation", gen, "timeout", f.timeout.String())
	f.raise(ErrTimeout)
}

func (f *Fetcher) finish(gen uint64, q query.Query, records []eventful.Record, err error, apply func([]eventful.Record)) {
	if gen != f.gen {
		appLog.Debug("stale search result dropped", "generation", gen, "current", f.gen, "records", len(records))
		return
	}
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.active = false

	if err != nil {
		appLog.Error("search failed", err, "generation", gen, "location", q.Location)
		f.raise(&Error{Location: q.Location, Err: err})
		return
	}
	if f.timedOut {
		appLog.Info("late search result applied", "generation", gen, "records", len(records))
	} else {
		appLog.Info("search finished", "generation", gen, "records", len(records))
	}
	if apply != nil {
		apply(records)
	}
}

func (f *Fetcher) raise(err error) {
	if f.alert != nil {
		f.alert.Alert(err)
	}
}

// Generation is the newest generation number, 0 before the first Start.
func (f *Fetcher) Generation() uint64 {
	return f.gen
}

// Active reports whether the newest search has not returned yet.
func (f *Fetcher) Active() bool {
	return f.active
}

// TimedOut reports whether the newest search passed the timeout.
func (f *Fetcher) TimedOut() bool {
	return f.timedOut
}
