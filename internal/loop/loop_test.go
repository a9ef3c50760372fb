package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return l, cancel
}

func TestLoopRunsPostsInOrder(t *testing.T) {
	t.Parallel()

	l, _ := startLoop(t)
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("do: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v, want 0..4", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d callbacks, want 5", len(got))
	}
}

func TestLoopTimerStopPreventsCallback(t *testing.T) {
	t.Parallel()

	l, _ := startLoop(t)
	fired := make(chan struct{}, 1)
	var timer Timer
	if err := l.Do(context.Background(), func() {
		timer = l.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := l.Do(context.Background(), func() {
		if !timer.Stop() {
			t.Error("Stop on pending timer returned false")
		}
	}); err != nil {
		t.Fatalf("do: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
}

func TestLoopSurvivesPanickingCallback(t *testing.T) {
	t.Parallel()

	l, _ := startLoop(t)
	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !ran {
		t.Fatal("callback after panic did not run")
	}
}

func TestLoopDoAfterStop(t *testing.T) {
	t.Parallel()

	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Run(ctx)

	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestManualAdvanceFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()

	start := time.Date(2016, 5, 5, 20, 0, 0, 0, time.UTC)
	m := NewManual(start)
	var got []string
	m.AfterFunc(600*time.Millisecond, func() { got = append(got, "window") })
	m.AfterFunc(12*time.Second, func() { got = append(got, "timeout") })
	stopped := m.AfterFunc(time.Second, func() { got = append(got, "stopped") })
	if !stopped.Stop() {
		t.Fatal("Stop returned false for pending timer")
	}

	m.Advance(time.Second)
	if len(got) != 1 || got[0] != "window" {
		t.Fatalf("after 1s got %v, want [window]", got)
	}
	m.Advance(11 * time.Second)
	if len(got) != 2 || got[1] != "timeout" {
		t.Fatalf("after 12s got %v, want [window timeout]", got)
	}
	if !m.Now().Equal(start.Add(12 * time.Second)) {
		t.Fatalf("now = %v", m.Now())
	}
	if m.PendingTimers() != 0 {
		t.Fatalf("pending timers = %d, want 0", m.PendingTimers())
	}
}

func TestManualAwaitDrainsCrossGoroutinePosts(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Now())
	ran := false
	go m.Post(func() { ran = true })
	if !m.Await(time.Second) {
		t.Fatal("Await timed out")
	}
	if !ran {
		t.Fatal("posted callback did not run")
	}
	if m.Await(10 * time.Millisecond) {
		t.Fatal("Await reported work on an empty queue")
	}
}
