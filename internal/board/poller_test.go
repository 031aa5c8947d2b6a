package board

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinicdesk/navbat/internal/queue"
)

type scriptedSource struct {
	calls atomic.Int64
	fn    func(call int64) ([]*queue.QueueEntry, error)
}

func (s *scriptedSource) Current(ctx context.Context) ([]*queue.QueueEntry, error) {
	call := s.calls.Add(1)
	if s.fn != nil {
		return s.fn(call)
	}
	return nil, nil
}

type countingHandler struct {
	snapshots   atomic.Int64
	unavailable atomic.Int64
}

func (h *countingHandler) HandleSnapshot(entries []*queue.QueueEntry) { h.snapshots.Add(1) }
func (h *countingHandler) OnUnavailable(err error)                    { h.unavailable.Add(1) }

func runPoller(t *testing.T, p *Poller) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop after cancel")
		}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestPollerDeliversSnapshotsImmediatelyAndOnTick(t *testing.T) {
	source := &scriptedSource{}
	handler := &countingHandler{}
	p := NewPoller(source, handler, nil).WithInterval(10 * time.Millisecond)

	stop := runPoller(t, p)
	waitFor(t, func() bool { return handler.snapshots.Load() >= 3 }, "expected at least 3 snapshots")
	stop()

	if handler.unavailable.Load() != 0 {
		t.Errorf("unexpected unavailable callbacks: %d", handler.unavailable.Load())
	}
}

func TestPollerStopsOnCancel(t *testing.T) {
	source := &scriptedSource{}
	handler := &countingHandler{}
	p := NewPoller(source, handler, nil).WithInterval(5 * time.Millisecond)

	stop := runPoller(t, p)
	waitFor(t, func() bool { return handler.snapshots.Load() >= 1 }, "expected a first snapshot")
	stop()

	after := handler.snapshots.Load()
	time.Sleep(30 * time.Millisecond)
	if handler.snapshots.Load() != after {
		t.Error("poller kept delivering after cancellation")
	}
}

func TestPollerReportsUnavailableExactlyOnce(t *testing.T) {
	source := &scriptedSource{fn: func(int64) ([]*queue.QueueEntry, error) {
		return nil, errors.New("connection refused")
	}}
	handler := &countingHandler{}
	p := NewPoller(source, handler, nil).WithInterval(5 * time.Millisecond)

	stop := runPoller(t, p)
	waitFor(t, func() bool { return source.calls.Load() >= unavailableThreshold+3 }, "source not polled enough")
	stop()

	if got := handler.unavailable.Load(); got != 1 {
		t.Errorf("expected exactly one unavailable callback, got %d", got)
	}
	if handler.snapshots.Load() != 0 {
		t.Errorf("failed polls must not produce snapshots, got %d", handler.snapshots.Load())
	}
}

func TestPollerSuccessResetsFailureStreak(t *testing.T) {
	// Two failures, one success, repeating: the streak never reaches the
	// threshold.
	source := &scriptedSource{fn: func(call int64) ([]*queue.QueueEntry, error) {
		if call%3 == 0 {
			return nil, nil
		}
		return nil, errors.New("timeout")
	}}
	handler := &countingHandler{}
	p := NewPoller(source, handler, nil).WithInterval(5 * time.Millisecond)

	stop := runPoller(t, p)
	waitFor(t, func() bool { return source.calls.Load() >= 9 }, "source not polled enough")
	stop()

	if got := handler.unavailable.Load(); got != 0 {
		t.Errorf("interrupted streaks must not trip the outage callback, got %d", got)
	}
}

func TestPollerRequestsNeverOverlap(t *testing.T) {
	var inFlight atomic.Bool
	var overlapped atomic.Bool
	source := &scriptedSource{fn: func(int64) ([]*queue.QueueEntry, error) {
		if !inFlight.CompareAndSwap(false, true) {
			overlapped.Store(true)
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Store(false)
		return nil, nil
	}}
	handler := &countingHandler{}
	p := NewPoller(source, handler, nil).WithInterval(5 * time.Millisecond)

	stop := runPoller(t, p)
	waitFor(t, func() bool { return source.calls.Load() >= 4 }, "source not polled enough")
	stop()

	if overlapped.Load() {
		t.Error("polls overlapped")
	}
}
