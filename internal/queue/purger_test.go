package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingPurgeService struct {
	calls    atomic.Int64
	lastDays atomic.Int64
}

func (s *countingPurgeService) ClearOld(ctx context.Context, days int) (int, error) {
	s.calls.Add(1)
	s.lastDays.Store(int64(days))
	return 0, nil
}

func TestPurgerSweepsImmediatelyAndOnTick(t *testing.T) {
	svc := &countingPurgeService{}
	purger := NewPurger(svc, 5, nil).WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		purger.Run(ctx)
	}()

	deadline := time.After(time.Second)
	for svc.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", svc.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := svc.lastDays.Load(); got != 5 {
		t.Errorf("expected retention of 5 days, got %d", got)
	}
}

func TestPurgerDefaultsRetention(t *testing.T) {
	svc := &countingPurgeService{}
	purger := NewPurger(svc, 0, nil).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		purger.Run(ctx)
	}()

	deadline := time.After(time.Second)
	for svc.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("purger never swept")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := svc.lastDays.Load(); got != 30 {
		t.Errorf("expected default retention of 30 days, got %d", got)
	}
}
