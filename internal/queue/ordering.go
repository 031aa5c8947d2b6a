package queue

import (
	"sort"
	"time"
)

// rankBefore orders waiting entries: higher priority tier first, then FIFO
// by join time, with the queue number as a stable tiebreak for equal
// timestamps.
func rankBefore(a, b *QueueEntry) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.QueueNumber < b.QueueNumber
}

// OrderWaiting returns the waiting subset of entries in serving order.
func OrderWaiting(entries []*QueueEntry) []*QueueEntry {
	var waiting []*QueueEntry
	for _, e := range entries {
		if e.Status == StatusWaiting {
			waiting = append(waiting, e)
		}
	}
	sort.SliceStable(waiting, func(i, j int) bool {
		return rankBefore(waiting[i], waiting[j])
	})
	return waiting
}

// WaitingPosition returns the 1-based rank of the entry with the given id
// among waiting entries, or 0 when it is not waiting.
func WaitingPosition(entries []*QueueEntry, id string) int {
	for i, e := range OrderWaiting(entries) {
		if e.ID == id {
			return i + 1
		}
	}
	return 0
}

// EstimatedWait derives the wait estimate for a waiting position from the
// average consultation length. Position is 1-based; non-waiting entries
// (position 0) wait nothing.
func EstimatedWait(position int, avgService time.Duration) time.Duration {
	if position <= 0 {
		return 0
	}
	return time.Duration(position) * avgService
}

// statusDisplayRank orders a board snapshot: patients in the room first,
// then the one being called, then the ranked waiting list.
func statusDisplayRank(s Status) int {
	switch s {
	case StatusInService:
		return 0
	case StatusCalled:
		return 1
	default:
		return 2
	}
}

// OrderActive sorts a full active snapshot for display: in_service, then
// called (oldest call first), then waiting in serving order.
func OrderActive(entries []*QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if statusDisplayRank(a.Status) != statusDisplayRank(b.Status) {
			return statusDisplayRank(a.Status) < statusDisplayRank(b.Status)
		}
		switch a.Status {
		case StatusInService:
			return timeOrZero(a.ServiceStartedAt).Before(timeOrZero(b.ServiceStartedAt))
		case StatusCalled:
			return timeOrZero(a.CalledAt).Before(timeOrZero(b.CalledAt))
		default:
			return rankBefore(a, b)
		}
	})
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
