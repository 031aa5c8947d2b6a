package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for queue entry storage. Every mutating
// method is atomic with respect to a single entry: of two concurrent call
// attempts on the same waiting entry, exactly one succeeds and the other
// gets an InvalidTransitionError.
type Repository interface {
	// Join creates a waiting entry with the next queue number for the
	// doctor's day. When the patient already has an active entry with the
	// same doctor, that entry is returned unchanged.
	Join(ctx context.Context, req *JoinRequest) (*QueueEntry, error)
	GetByID(ctx context.Context, id string) (*QueueEntry, error)
	// Active returns all waiting/called/in_service entries, optionally
	// filtered to one doctor.
	Active(ctx context.Context, doctorID string) ([]*QueueEntry, error)
	ActiveByPatient(ctx context.Context, patientID string) (*QueueEntry, error)
	// CompletedSince returns completed entries whose completion falls at or
	// after since, optionally filtered to one doctor.
	CompletedSince(ctx context.Context, doctorID string, since time.Time) ([]*QueueEntry, error)

	Call(ctx context.Context, id string) (*QueueEntry, error)
	StartService(ctx context.Context, id string) (*QueueEntry, error)
	Complete(ctx context.Context, id string) (*QueueEntry, error)
	Cancel(ctx context.Context, id, reason string) (*QueueEntry, error)
	ChangePriority(ctx context.Context, id string, priority Priority) (*QueueEntry, error)

	// DeleteTerminalBefore removes completed/cancelled entries that joined
	// before cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryRepository keeps the queue in process memory. All transitions
// check-and-set the status under the write lock, so they are atomic per
// entry.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*QueueEntry
	numbers NumberSource
	now     func() time.Time
}

// NewInMemoryRepository creates an in-memory repository with a local
// number allocator.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithNumbers(NewLocalNumberSource())
}

// NewInMemoryRepositoryWithNumbers lets callers share a number allocator,
// e.g. the Redis-backed one, across processes.
func NewInMemoryRepositoryWithNumbers(numbers NumberSource) *InMemoryRepository {
	return &InMemoryRepository{
		entries: make(map[string]*QueueEntry),
		numbers: numbers,
		now:     time.Now,
	}
}

// Join creates a waiting entry, or returns the patient's existing active
// entry for the doctor.
func (r *InMemoryRepository) Join(ctx context.Context, req *JoinRequest) (*QueueEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.PatientID == req.PatientID && e.DoctorID == req.DoctorID && e.Status.Active() {
			return e.Clone(), nil
		}
	}

	now := r.now().UTC()
	number, err := r.numbers.Next(ctx, req.DoctorID, now)
	if err != nil {
		return nil, err
	}

	entry := &QueueEntry{
		ID:          uuid.New().String(),
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		QueueNumber: number,
		Status:      StatusWaiting,
		Priority:    req.Priority,
		JoinedAt:    now,
	}
	r.entries[entry.ID] = entry

	return entry.Clone(), nil
}

// GetByID retrieves an entry by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

// Active returns all active entries, newest scope first left to callers.
func (r *InMemoryRepository) Active(ctx context.Context, doctorID string) ([]*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*QueueEntry
	for _, e := range r.entries {
		if !e.Status.Active() {
			continue
		}
		if doctorID != "" && e.DoctorID != doctorID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

// ActiveByPatient returns the patient's active entry. A patient queued
// with several doctors gets the earliest-joined entry, deterministically.
func (r *InMemoryRepository) ActiveByPatient(ctx context.Context, patientID string) (*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var earliest *QueueEntry
	for _, e := range r.entries {
		if e.PatientID != patientID || !e.Status.Active() {
			continue
		}
		if earliest == nil || e.JoinedAt.Before(earliest.JoinedAt) {
			earliest = e
		}
	}
	if earliest == nil {
		return nil, ErrNoActiveEntry
	}
	return earliest.Clone(), nil
}

// CompletedSince returns completed entries within the window.
func (r *InMemoryRepository) CompletedSince(ctx context.Context, doctorID string, since time.Time) ([]*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*QueueEntry
	for _, e := range r.entries {
		if e.Status != StatusCompleted || e.CompletedAt == nil || e.CompletedAt.Before(since) {
			continue
		}
		if doctorID != "" && e.DoctorID != doctorID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

// transition moves an entry from one exact status to another, stamping the
// given timestamp field. The status check and the write happen under the
// same lock acquisition.
func (r *InMemoryRepository) transition(id string, op string, from, to Status, stamp func(e *QueueEntry, t time.Time)) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.Status != from {
		return nil, &InvalidTransitionError{ID: id, From: entry.Status, Op: op}
	}
	entry.Status = to
	if stamp != nil {
		stamp(entry, r.now().UTC())
	}
	return entry.Clone(), nil
}

// Call moves a waiting entry to called.
func (r *InMemoryRepository) Call(ctx context.Context, id string) (*QueueEntry, error) {
	return r.transition(id, "call", StatusWaiting, StatusCalled, func(e *QueueEntry, t time.Time) {
		e.CalledAt = &t
	})
}

// StartService moves a called entry to in_service.
func (r *InMemoryRepository) StartService(ctx context.Context, id string) (*QueueEntry, error) {
	return r.transition(id, "start service for", StatusCalled, StatusInService, func(e *QueueEntry, t time.Time) {
		e.ServiceStartedAt = &t
	})
}

// Complete moves an in_service entry to completed.
func (r *InMemoryRepository) Complete(ctx context.Context, id string) (*QueueEntry, error) {
	return r.transition(id, "complete", StatusInService, StatusCompleted, func(e *QueueEntry, t time.Time) {
		e.CompletedAt = &t
	})
}

// Cancel ends a waiting or called entry with a reason.
func (r *InMemoryRepository) Cancel(ctx context.Context, id, reason string) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.Status != StatusWaiting && entry.Status != StatusCalled {
		return nil, &InvalidTransitionError{ID: id, From: entry.Status, Op: "cancel"}
	}
	entry.Status = StatusCancelled
	entry.CancelReason = reason
	return entry.Clone(), nil
}

// ChangePriority re-tiers a waiting entry.
func (r *InMemoryRepository) ChangePriority(ctx context.Context, id string, priority Priority) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.Status != StatusWaiting {
		return nil, &InvalidTransitionError{ID: id, From: entry.Status, Op: "change priority of"}
	}
	entry.Priority = priority
	return entry.Clone(), nil
}

// DeleteTerminalBefore purges old completed/cancelled entries.
func (r *InMemoryRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.Status.Terminal() && e.JoinedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

var _ Repository = (*InMemoryRepository)(nil)
