package queue

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCalled    Status = "called"
	StatusInService Status = "in_service"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the entry still occupies a slot in the live queue.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusCalled || s == StatusInService
}

// Terminal reports whether the entry has reached an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority ranks waiting entries ahead of FIFO order.
type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityUrgent    Priority = "urgent"
	PriorityNormal    Priority = "normal"
)

// Rank returns the ordering weight; higher ranks are served first.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 2
	case PriorityUrgent:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityEmergency, PriorityUrgent, PriorityNormal:
		return true
	}
	return false
}

// QueueEntry is a single patient's ticket in a doctor's queue.
//
// Status only ever moves forward: waiting -> called -> in_service ->
// completed, with cancellation allowed from waiting or called. The
// transition timestamps are written exactly once, by the transition that
// wins the status check.
type QueueEntry struct {
	ID          string   `json:"id"`
	PatientID   string   `json:"patient_id"`
	DoctorID    string   `json:"doctor_id"`
	QueueNumber int      `json:"queue_number"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`

	JoinedAt         time.Time  `json:"joined_at"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	ServiceStartedAt *time.Time `json:"service_started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`

	// Derived on read for waiting entries, never stored.
	Position             int   `json:"position,omitempty"`
	EstimatedWaitSeconds int64 `json:"estimated_wait_seconds,omitempty"`
}

// Clone returns a copy so callers cannot mutate stored state.
func (e *QueueEntry) Clone() *QueueEntry {
	clone := *e
	return &clone
}

// JoinRequest is the payload for adding a patient to a doctor's queue.
type JoinRequest struct {
	PatientID string   `json:"patient_id"`
	DoctorID  string   `json:"doctor_id"`
	Priority  Priority `json:"priority,omitempty"`
}

// Validate checks the request and defaults the priority to normal.
func (r *JoinRequest) Validate() error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	if r.PatientID == "" {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if r.DoctorID == "" {
		return &ValidationError{Field: "doctor_id", Reason: "required"}
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be one of emergency, urgent, normal"}
	}
	return nil
}

// CancelRequest carries the free-text reason for a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ChangePriorityRequest re-tiers a waiting entry.
type ChangePriorityRequest struct {
	Priority Priority `json:"priority"`
}

// Validate checks the priority value.
func (r *ChangePriorityRequest) Validate() error {
	if !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "must be one of emergency, urgent, normal"}
	}
	return nil
}

// Stats aggregates completed entries over a rolling window plus a snapshot
// of the live queue.
type Stats struct {
	DoctorID              string    `json:"doctor_id,omitempty"`
	Waiting               int       `json:"waiting"`
	Called                int       `json:"called"`
	InService             int       `json:"in_service"`
	Completed             int       `json:"completed"`
	TotalPatients         int       `json:"total_patients"`
	AvgServiceTimeSeconds int64     `json:"avg_service_time_seconds"`
	AvgWaitTimeSeconds    int64     `json:"avg_wait_time_seconds"`
	WindowStart           time.Time `json:"window_start"`
}

// PositionInfo is the getMyPosition response for a patient's active entry.
type PositionInfo struct {
	EntryID              string `json:"entry_id"`
	QueueNumber          int    `json:"queue_number"`
	Status               Status `json:"status"`
	Position             int    `json:"position"`
	EstimatedWaitSeconds int64  `json:"estimated_wait_seconds"`
}
