package queue

import (
	"context"
	"errors"
	"time"

	"github.com/clinicdesk/navbat/internal/observability/metrics"
	"github.com/clinicdesk/navbat/pkg/logging"
)

// minObservedCompletions is how many completions must exist in the stats
// window before the observed average replaces the configured fallback.
const minObservedCompletions = 3

// Service is the operation layer external actors use to mutate and read
// the queue. Validation happens before any mutation; a rejected operation
// leaves the store untouched.
type Service struct {
	repo        Repository
	avgService  time.Duration
	statsWindow time.Duration
	metrics     *metrics.QueueMetrics
	logger      *logging.Logger
}

// NewService creates the queue service. avgService is the fallback mean
// consultation length used for ETA until enough completions are observed.
func NewService(repo Repository, avgService, statsWindow time.Duration, m *metrics.QueueMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if avgService <= 0 {
		avgService = 10 * time.Minute
	}
	if statsWindow <= 0 {
		statsWindow = 24 * time.Hour
	}
	return &Service{
		repo:        repo,
		avgService:  avgService,
		statsWindow: statsWindow,
		metrics:     m,
		logger:      logger,
	}
}

// Join adds the patient to the doctor's queue. Re-joining while an active
// entry exists returns that entry unchanged, so flaky kiosk retries cannot
// strand a patient.
func (s *Service) Join(ctx context.Context, req *JoinRequest) (*QueueEntry, error) {
	entry, err := s.repo.Join(ctx, req)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveJoin()
	s.logger.Info("patient joined queue",
		"id", entry.ID,
		"doctor_id", entry.DoctorID,
		"queue_number", entry.QueueNumber,
		"priority", entry.Priority,
	)
	return entry, nil
}

// Current returns all active entries for display, waiting entries decorated
// with position and wait estimate.
func (s *Service) Current(ctx context.Context, doctorID string) ([]*QueueEntry, error) {
	entries, err := s.repo.Active(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	// Position and ETA are per doctor, so a clinic-wide snapshot is
	// decorated one doctor's queue at a time.
	byDoctor := make(map[string][]*QueueEntry)
	for _, e := range entries {
		byDoctor[e.DoctorID] = append(byDoctor[e.DoctorID], e)
	}
	for docID, docEntries := range byDoctor {
		avg := s.effectiveAvgService(ctx, docID)
		for _, ranked := range OrderWaiting(docEntries) {
			// OrderWaiting returns the same pointers, so decoration lands
			// on the slice being returned.
			ranked.Position = WaitingPosition(docEntries, ranked.ID)
			ranked.EstimatedWaitSeconds = int64(EstimatedWait(ranked.Position, avg).Seconds())
		}
	}
	OrderActive(entries)
	return entries, nil
}

// MyPosition reports the patient's rank and wait estimate. Patients already
// called or in service get position 0 with no wait.
func (s *Service) MyPosition(ctx context.Context, patientID string) (*PositionInfo, error) {
	if patientID == "" {
		return nil, &ValidationError{Field: "patient_id", Reason: "required"}
	}
	entry, err := s.repo.ActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	info := &PositionInfo{
		EntryID:     entry.ID,
		QueueNumber: entry.QueueNumber,
		Status:      entry.Status,
	}
	if entry.Status == StatusWaiting {
		entries, err := s.repo.Active(ctx, entry.DoctorID)
		if err != nil {
			return nil, err
		}
		info.Position = WaitingPosition(entries, entry.ID)
		avg := s.effectiveAvgService(ctx, entry.DoctorID)
		info.EstimatedWaitSeconds = int64(EstimatedWait(info.Position, avg).Seconds())
	}
	return info, nil
}

// Call announces a waiting patient.
func (s *Service) Call(ctx context.Context, id string) (*QueueEntry, error) {
	return s.applyTransition(ctx, id, StatusCalled, s.repo.Call)
}

// StartService marks the called patient as in the consultation room.
func (s *Service) StartService(ctx context.Context, id string) (*QueueEntry, error) {
	return s.applyTransition(ctx, id, StatusInService, s.repo.StartService)
}

// Complete finishes the consultation.
func (s *Service) Complete(ctx context.Context, id string) (*QueueEntry, error) {
	return s.applyTransition(ctx, id, StatusCompleted, s.repo.Complete)
}

func (s *Service) applyTransition(ctx context.Context, id string, to Status, op func(context.Context, string) (*QueueEntry, error)) (*QueueEntry, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "required"}
	}
	entry, err := op(ctx, id)
	if err != nil {
		s.observeFailure(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(to))
	s.logger.Info("queue entry transitioned", "id", entry.ID, "status", entry.Status, "queue_number", entry.QueueNumber)
	return entry, nil
}

// Cancel removes a waiting or called patient from the queue.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*QueueEntry, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "required"}
	}
	entry, err := s.repo.Cancel(ctx, id, reason)
	if err != nil {
		s.observeFailure(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusCancelled))
	s.logger.Info("queue entry cancelled", "id", entry.ID, "reason", reason)
	return entry, nil
}

// ChangePriority re-tiers a waiting patient.
func (s *Service) ChangePriority(ctx context.Context, id string, priority Priority) (*QueueEntry, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Reason: "required"}
	}
	req := ChangePriorityRequest{Priority: priority}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.repo.ChangePriority(ctx, id, priority)
	if err != nil {
		s.observeFailure(err)
		return nil, err
	}
	s.logger.Info("queue entry reprioritized", "id", entry.ID, "priority", entry.Priority)
	return entry, nil
}

// Stats aggregates completed entries in the rolling window plus a live
// snapshot. Read-only.
func (s *Service) Stats(ctx context.Context, doctorID string) (*Stats, error) {
	since := time.Now().UTC().Add(-s.statsWindow)

	active, err := s.repo.Active(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	completed, err := s.repo.CompletedSince(ctx, doctorID, since)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		DoctorID:    doctorID,
		Completed:   len(completed),
		WindowStart: since,
	}
	for _, e := range active {
		switch e.Status {
		case StatusWaiting:
			stats.Waiting++
		case StatusCalled:
			stats.Called++
		case StatusInService:
			stats.InService++
		}
	}
	stats.TotalPatients = len(active) + len(completed)

	var serviceSum, waitSum time.Duration
	var serviceN, waitN int
	for _, e := range completed {
		if e.ServiceStartedAt != nil && e.CompletedAt != nil {
			serviceSum += e.CompletedAt.Sub(*e.ServiceStartedAt)
			serviceN++
		}
		if e.CalledAt != nil {
			waitSum += e.CalledAt.Sub(e.JoinedAt)
			waitN++
		}
	}
	if serviceN > 0 {
		stats.AvgServiceTimeSeconds = int64((serviceSum / time.Duration(serviceN)).Seconds())
	}
	if waitN > 0 {
		stats.AvgWaitTimeSeconds = int64((waitSum / time.Duration(waitN)).Seconds())
	}
	return stats, nil
}

// ClearOld deletes terminal entries older than the retention window and
// returns how many were removed.
func (s *Service) ClearOld(ctx context.Context, days int) (int, error) {
	if days < 1 {
		return 0, &ValidationError{Field: "days", Reason: "must be at least 1"}
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	removed, err := s.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.ObservePurged(removed)
	if removed > 0 {
		s.logger.Info("purged old queue entries", "removed", removed, "older_than_days", days)
	}
	return removed, nil
}

// effectiveAvgService prefers the observed mean consultation length over
// the configured fallback once enough completions exist in the window.
func (s *Service) effectiveAvgService(ctx context.Context, doctorID string) time.Duration {
	completed, err := s.repo.CompletedSince(ctx, doctorID, time.Now().UTC().Add(-s.statsWindow))
	if err != nil {
		s.logger.Warn("failed to load completions for wait estimate", "error", err)
		return s.avgService
	}

	var sum time.Duration
	var n int
	for _, e := range completed {
		if e.ServiceStartedAt != nil && e.CompletedAt != nil {
			sum += e.CompletedAt.Sub(*e.ServiceStartedAt)
			n++
		}
	}
	if n < minObservedCompletions || sum <= 0 {
		return s.avgService
	}
	return sum / time.Duration(n)
}

func (s *Service) observeFailure(err error) {
	var ite *InvalidTransitionError
	if errors.As(err, &ite) {
		s.metrics.ObserveConflict()
	}
}
