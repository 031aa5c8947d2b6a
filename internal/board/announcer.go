package board

import (
	"sync"

	"github.com/clinicdesk/navbat/internal/observability/metrics"
	"github.com/clinicdesk/navbat/internal/queue"
	"github.com/clinicdesk/navbat/pkg/logging"
)

// Sink receives the audio and visual halves of an announcement.
type Sink interface {
	PlayChime(entry *queue.QueueEntry)
	ShowBanner(entry *queue.QueueEntry)
}

// Announcer guarantees that a patient being called is announced exactly
// once per transition, even though polling keeps returning the same called
// entry cycle after cycle. It keeps an explicit map from entry id to the
// last status announced for it; the map lives only as long as the surface
// and is cleared by Reset on teardown.
type Announcer struct {
	mu        sync.Mutex
	sink      Sink
	logger    *logging.Logger
	metrics   *metrics.QueueMetrics
	announced map[string]queue.Status
}

func NewAnnouncer(sink Sink, logger *logging.Logger) *Announcer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Announcer{
		sink:      sink,
		logger:    logger,
		announced: make(map[string]queue.Status),
	}
}

func (a *Announcer) WithMetrics(m *metrics.QueueMetrics) *Announcer {
	a.metrics = m
	return a
}

// HandleSnapshot replaces the local view with the polled snapshot and
// announces every entry newly observed in the called state. Ids that left
// the snapshot are forgotten so the map cannot grow over a board's uptime.
func (a *Announcer) HandleSnapshot(entries []*queue.QueueEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		present[entry.ID] = struct{}{}
		if entry.Status != queue.StatusCalled {
			continue
		}
		if a.announced[entry.ID] == queue.StatusCalled {
			continue
		}
		a.sink.PlayChime(entry)
		a.sink.ShowBanner(entry)
		a.announced[entry.ID] = queue.StatusCalled
		a.metrics.ObserveAnnouncement()
		a.logger.Info("announced called patient",
			"id", entry.ID,
			"queue_number", entry.QueueNumber,
			"doctor_id", entry.DoctorID,
		)
	}

	for id := range a.announced {
		if _, ok := present[id]; !ok {
			delete(a.announced, id)
		}
	}
}

// OnUnavailable logs the outage; the board keeps showing its last snapshot
// rather than alarming on every failed cycle.
func (a *Announcer) OnUnavailable(err error) {
	a.logger.Warn("queue feed unavailable, keeping last known state", "error", err)
}

// Reset clears the announce history, e.g. when the surface reloads.
func (a *Announcer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announced = make(map[string]queue.Status)
}

// LogSink writes announcements to the log. It stands in for the display
// board's actual audio/banner integration.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) PlayChime(entry *queue.QueueEntry) {
	s.logger.Info("chime", "queue_number", entry.QueueNumber)
}

func (s *LogSink) ShowBanner(entry *queue.QueueEntry) {
	s.logger.Info("banner", "queue_number", entry.QueueNumber, "doctor_id", entry.DoctorID)
}

var (
	_ Handler = (*Announcer)(nil)
	_ Sink    = (*LogSink)(nil)
)
