// Package board implements the viewing-surface side of the queue: the
// polling loop every display runs against the read API, and the
// deduplicator that turns poll snapshots into announce-once notifications.
package board

import (
	"context"
	"time"

	"github.com/clinicdesk/navbat/internal/observability/metrics"
	"github.com/clinicdesk/navbat/internal/queue"
	"github.com/clinicdesk/navbat/pkg/logging"
)

// unavailableThreshold is how many consecutive poll failures pass silently
// before the handler is told the feed is down. A single missed cycle is
// absorbed by the next one.
const unavailableThreshold = 3

// Source provides the current active queue snapshot.
type Source interface {
	Current(ctx context.Context) ([]*queue.QueueEntry, error)
}

// Handler consumes poll results. HandleSnapshot receives each successful
// snapshot wholesale; the previous local state is to be replaced, not
// diffed. OnUnavailable fires once per outage.
type Handler interface {
	HandleSnapshot(entries []*queue.QueueEntry)
	OnUnavailable(err error)
}

// Poller runs one viewing surface's periodic fetch loop. Polls never
// overlap: the next request starts only after the previous one completed
// or timed out.
type Poller struct {
	source   Source
	handler  Handler
	logger   *logging.Logger
	metrics  *metrics.QueueMetrics
	interval time.Duration
	timeout  time.Duration

	failures int
}

func NewPoller(source Source, handler Handler, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Poller{
		source:   source,
		handler:  handler,
		logger:   logger,
		interval: 7 * time.Second,
		timeout:  5 * time.Second,
	}
}

func (p *Poller) WithInterval(d time.Duration) *Poller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *Poller) WithTimeout(d time.Duration) *Poller {
	if d > 0 {
		p.timeout = d
	}
	return p
}

func (p *Poller) WithMetrics(m *metrics.QueueMetrics) *Poller {
	p.metrics = m
	return p
}

// Run polls immediately, then on every tick until the context ends.
// Cancellation is cooperative: an in-flight request finishes (or times
// out) and its result is discarded.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	entries, err := p.source.Current(pollCtx)
	p.metrics.ObservePoll(err == nil, time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			// Surface torn down mid-request; nothing to report.
			return
		}
		p.failures++
		p.logger.Warn("queue poll failed", "error", err, "consecutive_failures", p.failures)
		if p.failures == unavailableThreshold {
			p.handler.OnUnavailable(err)
		}
		return
	}

	if ctx.Err() != nil {
		return
	}
	p.failures = 0
	p.handler.HandleSnapshot(entries)
}
