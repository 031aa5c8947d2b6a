package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics exposes counters/histograms for queue flow and the viewing
// surface pollers. All observe methods are nil-safe so callers can run
// without metrics wired.
type QueueMetrics struct {
	joinsTotal         prometheus.Counter
	transitionsTotal   *prometheus.CounterVec
	conflictsTotal     prometheus.Counter
	purgedTotal        prometheus.Counter
	announcementsTotal prometheus.Counter
	pollCycles         *prometheus.CounterVec
	pollLatency        prometheus.Histogram
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		joinsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "navbat",
			Subsystem: "queue",
			Name:      "joins_total",
			Help:      "Total patients joined to a queue",
		}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navbat",
			Subsystem: "queue",
			Name:      "transitions_total",
			Help:      "Total successful entry transitions by target status",
		}, []string{"to"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "navbat",
			Subsystem: "queue",
			Name:      "transition_conflicts_total",
			Help:      "Total transitions rejected for being illegal from the current status",
		}),
		purgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "navbat",
			Subsystem: "queue",
			Name:      "purged_entries_total",
			Help:      "Total terminal entries removed by retention purges",
		}),
		announcementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "navbat",
			Subsystem: "board",
			Name:      "announcements_total",
			Help:      "Total called-patient announcements emitted",
		}),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navbat",
			Subsystem: "board",
			Name:      "poll_cycles_total",
			Help:      "Total poll cycles by outcome",
		}, []string{"status"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "navbat",
			Subsystem: "board",
			Name:      "poll_latency_seconds",
			Help:      "Latency of queue state polls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.joinsTotal,
		m.transitionsTotal,
		m.conflictsTotal,
		m.purgedTotal,
		m.announcementsTotal,
		m.pollCycles,
		m.pollLatency,
	)
	return m
}

func (m *QueueMetrics) ObserveJoin() {
	if m == nil {
		return
	}
	m.joinsTotal.Inc()
}

func (m *QueueMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *QueueMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *QueueMetrics) ObservePurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.purgedTotal.Add(float64(n))
}

func (m *QueueMetrics) ObserveAnnouncement() {
	if m == nil {
		return
	}
	m.announcementsTotal.Inc()
}

func (m *QueueMetrics) ObservePoll(ok bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.pollCycles.WithLabelValues(status).Inc()
	m.pollLatency.Observe(seconds)
}
