package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"logferry/pkg/ingest"
	"logferry/pkg/parser"
)

// Metrics exports pipeline counters to Prometheus. It implements
// engine.Recorder and can be registered as an ingest job observer.
type Metrics struct {
	linesParsed   prometheus.Counter
	linesRejected *prometheus.CounterVec
	rejectedBy    map[string]prometheus.Counter
	filtered      *prometheus.CounterVec
	committed     prometheus.Counter
	batches       *prometheus.CounterVec
	sinkLatency   prometheus.Histogram
	queueDepth    prometheus.Gauge
	waits         prometheus.Counter
	jobs          *prometheus.CounterVec
	jobDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		linesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logferry_lines_parsed_total",
			Help: "Lines parsed into entries and handed to the loader.",
		}),
		linesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logferry_lines_rejected_total",
			Help: "Lines dropped by the parser, by reason.",
		}, []string{"reason"}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logferry_entries_filtered_total",
			Help: "Parsed entries dropped by a processor.",
		}, []string{"processor"}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logferry_entries_committed_total",
			Help: "Entries in batches the sink accepted.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logferry_batches_total",
			Help: "Batch submissions, by result.",
		}, []string{"result"}),
		sinkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logferry_sink_write_seconds",
			Help:    "Time spent in one sink batch write.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logferry_queue_depth",
			Help: "Batches waiting in the hand-off queue.",
		}),
		waits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logferry_backpressure_waits_total",
			Help: "Times the reader paused because the hand-off queue was full.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logferry_jobs_total",
			Help: "Finished connections, by final state.",
		}, []string{"state"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logferry_job_duration_seconds",
			Help:    "Wall time from accept to last commit.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
	}

	m.rejectedBy = make(map[string]prometheus.Counter)
	for _, o := range parser.Rejections() {
		m.rejectedBy[o.String()] = m.linesRejected.WithLabelValues(o.String())
	}

	reg.MustRegister(
		m.linesParsed, m.linesRejected, m.filtered, m.committed, m.batches,
		m.sinkLatency, m.queueDepth, m.waits, m.jobs, m.jobDuration,
	)
	return m
}

func (m *Metrics) LinesParsed(n int) {
	m.linesParsed.Add(float64(n))
}

func (m *Metrics) LineRejected(reason string) {
	if c, ok := m.rejectedBy[reason]; ok {
		c.Inc()
		return
	}
	m.linesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) EntryFiltered(processor string) {
	m.filtered.WithLabelValues(processor).Inc()
}

func (m *Metrics) BatchCommitted(entries int, took time.Duration) {
	m.committed.Add(float64(entries))
	m.batches.WithLabelValues("ok").Inc()
	m.sinkLatency.Observe(took.Seconds())
}

func (m *Metrics) BatchFailed() {
	m.batches.WithLabelValues("error").Inc()
}

func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) BackpressureWait() {
	m.waits.Inc()
}

// JobDone records a finished connection.
func (m *Metrics) JobDone(res ingest.JobResult) {
	m.jobs.WithLabelValues(res.State.String()).Inc()
	if res.State == ingest.Closed {
		m.jobDuration.Observe(res.Report.Elapsed.Seconds())
	}
}
