package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"logferry/pkg/parser"
)

// Report summarises one job. It is produced once, when every entry that was
// produced has also been committed.
type Report struct {
	JobID     string           `json:"job_id"`
	Remote    string           `json:"remote,omitempty"`
	Produced  int64            `json:"produced"`
	Committed int64            `json:"committed"`
	Batches   int64            `json:"batches"`
	Rejected  map[string]int64 `json:"rejected,omitempty"`
	Filtered  int64            `json:"filtered"`
	Bytes     int64            `json:"bytes"`
	Elapsed   time.Duration    `json:"elapsed_ns"`
	ReadErr   string           `json:"read_error,omitempty"`
	Complete  bool             `json:"complete"`
}

// Monitor tracks the progress of one job across the producer and the loader.
// Counters are atomics, so both stages update them without locking.
type Monitor struct {
	jobID  string
	remote string
	start  time.Time
	now    func() time.Time

	produced  atomic.Int64
	committed atomic.Int64
	batches   atomic.Int64
	bytes     atomic.Int64
	filtered  atomic.Int64
	rejected  [parser.OutcomeCount]atomic.Int64

	ended   atomic.Bool
	drained atomic.Bool

	mu      sync.Mutex
	readErr error
	elapsed time.Duration

	endOnce sync.Once
	endedCh chan struct{}
	once    sync.Once
	done    chan struct{}
}

// NewMonitor starts the clock for a new job.
func NewMonitor(jobID, remote string) *Monitor {
	return newMonitorAt(jobID, remote, time.Now)
}

func newMonitorAt(jobID, remote string, now func() time.Time) *Monitor {
	return &Monitor{
		jobID:   jobID,
		remote:  remote,
		start:   now(),
		now:     now,
		endedCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (m *Monitor) EntryProduced() {
	m.produced.Add(1)
}

func (m *Monitor) LineRejected(o parser.Outcome) {
	if int(o) < len(m.rejected) {
		m.rejected[o].Add(1)
	}
}

// EntryFiltered records a parsed entry dropped by the processor chain.
func (m *Monitor) EntryFiltered() {
	m.filtered.Add(1)
}

func (m *Monitor) BytesRead(n int64) {
	m.bytes.Add(n)
}

// BatchCommitted records a batch the sink accepted.
func (m *Monitor) BatchCommitted(count int) {
	m.committed.Add(int64(count))
	m.batches.Add(1)
	m.check()
}

// EndProduction marks the upstream byte stream as finished. readErr is the
// transport error that ended it, or nil for a clean close.
func (m *Monitor) EndProduction(readErr error) {
	m.mu.Lock()
	m.readErr = readErr
	m.mu.Unlock()
	m.ended.Store(true)
	m.endOnce.Do(func() { close(m.endedCh) })
	m.check()
}

// QueueDrained is called by the loader once the hand-off queue is closed and empty.
func (m *Monitor) QueueDrained() {
	m.drained.Store(true)
	m.check()
}

// ProductionEnded is closed once the upstream stream has ended.
func (m *Monitor) ProductionEnded() <-chan struct{} {
	return m.endedCh
}

// Done is closed when the job completes.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) check() {
	if !m.ended.Load() || !m.drained.Load() {
		return
	}
	if m.committed.Load() != m.produced.Load() {
		return
	}
	m.once.Do(func() {
		m.mu.Lock()
		m.elapsed = m.now().Sub(m.start)
		m.mu.Unlock()
		close(m.done)
	})
}

// Snapshot returns the current counters. After Done it is the final report.
func (m *Monitor) Snapshot() Report {
	r := Report{
		JobID:     m.jobID,
		Remote:    m.remote,
		Produced:  m.produced.Load(),
		Committed: m.committed.Load(),
		Batches:   m.batches.Load(),
		Filtered:  m.filtered.Load(),
		Bytes:     m.bytes.Load(),
	}

	for _, o := range parser.Rejections() {
		if n := m.rejected[o].Load(); n > 0 {
			if r.Rejected == nil {
				r.Rejected = make(map[string]int64)
			}
			r.Rejected[o.String()] = n
		}
	}

	select {
	case <-m.done:
		r.Complete = true
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		r.ReadErr = m.readErr.Error()
	}
	if r.Complete {
		r.Elapsed = m.elapsed
	} else {
		r.Elapsed = m.now().Sub(m.start)
	}
	return r
}
