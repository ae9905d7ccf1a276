package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"logferry/pkg/output"
	"logferry/pkg/parser"
)

const (
	DefaultBatchSize  = 50_000
	DefaultQueueDepth = 4
)

// Settings are the per-job tunables. A job reads them once when it starts.
type Settings struct {
	BatchSize  int
	QueueDepth uint64
	ReadChunk  int
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.QueueDepth == 0 {
		s.QueueDepth = DefaultQueueDepth
	}
	return s
}

// Pipeline connects Framer -> Parser -> ProcessorChain -> Accumulator -> RingBuffer -> Loader -> Sink.
// Settings and sink are hot-swappable; a swap takes effect on the next job.
type Pipeline struct {
	settings atomic.Pointer[Settings]
	chain    atomic.Pointer[ProcessorChain]

	mu   sync.Mutex
	sink *sinkRef

	rec    Recorder
	logger *slog.Logger
}

func NewPipeline(s Settings, sink output.Sink, rec Recorder, logger *slog.Logger) *Pipeline {
	if rec == nil {
		rec = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{rec: rec, logger: logger}
	p.UpdateSettings(s)
	p.chain.Store(NewProcessorChain())
	p.sink = &sinkRef{sink: sink}
	return p
}

// sinkRef counts the jobs writing to a sink so it is closed only after the
// last of them returns.
type sinkRef struct {
	sink output.Sink
	jobs sync.WaitGroup
}

func (r *sinkRef) close() error {
	r.jobs.Wait()
	if c, ok := r.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// UpdateSettings swaps the tunables used by subsequent jobs.
func (p *Pipeline) UpdateSettings(s Settings) {
	s = s.withDefaults()
	p.settings.Store(&s)
	p.logger.Info("pipeline settings updated", "batch_size", s.BatchSize, "queue_depth", s.QueueDepth)
}

// UpdateSink swaps the sink used by subsequent jobs. If the previous sink is
// an io.Closer it is closed once every job still writing to it has returned.
func (p *Pipeline) UpdateSink(sink output.Sink) {
	p.mu.Lock()
	old := p.sink
	p.sink = &sinkRef{sink: sink}
	p.mu.Unlock()

	go func() {
		if err := old.close(); err != nil {
			p.logger.Warn("closing replaced sink", "sink", old.sink.Name(), "err", err)
		}
	}()
}

// Close waits for the running job, if any, and closes the current sink.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	ref := p.sink
	p.mu.Unlock()
	return ref.close()
}

func (p *Pipeline) acquireSink() *sinkRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink.jobs.Add(1)
	return p.sink
}

// UpdateChain swaps the entry processors used by subsequent jobs.
func (p *Pipeline) UpdateChain(c *ProcessorChain) {
	if c == nil {
		c = NewProcessorChain()
	}
	p.chain.Store(c)
	p.logger.Info("processor chain updated", "processors", c.Len())
}

// Settings returns the tunables the next job will use.
func (p *Pipeline) Settings() Settings {
	return *p.settings.Load()
}

// Run ingests one byte stream to completion. It returns the job report and
// an error if the sink failed. A transport error on r is not a job failure; it
// ends the stream and shows up in Report.ReadErr.
//
// If r is also an io.Closer it is closed when the sink fails or ctx is
// cancelled, so a producer blocked on a read is released.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, mon *Monitor) (Report, error) {
	settings := p.Settings()
	ref := p.acquireSink()
	defer ref.jobs.Done()
	sink := ref.sink
	chain := p.chain.Load()

	ring, err := NewRingBuffer(settings.QueueDepth)
	if err != nil {
		return mon.Snapshot(), fmt.Errorf("queue depth %d: %w", settings.QueueDepth, err)
	}
	pool := newBatchPool(settings.BatchSize)
	acc := newAccumulator(settings.BatchSize, ring, pool, p.rec)
	loader := &Loader{
		ring:    ring,
		sink:    sink,
		pool:    pool,
		monitor: mon,
		rec:     p.rec,
		logger:  p.logger,
	}

	var closeOnce sync.Once
	release := func() {
		if c, ok := r.(io.Closer); ok {
			closeOnce.Do(func() { _ = c.Close() })
		}
	}

	loadErr := make(chan error, 1)
	go func() {
		err := loader.Run(ctx)
		if err != nil {
			release()
		}
		loadErr <- err
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-stop:
		}
	}()

	framer := NewFramer(settings.ReadChunk, func(line []byte) error {
		entry, outcome := parser.Parse(line)
		if outcome != parser.Parsed {
			mon.LineRejected(outcome)
			p.rec.LineRejected(outcome.String())
			return nil
		}
		if name, drop := chain.Process(&entry); drop {
			mon.EntryFiltered()
			p.rec.EntryFiltered(name)
			return nil
		}
		mon.EntryProduced()
		return acc.Add(entry)
	})

	n, readErr := framer.ReadFrom(r)
	mon.BytesRead(n)

	if errors.Is(readErr, ErrBufferAborted) || errors.Is(readErr, ErrBufferClosed) {
		return p.handOffFailed(ring, loadErr, mon, readErr)
	}
	if err := acc.Flush(); err != nil {
		return p.handOffFailed(ring, loadErr, mon, err)
	}
	ring.Close()
	if readErr != nil {
		p.logger.Warn("stream ended with read error", "err", readErr)
	}
	mon.EndProduction(readErr)

	if err := <-loadErr; err != nil {
		return mon.Snapshot(), err
	}
	return mon.Snapshot(), nil
}

// handOffFailed ends a job whose producer could not push a batch. An abort
// carries the loader's error; anything else is reported as is.
func (p *Pipeline) handOffFailed(ring *RingBuffer, loadErr <-chan error, mon *Monitor, err error) (Report, error) {
	ring.Close()
	if lerr := <-loadErr; lerr != nil {
		return mon.Snapshot(), lerr
	}
	p.logger.Error("batch hand-off failed", "err", err)
	return mon.Snapshot(), fmt.Errorf("hand off batch: %w", err)
}
