package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"logferry/pkg/model"
	"logferry/pkg/output"
)

// batchPool recycles batch backing arrays between the loader and the
// accumulator. A batch is owned by exactly one stage at a time.
type batchPool struct {
	pool sync.Pool
}

func newBatchPool(size int) *batchPool {
	return &batchPool{pool: sync.Pool{
		New: func() any {
			return &model.Batch{Entries: make([]model.Entry, 0, size)}
		},
	}}
}

func (p *batchPool) get() *model.Batch {
	return p.pool.Get().(*model.Batch)
}

func (p *batchPool) put(b *model.Batch) {
	b.Reset()
	p.pool.Put(b)
}

// Accumulator fills fixed-size batches on the producer side and hands every
// full batch to the ring. It never touches a batch after pushing it.
type Accumulator struct {
	size int
	ring *RingBuffer
	pool *batchPool
	rec  Recorder

	cur *model.Batch
	seq uint64
}

func newAccumulator(size int, ring *RingBuffer, pool *batchPool, rec Recorder) *Accumulator {
	return &Accumulator{size: size, ring: ring, pool: pool, rec: rec}
}

// Add appends one entry, pushing the batch when it reaches capacity.
// The push blocks while the ring is full.
func (a *Accumulator) Add(e model.Entry) error {
	if a.cur == nil {
		a.cur = a.pool.get()
	}
	a.cur.Entries = append(a.cur.Entries, e)
	if len(a.cur.Entries) >= a.size {
		return a.push()
	}
	return nil
}

// Flush pushes the partial batch, if any.
func (a *Accumulator) Flush() error {
	if a.cur == nil || len(a.cur.Entries) == 0 {
		return nil
	}
	return a.push()
}

func (a *Accumulator) push() error {
	b := a.cur
	a.cur = nil
	a.seq++
	b.Seq = a.seq

	n := b.Len()
	waits := a.ring.WaitCount()
	if err := a.ring.Push(b); err != nil {
		return err
	}
	if a.ring.WaitCount() != waits {
		a.rec.BackpressureWait()
	}
	a.rec.LinesParsed(n)
	return nil
}

// Loader is the consumer stage: it submits batches to the sink one at a time,
// in the order they were pushed.
type Loader struct {
	ring    *RingBuffer
	sink    output.Sink
	pool    *batchPool
	monitor *Monitor
	rec     Recorder
	logger  *slog.Logger
}

// Run drains the ring until it is closed. A sink error aborts the ring so the
// producer stops too, and is returned.
func (l *Loader) Run(ctx context.Context) error {
	for {
		b, ok := l.ring.Pop()
		if !ok {
			break
		}
		l.rec.QueueDepth(int(l.ring.Usage()))

		n := b.Len()
		start := time.Now()
		if err := l.sink.WriteBatch(ctx, b); err != nil {
			l.rec.BatchFailed()
			err = fmt.Errorf("%s: write batch %d (%d entries): %w", l.sink.Name(), b.Seq, n, err)
			l.ring.Abort(err)
			return err
		}
		took := time.Since(start)

		l.monitor.BatchCommitted(n)
		l.rec.BatchCommitted(n, took)
		l.logger.Debug("batch committed", "seq", b.Seq, "entries", n, "took", took)
		l.pool.put(b)
	}
	l.monitor.QueueDrained()
	return nil
}
