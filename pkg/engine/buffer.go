package engine

import (
	"errors"
	"fmt"
	"sync"

	"logferry/pkg/model"
)

var (
	ErrBufferClosed  = errors.New("buffer is closed")
	ErrBufferAborted = errors.New("buffer aborted")
)

// RingBuffer is a fixed-size circular hand-off queue of batches between one
// producer (the read/parse stage) and one consumer (the loader).
// Push blocks while the ring is full and Pop blocks while it is empty, which is
// what turns a slow sink into backpressure on the network read.
type RingBuffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	data []*model.Batch
	head uint64
	tail uint64
	mask uint64
	size uint64

	closed bool
	cause  error

	// Metrics
	waits uint64
}

// NewRingBuffer creates a ring buffer with the specified size (must be power of 2).
func NewRingBuffer(size uint64) (*RingBuffer, error) {
	if size == 0 || (size&(size-1)) != 0 {
		return nil, errors.New("size must be a power of 2")
	}
	rb := &RingBuffer{
		data: make([]*model.Batch, size),
		mask: size - 1,
		size: size,
	}
	rb.notFull = sync.NewCond(&rb.mu)
	rb.notEmpty = sync.NewCond(&rb.mu)
	return rb, nil
}

// Push adds a batch, waiting for space if the ring is full.
// It fails with ErrBufferAborted once the consumer has given up, and with
// ErrBufferClosed if the producer already closed the ring.
func (rb *RingBuffer) Push(item *model.Batch) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.head-rb.tail >= rb.size && rb.cause == nil && !rb.closed {
		rb.waits++
	}
	for rb.head-rb.tail >= rb.size && rb.cause == nil && !rb.closed {
		rb.notFull.Wait()
	}

	switch {
	case rb.cause != nil:
		return fmt.Errorf("%w: %w", ErrBufferAborted, rb.cause)
	case rb.closed:
		return ErrBufferClosed
	}

	rb.data[rb.head&rb.mask] = item
	rb.head++
	rb.notEmpty.Signal()
	return nil
}

// Pop removes the oldest batch, waiting while the ring is empty.
// It returns false once the ring is closed and drained, or aborted.
func (rb *RingBuffer) Pop() (*model.Batch, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.head == rb.tail && !rb.closed && rb.cause == nil {
		rb.notEmpty.Wait()
	}
	if rb.cause != nil || rb.head == rb.tail {
		return nil, false
	}

	idx := rb.tail & rb.mask
	item := rb.data[idx]
	rb.data[idx] = nil
	rb.tail++
	rb.notFull.Signal()
	return item, true
}

// Close marks the end of production. Batches already queued are still
// delivered by Pop.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	rb.closed = true
	rb.mu.Unlock()
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
}

// Abort stops the ring on a consumer failure: queued batches are discarded
// and any blocked Push returns the cause.
func (rb *RingBuffer) Abort(cause error) {
	if cause == nil {
		cause = errors.New("aborted")
	}
	rb.mu.Lock()
	if rb.cause == nil {
		rb.cause = cause
	}
	for i := range rb.data {
		rb.data[i] = nil
	}
	rb.tail = rb.head
	rb.mu.Unlock()
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
}

// WaitCount returns how many times Push had to wait for space.
func (rb *RingBuffer) WaitCount() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.waits
}

// Usage returns the number of batches currently in the buffer.
func (rb *RingBuffer) Usage() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.head - rb.tail
}

// Capacity returns the total size of the buffer.
func (rb *RingBuffer) Capacity() uint64 {
	return rb.size
}
