package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"logferry/pkg/engine"
)

// State is the lifecycle of the connection currently being served.
type State int32

const (
	Listening State = iota
	Accepted
	Streaming
	Draining
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Accepted:
		return "accepted"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// JobResult is the outcome of one connection.
type JobResult struct {
	Report   engine.Report `json:"report"`
	State    State         `json:"-"`
	Err      string        `json:"error,omitempty"`
	Finished time.Time     `json:"finished"`
}

// TCPIngestor accepts connections one at a time and runs each through the
// pipeline as an independent job. A failed job never stops the listener.
type TCPIngestor struct {
	addr     string
	pipeline *engine.Pipeline
	logger   *slog.Logger

	state   atomic.Int32
	current atomic.Pointer[engine.Monitor]
	last    atomic.Pointer[JobResult]

	mu        sync.Mutex
	listener  net.Listener
	observers []func(JobResult)
}

func NewTCPIngestor(addr string, pipeline *engine.Pipeline, logger *slog.Logger) *TCPIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPIngestor{
		addr:     addr,
		pipeline: pipeline,
		logger:   logger,
	}
}

// OnJobDone registers a callback run after every job. Callbacks run on their
// own goroutine and never delay the next accept.
func (t *TCPIngestor) OnJobDone(fn func(JobResult)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Start listens on the configured address and serves until ctx is cancelled.
func (t *TCPIngestor) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	return t.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled. Blocking call.
func (t *TCPIngestor) Serve(ctx context.Context, ln net.Listener) error {
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()
	t.setState(Listening)
	t.logger.Info("tcp ingestor listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = nextAcceptDelay(delay)
			t.logger.Error("accept failed", "err", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		delay = 0
		t.handleConnection(ctx, conn)
		t.setState(Listening)
	}
}

// Addr returns the listener address once serving.
func (t *TCPIngestor) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// State returns the state of the connection being served.
func (t *TCPIngestor) State() State {
	return State(t.state.Load())
}

// Current returns live counters of the running job, if any.
func (t *TCPIngestor) Current() (engine.Report, bool) {
	mon := t.current.Load()
	if mon == nil {
		return engine.Report{}, false
	}
	return mon.Snapshot(), true
}

// Last returns the result of the most recent finished job.
func (t *TCPIngestor) Last() (JobResult, bool) {
	res := t.last.Load()
	if res == nil {
		return JobResult{}, false
	}
	return *res, true
}

func (t *TCPIngestor) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	jobID := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger := t.logger.With("job", jobID, "remote", remote)

	t.setState(Accepted)
	logger.Info("client connected")

	mon := engine.NewMonitor(jobID, remote)
	t.current.Store(mon)
	defer t.current.Store(nil)

	finished := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		select {
		case <-mon.ProductionEnded():
			t.setState(Draining)
			logger.Debug("stream ended, draining")
		case <-finished:
		}
	}()

	t.setState(Streaming)
	report, err := t.pipeline.Run(ctx, conn, mon)
	close(finished)
	<-watching

	res := JobResult{Report: report, Finished: time.Now()}
	if err != nil {
		res.State = Failed
		res.Err = err.Error()
		t.setState(Failed)
		logger.Error("job failed",
			"err", err,
			"produced", report.Produced,
			"committed", report.Committed)
	} else {
		res.State = Closed
		t.setState(Closed)
		attrs := []any{
			"committed", report.Committed,
			"rejected", report.Rejected,
			"batches", report.Batches,
			"bytes", report.Bytes,
			"elapsed", report.Elapsed.Round(time.Millisecond),
		}
		if report.ReadErr != "" {
			attrs = append(attrs, "read_err", report.ReadErr)
		}
		logger.Info("job finished", attrs...)
	}

	t.last.Store(&res)
	t.notify(res)
}

func (t *TCPIngestor) notify(res JobResult) {
	t.mu.Lock()
	observers := append([]func(JobResult){}, t.observers...)
	t.mu.Unlock()

	for _, fn := range observers {
		go fn(res)
	}
}

// nextAcceptDelay backs off from 5ms to 1s on repeated accept errors.
func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (t *TCPIngestor) setState(s State) {
	t.state.Store(int32(s))
}
