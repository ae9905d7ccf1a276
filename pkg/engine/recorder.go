package engine

import "time"

// Recorder receives pipeline events for process-wide metrics.
// Implementations must be safe for concurrent use by both stages.
type Recorder interface {
	LinesParsed(n int)
	LineRejected(reason string)
	EntryFiltered(processor string)
	BatchCommitted(entries int, took time.Duration)
	BatchFailed()
	QueueDepth(n int)
	BackpressureWait()
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) LinesParsed(int) {}
func (NopRecorder) LineRejected(string) {}
func (NopRecorder) EntryFiltered(string) {}
func (NopRecorder) BatchCommitted(int, time.Duration) {}
func (NopRecorder) BatchFailed() {}
func (NopRecorder) QueueDepth(int) {}
func (NopRecorder) BackpressureWait() {}
