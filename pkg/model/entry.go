package model

// Entry is a single parsed log record.
// Entries are values: once built by the parser they are never mutated.
type Entry struct {
	// LogDate is the fixed 18-byte timestamp text, kept verbatim.
	LogDate string

	Pid int16
	Tid int16

	// Level is the severity symbol (V, D, I, W, E, F, ...). Not validated.
	Level byte

	Component string
	Content   string
}

// Batch is an ordered group of entries submitted to a sink in one call.
// The backing array is pooled by the engine, so sinks must not keep a
// reference to Entries after WriteBatch returns.
type Batch struct {
	// Seq is the 1-based position of the batch within its job.
	Seq     uint64
	Entries []Entry
}

// Len returns the number of entries in the batch.
func (b *Batch) Len() int {
	return len(b.Entries)
}

// Reset clears the batch for reuse while keeping capacity.
func (b *Batch) Reset() {
	b.Seq = 0
	clear(b.Entries)
	b.Entries = b.Entries[:0]
}
