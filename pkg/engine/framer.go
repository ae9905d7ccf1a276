package engine

import (
	"bytes"
	"errors"
	"io"
)

const (
	DefaultReadChunk = 4096
	minReadChunk     = 16
)

// Framer splits a boundary-agnostic byte stream into lines terminated by
// '\n' or '\r'. It owns one accumulation buffer that is compacted after every
// read, so memory stays at O(longest line + read chunk) no matter how long the
// stream is. A Framer is not safe for concurrent use.
type Framer struct {
	buf   []byte
	start int // first byte of the unterminated tail
	end   int // one past the last buffered byte
	chunk int

	emit func(line []byte) error
}

// NewFramer returns a Framer that calls emit for every non-empty line.
// The slice passed to emit is only valid for the duration of the call. An
// error from emit stops the framer and is returned to the caller as is.
func NewFramer(chunk int, emit func(line []byte) error) *Framer {
	if chunk < minReadChunk {
		chunk = DefaultReadChunk
	}
	return &Framer{
		buf:   make([]byte, 2*chunk),
		chunk: chunk,
		emit:  emit,
	}
}

// ReadFrom reads r until it is exhausted and emits every line.
// A clean end of stream returns (n, nil). Any other read error still flushes
// the buffered tail before being returned, so callers can treat it as end of
// stream while reporting it separately.
func (f *Framer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		f.reserve()
		n, err := r.Read(f.buf[f.end : f.end+f.chunk])
		if n > 0 {
			total += int64(n)
			scanErr := f.scan(f.end, f.end+n)
			f.end += n
			if scanErr != nil {
				return total, scanErr
			}
		}
		if err != nil {
			if flushErr := f.Flush(); flushErr != nil {
				return total, flushErr
			}
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// Write feeds p into the framer; it lets callers drive the framer with
// io.Copy or push chunks by hand.
func (f *Framer) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		f.reserve()
		n := copy(f.buf[f.end:f.end+f.chunk], p)
		err := f.scan(f.end, f.end+n)
		f.end += n
		p = p[n:]
		if err != nil {
			return written - len(p), err
		}
	}
	return written, nil
}

// Flush emits the trailing unterminated line, if it has any non-space byte,
// and empties the buffer.
func (f *Framer) Flush() error {
	tail := f.buf[f.start:f.end]
	f.start, f.end = 0, 0
	if len(bytes.TrimSpace(tail)) > 0 {
		return f.emit(tail)
	}
	return nil
}

// Buffered returns the number of bytes held for the unterminated tail.
func (f *Framer) Buffered() int {
	return f.end - f.start
}

// scan emits the complete lines found in buf[from:to]. Bytes before from were
// scanned on an earlier call and hold no terminator.
func (f *Framer) scan(from, to int) error {
	for i := from; i < to; i++ {
		c := f.buf[i]
		if c != '\n' && c != '\r' {
			continue
		}
		line := f.buf[f.start:i]
		f.start = i + 1
		if len(line) == 0 {
			continue
		}
		if err := f.emit(line); err != nil {
			return err
		}
	}
	return nil
}

// reserve makes room for one more read chunk after end. Consumed bytes are
// dropped first; the buffer only grows when the pending tail itself is too long.
func (f *Framer) reserve() {
	if f.start > 0 {
		f.end = copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
	}
	if need := f.end + f.chunk; need > len(f.buf) {
		size := 2 * len(f.buf)
		for size < need {
			size *= 2
		}
		grown := make([]byte, size)
		copy(grown, f.buf[:f.end])
		f.buf = grown
	}
}
