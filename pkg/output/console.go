package output

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"sync"

	"logferry/pkg/model"
)

// ConsoleSink writes entries as text lines. Useful for dry runs.
type ConsoleSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: bufio.NewWriterSize(w, 64<<10)}
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) WriteBatch(ctx context.Context, batch *model.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var scratch [8]byte
	for _, e := range batch.Entries {
		c.w.WriteString(e.LogDate)
		c.w.WriteByte(' ')
		c.w.Write(strconv.AppendInt(scratch[:0], int64(e.Pid), 10))
		c.w.WriteByte(' ')
		c.w.Write(strconv.AppendInt(scratch[:0], int64(e.Tid), 10))
		c.w.WriteByte(' ')
		c.w.WriteByte(e.Level)
		c.w.WriteByte(' ')
		c.w.WriteString(e.Component)
		c.w.WriteString(": ")
		c.w.WriteString(e.Content)
		c.w.WriteByte('\n')
	}
	// bufio.Writer keeps the first write error, Flush reports it.
	return c.w.Flush()
}
