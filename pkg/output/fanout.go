package output

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"logferry/pkg/model"
)

// FanOutSink writes each batch to several sinks in parallel.
// Each underlying sink still sees one batch at a time.
type FanOutSink struct {
	sinks []Sink

	// closers release clients opened for the sinks, run in reverse order.
	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

func NewFanOutSink(sinks ...Sink) *FanOutSink {
	return &FanOutSink{
		sinks: sinks,
	}
}

func (f *FanOutSink) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (f *FanOutSink) WriteBatch(ctx context.Context, batch *model.Batch) error {
	if len(f.sinks) == 1 {
		return f.sinks[0].WriteBatch(ctx, batch)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(f.sinks))

	for i, s := range f.sinks {
		wg.Add(1)
		go func(idx int, s Sink) {
			defer wg.Done()
			errs[idx] = s.WriteBatch(ctx, batch)
		}(i, s)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Close closes every child that is an io.Closer, then the clients Build
// opened for them. Later calls return the first result.
func (f *FanOutSink) Close() error {
	f.closeOnce.Do(func() {
		var errs []error
		for _, s := range f.sinks {
			if c, ok := s.(io.Closer); ok {
				errs = append(errs, c.Close())
			}
		}
		for i := len(f.closers) - 1; i >= 0; i-- {
			errs = append(errs, f.closers[i]())
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}
