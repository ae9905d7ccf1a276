package output

import (
	"context"

	"logferry/pkg/model"
)

// Sink is where committed batches go.
//
// WriteBatch is called with batches in production order and never
// concurrently for the same job. The batch is recycled after WriteBatch
// returns, so implementations must copy anything they keep. A returned error
// is fatal to the job; retrying is the sink's own business.
type Sink interface {
	WriteBatch(ctx context.Context, batch *model.Batch) error
	Name() string
}
