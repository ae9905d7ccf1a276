package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"logferry/pkg/ingest"
)

// Publisher is the part of a go-redis client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Notifier publishes every finished job to a Redis channel.
type Notifier struct {
	pub     Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

type jobMessage struct {
	ingest.JobResult
	State string `json:"state"`
}

func NewNotifier(pub Publisher, channel string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, channel: channel, timeout: 5 * time.Second, logger: logger}
}

// JobDone matches ingest.TCPIngestor.OnJobDone.
func (n *Notifier) JobDone(res ingest.JobResult) {
	if err := n.Publish(context.Background(), res); err != nil {
		n.logger.Warn("failed to publish job report", "job", res.Report.JobID, "err", err)
	}
}

// Publish sends res as JSON.
func (n *Notifier) Publish(ctx context.Context, res ingest.JobResult) error {
	payload, err := json.Marshal(jobMessage{JobResult: res, State: res.State.String()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.pub.Publish(ctx, n.channel, payload).Err()
}
