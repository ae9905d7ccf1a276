package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"

	"logferry/pkg/config"
	"logferry/pkg/engine"
	"logferry/pkg/output"
)

// Manifest is the JSON document stored under the config key, e.g.
//
//	{
//	  "batch_size": 20000, "queue_depth": 8, "read_chunk": 8192,
//	  "sinks": ["postgres"],
//	  "processors": [{"id": "quiet", "type": "drop_level", "params": {"levels": "V"}}]
//	}
//
// Missing fields keep their current value. An empty processors array clears
// the chain.
type Manifest struct {
	Settings   engine.Settings
	Sinks      []string
	Processors []config.ProcessorRule
	HasChain   bool
}

// ParseManifest overlays raw on base.
func ParseManifest(raw string, base engine.Settings) (Manifest, error) {
	if !gjson.Valid(raw) {
		return Manifest{}, errors.New("invalid JSON")
	}
	m := Manifest{Settings: base}
	doc := gjson.Parse(raw)

	if v := doc.Get("batch_size"); v.Exists() {
		if v.Type != gjson.Number || v.Int() < 1 {
			return Manifest{}, fmt.Errorf("batch_size must be a positive number, got %s", v.Raw)
		}
		m.Settings.BatchSize = int(v.Int())
	}
	if v := doc.Get("queue_depth"); v.Exists() {
		q := v.Uint()
		if v.Type != gjson.Number || q == 0 || q&(q-1) != 0 {
			return Manifest{}, fmt.Errorf("queue_depth must be a power of 2, got %s", v.Raw)
		}
		m.Settings.QueueDepth = q
	}
	if v := doc.Get("read_chunk"); v.Exists() {
		if v.Type != gjson.Number || v.Int() < 16 {
			return Manifest{}, fmt.Errorf("read_chunk must be at least 16, got %s", v.Raw)
		}
		m.Settings.ReadChunk = int(v.Int())
	}
	for _, s := range doc.Get("sinks").Array() {
		m.Sinks = append(m.Sinks, s.String())
	}
	if v := doc.Get("processors"); v.Exists() {
		if !v.IsArray() {
			return Manifest{}, errors.New("processors must be an array")
		}
		m.HasChain = true
		for _, p := range v.Array() {
			rule := config.ProcessorRule{
				ID:     p.Get("id").String(),
				Type:   p.Get("type").String(),
				Params: make(map[string]string),
			}
			p.Get("params").ForEach(func(key, value gjson.Result) bool {
				rule.Params[key.String()] = value.String()
				return true
			})
			m.Processors = append(m.Processors, rule)
		}
	}
	return m, nil
}

// SinkBuilder builds a sink set from type names. If the sink is an io.Closer
// the pipeline closes it once it is replaced and idle.
type SinkBuilder func(ctx context.Context, types []string) (output.Sink, error)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Watcher applies the manifest stored in Redis to the pipeline, once at
// start and again on every message on the update channel.
type Watcher struct {
	client   *redis.Client
	store    getter
	pipeline *engine.Pipeline
	build    SinkBuilder
	key      string
	channel  string
	logger   *slog.Logger
}

func NewWatcher(client *redis.Client, pipeline *engine.Pipeline, key, channel string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		client:   client,
		store:    client,
		pipeline: pipeline,
		key:      key,
		channel:  channel,
		logger:   logger.With("component", "control"),
	}
}

// WithSinkBuilder lets the manifest's "sinks" field replace the pipeline sink.
func (w *Watcher) WithSinkBuilder(b SinkBuilder) *Watcher {
	w.build = b
	return w
}

// Start loads the manifest and subscribes to updates. It returns once the
// subscription is confirmed; updates are handled until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("starting config watcher", "key", w.key, "channel", w.channel)

	w.reload(ctx)

	pubsub := w.client.Subscribe(ctx, w.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", w.channel, err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				w.logger.Info("received update signal", "payload", msg.Payload)
				w.reload(ctx)
			}
		}
	}()
	return nil
}

func (w *Watcher) reload(ctx context.Context) {
	val, err := w.store.Get(ctx, w.key).Result()
	if err == redis.Nil {
		w.logger.Info("no config found in redis, keeping current settings")
		return
	} else if err != nil {
		w.logger.Error("failed to fetch config", "err", err)
		return
	}

	m, err := ParseManifest(val, w.pipeline.Settings())
	if err != nil {
		w.logger.Error("rejected config", "err", err)
		return
	}

	if len(m.Sinks) > 0 && w.build != nil {
		sink, err := w.build(ctx, m.Sinks)
		if err != nil {
			w.logger.Error("failed to build sinks, keeping current ones", "sinks", m.Sinks, "err", err)
		} else {
			w.pipeline.UpdateSink(sink)
			w.logger.Info("sinks updated", "sinks", m.Sinks)
		}
	}

	if m.HasChain {
		chain, err := engine.BuildChain(m.Processors)
		if err != nil {
			w.logger.Error("rejected processors, keeping current chain", "err", err)
		} else {
			w.pipeline.UpdateChain(chain)
		}
	}

	w.pipeline.UpdateSettings(m.Settings)
}
