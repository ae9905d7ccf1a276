package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"logferry/pkg/control"
	"logferry/pkg/engine"
	"logferry/pkg/ingest"
	"logferry/pkg/metrics"
	"logferry/pkg/output"
	"logferry/pkg/status"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept log streams over TCP and load them into the configured sinks",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":8888", "TCP address for log streams")
	f.String("status", "", "HTTP address for /healthz, /api/job and /metrics (empty disables)")
	f.Int("batch-size", engine.DefaultBatchSize, "entries per bulk write")
	f.Uint64("queue-depth", engine.DefaultQueueDepth, "batches buffered between reader and loader (power of 2)")
	f.StringSlice("sink", nil, "sinks to write to: console, postgres, redis, http")

	bindFlag(serveCmd, "server.tcp_addr", "listen")
	bindFlag(serveCmd, "server.status_addr", "status")
	bindFlag(serveCmd, "pipeline.batch_size", "batch-size")
	bindFlag(serveCmd, "pipeline.queue_depth", "queue-depth")
	bindFlag(serveCmd, "sink.types", "sink")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("initializing logferry", "version", version, "sinks", cfg.Sink.Types)

	sink, err := output.Build(ctx, cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("build sinks: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	pipeline := engine.NewPipeline(engine.Settings{
		BatchSize:  cfg.Pipeline.BatchSize,
		QueueDepth: cfg.Pipeline.QueueDepth,
		ReadChunk:  cfg.Server.ReadChunk,
	}, sink, m, logger)
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("closing sinks", "err", err)
		}
	}()

	if len(cfg.Pipeline.Processors) > 0 {
		chain, err := engine.BuildChain(cfg.Pipeline.Processors)
		if err != nil {
			return fmt.Errorf("pipeline.processors: %w", err)
		}
		pipeline.UpdateChain(chain)
	}

	ingestor := ingest.NewTCPIngestor(cfg.Server.TCPAddr, pipeline, logger)
	ingestor.OnJobDone(m.JobDone)

	if cfg.Redis.Control {
		rdb := output.NewRedisClient(cfg.Redis)
		defer rdb.Close()

		watcher := control.NewWatcher(rdb, pipeline, cfg.Redis.ConfigKey, cfg.Redis.Channel, logger).
			WithSinkBuilder(func(ctx context.Context, types []string) (output.Sink, error) {
				next := *cfg
				next.Sink.Types = types
				if err := next.Validate(); err != nil {
					return nil, err
				}
				sink, err := output.Build(ctx, &next, os.Stdout)
				if err != nil {
					return nil, err
				}
				return sink, nil
			})
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "err", err)
		}

		notifier := control.NewNotifier(rdb, cfg.Redis.ReportChannel, logger)
		ingestor.OnJobDone(notifier.JobDone)
	}

	if cfg.Server.StatusAddr != "" {
		srv := status.New(ingestor, reg)
		go func() {
			if err := srv.Start(ctx, cfg.Server.StatusAddr); err != nil {
				logger.Error("status server stopped", "err", err)
			}
		}()
		logger.Info("status server listening", "addr", cfg.Server.StatusAddr)
	}

	ln, err := net.Listen("tcp", cfg.Server.TCPAddr)
	if err != nil {
		return err
	}

	notifySystemd(logger, daemon.SdNotifyReady)
	err = ingestor.Serve(ctx, ln)
	notifySystemd(logger, daemon.SdNotifyStopping)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bye")
	return nil
}

// notifySystemd is a no-op outside a systemd Type=notify unit.
func notifySystemd(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Debug("sd_notify failed", "state", state, "err", err)
		return
	}
	if sent {
		logger.Debug("sd_notify sent", "state", state)
	}
}
