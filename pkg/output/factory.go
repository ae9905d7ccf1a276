package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"

	"logferry/pkg/config"
)

// Build constructs the sinks listed in cfg.Sink.Types, wrapped in a fan-out.
// Closing the fan-out releases every client that Build opened.
func Build(ctx context.Context, cfg *config.Config, stdout io.Writer) (*FanOutSink, error) {
	if stdout == nil {
		stdout = os.Stdout
	}

	var (
		sinks   []Sink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	for _, t := range cfg.Sink.Types {
		switch t {
		case "console":
			sinks = append(sinks, NewConsoleSink(stdout))
		case "postgres":
			db, err := OpenPostgres(ctx, cfg.Postgres.ConnString)
			if err != nil {
				closeAll()
				return nil, err
			}
			closers = append(closers, db.Close)
			pg := NewPostgresSink(db, cfg.Postgres.Table, cfg.Postgres.Timeout)
			if cfg.Postgres.CreateTable {
				if err := pg.EnsureTable(ctx); err != nil {
					closeAll()
					return nil, err
				}
			}
			sinks = append(sinks, pg)
		case "redis":
			rdb := NewRedisClient(cfg.Redis)
			closers = append(closers, rdb.Close)
			if err := rdb.Ping(ctx).Err(); err != nil {
				closeAll()
				return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Address, err)
			}
			sinks = append(sinks, NewRedisStreamSink(rdb, cfg.Redis.Stream, cfg.Redis.StreamMaxLen))
		case "http":
			sinks = append(sinks, NewHTTPSink(cfg.HTTP.URL, cfg.HTTP.Headers, cfg.HTTP.Timeout))
		default:
			closeAll()
			return nil, fmt.Errorf("unknown sink type %q", t)
		}
	}
	if len(sinks) == 0 {
		return nil, errors.New("no sinks configured")
	}

	fan := NewFanOutSink(sinks...)
	fan.closers = closers
	return fan, nil
}

// NewRedisClient returns a go-redis client for the configured server.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
