package output

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"logferry/pkg/model"
)

// RedisPipeliner is the part of a go-redis client the stream sink needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisPipeliner interface {
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisStreamSink appends every entry to a Redis stream with XADD, one
// pipeline round trip per batch.
type RedisStreamSink struct {
	client RedisPipeliner
	stream string
	maxLen int64
}

func NewRedisStreamSink(client RedisPipeliner, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStreamSink) Name() string { return "redis" }

func (r *RedisStreamSink) WriteBatch(ctx context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range batch.Entries {
			e := &batch.Entries[i]
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: r.stream,
				MaxLen: r.maxLen,
				Approx: r.maxLen > 0,
				Values: []interface{}{
					"LogDate", e.LogDate,
					"Pid", strconv.Itoa(int(e.Pid)),
					"Tid", strconv.Itoa(int(e.Tid)),
					"Level", string(e.Level),
					"Component", e.Component,
					"Content", e.Content,
				},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}
