package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. LOGFERRY_SERVER_TCP_ADDR.
const EnvPrefix = "LOGFERRY"

// NewViper returns a viper instance that resolves keys such as
// "pipeline.batch_size" from LOGFERRY_PIPELINE_BATCH_SIZE.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (bound flag or environment
// variable) over cfg, then validates the result.
func (c *Config) ApplyOverrides(v *viper.Viper) error {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	str("server.tcp_addr", &c.Server.TCPAddr)
	str("server.status_addr", &c.Server.StatusAddr)
	if v.IsSet("server.read_chunk") {
		c.Server.ReadChunk = v.GetInt("server.read_chunk")
	}
	if v.IsSet("pipeline.batch_size") {
		c.Pipeline.BatchSize = v.GetInt("pipeline.batch_size")
	}
	if v.IsSet("pipeline.queue_depth") {
		c.Pipeline.QueueDepth = v.GetUint64("pipeline.queue_depth")
	}
	if v.IsSet("sink.types") {
		c.Sink.Types = splitList(v.GetStringSlice("sink.types"))
	}
	str("postgres.conn_string", &c.Postgres.ConnString)
	str("postgres.table", &c.Postgres.Table)
	if v.IsSet("postgres.create_table") {
		c.Postgres.CreateTable = v.GetBool("postgres.create_table")
	}
	str("redis.address", &c.Redis.Address)
	str("redis.password", &c.Redis.Password)
	if v.IsSet("redis.db") {
		c.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("redis.control") {
		c.Redis.Control = v.GetBool("redis.control")
	}
	str("redis.stream", &c.Redis.Stream)
	str("http.url", &c.HTTP.URL)

	return c.Validate()
}

// splitList accepts both repeated values and a single comma separated one.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
