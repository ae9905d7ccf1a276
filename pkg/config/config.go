package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a logferry server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sink     SinkConfig     `yaml:"sink"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type ServerConfig struct {
	TCPAddr    string `yaml:"tcp_addr"`
	StatusAddr string `yaml:"status_addr"` // empty disables the status API
	ReadChunk  int    `yaml:"read_chunk"`
}

type PipelineConfig struct {
	BatchSize  int             `yaml:"batch_size"`
	QueueDepth uint64          `yaml:"queue_depth"` // batches in flight, power of 2
	Processors []ProcessorRule `yaml:"processors"`
}

// ProcessorRule configures one entry processor.
// Types: filter, drop_level, redact, field_filter.
type ProcessorRule struct {
	ID     string            `yaml:"id" json:"id"`
	Type   string            `yaml:"type" json:"type"`
	Params map[string]string `yaml:"params" json:"params"`
}

type SinkConfig struct {
	// Types lists the sinks each batch is written to: postgres, redis, http, console.
	Types []string `yaml:"types"`
}

type PostgresConfig struct {
	ConnString  string        `yaml:"conn_string"`
	Table       string        `yaml:"table"`
	CreateTable bool          `yaml:"create_table"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Control  bool   `yaml:"control"` // enables the config watcher and report publishing

	Stream        string `yaml:"stream"`         // target stream for the redis sink
	StreamMaxLen  int64  `yaml:"stream_max_len"` // 0 keeps everything
	ConfigKey     string `yaml:"config_key"`     // JSON tunables read by the watcher
	Channel       string `yaml:"channel"`        // PubSub channel announcing config updates
	ReportChannel string `yaml:"report_channel"` // PubSub channel receiving job reports
}

type HTTPConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.TCPAddr == "" {
		c.Server.TCPAddr = ":8888"
	}
	if c.Server.ReadChunk == 0 {
		c.Server.ReadChunk = 4096
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = 50_000
	}
	if c.Pipeline.QueueDepth == 0 {
		c.Pipeline.QueueDepth = 4
	}
	if len(c.Sink.Types) == 0 {
		c.Sink.Types = []string{"console"}
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "AndroidLogs"
	}
	if c.Postgres.Timeout == 0 {
		c.Postgres.Timeout = 60 * time.Second
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "logferry:entries"
	}
	if c.Redis.ConfigKey == "" {
		c.Redis.ConfigKey = "logferry_config"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "logferry_updates"
	}
	if c.Redis.ReportChannel == "" {
		c.Redis.ReportChannel = "logferry_reports"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return errors.New("pipeline.batch_size must be positive")
	}
	if q := c.Pipeline.QueueDepth; q == 0 || q&(q-1) != 0 {
		return fmt.Errorf("pipeline.queue_depth must be a power of 2, got %d", q)
	}
	if c.Server.ReadChunk < 16 {
		return fmt.Errorf("server.read_chunk must be at least 16, got %d", c.Server.ReadChunk)
	}
	for _, t := range c.Sink.Types {
		switch t {
		case "console":
		case "postgres":
			if c.Postgres.ConnString == "" {
				return errors.New("postgres.conn_string is required for the postgres sink")
			}
		case "redis":
			if c.Redis.Address == "" {
				return errors.New("redis.address is required for the redis sink")
			}
		case "http":
			if c.HTTP.URL == "" {
				return errors.New("http.url is required for the http sink")
			}
		default:
			return fmt.Errorf("unknown sink type %q", t)
		}
	}
	return nil
}

// HasSink reports whether the named sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, t := range c.Sink.Types {
		if t == name {
			return true
		}
	}
	return false
}
