package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"logferry/pkg/config"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	overrides = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "logferry",
	Short: "Stream Android logcat text into a bulk store",
	Long: `logferry accepts raw logcat output over TCP, parses every line into a
structured entry and loads the entries into PostgreSQL, a Redis stream or an
HTTP endpoint in large batches.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	rootCmd.AddCommand(serveCmd, sendCmd, versionCmd)
}

// loadConfig reads the config file, if any, then applies flag and
// environment overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("invalid --log-format %q", logFormat)
	}
	return slog.New(h), nil
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	cobra.CheckErr(overrides.BindPFlag(key, cmd.Flags().Lookup(flag)))
}
