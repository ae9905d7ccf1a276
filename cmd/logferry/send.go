package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"logferry/pkg/client"
)

var (
	sendAddr    string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [paths...]",
	Short: "Stream log files to a logferry server over one connection",
	Long: `send streams every file to the server in sorted path order. Directories
are walked recursively and globs may use ** (for example logs/**/*.txt).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		files, err := client.Expand(args)
		if err != nil {
			return err
		}
		logger.Info("sending files", "count", len(files), "addr", sendAddr)

		s := &client.Sender{Addr: sendAddr, DialTimeout: sendTimeout, Logger: logger}
		res, err := s.Send(cmd.Context(), files)
		if err != nil {
			return err
		}

		mb := float64(res.Bytes) / (1 << 20)
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d files, %.1f MiB in %s (%.1f MiB/s)\n",
			res.Files, mb, res.Elapsed.Round(time.Millisecond), mb/res.Elapsed.Seconds())
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendAddr, "addr", "a", "localhost:8888", "server address")
	sendCmd.Flags().DurationVar(&sendTimeout, "dial-timeout", 10*time.Second, "connect timeout")
}
