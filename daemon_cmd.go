package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/dgnsrekt/atk/internal/audio"
	"github.com/dgnsrekt/atk/internal/daemon"
)

var daemonLogFile string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the playback daemon",
	Long: paragraph(
		fmt.Sprintf("\nRun the playback daemon in the foreground. Clients talk to it over named pipes in %s.", keyword("the runtime directory")),
	),
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		logger, closer, err := daemonLogger()
		if err != nil {
			return err
		}
		defer closer()

		ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
		defer stop()

		d := daemon.New(cfg, &audio.OtoOpener{}, logger)
		return d.Run(ctx)
	},
}

// daemonLogger writes to the state dir when --log is given so a daemon
// started from a shell profile keeps its output somewhere inspectable.
func daemonLogger() (*log.Logger, func(), error) {
	if daemonLogFile == "" {
		return log.Default(), func() {}, nil
	}

	path := daemonLogFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Paths.StateDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.New(f)
	logger.SetReportTimestamp(true)
	return logger, func() { _ = f.Close() }, nil
}

func init() {
	daemonCmd.Flags().StringVar(&daemonLogFile, "log", "", "log to a file instead of stderr")
}
