// Package main provides the atk command line interface: a thin client for
// the playback daemon plus the daemon itself.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/atk/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "atk",
		Short: "Background audio playback, controlled from your terminal",
		Long: paragraph(
			fmt.Sprintf("\nPlay audio in the background and %s from any shell. Without arguments atk opens the live status view.", keyword("control it")),
		),
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if lvl, lerr := log.ParseLevel(cfg.Daemon.LogLevel); lerr == nil {
				log.SetLevel(lvl)
			}
			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			return runTUI()
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.AddCommand(
		playCmd, pauseCmd, stopCmd, nextCmd, prevCmd,
		seekCmd, volumeCmd, rateCmd, pitchCmd, fadeCmd,
		addCmd, removeCmd, moveCmd, clearCmd, jumpCmd,
		shuffleCmd, repeatCmd,
		statusCmd, queueCmd, infoCmd, devicesCmd,
		saveCmd, loadCmd,
		tuiCmd, daemonCmd, configCmd, manCmd,
	)
}
