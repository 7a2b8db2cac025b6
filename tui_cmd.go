package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/atk/ui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the live status view",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runTUI()
	},
}

func runTUI() error {
	uiCfg := ui.Config{
		RuntimeDir:      cfg.Paths.RuntimeDir,
		RefreshInterval: cfg.Daemon.PositionInterval,
	}
	if _, err := ui.NewProgram(uiCfg).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}
