package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	gap "github.com/muesli/go-app-paths"
)

const defaultConfig = `daemon:
  # log level: debug, info, warn, error
  log_level: "info"
  # how often position_update events are pushed while playing
  position_interval: "1s"

defaults:
  # initial volume (0.0 to 1.0)
  volume: 0.8
  # playback rate (0.25 to 4.0)
  rate: 1.0
  # rate mode: stretch keeps pitch, tape behaves like varispeed
  mode: "stretch"
  # pitch shift in semitones (-12 to +12)
  pitch: 0.0
  # repeat mode: none, track, or queue
  repeat: "none"
  shuffle: false
  # output device id, "default" for the system device
  device: "default"
  # decoded audio cache budget in megabytes, 0 disables
  cache_mb: 256

paths:
  # pipes and pid file live here; empty means XDG_RUNTIME_DIR/atk
  runtime_dir: ""
  # saved sessions live here; empty means XDG_STATE_HOME/atk
  state_dir: ""
`

var configFile string

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the atk config file",
	Long:    paragraph(fmt.Sprintf("\n%s the atk config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("atk config\natk config --config path/to/atk.yaml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("atk", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		if c := os.Getenv("ATK_CONFIG_HOME"); c != "" {
			configFile = filepath.Join(c, "atk.yaml")
		} else {
			scope := gap.NewScope(gap.User, "atk")
			dirs, err := scope.ConfigDirs()
			if err != nil || len(dirs) == 0 {
				return fmt.Errorf("could not locate configuration directory")
			}
			configFile = filepath.Join(dirs[0], "atk.yaml")
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

func init() {
	configCmd.Flags().StringVar(&configFile, "config", "", "path to the config file")
}
