// Package config resolves daemon settings from, in increasing priority, the
// built-in defaults, the user config file and ATK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Daemon holds service-level settings.
type Daemon struct {
	LogLevel         string        `env:"ATK_LOG_LEVEL"`
	PositionInterval time.Duration `env:"ATK_POSITION_INTERVAL"`
}

// Defaults are the session settings a fresh daemon starts with.
type Defaults struct {
	Volume  float64 `env:"ATK_VOLUME"`
	Rate    float64 `env:"ATK_RATE"`
	Mode    string  `env:"ATK_RATE_MODE"`
	Pitch   float64 `env:"ATK_PITCH"`
	Repeat  string  `env:"ATK_REPEAT"`
	Shuffle bool    `env:"ATK_SHUFFLE"`
	Device  string  `env:"ATK_DEVICE"`

	// Decoded-clip cache budget in megabytes. Zero disables the cache.
	CacheMB int `env:"ATK_CACHE_MB"`
}

// Paths locates the directories the daemon works in.
type Paths struct {
	RuntimeDir string `env:"ATK_RUNTIME_DIR"`
	StateDir   string `env:"ATK_STATE_DIR"`
}

// Config is the resolved daemon configuration.
type Config struct {
	Daemon   Daemon
	Defaults Defaults
	Paths    Paths
}

func setDefaults() {
	viper.SetDefault("daemon.log_level", "info")
	viper.SetDefault("daemon.position_interval", "1s")
	viper.SetDefault("defaults.volume", 0.8)
	viper.SetDefault("defaults.rate", 1.0)
	viper.SetDefault("defaults.mode", "stretch")
	viper.SetDefault("defaults.pitch", 0.0)
	viper.SetDefault("defaults.repeat", "none")
	viper.SetDefault("defaults.shuffle", false)
	viper.SetDefault("defaults.device", "default")
	viper.SetDefault("defaults.cache_mb", 256)
	viper.SetDefault("paths.runtime_dir", "")
	viper.SetDefault("paths.state_dir", "")
}

// Load reads the config file from the usual locations and applies environment
// overrides. A missing config file is not an error.
func Load() (Config, error) {
	setDefaults()

	scope := gap.NewScope(gap.User, "atk")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return Config{}, fmt.Errorf("locate config directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "atk")}, dirs...)
	}
	if c := os.Getenv("ATK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	for _, d := range dirs {
		viper.AddConfigPath(d)
	}
	viper.SetConfigName("atk")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("could not parse configuration file", "err", err)
		}
	}

	cfg := fromViper()
	if err := env.Parse(&cfg.Daemon); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := env.Parse(&cfg.Defaults); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := env.Parse(&cfg.Paths); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Paths.RuntimeDir == "" {
		cfg.Paths.RuntimeDir = defaultRuntimeDir()
	}
	if cfg.Paths.StateDir == "" {
		cfg.Paths.StateDir = defaultStateDir()
	}
	return cfg, nil
}

func fromViper() Config {
	return Config{
		Daemon: Daemon{
			LogLevel:         viper.GetString("daemon.log_level"),
			PositionInterval: viper.GetDuration("daemon.position_interval"),
		},
		Defaults: Defaults{
			Volume:  viper.GetFloat64("defaults.volume"),
			Rate:    viper.GetFloat64("defaults.rate"),
			Mode:    viper.GetString("defaults.mode"),
			Pitch:   viper.GetFloat64("defaults.pitch"),
			Repeat:  viper.GetString("defaults.repeat"),
			Shuffle: viper.GetBool("defaults.shuffle"),
			Device:  viper.GetString("defaults.device"),
			CacheMB: viper.GetInt("defaults.cache_mb"),
		},
		Paths: Paths{
			RuntimeDir: viper.GetString("paths.runtime_dir"),
			StateDir:   viper.GetString("paths.state_dir"),
		},
	}
}

// defaultRuntimeDir is where the control pipes live: the per-user runtime
// directory when the system provides one, a uid-scoped tmp directory
// otherwise.
func defaultRuntimeDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "atk")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("atk-%d", os.Getuid()))
}

// defaultStateDir holds logs and saved sessions.
func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "atk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "atk-state")
	}
	return filepath.Join(home, ".local", "state", "atk")
}

// SessionFile is the default path for persisted session state.
func (c Config) SessionFile() string {
	return filepath.Join(c.Paths.StateDir, "session.json")
}

// PIDFile is the daemon's single-instance lock file.
func (c Config) PIDFile() string {
	return filepath.Join(c.Paths.RuntimeDir, "daemon.pid")
}
