// Package daemon wires the session to the control pipes and owns the process
// lifecycle: single-instance locking, event forwarding, position updates and
// state persistence across restarts.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/atk/internal/audio"
	"github.com/dgnsrekt/atk/internal/cache"
	"github.com/dgnsrekt/atk/internal/config"
	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/pipe"
	"github.com/dgnsrekt/atk/internal/player"
	"github.com/dgnsrekt/atk/internal/protocol"
	"github.com/dgnsrekt/atk/internal/queue"
	"github.com/dgnsrekt/atk/internal/session"
	"github.com/dgnsrekt/atk/internal/source"
)

// ErrAlreadyRunning means another daemon instance owns the runtime directory.
var ErrAlreadyRunning = errors.New("daemon already running")

// Daemon is one running service instance.
type Daemon struct {
	cfg    config.Config
	opener audio.Opener
	log    *log.Logger

	sess   *session.Session
	server *pipe.Server
}

// New assembles a daemon from resolved configuration. The opener is the door
// to the sound hardware; tests pass a mock.
func New(cfg config.Config, opener audio.Opener, logger *log.Logger) *Daemon {
	if logger == nil {
		logger = log.Default()
	}
	if lvl, err := log.ParseLevel(cfg.Daemon.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return &Daemon{cfg: cfg, opener: opener, log: logger}
}

// Run starts the daemon and blocks until ctx is cancelled. On the way out it
// persists the session so the next start resumes where this one stopped.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquirePIDFile(); err != nil {
		return err
	}
	defer os.Remove(d.cfg.PIDFile())

	var loader player.Loader = player.LoaderFunc(source.Load)
	if mb := d.cfg.Defaults.CacheMB; mb > 0 {
		loader = cache.New(int64(mb) << 20)
	}

	p := player.New(d.opener, d.cfg.Defaults.Device, loader, d.log)
	d.sess = session.New(p, d.log)
	defer d.sess.Close()
	d.applyDefaults()

	if err := d.sess.Restore(d.cfg.SessionFile()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.log.Warn("could not restore previous session", "err", err)
		}
	} else {
		d.log.Info("restored previous session", "file", d.cfg.SessionFile())
	}

	d.server = pipe.NewServer(d.cfg.Paths.RuntimeDir, d.dispatch, d.log)
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start control pipes: %w", err)
	}
	defer d.server.Stop()

	events, cancelEvents := d.sess.Events().Subscribe(64)
	defer cancelEvents()
	go d.forwardEvents(events)

	d.log.Info("daemon ready",
		"runtime_dir", d.cfg.Paths.RuntimeDir,
		"device", d.cfg.Defaults.Device)

	d.positionLoop(ctx)

	if err := d.sess.Save(d.cfg.SessionFile()); err != nil {
		d.log.Warn("could not persist session", "err", err)
	}
	d.log.Info("daemon stopped")
	return nil
}

// applyDefaults seeds the fresh session with the configured tuning. A later
// session restore overrides these.
func (d *Daemon) applyDefaults() {
	def := d.cfg.Defaults
	d.sess.SetVolume(def.Volume)
	if mode, ok := dsp.ParseMode(def.Mode); ok {
		d.sess.SetRate(def.Rate, mode)
	}
	d.sess.SetPitch(def.Pitch)
	d.sess.SetShuffle(def.Shuffle)
	if mode, ok := queue.ParseRepeat(def.Repeat); ok {
		d.sess.SetRepeat(mode)
	}
}

// forwardEvents copies session events onto the response pipe.
func (d *Daemon) forwardEvents(events <-chan session.Event) {
	for ev := range events {
		d.server.Publish(protocol.Event{
			V:     protocol.Version,
			Event: ev.Kind,
			Data:  ev.Data,
		})
	}
}

// positionLoop publishes position updates while something is playing, at most
// one per configured interval, until ctx is cancelled.
func (d *Daemon) positionLoop(ctx context.Context) {
	interval := d.cfg.Daemon.PositionInterval
	if interval <= 0 {
		interval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	tick := time.NewTicker(interval / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			st := d.sess.Status()
			if st.State != player.Playing.String() || !limiter.Allow() {
				continue
			}
			data := map[string]interface{}{
				"position": st.Position,
				"duration": st.Duration,
			}
			if st.Track != nil {
				data["uri"] = st.Track.URI
			}
			d.server.Publish(protocol.Event{
				V:     protocol.Version,
				Event: session.EventPositionUpdate,
				Data:  data,
			})
		}
	}
}

// acquirePIDFile claims the runtime directory, refusing to start when a live
// process already holds the lock. A stale file from a dead process is taken
// over silently.
func (d *Daemon) acquirePIDFile() error {
	path := d.cfg.PIDFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}

	if raw, err := os.ReadFile(path); err == nil {
		if pid, convErr := strconv.Atoi(strings.TrimSpace(string(raw))); convErr == nil {
			if pid > 0 && unix.Kill(pid, 0) == nil {
				return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
			}
		}
		d.log.Debug("removing stale pid file", "path", path)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}
