package audio

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// OtoOpener opens the system's default output device through oto. oto does
// not expose per-device selection, so the only accepted identifier is
// DefaultDevice; anything else is a DeviceError.
type OtoOpener struct{}

// Devices lists the identifiers this opener accepts.
func (OtoOpener) Devices() []string {
	return []string{DefaultDevice}
}

// Open creates the oto context for the default device and waits for it to
// become ready.
func (OtoOpener) Open(deviceID string, sampleRate, channels int) (Context, error) {
	if deviceID != "" && deviceID != DefaultDevice {
		return nil, fmt.Errorf("%w: unknown device %q", ErrDevice, deviceID)
	}

	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   platformBufferSize(),
	}

	log.Debug("opening audio device",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer", options.BufferSize)

	ctx, readyChan, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	select {
	case <-readyChan:
	case <-time.After(5 * time.Second):
		// The context has no Close in oto v3; it is garbage collected.
		return nil, fmt.Errorf("%w: device initialization timeout", ErrDevice)
	}

	return &otoContext{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// platformBufferSize picks a device buffer per platform. macOS CoreAudio
// wants more headroom than ALSA.
func platformBufferSize() time.Duration {
	switch runtime.GOOS {
	case "darwin":
		return 100 * time.Millisecond
	case "windows":
		return 80 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

type otoContext struct {
	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

func (c *otoContext) NewPlayer(r io.Reader) (Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil, fmt.Errorf("%w: device closed", ErrDevice)
	}
	return &otoPlayer{player: c.ctx.NewPlayer(r)}, nil
}

func (c *otoContext) SampleRate() int   { return c.sampleRate }
func (c *otoContext) ChannelCount() int { return c.channels }

func (c *otoContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// oto v3 contexts cannot be closed; dropping the reference is all we
	// can do.
	c.ctx = nil
	return nil
}

type otoPlayer struct {
	player *oto.Player
}

func (p *otoPlayer) Play()           { p.player.Play() }
func (p *otoPlayer) Pause()          { p.player.Pause() }
func (p *otoPlayer) IsPlaying() bool { return p.player.IsPlaying() }
func (p *otoPlayer) Close() error    { return p.player.Close() }
