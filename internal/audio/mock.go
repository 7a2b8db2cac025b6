package audio

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// MockOpener is a test double for device resolution. It accepts a fixed set
// of device identifiers and opens contexts that never touch hardware.
type MockOpener struct {
	// DeviceIDs defaults to {DefaultDevice} when empty.
	DeviceIDs []string

	// FailOpen forces Open to return a DeviceError.
	FailOpen bool

	// ManualPull disables the background pull loop. Tests then drive the
	// stream with Pull for deterministic output.
	ManualPull bool

	mu     sync.Mutex
	opened []*MockContext
}

// Devices lists the identifiers this opener accepts.
func (m *MockOpener) Devices() []string {
	if len(m.DeviceIDs) == 0 {
		return []string{DefaultDevice}
	}
	return append([]string(nil), m.DeviceIDs...)
}

// Open opens a mock context for a known identifier.
func (m *MockOpener) Open(deviceID string, sampleRate, channels int) (Context, error) {
	if m.FailOpen {
		return nil, fmt.Errorf("%w: mock open failure", ErrDevice)
	}
	if deviceID == "" {
		deviceID = DefaultDevice
	}
	known := false
	for _, id := range m.Devices() {
		if id == deviceID {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: unknown device %q", ErrDevice, deviceID)
	}

	ctx := &MockContext{sampleRate: sampleRate, channels: channels, manual: m.ManualPull}
	m.mu.Lock()
	m.opened = append(m.opened, ctx)
	m.mu.Unlock()
	return ctx, nil
}

// Opened returns every context this opener has produced.
func (m *MockOpener) Opened() []*MockContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockContext(nil), m.opened...)
}

// MockContext is an in-memory output device.
type MockContext struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	manual     bool
	players    []*MockPlayer
	closed     bool
}

// NewPlayer creates a mock stream over r.
func (c *MockContext) NewPlayer(r io.Reader) (Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: device closed", ErrDevice)
	}
	p := &MockPlayer{reader: r, manual: c.manual}
	c.players = append(c.players, p)
	return p, nil
}

func (c *MockContext) SampleRate() int   { return c.sampleRate }
func (c *MockContext) ChannelCount() int { return c.channels }

// Close marks the context closed and stops its players.
func (c *MockContext) Close() error {
	c.mu.Lock()
	players := append([]*MockPlayer(nil), c.players...)
	c.closed = true
	c.mu.Unlock()

	for _, p := range players {
		p.Close()
	}
	return nil
}

// Players returns the streams created on this context.
func (c *MockContext) Players() []*MockPlayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MockPlayer(nil), c.players...)
}

// MockPlayer pulls from its reader like a sound card would, but into memory.
// While playing, a background goroutine drains the reader at an aggressive
// pace; tests that need determinism call Pull directly instead of Play.
type MockPlayer struct {
	mu      sync.Mutex
	reader  io.Reader
	manual  bool
	playing bool
	closed  bool
	stop    chan struct{}
	written int
}

// Play starts the background pull loop.
func (p *MockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing || p.closed {
		return
	}
	p.playing = true
	if p.manual {
		return
	}
	p.stop = make(chan struct{})
	go p.pullLoop(p.stop)
}

// Pause stops the background pull loop.
func (p *MockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

func (p *MockPlayer) pauseLocked() {
	if !p.playing {
		return
	}
	p.playing = false
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// IsPlaying reports whether the pull loop is running.
func (p *MockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops the stream permanently.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
	p.closed = true
	return nil
}

// Pull synchronously reads n bytes from the stream's reader, as the device
// callback would. It returns the bytes consumed.
func (p *MockPlayer) Pull(n int) int {
	buf := make([]byte, n)
	read, _ := io.ReadFull(p.reader, buf)

	p.mu.Lock()
	p.written += read
	p.mu.Unlock()
	return read
}

// BytesWritten returns the total PCM bytes this player has consumed.
func (p *MockPlayer) BytesWritten() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

func (p *MockPlayer) pullLoop(stop chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, _ := p.reader.Read(buf)
		p.mu.Lock()
		p.written += n
		p.mu.Unlock()

		// Keep the loop from spinning flat out on silence.
		time.Sleep(200 * time.Microsecond)
	}
}
