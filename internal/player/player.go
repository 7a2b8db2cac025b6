// Package player implements the playback engine: one decoded clip, a rate
// processor, a volume stage, and an output device, driven by the device's own
// pull cadence. All mutable state is owned here; the session layer only
// reaches it through the exported operations.
package player

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/atk/internal/audio"
	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/source"
	"github.com/dgnsrekt/atk/internal/track"
)

// State is the playback lifecycle state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Loader decodes a file into a playable clip. The production loader wraps the
// decode layer in a cache; tests substitute a fake.
type Loader interface {
	Load(path string) (*source.Clip, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (*source.Clip, error)

func (f LoaderFunc) Load(path string) (*source.Clip, error) { return f(path) }

// Hooks receives playback notifications. Nil fields are skipped. StateChanged,
// TrackChanged and VolumeChanged fire synchronously with the causing
// operation; TrackEnded fires from a separate goroutine because it originates
// inside the audio pull path.
type Hooks struct {
	StateChanged  func(State)
	TrackChanged  func(*track.Track)
	VolumeChanged func(float64)
	TrackEnded    func()
	Error         func(error)
}

// Player owns the decoded clip, the processing chain and the output device.
type Player struct {
	mu sync.Mutex

	opener   audio.Opener
	deviceID string
	loader   Loader
	hooks    Hooks
	log      *log.Logger

	ctx audio.Context
	out audio.Player

	clip *source.Clip
	trk  *track.Track
	proc *dsp.Processor

	state  State
	volume float64

	fadeActive      bool
	fadeStartVol    float64
	fadeTarget      float64
	fadeTotalFrames int
	fadeElapsed     int

	endPending bool

	scratch []float32
}

// New builds a stopped player. The output device is opened lazily on the
// first Play so that a daemon can start without audio hardware present.
func New(opener audio.Opener, deviceID string, loader Loader, logger *log.Logger) *Player {
	if logger == nil {
		logger = log.Default()
	}
	return &Player{
		opener:   opener,
		deviceID: deviceID,
		loader:   loader,
		log:      logger,
		proc:     dsp.NewProcessor(),
		volume:   1.0,
	}
}

// SetHooks installs the notification callbacks. Call before playback starts.
func (p *Player) SetHooks(h Hooks) {
	p.mu.Lock()
	p.hooks = h
	p.mu.Unlock()
}

// Load decodes the track and makes it current. On failure the previously
// loaded track is untouched. A successful load leaves the player stopped with
// the cursor at zero.
func (p *Player) Load(t *track.Track) error {
	clip, err := p.loader.Load(t.URI)
	if err != nil {
		return err
	}
	t.Duration = clip.Duration()

	p.mu.Lock()
	p.clip = clip
	p.trk = t
	p.proc.SetSource(clip.Samples, clip.Channels)
	p.endPending = false
	prev := p.state
	p.state = Stopped
	p.mu.Unlock()

	p.emitTrack(t)
	if prev != Stopped {
		p.emitState(Stopped)
	}
	return nil
}

// Play starts or resumes playback. No-op when already playing. Returns a
// device error if the output cannot be opened; the player stays stopped.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.clip == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: no track loaded", audio.ErrDevice)
	}
	if p.state == Playing {
		p.mu.Unlock()
		return nil
	}
	if err := p.ensureDeviceLocked(); err != nil {
		p.mu.Unlock()
		p.emitError(err)
		return err
	}
	p.endPending = false
	p.state = Playing
	out := p.out
	p.mu.Unlock()

	out.Play()
	p.emitState(Playing)
	return nil
}

// Pause halts cursor advance but keeps position. Only meaningful from
// playing.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != Playing {
		p.mu.Unlock()
		return
	}
	p.state = Paused
	p.mu.Unlock()

	p.emitState(Paused)
}

// Stop halts playback and resets the cursor to zero.
func (p *Player) Stop() {
	p.mu.Lock()
	changed := p.state != Stopped
	p.state = Stopped
	p.endPending = false
	p.proc.Seek(0)
	p.fadeActive = false
	p.mu.Unlock()

	if changed {
		p.emitState(Stopped)
	}
}

// Seek moves the cursor to the absolute position, clamped to the clip bounds.
// It returns the position actually applied. Legal in any state.
func (p *Player) Seek(pos time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil {
		return 0
	}
	frame := int(pos.Seconds() * float64(source.SampleRate))
	p.proc.Seek(frame)
	p.endPending = false
	return p.positionLocked()
}

// Position returns the cursor position within the current track.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	return time.Duration(float64(p.proc.Pos()) / float64(source.SampleRate) * float64(time.Second))
}

// Duration returns the length of the loaded track, zero when none is loaded.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip == nil {
		return 0
	}
	return p.clip.Duration()
}

// SetVolume clamps the level to [0,1], cancels any fade, and returns the
// value applied.
func (p *Player) SetVolume(level float64) float64 {
	p.mu.Lock()
	p.volume = clamp01(level)
	p.fadeActive = false
	v := p.volume
	p.mu.Unlock()

	p.emitVolume(v)
	return v
}

// Volume returns the current gain level.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetRate clamps the factor to the processor's range and applies the mode.
// A mode switch flushes the processor's synthesis history. Returns the
// factor applied.
func (p *Player) SetRate(factor float64, mode dsp.Mode) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proc.SetMode(mode)
	return p.proc.SetRate(factor)
}

// Rate returns the current rate factor.
func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.Rate()
}

// Mode returns the current rate mode.
func (p *Player) Mode() dsp.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.Mode()
}

// SetPitch clamps the shift to the processor's semitone range and returns
// the value applied. Ignored by tape mode.
func (p *Player) SetPitch(semitones float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.SetPitch(semitones)
}

// Pitch returns the current pitch shift in semitones.
func (p *Player) Pitch() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.proc.Pitch()
}

// StartFade ramps the volume linearly to target over the given duration.
// The ramp advances with produced audio, so it pauses with playback.
func (p *Player) StartFade(target float64, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fadeTarget = clamp01(target)
	p.fadeStartVol = p.volume
	p.fadeTotalFrames = int(duration.Seconds() * float64(source.SampleRate))
	p.fadeElapsed = 0
	p.fadeActive = p.fadeTotalFrames > 0
	if !p.fadeActive {
		p.volume = p.fadeTarget
	}
}

// CancelFade stops an active fade, holding the volume where it is.
func (p *Player) CancelFade() {
	p.mu.Lock()
	p.fadeActive = false
	p.mu.Unlock()
}

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Track returns the currently loaded track, nil when none.
func (p *Player) Track() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trk
}

// Close stops playback and releases the output device.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = Stopped
	if p.out != nil {
		p.out.Close()
		p.out = nil
	}
	if p.ctx != nil {
		err := p.ctx.Close()
		p.ctx = nil
		return err
	}
	return nil
}

// ensureDeviceLocked opens the output device and its pull stream on first
// use. Caller holds p.mu.
func (p *Player) ensureDeviceLocked() error {
	if p.out != nil {
		return nil
	}
	ctx, err := p.opener.Open(p.deviceID, source.SampleRate, source.Channels)
	if err != nil {
		return err
	}
	out, err := ctx.NewPlayer(p)
	if err != nil {
		ctx.Close()
		return err
	}
	p.ctx = ctx
	p.out = out
	return nil
}

// Read produces signed 16-bit little-endian PCM for the output device. It
// never returns an error or a short read: when stopped or paused it feeds
// silence so the device stays primed. End of stream is signalled to the
// session once and followed by silence until the session reacts.
func (p *Player) Read(b []byte) (int, error) {
	const bytesPerFrame = 2 * source.Channels

	p.mu.Lock()

	if p.state != Playing || p.clip == nil {
		p.mu.Unlock()
		zero(b)
		return len(b), nil
	}

	frames := len(b) / bytesPerFrame
	need := frames * source.Channels
	if cap(p.scratch) < need {
		p.scratch = make([]float32, need)
	}
	buf := p.scratch[:need]

	got, eos := p.proc.Next(buf)
	p.applyGainLocked(buf[:got*source.Channels], got)

	fireEnd := false
	if eos && !p.endPending {
		p.endPending = true
		fireEnd = true
	}
	p.mu.Unlock()

	writePCM(b, buf[:got*source.Channels])
	zero(b[got*bytesPerFrame:])

	if fireEnd {
		// Out of band so the session can touch the player freely.
		go p.emitEnd()
	}
	return len(b), nil
}

// applyGainLocked multiplies the fade envelope and master volume into buf.
// Caller holds p.mu; frames is the number of audio frames in buf.
func (p *Player) applyGainLocked(buf []float32, frames int) {
	if !p.fadeActive {
		v := float32(p.volume)
		for i := range buf {
			buf[i] *= v
		}
		return
	}

	span := p.fadeTarget - p.fadeStartVol
	for f := 0; f < frames; f++ {
		progress := float64(p.fadeElapsed+f) / float64(p.fadeTotalFrames)
		if progress > 1 {
			progress = 1
		}
		g := float32(p.fadeStartVol + span*progress)
		for c := 0; c < source.Channels; c++ {
			buf[f*source.Channels+c] *= g
		}
	}
	p.fadeElapsed += frames
	if p.fadeElapsed >= p.fadeTotalFrames {
		p.volume = p.fadeTarget
		p.fadeActive = false
	}
}

func (p *Player) emitState(s State) {
	if p.hooks.StateChanged != nil {
		p.hooks.StateChanged(s)
	}
}

func (p *Player) emitTrack(t *track.Track) {
	if p.hooks.TrackChanged != nil {
		p.hooks.TrackChanged(t)
	}
}

func (p *Player) emitVolume(v float64) {
	if p.hooks.VolumeChanged != nil {
		p.hooks.VolumeChanged(v)
	}
}

func (p *Player) emitEnd() {
	if p.hooks.TrackEnded != nil {
		p.hooks.TrackEnded()
	}
}

func (p *Player) emitError(err error) {
	p.log.Error("playback error", "err", err)
	if p.hooks.Error != nil {
		p.hooks.Error(err)
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// writePCM converts float32 samples in [-1,1] to interleaved int16 LE bytes.
func writePCM(dst []byte, src []float32) {
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		dst[i*2] = byte(v)
		dst[i*2+1] = byte(v >> 8)
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
