package player

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/atk/internal/audio"
	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/source"
	"github.com/dgnsrekt/atk/internal/track"
)

// fakeLoader serves canned clips by path and records failures.
type fakeLoader struct {
	clips map[string]*source.Clip
}

func (f *fakeLoader) Load(path string) (*source.Clip, error) {
	clip, ok := f.clips[path]
	if !ok {
		return nil, source.ErrDecode
	}
	return clip, nil
}

// testClip builds a stereo clip of the given frame count filled with a
// constant sample value.
func testClip(frames int, value float32) *source.Clip {
	samples := make([]float32, frames*source.Channels)
	for i := range samples {
		samples[i] = value
	}
	return &source.Clip{Samples: samples, SampleRate: source.SampleRate, Channels: source.Channels}
}

func newTestPlayer(t *testing.T, frames int) (*Player, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{clips: map[string]*source.Clip{
		"/music/a.wav": testClip(frames, 0.5),
		"/music/b.wav": testClip(frames, 0.25),
	}}
	opener := &audio.MockOpener{ManualPull: true}
	p := New(opener, audio.DefaultDevice, loader, log.New(io.Discard))
	t.Cleanup(func() { p.Close() })
	return p, loader
}

func TestLoadFailureKeepsPreviousTrack(t *testing.T) {
	p, _ := newTestPlayer(t, 1024)

	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Load(track.New("/music/missing.wav")); !errors.Is(err, source.ErrDecode) {
		t.Fatalf("Load error = %v, want ErrDecode", err)
	}
	if got := p.Track(); got == nil || got.URI != "/music/a.wav" {
		t.Fatalf("track after failed load = %v, want /music/a.wav", got)
	}
	if p.Duration() == 0 {
		t.Fatal("duration lost after failed load")
	}
}

func TestVolumeClamp(t *testing.T) {
	p, _ := newTestPlayer(t, 1024)

	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{1.5, 1.0},
		{-0.2, 0.0},
		{0, 0},
		{1, 1},
	}
	for _, tt := range tests {
		if got := p.SetVolume(tt.in); got != tt.want {
			t.Errorf("SetVolume(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got := p.Volume(); got != tt.want {
			t.Errorf("Volume after SetVolume(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRateClamp(t *testing.T) {
	p, _ := newTestPlayer(t, 1024)

	if got := p.SetRate(8.0, dsp.ModeStretch); got != dsp.MaxRate {
		t.Fatalf("SetRate(8.0) = %v, want %v", got, dsp.MaxRate)
	}
	if got := p.SetRate(0.01, dsp.ModeTape); got != dsp.MinRate {
		t.Fatalf("SetRate(0.01) = %v, want %v", got, dsp.MinRate)
	}
	if got := p.Mode(); got != dsp.ModeTape {
		t.Fatalf("Mode = %v, want tape", got)
	}
}

func TestSeekClamps(t *testing.T) {
	frames := source.SampleRate // one second
	p, _ := newTestPlayer(t, frames)
	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := p.Seek(-5 * time.Second); got != 0 {
		t.Fatalf("Seek(-5s) = %v, want 0", got)
	}
	if got := p.Seek(10 * time.Second); got != time.Second {
		t.Fatalf("Seek(10s) = %v, want 1s", got)
	}
	mid := p.Seek(500 * time.Millisecond)
	if mid < 499*time.Millisecond || mid > 501*time.Millisecond {
		t.Fatalf("Seek(500ms) = %v", mid)
	}
}

func TestStateTransitions(t *testing.T) {
	p, _ := newTestPlayer(t, 1024)

	var states []State
	p.SetHooks(Hooks{StateChanged: func(s State) { states = append(states, s) }})

	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.State() != Stopped {
		t.Fatalf("state after load = %v, want stopped", p.State())
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if p.State() != Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}
	// Second play is a no-op and must not re-emit.
	if err := p.Play(); err != nil {
		t.Fatalf("Play again: %v", err)
	}

	p.Pause()
	if p.State() != Paused {
		t.Fatalf("state = %v, want paused", p.State())
	}
	// Pause from paused is a no-op.
	p.Pause()

	if err := p.Play(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	p.Stop()
	if p.State() != Stopped {
		t.Fatalf("state = %v, want stopped", p.State())
	}
	if p.Position() != 0 {
		t.Fatalf("position after stop = %v, want 0", p.Position())
	}

	want := []State{Playing, Paused, Playing, Stopped}
	if len(states) != len(want) {
		t.Fatalf("emitted states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("emitted states = %v, want %v", states, want)
		}
	}
}

func TestPlayUnknownDevice(t *testing.T) {
	loader := &fakeLoader{clips: map[string]*source.Clip{
		"/music/a.wav": testClip(1024, 0.5),
	}}
	opener := &audio.MockOpener{DeviceIDs: []string{"default"}}
	p := New(opener, "does-not-exist", loader, log.New(io.Discard))
	defer p.Close()

	var hookErr error
	p.SetHooks(Hooks{Error: func(err error) { hookErr = err }})

	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Play(); !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Play error = %v, want ErrDevice", err)
	}
	if p.State() != Stopped {
		t.Fatalf("state = %v, want stopped", p.State())
	}
	if !errors.Is(hookErr, audio.ErrDevice) {
		t.Fatalf("error hook got %v, want ErrDevice", hookErr)
	}
}

func TestReadSilenceWhenStopped(t *testing.T) {
	p, _ := newTestPlayer(t, 1024)
	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	buf := make([]byte, 256)
	buf[0] = 0xFF
	n, err := p.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read = (%d, %v), want (%d, nil)", n, err, len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want silence", i, b)
		}
	}
}

func TestReadAppliesVolume(t *testing.T) {
	p, _ := newTestPlayer(t, 4096)
	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p.SetVolume(0.5)
	p.SetRate(1.0, dsp.ModeTape)
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	buf := make([]byte, 64)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}

	// Source sample 0.5 at volume 0.5 is 0.25, or 8191 as int16.
	got := int16(buf[0]) | int16(buf[1])<<8
	want := int16(8191)
	if got < want-1 || got > want+1 {
		t.Fatalf("sample = %d, want about %d", got, want)
	}
}

func TestEndOfStreamSignalledOnce(t *testing.T) {
	p, _ := newTestPlayer(t, 512)
	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ended := make(chan struct{}, 4)
	p.SetHooks(Hooks{TrackEnded: func() { ended <- struct{}{} }})

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// Drain well past the end of the 512 frame clip.
	buf := make([]byte, 1024*4)
	for i := 0; i < 8; i++ {
		if _, err := p.Read(buf); err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("end of stream never signalled")
	}
	select {
	case <-ended:
		t.Fatal("end of stream signalled more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFadeRampsVolume(t *testing.T) {
	frames := source.SampleRate
	p, _ := newTestPlayer(t, frames)
	if err := p.Load(track.New("/music/a.wav")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p.SetVolume(1.0)
	p.SetRate(1.0, dsp.ModeTape)
	p.StartFade(0.0, 100*time.Millisecond)
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	fadeFrames := source.SampleRate / 10
	buf := make([]byte, (fadeFrames+256)*2*source.Channels)
	if _, err := p.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}

	// First frame is near full volume, last frames are silent.
	first := int16(buf[0]) | int16(buf[1])<<8
	if first < 16000 {
		t.Fatalf("first sample = %d, want near 16383", first)
	}
	tail := len(buf) - 4
	last := int16(buf[tail]) | int16(buf[tail+1])<<8
	if last != 0 {
		t.Fatalf("last sample = %d, want 0 after fade out", last)
	}
	if got := p.Volume(); got != 0 {
		t.Fatalf("volume after fade = %v, want 0", got)
	}
}

func TestZeroDurationFadeAppliesImmediately(t *testing.T) {
	p, _ := newTestPlayer(t, 1024)
	p.SetVolume(1.0)
	p.StartFade(0.3, 0)
	if got := p.Volume(); got != 0.3 {
		t.Fatalf("volume = %v, want 0.3", got)
	}
}
