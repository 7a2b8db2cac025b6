package session

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/atk/internal/audio"
	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/player"
	"github.com/dgnsrekt/atk/internal/queue"
	"github.com/dgnsrekt/atk/internal/source"
)

// fakeLoader serves constant clips for any .mp3 path and fails the rest.
type fakeLoader struct {
	frames int
}

func (f *fakeLoader) Load(path string) (*source.Clip, error) {
	if filepath.Ext(path) != ".mp3" {
		return nil, source.ErrDecode
	}
	return &source.Clip{
		Samples:    make([]float32, f.frames*source.Channels),
		SampleRate: source.SampleRate,
		Channels:   source.Channels,
	}, nil
}

func newTestSession(t *testing.T) (*Session, *player.Player) {
	t.Helper()
	logger := log.New(io.Discard)
	p := player.New(&audio.MockOpener{ManualPull: true}, audio.DefaultDevice,
		&fakeLoader{frames: source.SampleRate}, logger)
	s := New(p, logger)
	t.Cleanup(func() { s.Close() })
	return s, p
}

// drain pulls events until the channel is empty, returning the kinds seen.
func drain(ch <-chan Event) []string {
	var kinds []string
	for {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func countKind(kinds []string, kind string) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestAddRejectsUnsupported(t *testing.T) {
	s, _ := newTestSession(t)

	if _, err := s.Add("/music/readme.txt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Add error = %v, want ErrUnsupportedFormat", err)
	}
	if idx, err := s.Add("/music/one.mp3"); err != nil || idx != 0 {
		t.Fatalf("Add = (%d, %v), want (0, nil)", idx, err)
	}
}

func TestPlayStartsCurrentEntry(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/music/one.mp3")

	if err := s.Play(""); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}

	s.Pause()
	if p.State() != player.Paused {
		t.Fatalf("state = %v, want paused", p.State())
	}

	// Play with no URI resumes.
	if err := s.Play(""); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing after resume", p.State())
	}
}

func TestPlayWithURIJumpsToIt(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/music/one.mp3")
	s.Add("/music/two.mp3")

	if err := s.Play("/music/three.mp3"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	st := s.Status()
	if st.QueuePosition != 2 || st.QueueLength != 3 {
		t.Fatalf("queue position/length = %d/%d, want 2/3", st.QueuePosition, st.QueueLength)
	}
	if p.Track().URI != "/music/three.mp3" {
		t.Fatalf("playing %s, want /music/three.mp3", p.Track().URI)
	}
}

func TestNextPrevPlayThroughQueue(t *testing.T) {
	s, p := newTestSession(t)
	for _, uri := range []string{"/a.mp3", "/b.mp3", "/c.mp3"} {
		s.Add(uri)
	}
	s.Play("")

	if idx, ok := s.Next(); !ok || idx != 1 {
		t.Fatalf("Next = (%d, %v), want (1, true)", idx, ok)
	}
	if p.Track().URI != "/b.mp3" {
		t.Fatalf("playing %s, want /b.mp3", p.Track().URI)
	}

	if idx, ok := s.Prev(); !ok || idx != 0 {
		t.Fatalf("Prev = (%d, %v), want (0, true)", idx, ok)
	}

	// Boundary with repeat none stops the player.
	if _, ok := s.Prev(); ok {
		t.Fatal("Prev at start should not advance")
	}
	if p.State() != player.Stopped {
		t.Fatalf("state = %v, want stopped at boundary", p.State())
	}
}

func TestSeekRelativeResolvesBeforeClamp(t *testing.T) {
	s, _ := newTestSession(t)
	s.Add("/music/one.mp3") // one second long
	s.Play("")

	if got := s.Seek(500*time.Millisecond, false); got != 500*time.Millisecond {
		t.Fatalf("absolute seek = %v", got)
	}
	if got := s.Seek(-2*time.Second, true); got != 0 {
		t.Fatalf("relative seek past start = %v, want 0", got)
	}
	if got := s.Seek(5*time.Second, true); got != time.Second {
		t.Fatalf("relative seek past end = %v, want 1s", got)
	}
}

func TestRemoveCurrentStopsAndReanchors(t *testing.T) {
	s, p := newTestSession(t)
	for _, uri := range []string{"/a.mp3", "/b.mp3", "/c.mp3"} {
		s.Add(uri)
	}
	s.Jump(1)
	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}

	events, cancel := s.Events().Subscribe(64)
	defer cancel()

	removed, err := s.Remove(1)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.URI != "/b.mp3" {
		t.Fatalf("removed %s, want /b.mp3", removed.URI)
	}
	if p.State() != player.Stopped {
		t.Fatalf("state = %v, want stopped after removing current", p.State())
	}

	st := s.Status()
	if st.QueuePosition != 1 || st.Track == nil || st.Track.URI != "/c.mp3" {
		t.Fatalf("re-anchored to %+v, want index 1 at /c.mp3", st)
	}

	kinds := drain(events)
	if n := countKind(kinds, EventQueueChanged); n != 1 {
		t.Fatalf("queue_changed emitted %d times, want exactly 1 (events: %v)", n, kinds)
	}
}

func TestRemoveOutOfRange(t *testing.T) {
	s, _ := newTestSession(t)
	s.Add("/a.mp3")
	if _, err := s.Remove(7); !errors.Is(err, queue.ErrIndex) {
		t.Fatalf("Remove error = %v, want ErrIndex", err)
	}
}

func TestShuffleToggleKeepsCurrentPlaying(t *testing.T) {
	s, p := newTestSession(t)
	for _, uri := range []string{"/a.mp3", "/b.mp3", "/c.mp3", "/d.mp3"} {
		s.Add(uri)
	}
	s.Jump(2)

	s.SetShuffle(true)
	if p.State() != player.Playing {
		t.Fatalf("state = %v, playback interrupted by shuffle", p.State())
	}
	st := s.Status()
	if st.QueuePosition != 2 || st.Track.URI != "/c.mp3" {
		t.Fatalf("current = %d (%s), want 2 (/c.mp3)", st.QueuePosition, st.Track.URI)
	}

	s.SetShuffle(false)
	if got := s.Status().QueuePosition; got != 2 {
		t.Fatalf("current = %d after shuffle off, want 2", got)
	}
}

func TestTrackEndAdvancesQueue(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/a.mp3")
	s.Add("/b.mp3")
	s.Play("")

	s.handleTrackEnd()

	if got := s.Status().QueuePosition; got != 1 {
		t.Fatalf("queue position = %d after track end, want 1", got)
	}
	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}
}

func TestTrackEndAtQueueEndStops(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/a.mp3")
	s.Play("")

	events, cancel := s.Events().Subscribe(64)
	defer cancel()

	s.handleTrackEnd()

	if p.State() != player.Stopped {
		t.Fatalf("state = %v, want stopped at queue end", p.State())
	}
	kinds := drain(events)
	if countKind(kinds, EventQueueFinished) != 1 {
		t.Fatalf("queue_finished missing from %v", kinds)
	}
}

func TestTrackEndRepeatTrackRestartsAtZero(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/a.mp3")
	s.SetRepeat(queue.RepeatTrack)
	s.Play("")
	s.Seek(900*time.Millisecond, false)

	s.handleTrackEnd()

	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}
	if pos := p.Position(); pos != 0 {
		t.Fatalf("position = %v after repeat restart, want 0", pos)
	}
	if got := s.Status().QueuePosition; got != 0 {
		t.Fatalf("queue position = %d, want 0", got)
	}
}

func TestTrackEndRepeatQueueWraps(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/a.mp3")
	s.Add("/b.mp3")
	s.SetRepeat(queue.RepeatQueue)
	s.Jump(1)

	s.handleTrackEnd()

	if got := s.Status().QueuePosition; got != 0 {
		t.Fatalf("queue position = %d after wrap, want 0", got)
	}
	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}
}

func TestBrokenTrackSkipped(t *testing.T) {
	s, p := newTestSession(t)
	s.Add("/good.mp3")
	// Supported extension, but the loader refuses .wav here.
	s.Add("/broken.wav")
	s.Add("/alsofine.mp3")
	s.Jump(1) // try to play the broken one

	if p.Track() == nil || p.Track().URI != "/alsofine.mp3" {
		t.Fatalf("expected skip to /alsofine.mp3, playing %+v", p.Track())
	}
	if p.State() != player.Playing {
		t.Fatalf("state = %v, want playing", p.State())
	}
}

func TestVolumeRatePitchClampReadBack(t *testing.T) {
	s, _ := newTestSession(t)

	if got := s.SetVolume(2.0); got != 1.0 {
		t.Fatalf("SetVolume(2.0) = %v, want 1.0", got)
	}
	if got := s.SetRate(0.1, dsp.ModeStretch); got != dsp.MinRate {
		t.Fatalf("SetRate(0.1) = %v, want %v", got, dsp.MinRate)
	}
	if got := s.SetPitch(40); got != dsp.MaxPitch {
		t.Fatalf("SetPitch(40) = %v, want %v", got, dsp.MaxPitch)
	}

	st := s.Status()
	if st.Volume != 1.0 || st.Rate != dsp.MinRate || st.Pitch != dsp.MaxPitch {
		t.Fatalf("status does not reflect clamped values: %+v", st)
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	s, _ := newTestSession(t)
	s.Add("/a.mp3")
	s.Add("/b.mp3")
	s.Jump(1)
	s.SetRepeat(queue.RepeatQueue)
	s.SetVolume(0.7)
	s.SetRate(1.5, dsp.ModeTape)
	s.SetPitch(-3)

	path := filepath.Join(t.TempDir(), "state", "session.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh, _ := newTestSession(t)
	if err := fresh.Restore(path); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	st := fresh.Status()
	if st.QueueLength != 2 || st.QueuePosition != 1 {
		t.Fatalf("restored queue = %d/%d, want 2 tracks at index 1", st.QueueLength, st.QueuePosition)
	}
	if st.Repeat != "queue" || st.Volume != 0.7 || st.Rate != 1.5 || st.Mode != "tape" || st.Pitch != -3 {
		t.Fatalf("restored tuning mismatch: %+v", st)
	}
	if st.State != "stopped" {
		t.Fatalf("restored state = %s, want stopped", st.State)
	}
}

func TestRestoreMissingFile(t *testing.T) {
	s, _ := newTestSession(t)
	err := s.Restore(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("Restore of missing file should error")
	}
}
