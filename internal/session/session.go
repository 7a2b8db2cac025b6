// Package session glues the queue to the playback engine. It owns the single
// point of serialization: every control-path mutation takes the session lock,
// so the audio producer never observes torn state. Events flow out through an
// Emitter that never blocks the caller.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/player"
	"github.com/dgnsrekt/atk/internal/queue"
	"github.com/dgnsrekt/atk/internal/track"
)

// ErrUnsupportedFormat rejects URIs whose extension no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Session owns the queue and the player. The mutex serializes every public
// operation; methods suffixed Locked expect it held already.
type Session struct {
	mu sync.Mutex

	queue  *queue.Queue
	player *player.Player
	events *Emitter
	log    *log.Logger
}

// New wires a session around the given player. The session installs its own
// hooks on the player; do not set others afterwards.
func New(p *player.Player, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		queue:  queue.New(),
		player: p,
		events: NewEmitter(logger),
		log:    logger,
	}
	p.SetHooks(player.Hooks{
		StateChanged: func(st player.State) {
			s.events.Emit(EventPlaybackState, map[string]interface{}{"state": st.String()})
		},
		TrackChanged: func(t *track.Track) {
			info := t.Info()
			s.events.Emit(EventTrackChanged, map[string]interface{}{
				"track":          info,
				"queue_position": s.queue.Current(),
			})
		},
		VolumeChanged: func(v float64) {
			s.events.Emit(EventVolumeChanged, map[string]interface{}{"volume": v})
		},
		TrackEnded: s.handleTrackEnd,
		Error: func(err error) {
			s.events.Emit(EventError, map[string]interface{}{"message": err.Error()})
		},
	})
	return s
}

// Events returns the subscription point for session notifications.
func (s *Session) Events() *Emitter { return s.events }

// Close shuts down playback and the event fan-out.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.player.Close()
	s.events.Close()
	return err
}

// Add appends a URI to the queue and returns its index.
func (s *Session) Add(uri string) (int, error) {
	if !track.Supported(uri) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, uri)
	}

	s.mu.Lock()
	idx := s.queue.Append(track.New(uri))
	s.emitQueueLocked()
	s.mu.Unlock()
	return idx, nil
}

// Play starts playback. With a URI it enqueues the file, jumps to it and
// plays it; with an empty URI it resumes from pause or starts the current
// queue entry. Returns once playback has been initiated.
func (s *Session) Play(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uri != "" {
		if !track.Supported(uri) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, uri)
		}
		idx := s.queue.Append(track.New(uri))
		s.queue.Jump(idx)
		s.emitQueueLocked()
		return s.playCurrentLocked()
	}

	switch s.player.State() {
	case player.Paused:
		return s.player.Play()
	case player.Stopped:
		if s.queue.Len() == 0 {
			return nil
		}
		return s.playCurrentLocked()
	}
	return nil
}

// Pause pauses playback.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.Pause()
}

// Stop stops playback and resets the cursor.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.Stop()
}

// Next advances in the live order and plays the selected entry. At the
// boundary the repeat mode decides; with repeat off the player stops and
// ok is false.
func (s *Session) Next() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(s.queue.Next)
}

// Prev steps back in the live order and plays the selected entry, with the
// same boundary policy as Next.
func (s *Session) Prev() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(s.queue.Prev)
}

func (s *Session) stepLocked(step func() (int, bool)) (int, bool) {
	idx, ok := step()
	if !ok {
		s.player.Stop()
		return -1, false
	}
	if err := s.playCurrentLocked(); err != nil {
		return idx, false
	}
	return idx, true
}

// Seek moves the playback cursor. Relative targets are resolved against the
// current position before clamping. Returns the position applied.
func (s *Session) Seek(pos time.Duration, relative bool) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := pos
	if relative {
		target = s.player.Position() + pos
	}
	return s.player.Seek(target)
}

// SetVolume clamps and applies the gain level, returning the value in effect.
func (s *Session) SetVolume(level float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player.SetVolume(level)
}

// SetRate clamps and applies the rate factor and mode.
func (s *Session) SetRate(factor float64, mode dsp.Mode) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player.SetRate(factor, mode)
}

// SetPitch clamps and applies the pitch shift in semitones.
func (s *Session) SetPitch(semitones float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player.SetPitch(semitones)
}

// Fade ramps the volume to target over the given duration.
func (s *Session) Fade(target float64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.StartFade(target, duration)
}

// Remove deletes the queue entry at index. Removing the current entry stops
// the player and re-anchors the index. Exactly one queue_changed event is
// emitted.
func (s *Session) Remove(index int) (track.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, wasCurrent, err := s.queue.Remove(index)
	if err != nil {
		return track.Info{}, err
	}
	if wasCurrent {
		s.player.Stop()
	}
	s.emitQueueLocked()
	return removed.Info(), nil
}

// Move repositions a queue entry.
func (s *Session) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Move(from, to); err != nil {
		return err
	}
	s.emitQueueLocked()
	return nil
}

// Clear stops playback and empties the queue.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.player.Stop()
	s.queue.Clear()
	s.emitQueueLocked()
}

// Jump selects the queue entry at index and plays it.
func (s *Session) Jump(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Jump(index); err != nil {
		return err
	}
	return s.playCurrentLocked()
}

// SetShuffle toggles shuffle mode. The current entry keeps playing.
func (s *Session) SetShuffle(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetShuffle(on)
	s.emitQueueLocked()
}

// SetRepeat sets the repeat mode.
func (s *Session) SetRepeat(mode queue.RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetRepeat(mode)
}

// Status is a consistent snapshot of the whole session.
type Status struct {
	State         string      `json:"state"`
	Track         *track.Info `json:"track,omitempty"`
	Position      float64     `json:"position"`
	Duration      float64     `json:"duration"`
	Volume        float64     `json:"volume"`
	Shuffle       bool        `json:"shuffle"`
	Repeat        string      `json:"repeat"`
	Rate          float64     `json:"rate"`
	Mode          string      `json:"mode"`
	Pitch         float64     `json:"pitch"`
	QueueLength   int         `json:"queue_length"`
	QueuePosition int         `json:"queue_position"`
}

// Status returns a snapshot of playback and queue state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:         s.player.State().String(),
		Position:      s.player.Position().Seconds(),
		Duration:      s.player.Duration().Seconds(),
		Volume:        s.player.Volume(),
		Shuffle:       s.queue.Shuffle(),
		Repeat:        s.queue.Repeat().String(),
		Rate:          s.player.Rate(),
		Mode:          s.player.Mode().String(),
		Pitch:         s.player.Pitch(),
		QueueLength:   s.queue.Len(),
		QueuePosition: s.queue.Current(),
	}
	if t := s.queue.CurrentTrack(); t != nil {
		info := t.Info()
		st.Track = &info
	}
	return st
}

// Queue returns the queued tracks in natural order plus the current index.
func (s *Session) Queue() ([]track.Info, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueInfoLocked()
}

// TrackAt returns metadata for the queue entry at index, or the current one
// when index is -1.
func (s *Session) TrackAt(index int) (track.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == -1 {
		index = s.queue.Current()
	}
	tracks := s.queue.Tracks()
	if index < 0 || index >= len(tracks) {
		return track.Info{}, queue.ErrIndex
	}
	return tracks[index].Info(), nil
}

// playCurrentLocked loads and starts the current queue entry. A track that
// fails to decode is reported and skipped; the walk gives up after one full
// pass so a queue of broken files cannot loop forever.
func (s *Session) playCurrentLocked() error {
	var lastErr error
	for attempts := 0; attempts < s.queue.Len(); attempts++ {
		t := s.queue.CurrentTrack()
		if t == nil {
			return lastErr
		}

		err := s.player.Load(t)
		if err == nil {
			return s.player.Play()
		}
		lastErr = err

		s.log.Warn("skipping unplayable track", "uri", t.URI, "err", err)
		s.events.Emit(EventError, map[string]interface{}{
			"message": err.Error(),
			"track":   t.URI,
		})
		if _, ok := s.queue.Next(); !ok {
			s.player.Stop()
			return lastErr
		}
	}
	s.player.Stop()
	return lastErr
}

// handleTrackEnd runs when the producer exhausts the current track. Repeat
// track replays the same entry; otherwise the queue advances, and at the end
// of the live order with repeat off playback stops and queue_finished fires.
func (s *Session) handleTrackEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Repeat() == queue.RepeatTrack {
		s.player.Seek(0)
		if err := s.player.Play(); err != nil {
			s.log.Error("repeat track restart", "err", err)
		}
		return
	}

	if _, ok := s.queue.Next(); !ok {
		s.player.Stop()
		s.events.Emit(EventQueueFinished, nil)
		return
	}
	if err := s.playCurrentLocked(); err != nil {
		s.events.Emit(EventQueueFinished, nil)
	}
}

func (s *Session) queueInfoLocked() ([]track.Info, int) {
	tracks := s.queue.Tracks()
	infos := make([]track.Info, len(tracks))
	for i, t := range tracks {
		infos[i] = t.Info()
	}
	return infos, s.queue.Current()
}

func (s *Session) emitQueueLocked() {
	infos, current := s.queueInfoLocked()
	s.events.Emit(EventQueueChanged, map[string]interface{}{
		"tracks":        infos,
		"current_index": current,
	})
}
