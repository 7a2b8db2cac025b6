package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgnsrekt/atk/internal/dsp"
	"github.com/dgnsrekt/atk/internal/queue"
	"github.com/dgnsrekt/atk/internal/track"
)

// persistedState is the on-disk shape of a session. Only queue contents and
// tuning survive a restart; playback always resumes stopped.
type persistedState struct {
	Queue        []string `json:"queue"`
	CurrentIndex int      `json:"current_index"`
	Position     float64  `json:"position"`
	Shuffle      bool     `json:"shuffle"`
	Repeat       string   `json:"repeat"`
	Volume       float64  `json:"volume"`
	Rate         float64  `json:"rate"`
	Mode         string   `json:"mode"`
	Pitch        float64  `json:"pitch"`
}

// Save writes the session state to path atomically.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	state := persistedState{
		CurrentIndex: s.queue.Current(),
		Position:     s.player.Position().Seconds(),
		Shuffle:      s.queue.Shuffle(),
		Repeat:       s.queue.Repeat().String(),
		Volume:       s.player.Volume(),
		Rate:         s.player.Rate(),
		Mode:         s.player.Mode().String(),
		Pitch:        s.player.Pitch(),
	}
	for _, t := range s.queue.Tracks() {
		state.Queue = append(state.Queue, t.URI)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Restore loads session state from path. The queue is rebuilt and tuning
// reapplied; playback stays stopped until the next play command. A missing
// file surfaces as fs.ErrNotExist.
func (s *Session) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.player.Stop()
	s.queue.Clear()
	for _, uri := range state.Queue {
		s.queue.Append(track.New(uri))
	}
	if state.CurrentIndex >= 0 && state.CurrentIndex < s.queue.Len() {
		s.queue.Jump(state.CurrentIndex)
	}
	if state.Shuffle {
		s.queue.SetShuffle(true)
	}
	if mode, ok := queue.ParseRepeat(state.Repeat); ok {
		s.queue.SetRepeat(mode)
	}

	s.player.SetVolume(state.Volume)
	if mode, ok := dsp.ParseMode(state.Mode); ok {
		s.player.SetRate(state.Rate, mode)
	}
	s.player.SetPitch(state.Pitch)

	s.emitQueueLocked()
	return nil
}
