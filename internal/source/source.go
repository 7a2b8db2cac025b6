// Package source decodes audio files into memory. A whole track is
// materialized as interleaved float32 samples before playback starts, which
// makes seeking a direct index into the buffer and gives the rate processor
// random access to surrounding frames.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// All clips are normalized to this format at load time so the output device
// can be opened once with a fixed configuration.
const (
	SampleRate = 44100
	Channels   = 2
)

// ErrDecode is wrapped by every failure to turn a file into samples: missing,
// unreadable, unsupported or corrupt input.
var ErrDecode = errors.New("decode error")

// streamBatch is the number of frames pulled from a decoder per iteration.
const streamBatch = 4096

// Clip is one fully decoded track.
type Clip struct {
	Samples    []float32 // interleaved
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the clip length at its native rate.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Load decodes the entire file at path into a Clip, resampling to the fixed
// output format when the container uses a different rate.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: file not found: %s", ErrDecode, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	// Decoders take ownership of the reader; it is closed via the streamer.

	streamer, format, err := decode(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != SampleRate {
		src = beep.Resample(4, format.SampleRate, SampleRate, streamer)
	}

	samples, err := drain(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s: no audio frames", ErrDecode, filepath.Base(path))
	}

	return &Clip{
		Samples:    samples,
		SampleRate: SampleRate,
		Channels:   Channels,
	}, nil
}

// decode picks a beep decoder by file extension.
func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg":
		return vorbis.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported format %q", filepath.Ext(path))
	}
}

// drain pulls every frame out of the streamer as interleaved stereo float32.
func drain(src beep.Streamer) ([]float32, error) {
	var out []float32
	buf := make([][2]float64, streamBatch)

	for {
		n, ok := src.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, float32(buf[i][0]), float32(buf[i][1]))
		}
		if !ok {
			break
		}
	}

	if err := src.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
