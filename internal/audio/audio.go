// Package audio abstracts the output device behind a small interface so the
// playback engine can be driven by real hardware (oto) in production and by
// a deterministic mock in tests. The device pulls PCM from an io.Reader; the
// reader side is where the engine does its processing.
package audio

import (
	"errors"
	"io"
)

// ErrDevice is wrapped by every failure to open or drive an output device.
var ErrDevice = errors.New("audio device error")

// DefaultDevice is the identifier accepted by every context implementation.
const DefaultDevice = "default"

// Context owns one opened output device and creates players on it.
type Context interface {
	// NewPlayer creates a player that pulls 16-bit little-endian PCM from r.
	NewPlayer(r io.Reader) (Player, error)

	// SampleRate returns the device sample rate.
	SampleRate() int

	// ChannelCount returns the device channel count.
	ChannelCount() int

	// Close releases the device.
	Close() error
}

// Player is one pull-driven stream on an open device.
type Player interface {
	// Play starts or resumes pulling from the reader.
	Play()

	// Pause stops pulling; buffered audio drains and position is retained
	// on the reader side.
	Pause()

	// IsPlaying reports whether the device is actively pulling.
	IsPlaying() bool

	// Close stops the stream and releases it.
	Close() error
}

// Opener resolves an opaque device identifier to an open Context. Device
// enumeration is a capability of the opener, not of the playback engine.
type Opener interface {
	// Open opens the identified device at the given format.
	Open(deviceID string, sampleRate, channels int) (Context, error)

	// Devices lists the identifiers Open accepts.
	Devices() []string
}
