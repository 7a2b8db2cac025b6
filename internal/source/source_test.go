package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeWAV writes a 16-bit PCM WAV file with a mono sine wave at the given
// rate so tests do not depend on fixture files.
func writeWAV(t *testing.T, path string, sampleRate int, frames int, freq float64) {
	t.Helper()

	var data bytes.Buffer
	for i := 0; i < frames; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		sample := int16(v * math.MaxInt16 * 0.8)
		binary.Write(&data, binary.LittleEndian, sample)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, SampleRate, SampleRate/2, 440) // half a second

	clip, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if clip.SampleRate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, clip.SampleRate)
	}
	if clip.Channels != Channels {
		t.Errorf("Expected %d channels, got %d", Channels, clip.Channels)
	}

	frames := clip.Frames()
	want := SampleRate / 2
	if frames < want-2 || frames > want+2 {
		t.Errorf("Expected about %d frames, got %d", want, frames)
	}

	half := clip.Duration().Seconds()
	if half < 0.49 || half > 0.51 {
		t.Errorf("Expected ~0.5s duration, got %.3fs", half)
	}
}

func TestLoadResamplesToOutputRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone22k.wav")
	writeWAV(t, path, 22050, 22050, 220) // one second at half rate

	clip, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// One second of input should still be about one second after resampling.
	secs := clip.Duration().Seconds()
	if secs < 0.98 || secs > 1.02 {
		t.Errorf("Expected ~1s after resample, got %.3fs", secs)
	}
	if clip.SampleRate != SampleRate {
		t.Errorf("Expected normalized rate %d, got %d", SampleRate, clip.SampleRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.wav"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for unsupported extension, got %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("RIFFgarbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for corrupt file, got %v", err)
	}
}
