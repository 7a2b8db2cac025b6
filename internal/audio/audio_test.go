package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestMockOpenerKnownDevices(t *testing.T) {
	opener := &MockOpener{DeviceIDs: []string{"default", "usb-dac"}}

	tests := []struct {
		name     string
		deviceID string
		wantErr  bool
	}{
		{"default", "default", false},
		{"empty resolves to default", "", false},
		{"secondary device", "usb-dac", false},
		{"unknown device", "hdmi", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := opener.Open(tt.deviceID, 44100, 2)
			if tt.wantErr {
				if !errors.Is(err, ErrDevice) {
					t.Fatalf("Open(%q) error = %v, want ErrDevice", tt.deviceID, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q) error = %v", tt.deviceID, err)
			}
			if ctx.SampleRate() != 44100 || ctx.ChannelCount() != 2 {
				t.Fatalf("context format = %d/%d, want 44100/2", ctx.SampleRate(), ctx.ChannelCount())
			}
		})
	}
}

func TestMockOpenerFailOpen(t *testing.T) {
	opener := &MockOpener{FailOpen: true}
	if _, err := opener.Open("default", 44100, 2); !errors.Is(err, ErrDevice) {
		t.Fatalf("Open error = %v, want ErrDevice", err)
	}
}

func TestMockPlayerPull(t *testing.T) {
	opener := &MockOpener{}
	ctx, err := opener.Open(DefaultDevice, 44100, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := bytes.Repeat([]byte{0x01, 0x02}, 512)
	player, err := ctx.NewPlayer(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewPlayer: %v", err)
	}

	mock := player.(*MockPlayer)
	if got := mock.Pull(256); got != 256 {
		t.Fatalf("Pull(256) = %d, want 256", got)
	}
	if got := mock.BytesWritten(); got != 256 {
		t.Fatalf("BytesWritten = %d, want 256", got)
	}

	// Draining past the end returns what remains.
	if got := mock.Pull(4096); got != len(data)-256 {
		t.Fatalf("Pull past end = %d, want %d", got, len(data)-256)
	}
}

func TestMockPlayerPlayPause(t *testing.T) {
	opener := &MockOpener{}
	ctx, _ := opener.Open(DefaultDevice, 44100, 2)
	player, _ := ctx.NewPlayer(bytes.NewReader(make([]byte, 1<<20)))

	if player.IsPlaying() {
		t.Fatal("new player reports playing")
	}
	player.Play()
	if !player.IsPlaying() {
		t.Fatal("player not playing after Play")
	}
	player.Pause()
	if player.IsPlaying() {
		t.Fatal("player still playing after Pause")
	}
	if err := player.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMockContextClose(t *testing.T) {
	opener := &MockOpener{}
	ctx, _ := opener.Open(DefaultDevice, 44100, 2)
	player, _ := ctx.NewPlayer(bytes.NewReader(nil))
	player.Play()

	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if player.IsPlaying() {
		t.Fatal("player still playing after context close")
	}
	if _, err := ctx.NewPlayer(bytes.NewReader(nil)); !errors.Is(err, ErrDevice) {
		t.Fatalf("NewPlayer on closed context error = %v, want ErrDevice", err)
	}
}
