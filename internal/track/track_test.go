package track

import "testing"

func TestGuessMetadata(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantTitle  string
		wantArtist string
	}{
		{"artist and title", "/music/Miles Davis - So What.mp3", "So What", "Miles Davis"},
		{"title only", "/music/interlude.flac", "interlude", ""},
		{"extra dashes kept in title", "/m/A - B - C.ogg", "B - C", "A"},
		{"no extension", "/m/raw", "raw", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.uri)
			if tr.Title != tt.wantTitle {
				t.Errorf("Expected title %q, got %q", tt.wantTitle, tr.Title)
			}
			if tr.Artist != tt.wantArtist {
				t.Errorf("Expected artist %q, got %q", tt.wantArtist, tr.Artist)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"/a/b.mp3", true},
		{"/a/b.MP3", true},
		{"/a/b.wav", true},
		{"/a/b.flac", true},
		{"/a/b.ogg", true},
		{"/a/b.m4a", false},
		{"/a/b.txt", false},
		{"/a/b", false},
	}

	for _, tt := range tests {
		if got := Supported(tt.uri); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestInfoReportsSeconds(t *testing.T) {
	tr := New("/music/a.mp3")
	tr.Duration = 90e9 // 90s in nanoseconds

	info := tr.Info()
	if info.Duration != 90 {
		t.Errorf("Expected 90s, got %v", info.Duration)
	}
	if info.URI != "/music/a.mp3" {
		t.Errorf("Unexpected URI %q", info.URI)
	}
}
