// Package track models a queue entry: a file URI plus metadata that is cheap
// to guess up front and refined once the file has actually been decoded.
package track

import (
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

// Extensions the decode layer understands. Anything else is rejected before
// it ever reaches the queue.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// Track is one playable entry. Title and Artist are guessed from the filename
// at creation; Duration is zero until the file is decoded for the first time.
type Track struct {
	URI      string
	Title    string
	Artist   string
	Duration time.Duration
}

// New builds a track from a file path or URI, expanding a leading ~ and
// filling in filename-derived metadata.
func New(uri string) *Track {
	expanded, err := homedir.Expand(uri)
	if err != nil {
		expanded = uri
	}

	t := &Track{URI: expanded}
	t.Title, t.Artist = guessMetadata(expanded)
	return t
}

// Supported reports whether the URI has a decodable file extension.
func Supported(uri string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(uri))]
}

// guessMetadata derives title and artist from an "Artist - Title" style
// filename. Single-part names become the title with no artist.
func guessMetadata(uri string) (title, artist string) {
	name := strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri))
	parts := strings.SplitN(name, " - ", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[0])
	}
	return name, ""
}

// Info is the wire representation of a track.
type Info struct {
	URI      string  `json:"uri"`
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Info returns the serializable form of the track. Duration is reported in
// seconds, omitted while still unknown.
func (t *Track) Info() Info {
	return Info{
		URI:      t.URI,
		Title:    t.Title,
		Artist:   t.Artist,
		Duration: t.Duration.Seconds(),
	}
}
