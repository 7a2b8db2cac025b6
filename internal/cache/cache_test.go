package cache

import (
	"fmt"
	"testing"

	"github.com/dgnsrekt/atk/internal/source"
)

// countingDecoder hands out fixed-size clips and counts decode calls per path.
type countingDecoder struct {
	frames int
	calls  map[string]int
}

func (d *countingDecoder) load(path string) (*source.Clip, error) {
	d.calls[path]++
	return &source.Clip{
		Samples:    make([]float32, d.frames*source.Channels),
		SampleRate: source.SampleRate,
		Channels:   source.Channels,
	}, nil
}

func newTestCache(capacity int64, frames int) (*ClipCache, *countingDecoder) {
	dec := &countingDecoder{frames: frames, calls: make(map[string]int)}
	c := New(capacity)
	c.decode = dec.load
	return c, dec
}

func TestLoadCachesSecondHit(t *testing.T) {
	c, dec := newTestCache(1<<20, 100)

	if _, err := c.Load("/music/a.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := c.Load("/music/a.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if dec.calls["/music/a.wav"] != 1 {
		t.Fatalf("decode calls = %d, want 1", dec.calls["/music/a.wav"])
	}
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("stats hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
}

func TestLRUEviction(t *testing.T) {
	// 100 frames of stereo float32 is 800 bytes; room for two clips.
	c, dec := newTestCache(1600, 100)

	c.Load("/a")
	c.Load("/b")
	c.Load("/a") // refresh recency
	c.Load("/c") // evicts /b

	if !c.Contains("/a") {
		t.Fatal("/a evicted despite recent use")
	}
	if c.Contains("/b") {
		t.Fatal("/b should have been evicted")
	}

	c.Load("/b")
	if dec.calls["/b"] != 2 {
		t.Fatalf("decode calls for /b = %d, want 2", dec.calls["/b"])
	}
	if got := c.Stats().Evictions; got < 1 {
		t.Fatalf("evictions = %d, want at least 1", got)
	}
}

func TestOversizeClipNotCached(t *testing.T) {
	c, _ := newTestCache(100, 1000)

	if _, err := c.Load("/huge"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Contains("/huge") {
		t.Fatal("oversize clip should not be cached")
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c, dec := newTestCache(1<<20, 10)

	for i := 0; i < 3; i++ {
		c.Load(fmt.Sprintf("/t%d", i))
	}
	c.Invalidate("/t0")
	if c.Contains("/t0") {
		t.Fatal("/t0 still cached after invalidate")
	}

	c.Clear()
	if s := c.Stats(); s.ItemCount != 0 || s.Size != 0 {
		t.Fatalf("after clear items = %d size = %d", s.ItemCount, s.Size)
	}

	c.Load("/t1")
	if dec.calls["/t1"] != 2 {
		t.Fatalf("decode calls for /t1 = %d, want 2 after clear", dec.calls["/t1"])
	}
}
