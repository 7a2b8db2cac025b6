package ui

import (
	"testing"

	"github.com/dgnsrekt/atk/internal/protocol"
)

func TestStatusFromData(t *testing.T) {
	st := statusFromData(map[string]interface{}{
		"state":          "playing",
		"position":       12.5,
		"duration":       180.0,
		"volume":         0.8,
		"rate":           1.5,
		"mode":           "tape",
		"shuffle":        true,
		"repeat":         "queue",
		"queue_position": 2.0,
		"queue_length":   5.0,
		"track": map[string]interface{}{
			"uri": "/music/song.mp3",
		},
	})

	if st.State != "playing" || st.Position != 12.5 || st.Duration != 180.0 {
		t.Fatalf("bad playback fields: %+v", st)
	}
	if st.Title != "song.mp3" {
		t.Fatalf("title should fall back to the file name, got %q", st.Title)
	}
	if !st.Shuffle || st.Repeat != "queue" || st.QueuePos != 2 || st.QueueLen != 5 {
		t.Fatalf("bad queue fields: %+v", st)
	}
}

func TestRowsFromData(t *testing.T) {
	rows, current := rowsFromData(map[string]interface{}{
		"current_index": 1.0,
		"tracks": []interface{}{
			map[string]interface{}{"uri": "/a.mp3", "duration": 60.0},
			map[string]interface{}{"uri": "/b.mp3", "title": "Named"},
		},
	})

	if len(rows) != 2 || current != 1 {
		t.Fatalf("rows=%d current=%d", len(rows), current)
	}
	if rows[0].Label != "a.mp3" || rows[0].Duration != 60.0 {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	if rows[1].Label != "Named" {
		t.Fatalf("row 1 should use the title, got %+v", rows[1])
	}
}

func TestNextRepeatCycles(t *testing.T) {
	order := []string{"none", "queue", "track", "none"}
	for i := 0; i < len(order)-1; i++ {
		if got := nextRepeat(order[i]); got != order[i+1] {
			t.Errorf("nextRepeat(%q) = %q, want %q", order[i], got, order[i+1])
		}
	}
}

func TestHandleEventPositionUpdate(t *testing.T) {
	m := &model{events: make(chan protocol.Event, 1)}
	m.status.Duration = 100

	_, _ = m.handleEvent(protocol.Event{
		Event: "position_update",
		Data:  map[string]interface{}{"position": 42.0, "duration": 100.0},
	})

	if m.status.Position != 42.0 {
		t.Fatalf("position = %v, want 42", m.status.Position)
	}
}

func TestHandleEventError(t *testing.T) {
	m := &model{events: make(chan protocol.Event, 1)}

	_, _ = m.handleEvent(protocol.Event{
		Event: "error",
		Data:  map[string]interface{}{"message": "decode failed"},
	})

	if m.err == nil || m.err.Error() != "decode failed" {
		t.Fatalf("err = %v", m.err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"longer than that", 10, "longer th" + ellipsis},
		{"anything", 0, "anything"},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.width); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
		}
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		secs float64
		want string
	}{
		{0, "0:00"},
		{59.9, "0:59"},
		{61, "1:01"},
		{3601, "60:01"},
		{-5, "0:00"},
	}
	for _, tc := range tests {
		if got := clock(tc.secs); got != tc.want {
			t.Errorf("clock(%v) = %q, want %q", tc.secs, got, tc.want)
		}
	}
}
