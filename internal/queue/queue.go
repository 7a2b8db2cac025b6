// Package queue holds the ordered track list, the current index, the shuffle
// permutation and the repeat mode. It is plain single-threaded state; the
// session provides the locking.
package queue

import (
	"errors"
	"math/rand"
	"time"

	"github.com/dgnsrekt/atk/internal/track"
)

// ErrIndex is returned by every index-based operation on out-of-range input.
// Indices are never clamped.
var ErrIndex = errors.New("queue index out of range")

// RepeatMode controls what happens when traversal reaches a queue boundary.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatQueue
	RepeatTrack
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatQueue:
		return "queue"
	case RepeatTrack:
		return "track"
	default:
		return "unknown"
	}
}

// ParseRepeat maps a wire string to a repeat mode.
func ParseRepeat(s string) (RepeatMode, bool) {
	switch s {
	case "none":
		return RepeatNone, true
	case "queue":
		return RepeatQueue, true
	case "track":
		return RepeatTrack, true
	}
	return RepeatNone, false
}

// Queue is the track list plus traversal state. The current index is -1 when
// the queue is empty. When shuffle is on, order is a permutation of the
// natural indices and traversal walks it instead.
type Queue struct {
	tracks  []*track.Track
	current int
	shuffle bool
	order   []int
	repeat  RepeatMode
	rng     *rand.Rand
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		current: -1,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// Current returns the current natural index, -1 when the queue is empty.
func (q *Queue) Current() int { return q.current }

// CurrentTrack returns the track at the current index, nil when none.
func (q *Queue) CurrentTrack() *track.Track {
	if q.current < 0 || q.current >= len(q.tracks) {
		return nil
	}
	return q.tracks[q.current]
}

// Tracks returns a snapshot of the queue in natural order.
func (q *Queue) Tracks() []*track.Track {
	return append([]*track.Track(nil), q.tracks...)
}

// Shuffle reports whether shuffle mode is on.
func (q *Queue) Shuffle() bool { return q.shuffle }

// Repeat returns the repeat mode.
func (q *Queue) Repeat() RepeatMode { return q.repeat }

// SetRepeat sets the repeat mode.
func (q *Queue) SetRepeat(m RepeatMode) { q.repeat = m }

// Append adds a track at the end. The first track appended to an empty queue
// becomes current. With shuffle on, the new index lands at a random rank
// after the current entry so it still comes up in this traversal pass.
func (q *Queue) Append(t *track.Track) int {
	q.tracks = append(q.tracks, t)
	idx := len(q.tracks) - 1

	if q.shuffle {
		lo := 0
		for rank, v := range q.order {
			if v == q.current {
				lo = rank + 1
				break
			}
		}
		at := lo + q.rng.Intn(len(q.order)-lo+1)
		q.order = append(q.order, 0)
		copy(q.order[at+1:], q.order[at:])
		q.order[at] = idx
	}
	if q.current < 0 {
		q.current = 0
	}
	return idx
}

// Remove deletes the track at index i. It reports the removed track and
// whether it was the current entry; in that case the index re-anchors to the
// entry now occupying the same position, or the last entry when the tail was
// removed, or -1 when the queue is empty.
func (q *Queue) Remove(i int) (*track.Track, bool, error) {
	if i < 0 || i >= len(q.tracks) {
		return nil, false, ErrIndex
	}

	removed := q.tracks[i]
	wasCurrent := i == q.current
	q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)

	switch {
	case len(q.tracks) == 0:
		q.current = -1
	case i < q.current:
		q.current--
	case wasCurrent && q.current >= len(q.tracks):
		q.current = len(q.tracks) - 1
	}

	if q.shuffle {
		next := q.order[:0]
		for _, idx := range q.order {
			if idx == i {
				continue
			}
			if idx > i {
				idx--
			}
			next = append(next, idx)
		}
		q.order = next
	}
	return removed, wasCurrent, nil
}

// Move repositions the track at from to index to, carrying the current index
// with the shifted entries.
func (q *Queue) Move(from, to int) error {
	if from < 0 || from >= len(q.tracks) || to < 0 || to >= len(q.tracks) {
		return ErrIndex
	}
	if from == to {
		return nil
	}

	t := q.tracks[from]
	q.tracks = append(q.tracks[:from], q.tracks[from+1:]...)
	q.tracks = append(q.tracks[:to], append([]*track.Track{t}, q.tracks[to:]...)...)

	remap := func(idx int) int {
		switch {
		case idx == from:
			return to
		case from < idx && idx <= to:
			return idx - 1
		case to <= idx && idx < from:
			return idx + 1
		default:
			return idx
		}
	}
	q.current = remap(q.current)
	for i, idx := range q.order {
		q.order[i] = remap(idx)
	}
	return nil
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.tracks = nil
	q.order = nil
	q.current = -1
}

// Jump sets the current index directly.
func (q *Queue) Jump(i int) error {
	if i < 0 || i >= len(q.tracks) {
		return ErrIndex
	}
	q.current = i
	return nil
}

// Next advances to the following entry in the live order. At the boundary it
// applies the repeat mode: none stops (ok=false, current untouched), queue
// wraps to the first live-order entry, track stays on the current entry. The
// returned index is the new current natural index when ok.
func (q *Queue) Next() (int, bool) {
	return q.step(1)
}

// Prev steps to the preceding entry in the live order, with the same boundary
// policy as Next.
func (q *Queue) Prev() (int, bool) {
	return q.step(-1)
}

func (q *Queue) step(dir int) (int, bool) {
	if len(q.tracks) == 0 || q.current < 0 {
		return -1, false
	}

	live := q.liveOrder()
	rank := q.rankOf(q.current)
	next := rank + dir

	if next >= 0 && next < len(live) {
		q.current = live[next]
		return q.current, true
	}

	switch q.repeat {
	case RepeatQueue:
		if dir > 0 {
			q.current = live[0]
		} else {
			q.current = live[len(live)-1]
		}
		return q.current, true
	case RepeatTrack:
		return q.current, true
	default:
		return -1, false
	}
}

// SetShuffle toggles shuffle mode. Turning it on generates a fresh
// permutation; the current entry keeps its identity, landing wherever the
// permutation puts it, so playback is not disturbed.
func (q *Queue) SetShuffle(on bool) {
	q.shuffle = on
	if !on {
		q.order = nil
		return
	}
	q.order = q.rng.Perm(len(q.tracks))
}

// liveOrder is the traversal order currently in effect.
func (q *Queue) liveOrder() []int {
	if q.shuffle && len(q.order) == len(q.tracks) {
		return q.order
	}
	order := make([]int, len(q.tracks))
	for i := range order {
		order[i] = i
	}
	return order
}

// rankOf returns the position of natural index idx in the live order.
func (q *Queue) rankOf(idx int) int {
	if idx < 0 {
		return -1
	}
	for rank, v := range q.liveOrder() {
		if v == idx {
			return rank
		}
	}
	return -1
}
