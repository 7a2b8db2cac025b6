package session

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Event kinds pushed to subscribers.
const (
	EventTrackChanged   = "track_changed"
	EventPlaybackState  = "playback_state_changed"
	EventQueueChanged   = "queue_changed"
	EventVolumeChanged  = "volume_changed"
	EventPositionUpdate = "position_update"
	EventQueueFinished  = "queue_finished"
	EventError          = "error"
)

// Event is one notification. Data carries the payload in wire-ready form.
type Event struct {
	Kind string
	Data map[string]interface{}
}

// Emitter fans events out to subscribers. Delivery is fire-and-forget: a
// subscriber whose buffer is full loses the event rather than slowing the
// sender, since the sender may be the audio path.
type Emitter struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	log  *log.Logger
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter(logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Emitter{subs: make(map[int]chan Event), log: logger}
}

// Subscribe registers a subscriber with the given channel buffer and returns
// its event channel plus a cancel function. Cancel closes the channel.
func (e *Emitter) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if sub, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(sub)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (e *Emitter) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Emit delivers the event to every subscriber without blocking.
func (e *Emitter) Emit(kind string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	ev := Event{Kind: kind, Data: data}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.log.Warn("event dropped for slow subscriber", "kind", kind, "subscriber", id)
		}
	}
}

// Close drops every subscriber, closing their channels.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
