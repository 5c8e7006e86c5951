package rig

import (
	"sync"
	"time"
)

// EventType tags what happened on the control task.
type EventType string

const (
	// EventStateChanged fires when the state machine leaves one state
	// for another.
	EventStateChanged EventType = "state_changed"
	// EventCommandDone fires after every executed command, success or
	// failure.
	EventCommandDone EventType = "command_done"
	// EventStatusChanged fires when a poll or command changed the
	// hardware status without a state transition.
	EventStatusChanged EventType = "status_changed"
	// EventPollFailed fires when a background poll could not read the
	// rig.
	EventPollFailed EventType = "poll_failed"
)

// Event is one occurrence on the rig, published to all subscribers.
type Event struct {
	Type     EventType `json:"type"`
	Op       string    `json:"op,omitempty"`
	State    State     `json:"-"`
	StateStr string    `json:"state"`
	Snapshot Snapshot  `json:"snapshot"`
	Err      string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

func newEvent(t EventType, snap Snapshot) Event {
	return Event{
		Type:     t,
		State:    snap.State,
		StateStr: snap.State.String(),
		Snapshot: snap,
		Time:     time.Now(),
	}
}

// ListenerID identifies one event subscription.
type ListenerID uint64

// Emitter fans events out to subscriber channels. Each subscriber gets
// its own buffered channel; when a subscriber falls behind, the oldest
// queued event is dropped to make room for the newest, and the drop is
// counted. Publishing never blocks the control task.
type Emitter struct {
	mu      sync.Mutex
	nextID  ListenerID
	subs    map[ListenerID]chan Event
	buffer  int
	dropped uint64
}

// NewEmitter creates an emitter whose subscriber channels hold buffer
// events. A buffer below 1 is raised to 1.
func NewEmitter(buffer int) *Emitter {
	if buffer < 1 {
		buffer = 1
	}
	return &Emitter{
		subs:   make(map[ListenerID]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new listener and returns its id and channel.
// The channel is closed by Unsubscribe or Close.
func (e *Emitter) Subscribe() (ListenerID, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	ch := make(chan Event, e.buffer)
	e.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel. Unknown ids
// are ignored.
func (e *Emitter) Unsubscribe(id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
}

// Emit delivers ev to every subscriber, evicting each slow subscriber's
// oldest queued event if its buffer is full.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		for {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
					e.dropped++
				default:
				}
				continue
			}
			break
		}
	}
}

// Dropped returns how many events have been evicted from slow
// subscribers since the emitter was created.
func (e *Emitter) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close unsubscribes every listener.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
