package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"imgworker/internal/queue"
)

// Event is one message to observers.
type Event struct {
	Sequence  uint64       `json:"seq"`
	Timestamp time.Time    `json:"ts"`
	Command   string       `json:"command"`
	Target    string       `json:"target,omitempty"`
	Queue     []queue.View `json:"queue,omitempty"`
}

// Observer receives every published event as it happens.
type Observer interface {
	Notify(Event)
}

// Hub stores recent events and wakes waiters when new events arrive.
type Hub struct {
	mu        sync.Mutex
	cond      *sync.Cond
	capacity  int
	buffer    []Event
	nextSeq   uint64
	observers []Observer
	clients   map[string]time.Time
}

// NewHub constructs a bounded in-memory event buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &Hub{capacity: capacity, clients: make(map[string]time.Time)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// AddObserver wires a push observer that receives every event.
func (h *Hub) AddObserver(o Observer) {
	if h == nil || o == nil {
		return
	}
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

// Connect registers a polling observer and returns its id.
func (h *Hub) Connect() string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = time.Now().UTC()
	h.mu.Unlock()
	return id
}

// Disconnect forgets a polling observer.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Connected reports whether id is a registered observer.
func (h *Hub) Connected(id string) bool {
	if id == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[id]
	return ok
}

// Clients reports the number of connected polling observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish broadcasts evt to every observer.
func (h *Hub) Publish(evt Event) Event {
	evt.Target = ""
	return h.publish(evt)
}

// SendTo delivers evt to one polling observer. It reports false when the
// observer is not connected.
func (h *Hub) SendTo(target string, evt Event) bool {
	if !h.Connected(target) {
		return false
	}
	evt.Target = target
	h.publish(evt)
	return true
}

func (h *Hub) publish(evt Event) Event {
	if h == nil {
		return evt
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	observers := append([]Observer(nil), h.observers...)
	h.cond.Broadcast()
	h.mu.Unlock()

	for _, o := range observers {
		o.Notify(evt)
	}
	return evt
}

// Fetch returns events visible to observer with sequence greater than since.
// When wait is true, Fetch blocks until at least one is available or the
// context ends. The returned cursor skips events addressed to others.
func (h *Hub) Fetch(ctx context.Context, observer string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(observer, since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		since = next
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, since, err
		}
	}
}

func (h *Hub) snapshotLocked(observer string, since uint64, limit int) ([]Event, uint64) {
	var out []Event
	next := h.nextSeq
	for _, evt := range h.buffer {
		if evt.Sequence <= since {
			continue
		}
		if evt.Target != "" && evt.Target != observer {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].Sequence
			break
		}
		out = append(out, evt)
	}
	return out, next
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
