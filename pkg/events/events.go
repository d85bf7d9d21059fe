package events

import "sync"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventSessionUpdated EventType = "session_updated"
	EventReload         EventType = "reload"
	EventGalleryLoaded  EventType = "gallery_loaded"
	EventImageResolved  EventType = "image_resolved"
	EventMintStarted    EventType = "mint_started"
	EventMintFinished   EventType = "mint_finished"
	EventNotice         EventType = "notice"
)

// Event represents an application event.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notice is the payload of EventNotice: a user-facing message.
type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Hub fans events out to subscribers.
type Hub struct {
	subscribers []Subscriber
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (h *Hub) Subscribe() Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(Subscriber, 100)
	h.subscribers = append(h.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(ch Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subscribers {
		if sub == ch {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Publish delivers event to every subscriber. A subscriber whose buffer is
// full misses the event.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}
