// Package progress implements the Progress Emitter (spec §4.G): an
// in-process publish/subscribe hub keyed by topic ("document:<id>",
// "task:<id>"), best-effort delivery, and non-blocking sends so a slow or
// dead subscriber never stalls the orchestrator.
package progress

import (
	"sync"
)

const subscriberBufferSize = 32

// EventKind is the closed set of event kinds a topic can carry.
type EventKind string

const (
	EventProgress      EventKind = "progress"
	EventCompleted     EventKind = "completed"
	EventFailed        EventKind = "failed"
	EventNotification  EventKind = "notification"
	EventPing          EventKind = "ping"
)

// Event is one message published on a topic.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload any
}

// ProgressPayload is the payload shape for EventProgress.
type ProgressPayload struct {
	Stage   int
	Ordinal int
	Total   int
	Percent float64
	Message string
	Details map[string]any
}

// FailedPayload is the payload shape for EventFailed.
type FailedPayload struct {
	ErrorKind string
	Details   map[string]any
}

// subscriber is one registered channel plus the buffer that backs it.
type subscriber struct {
	id string
	ch chan Event
}

// Hub is the in-process broker: many topics, each with many subscribers,
// delivery best-effort. The zero value is not usable; use NewHub.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
	next int
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscriber)}
}

// Subscription is returned by Subscribe; call Close to unsubscribe.
type Subscription struct {
	hub   *Hub
	topic string
	id    string
	ch    <-chan Event
}

// Events returns the channel to receive this subscription's events on.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.topic, s.id)
}

// Subscribe registers a new listener on topic, returning a buffered-channel
// subscription. Slow consumers are evicted on the next failed send rather
// than blocking the publisher (§4.G "sending never blocks the orchestrator").
func (h *Hub) Subscribe(topic string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := topicSubID(h.next)
	ch := make(chan Event, subscriberBufferSize)
	h.subs[topic] = append(h.subs[topic], subscriber{id: id, ch: ch})
	return &Subscription{hub: h, topic: topic, id: id, ch: ch}
}

func (h *Hub) unsubscribe(topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[topic]
	for i, s := range list {
		if s.id == id {
			close(s.ch)
			h.subs[topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[topic]) == 0 {
		delete(h.subs, topic)
	}
}

// Publish delivers event to every subscriber of topic. A subscriber whose
// buffer is full is evicted (dropped) rather than blocking this call.
func (h *Hub) Publish(topic string, event Event) {
	event.Topic = topic

	h.mu.RLock()
	list := append([]subscriber(nil), h.subs[topic]...)
	h.mu.RUnlock()

	var dead []string
	for _, s := range list {
		select {
		case s.ch <- event:
		default:
			dead = append(dead, s.id)
		}
	}
	for _, id := range dead {
		h.unsubscribe(topic, id)
	}
}

// Progress publishes an EventProgress on topic.
func (h *Hub) Progress(topic string, payload ProgressPayload) {
	h.Publish(topic, Event{Kind: EventProgress, Payload: payload})
}

// Completed publishes an EventCompleted on topic.
func (h *Hub) Completed(topic string, summary any) {
	h.Publish(topic, Event{Kind: EventCompleted, Payload: summary})
}

// Failed publishes an EventFailed on topic.
func (h *Hub) Failed(topic string, payload FailedPayload) {
	h.Publish(topic, Event{Kind: EventFailed, Payload: payload})
}

// Notification publishes an EventNotification on topic.
func (h *Hub) Notification(topic string, payload any) {
	h.Publish(topic, Event{Kind: EventNotification, Payload: payload})
}

// Ping publishes an EventPing on topic, a keepalive heartbeat that stops
// intermediaries from closing an idle subscription connection during
// long-running stage work.
func (h *Hub) Ping(topic string) {
	h.Publish(topic, Event{Kind: EventPing})
}

// DocumentTopic builds the canonical topic name for a document id.
func DocumentTopic(id string) string { return "document:" + id }

// TaskTopic builds the canonical topic name for a task id.
func TaskTopic(id string) string { return "task:" + id }

func topicSubID(n int) string {
	const digits = "0123456789"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[i:])
}
