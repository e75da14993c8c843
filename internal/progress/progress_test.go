package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub()
	topic := DocumentTopic("doc-1")
	subA := hub.Subscribe(topic)
	subB := hub.Subscribe(topic)
	defer subA.Close()
	defer subB.Close()

	hub.Progress(topic, ProgressPayload{Stage: 3, Message: "retrieving"})

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, EventProgress, ev.Kind)
			assert.Equal(t, topic, ev.Topic)
		case <-time.After(time.Second):
			t.Fatal("expected event not received")
		}
	}
}

func TestPublishToTopicWithNoSubscribersIsANoop(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.Completed(DocumentTopic("unknown"), map[string]any{"ok": true})
	})
}

func TestSlowSubscriberIsEvictedNotBlocked(t *testing.T) {
	hub := NewHub()
	topic := TaskTopic("t-1")
	hub.Subscribe(topic) // never drained; should be evicted once its buffer fills

	for i := 0; i < subscriberBufferSize+5; i++ {
		done := make(chan struct{})
		go func() {
			hub.Ping(topic)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber buffer")
		}
	}

	hub.mu.RLock()
	remaining := len(hub.subs[topic])
	hub.mu.RUnlock()
	assert.Equal(t, 0, remaining, "a subscriber that never drains its buffer should be evicted")
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := NewHub()
	topic := DocumentTopic("doc-2")
	sub := hub.Subscribe(topic)
	sub.Close()

	hub.mu.RLock()
	_, exists := hub.subs[topic]
	hub.mu.RUnlock()
	assert.False(t, exists)

	require.NotPanics(t, func() {
		hub.Progress(topic, ProgressPayload{})
	})
}
