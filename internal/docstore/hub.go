package docstore

import "sync"

// Hub fans committed-change notifications out to watchers. A notification
// carries no payload: each watcher holds a single-slot signal channel, so a
// burst of changes collapses into one pending signal and the watcher re-reads
// the latest committed state when it gets to it.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}
}

type subscription struct {
	topic  string
	signal chan struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*subscription]struct{})}
}

func (h *Hub) subscribe(topic string) *subscription {
	sub := &subscription{topic: topic, signal: make(chan struct{}, 1)}
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()
}

// Publish signals every watcher of the given topics without blocking.
func (h *Hub) Publish(topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, topic := range topics {
		for sub := range h.topics[topic] {
			select {
			case sub.signal <- struct{}{}:
			default:
				// A signal is already pending.
			}
		}
	}
}

// SubscriberCount returns the number of active watchers across all topics.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}
