package memory

import (
	"context"
	"sync"

	"github.com/flowdhq/flowd/pkg/ports"
)

// InMemoryEventBus implements EventBus using in-process handlers
type InMemoryEventBus struct {
	subscribers map[string]map[int64]ports.EventHandler
	nextID      int64
	mu          sync.RWMutex
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[int64]ports.EventHandler),
	}
}

// Publish delivers an event to all subscribers of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(e.subscribers[topic]))
	for _, h := range e.subscribers[topic] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	// Handlers run outside the lock so a slow subscriber never blocks
	// publishers or other subscriptions.
	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			_ = h(ctx, event)
		}(handler)
	}

	return nil
}

// Subscribe registers a handler for a topic until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[int64]ports.EventHandler)
	}
	id := e.nextID
	e.nextID++
	e.subscribers[topic][id] = handler
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(topic, id)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, topic)
	return nil
}

// Close closes the event bus and drops all subscriptions
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = make(map[string]map[int64]ports.EventHandler)
	return nil
}

// remove drops a single subscription by id
func (e *InMemoryEventBus) remove(topic string, id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if handlers, ok := e.subscribers[topic]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(e.subscribers, topic)
		}
	}
}
