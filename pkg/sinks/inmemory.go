package sinks

import (
	"context"
	"sync"

	"github.com/aluminyoom/kubesee/pkg/kube"
)

// InMemoryConfig configures the in-memory sink. Ref, if set, is populated
// with the constructed *InMemory instance so test code can hold a handle
// before any event has been sent.
type InMemoryConfig struct {
	Ref *InMemory
}

// InMemory stores events in insertion order; it exists for tests that need
// to assert on exactly what reached a receiver.
type InMemory struct {
	mu     sync.Mutex
	events []*kube.EnhancedEvent
}

// NewInMemory constructs an in-memory sink, wiring it back into
// cfg.Ref if the caller supplied one.
func NewInMemory(cfg *InMemoryConfig) (Sink, error) {
	m := &InMemory{}
	if cfg != nil {
		cfg.Ref = m
	}
	return m, nil
}

func (i *InMemory) Send(ctx context.Context, ev *kube.EnhancedEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, ev)
	return nil
}

// Events returns a snapshot of the events received so far, in order.
func (i *InMemory) Events() []*kube.EnhancedEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*kube.EnhancedEvent, len(i.events))
	copy(out, i.events)
	return out
}

func (i *InMemory) Close() {
	// No-op
}
