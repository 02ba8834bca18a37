// Package registry is the bounded-mailbox dispatcher sitting between the
// route evaluator and the configured sinks. Each receiver gets its own
// FIFO queue and dispatch loop so a slow sink never blocks the watcher or
// any other receiver.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/aluminyoom/kubesee/pkg/sinks"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxQueueSize is the per-receiver FIFO depth when a receiver
	// does not specify one.
	DefaultMaxQueueSize = 1000
	// DefaultMaxConcurrency is the per-receiver worker width; at 1 the
	// FIFO ordering guarantee is exact.
	DefaultMaxConcurrency = 1
)

// Registry owns one receiverState per registered name. It implements
// exporter.ReceiverRegistry: Register/SendEvent/Close.
type Registry struct {
	mu        sync.Mutex
	receivers map[string]*receiverState
	order     []string
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{receivers: make(map[string]*receiverState)}
}

// Register adds a receiver with the default queue size and concurrency.
// Re-registering an existing name replaces it (the old sink is not closed;
// callers that need that should use RegisterWithOptions directly and
// manage lifetime themselves).
func (r *Registry) Register(name string, s sinks.Sink) {
	r.RegisterWithOptions(name, s, DefaultMaxQueueSize, DefaultMaxConcurrency)
}

// RegisterWithOptions adds a receiver with an explicit queue depth and
// worker concurrency.
func (r *Registry) RegisterWithOptions(name string, s sinks.Sink, maxQueueSize, maxConcurrency int) {
	rs := newReceiverState(name, s, maxQueueSize, maxConcurrency)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.receivers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.receivers[name] = rs
}

func (r *Registry) get(name string) (*receiverState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.receivers[name]
	return rs, ok
}

// SendEvent is the fire-and-forget entry point routed to by Route.ProcessEvent.
// An unknown receiver or a full queue is logged and dropped; it never blocks.
func (r *Registry) SendEvent(name string, event *kube.EnhancedEvent) {
	r.Send(name, event)
}

// Send is SendEvent with a result: true if the event was enqueued, false if
// it was dropped (unknown receiver or queue full).
func (r *Registry) Send(name string, event *kube.EnhancedEvent) bool {
	rs, ok := r.get(name)
	if !ok {
		log.Warn().Str("receiver", name).Msg("dropping event: unknown receiver")
		return false
	}
	if !rs.enqueue(event) {
		log.Warn().Str("receiver", name).Msg("dropping event: queue full")
		return false
	}
	return true
}

// Drain blocks until the named receiver's queue (and any in-flight sends)
// empties, or timeout elapses.
func (r *Registry) Drain(name string, timeout time.Duration) error {
	rs, ok := r.get(name)
	if !ok {
		return fmt.Errorf("registry: drain: unknown receiver %q", name)
	}
	return rs.drain(timeout)
}

// DrainAll drains every receiver in registration order, stopping at the
// first one that fails to drain within timeout.
func (r *Registry) DrainAll(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	for _, name := range order {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := r.Drain(name, remaining); err != nil {
			return err
		}
	}
	return nil
}

// CloseReceiver tears down one receiver: stops its dispatch loop, closes
// its sink, and forgets it. Any events still queued are discarded.
func (r *Registry) CloseReceiver(name string) {
	r.mu.Lock()
	rs, ok := r.receivers[name]
	if ok {
		delete(r.receivers, name)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if ok {
		rs.close()
	}
}

// Close tears down every registered receiver, in any deterministic order.
// It satisfies exporter.ReceiverRegistry.
func (r *Registry) Close() {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	for _, name := range order {
		r.CloseReceiver(name)
	}
}

// receiverState holds one receiver's sink, bounded queue, and dispatch loop.
type receiverState struct {
	name           string
	sink           sinks.Sink
	maxQueueSize   int
	queue          chan *kube.EnhancedEvent
	sem            chan struct{}
	done           chan struct{}
	closeOnce      sync.Once
	loopExited     chan struct{}

	mu      sync.Mutex
	pending int
	empty   chan struct{}
	closed  bool
}

func newReceiverState(name string, s sinks.Sink, maxQueueSize, maxConcurrency int) *receiverState {
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	rs := &receiverState{
		name:         name,
		sink:         s,
		maxQueueSize: maxQueueSize,
		queue:        make(chan *kube.EnhancedEvent, maxQueueSize),
		sem:          make(chan struct{}, maxConcurrency),
		done:         make(chan struct{}),
		loopExited:   make(chan struct{}),
		empty:        make(chan struct{}),
	}
	close(rs.empty) // pending starts at zero

	go rs.dispatchLoop()
	return rs
}

// enqueue adds an event to the queue, never blocking: it reports false
// ("drop") if the queue is at capacity or the receiver is closed.
func (rs *receiverState) enqueue(ev *kube.EnhancedEvent) bool {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return false
	}
	// pending counts every event not yet finished by the sink, including the
	// ones a worker is sending, so the bound holds regardless of how far the
	// dispatch loop has read ahead.
	if rs.pending >= rs.maxQueueSize {
		rs.mu.Unlock()
		return false
	}
	if rs.pending == 0 {
		rs.empty = make(chan struct{})
	}
	rs.pending++
	rs.mu.Unlock()

	select {
	case rs.queue <- ev:
		return true
	default:
		// Lost the race against a concurrent close/full; undo the
		// pending bump and report the drop.
		rs.mu.Lock()
		rs.pending--
		if rs.pending == 0 {
			close(rs.empty)
		}
		rs.mu.Unlock()
		return false
	}
}

func (rs *receiverState) dispatchLoop() {
	defer close(rs.loopExited)
	for {
		select {
		case <-rs.done:
			return
		case ev, ok := <-rs.queue:
			if !ok {
				return
			}
			rs.dispatch(ev)
		}
	}
}

// dispatch runs one sink.Send, bounded by the receiver's concurrency
// semaphore, and pops the event from the pending count on completion
// regardless of outcome (no retry at this layer).
func (rs *receiverState) dispatch(ev *kube.EnhancedEvent) {
	rs.sem <- struct{}{}
	go func() {
		defer func() { <-rs.sem }()

		if err := rs.sink.Send(context.Background(), ev); err != nil {
			log.Error().Err(err).Str("receiver", rs.name).Msg("sink send failed")
		}

		rs.mu.Lock()
		rs.pending--
		if rs.pending == 0 {
			close(rs.empty)
		}
		rs.mu.Unlock()
	}()
}

func (rs *receiverState) drain(timeout time.Duration) error {
	rs.mu.Lock()
	empty := rs.empty
	pending := rs.pending
	rs.mu.Unlock()

	if pending == 0 {
		return nil
	}

	select {
	case <-empty:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("registry: drain %q: timed out after %s", rs.name, timeout)
	}
}

func (rs *receiverState) close() {
	rs.mu.Lock()
	rs.closed = true
	rs.mu.Unlock()

	rs.closeOnce.Do(func() { close(rs.done) })
	<-rs.loopExited
	rs.sink.Close()
}
