package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/aluminyoom/kubesee/pkg/sinks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink appends every event it receives, optionally blocking on a
// gate channel so tests can control when Send returns.
type recordingSink struct {
	mu     sync.Mutex
	events []*kube.EnhancedEvent
	gate   chan struct{}
	closed atomic.Bool
}

func (s *recordingSink) Send(_ context.Context, ev *kube.EnhancedEvent) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close() {
	s.closed.Store(true)
}

func (s *recordingSink) recorded() []*kube.EnhancedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*kube.EnhancedEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestSendUnknownReceiverDropped(t *testing.T) {
	r := New()
	assert.False(t, r.Send("missing", &kube.EnhancedEvent{}))
}

func TestSendAndDrain(t *testing.T) {
	r := New()
	sink := &recordingSink{}
	r.Register("a", sink)

	ev := &kube.EnhancedEvent{}
	ev.Reason = "one"
	assert.True(t, r.Send("a", ev))

	require.NoError(t, r.Drain("a", time.Second))
	assert.Len(t, sink.recorded(), 1)
}

func TestFIFOOrderAtDefaultConcurrency(t *testing.T) {
	r := New()
	sink := &recordingSink{}
	r.Register("a", sink)

	for i := 0; i < 50; i++ {
		ev := &kube.EnhancedEvent{}
		ev.Count = int32(i)
		r.SendEvent("a", ev)
	}

	require.NoError(t, r.Drain("a", time.Second))
	got := sink.recorded()
	require.Len(t, got, 50)
	for i, ev := range got {
		assert.Equal(t, int32(i), ev.Count)
	}
}

func TestQueueOverflowDropped(t *testing.T) {
	r := New()
	sink := &recordingSink{gate: make(chan struct{})}
	r.RegisterWithOptions("a", sink, 2, 1)

	// First send occupies the single worker and blocks on the gate; the
	// second waits behind it. An event counts against the bound of 2 until
	// its send completes, so the two sends after that must be dropped.
	assert.True(t, r.Send("a", &kube.EnhancedEvent{}))
	assert.True(t, r.Send("a", &kube.EnhancedEvent{}))
	assert.False(t, r.Send("a", &kube.EnhancedEvent{}))
	assert.False(t, r.Send("a", &kube.EnhancedEvent{}))

	close(sink.gate)
	require.NoError(t, r.Drain("a", time.Second))
}

func TestDrainTimesOut(t *testing.T) {
	r := New()
	sink := &recordingSink{gate: make(chan struct{})}
	r.Register("a", sink)

	r.SendEvent("a", &kube.EnhancedEvent{})

	err := r.Drain("a", 20*time.Millisecond)
	assert.Error(t, err)

	close(sink.gate)
}

func TestDrainUnknownReceiver(t *testing.T) {
	r := New()
	assert.Error(t, r.Drain("missing", time.Second))
}

func TestCloseDiscardsQueuedEvents(t *testing.T) {
	r := New()
	sink := &recordingSink{gate: make(chan struct{})}
	r.RegisterWithOptions("a", sink, 10, 1)

	r.SendEvent("a", &kube.EnhancedEvent{}) // occupies the worker, blocked on gate
	r.SendEvent("a", &kube.EnhancedEvent{}) // sits in the queue

	r.CloseReceiver("a")
	assert.True(t, sink.closed.Load())

	// The registry has forgotten the receiver; further sends are dropped.
	assert.False(t, r.Send("a", &kube.EnhancedEvent{}))

	close(sink.gate)
}

func TestDrainAllStopsAtFirstTimeout(t *testing.T) {
	r := New()
	fast := &recordingSink{}
	slow := &recordingSink{gate: make(chan struct{})}
	r.Register("fast", fast)
	r.Register("slow", slow)

	r.SendEvent("fast", &kube.EnhancedEvent{})
	r.SendEvent("slow", &kube.EnhancedEvent{})

	err := r.DrainAll(20 * time.Millisecond)
	assert.Error(t, err)

	close(slow.gate)
}

func TestCloseTearsDownEveryReceiver(t *testing.T) {
	r := New()
	a := &recordingSink{}
	b := &recordingSink{}
	r.Register("a", a)
	r.Register("b", b)

	r.Close()

	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
}

var _ sinks.Sink = (*recordingSink)(nil)
