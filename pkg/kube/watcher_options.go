package kube

import (
	"fmt"
	"time"

	"github.com/aluminyoom/kubesee/pkg/metrics"
)

// EventWatcherOption mutates an eventWatcherConfig being built up by
// NewEventWatcher; each returns an error instead of panicking so bad input
// (a nil handler, a negative size) surfaces at construction time.
type EventWatcherOption func(*eventWatcherConfig) error

// eventWatcherOptions is the knob set NewEventWatcher will accept beyond
// what's already required by eventWatcherRequired. Left as its own type so
// new optional knobs land here without touching the required set's shape.
type eventWatcherOptions struct{}

// eventWatcherConfig is the union NewEventWatcherRequired and the With*
// options both write into while assembling a watcher.
type eventWatcherConfig struct {
	eventWatcherOptions
	eventWatcherRequired
}

// eventWatcherRequired holds the watcher settings that have no sane
// zero-value default and so must come from the caller.
type eventWatcherRequired struct {
	metricsStore       *metrics.Store
	onEvent            func(*EnhancedEvent)
	namespace          string
	maxEventAgeSeconds int64
	cacheSize          int
	mappingCacheSize   int
	cacheTTL           time.Duration
	omitLookup         bool
}

// WithMetricsStore points the watcher at the counters it increments on
// every processed/discarded event and watch error.
func WithMetricsStore(store *metrics.Store) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		if store == nil {
			return fmt.Errorf("WithMetricsStore: store cannot be nil")
		}
		o.metricsStore = store
		return nil
	}
}

// WithOnEventHandler sets the callback invoked once per accepted (ADDED,
// not-too-old) event.
func WithOnEventHandler(handler func(*EnhancedEvent)) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		if handler == nil {
			return fmt.Errorf("WithOnEventHandler: handler cannot be nil")
		}
		o.onEvent = handler
		return nil
	}
}

// WithNamespace scopes the underlying informer to a single namespace; the
// empty string (the default) watches every namespace the client can see.
func WithNamespace(namespace string) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		o.namespace = namespace
		return nil
	}
}

// positiveInt64 rejects zero and negative durations/ages/sizes shared by
// several of the With* options below, so each one only has to name itself
// in the error.
func positiveInt64(who string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%s: value must be positive", who)
	}
	return nil
}

// WithMaxEventAgeSeconds drops events whose timestamp is more than this
// many seconds before the moment the event is received.
func WithMaxEventAgeSeconds(age int64) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		if err := positiveInt64("WithMaxEventAgeSeconds", age); err != nil {
			return err
		}
		o.maxEventAgeSeconds = age
		return nil
	}
}

// WithCacheSize bounds the involved-object metadata cache's entry count.
func WithCacheSize(size int) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		if err := positiveInt64("WithCacheSize", int64(size)); err != nil {
			return err
		}
		o.cacheSize = size
		return nil
	}
}

// WithMappingCacheSize bounds the cache of resolved REST mappings used to
// look up involved objects via the dynamic client.
func WithMappingCacheSize(size int) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		if err := positiveInt64("WithMappingCacheSize", int64(size)); err != nil {
			return err
		}
		o.mappingCacheSize = size
		return nil
	}
}

// WithCacheTTL sets how long a cached involved-object metadata entry is
// trusted before it's re-fetched.
func WithCacheTTL(ttl time.Duration) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("WithCacheTTL: ttl must be positive")
		}
		o.cacheTTL = ttl
		return nil
	}
}

// WithOmitLookup, when true, skips the involved-object metadata lookup
// entirely and emits events with only what the Event object itself carries.
func WithOmitLookup(omit bool) EventWatcherOption {
	return func(o *eventWatcherConfig) error {
		o.omitLookup = omit
		return nil
	}
}

// NewEventWatcherRequired applies opts and returns the resulting required
// config, or the first validation error encountered.
func NewEventWatcherRequired(opts ...EventWatcherOption) (*eventWatcherRequired, error) {
	var o eventWatcherConfig
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	return &o.eventWatcherRequired, nil
}
