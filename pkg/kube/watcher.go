package kube

import (
	"fmt"
	"sync"
	"time"

	"github.com/aluminyoom/kubesee/pkg/metrics"
	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
)

var startUpTime = time.Now()

type eventHandler func(event *EnhancedEvent)

// Watcher is the lifecycle surface the engine supervisor depends on.
type Watcher interface {
	Start()
	Stop()
}

// eventWatcher is the ResourceEventHandler driving a single namespace-scoped
// (or cluster-wide) informer over core/v1 Events. It turns informer
// callbacks into EnhancedEvent values and hands them to fn; everything else
// (routing, dispatch, retries) lives downstream in pkg/exporter and
// pkg/registry.
type eventWatcher struct {
	informer            cache.SharedInformer
	objectMetadataCache objectMetadataProvider
	stopper             chan struct{}
	fn                  eventHandler
	metricsStore        *metrics.Store
	dynamicClient       *dynamic.DynamicClient
	clientset           *kubernetes.Clientset
	wg                  sync.WaitGroup
	maxEventAgeSeconds  time.Duration
	omitLookup          bool
}

func NewEventWatcher(config *rest.Config, required *eventWatcherRequired, opts ...EventWatcherOption) (*eventWatcher, error) {
	var o eventWatcherConfig
	o.eventWatcherRequired = *required

	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("applying option failed: %w", err)
		}
	}

	clientset := kubernetes.NewForConfigOrDie(config)
	factory := informers.NewSharedInformerFactoryWithOptions(clientset, 0, informers.WithNamespace(o.namespace))
	informer := factory.Core().V1().Events().Informer()

	watcher := &eventWatcher{
		informer:            informer,
		stopper:             make(chan struct{}),
		objectMetadataCache: newObjectMetadataProviderWithTTL(o.cacheSize, o.mappingCacheSize, o.cacheTTL),
		omitLookup:          o.omitLookup,
		fn:                  o.onEvent,
		maxEventAgeSeconds:  time.Second * time.Duration(o.maxEventAgeSeconds),
		metricsStore:        o.metricsStore,
		dynamicClient:       dynamic.NewForConfigOrDie(config),
		clientset:           clientset,
	}

	// Register the watcher itself as the ResourceEventHandler: only OnAdd
	// turns into an emitted event, see OnUpdate/OnDelete below.
	_, err := informer.AddEventHandler(watcher)
	if err != nil {
		return nil, fmt.Errorf("failed to add event handler: %w", err)
	}

	if err := informer.SetWatchErrorHandler(func(r *cache.Reflector, err error) {
		watcher.metricsStore.WatchErrors.Inc()
	}); err != nil {
		return nil, fmt.Errorf("failed to set watch error handler: %w", err)
	}

	return watcher, nil
}

//nolint:errcheck
func (e *eventWatcher) OnAdd(obj any, isInInitialList bool) {
	// ignore type assertion failure
	event := obj.(*corev1.Event)
	e.onEvent(event)
}

// OnUpdate is called when an existing Event is modified, which is how the
// API server reports a *recurring* event: it bumps .count/.lastTimestamp on
// the same object instead of creating a new one. Propagating it here would
// re-emit the same event on every repeat, so updates are ignored exactly
// like deletes: only the initial OnAdd is ever routed downstream.
func (e *eventWatcher) OnUpdate(oldObj, newObj any) {
	// Ignore updates
}

// Ignore events older than the maxEventAgeSeconds
func (e *eventWatcher) isEventDiscarded(event *corev1.Event) bool {
	// Use the most recent timestamp: series, then LastTimestamp, then EventTime
	var timestamp time.Time
	if event.Series != nil && !event.Series.LastObservedTime.Time.IsZero() {
		timestamp = event.Series.LastObservedTime.Time
	} else if !event.LastTimestamp.Time.IsZero() {
		timestamp = event.LastTimestamp.Time
	} else {
		timestamp = event.EventTime.Time
	}
	eventAge := time.Since(timestamp)
	if eventAge > e.maxEventAgeSeconds {
		// Log discarded events if they were created after the watcher started
		// (to suppress warnings from initial synchronization)
		if timestamp.After(startUpTime) {
			log.Warn().
				Str("eventAge", eventAge.String()).
				Str("namespace", event.Namespace).
				Str("name", event.Name).
				Msg("event discarded: older than maxEventAgeSeconds")
			e.metricsStore.EventsDiscarded.Inc()
		}
		return true
	}
	return false
}

func (e *eventWatcher) onEvent(event *corev1.Event) {
	if e.isEventDiscarded(event) {
		return
	}

	log.Debug().
		Str("message", event.Message).
		Str("namespace", event.Namespace).
		Str("reason", event.Reason).
		Str("involvedObject", event.InvolvedObject.Name).
		Msg("received event")

	e.metricsStore.EventsProcessed.Inc()

	ev := &EnhancedEvent{
		Event: *event.DeepCopy(),
	}
	ev.Event.ManagedFields = nil

	if e.omitLookup {
		ev.InvolvedObject.ObjectReference = *event.InvolvedObject.DeepCopy()
	} else {
		meta, err := e.objectMetadataCache.getObjectMetadata(&event.InvolvedObject, e.clientset, e.dynamicClient, e.metricsStore)
		if err != nil {
			if errors.IsNotFound(err) {
				ev.InvolvedObject.Deleted = true
				log.Error().Err(err).Msg("involved object not found, likely deleted")
			} else {
				log.Error().Err(err).Msg("failed to fetch involved object metadata")
			}
			ev.InvolvedObject.ObjectReference = *event.InvolvedObject.DeepCopy()
		} else {
			ev.InvolvedObject.Labels = meta.Labels
			ev.InvolvedObject.Annotations = meta.Annotations
			ev.InvolvedObject.OwnerReferences = meta.OwnerReferences
			ev.InvolvedObject.ObjectReference = *event.InvolvedObject.DeepCopy()
			ev.InvolvedObject.Deleted = meta.Deleted
		}
	}

	e.fn(ev)
}

func (e *eventWatcher) OnDelete(obj any) {
	// Ignore deletes
}

func (e *eventWatcher) Start() {
	e.wg.Go(func() {
		e.informer.Run(e.stopper)
	})
}

func (e *eventWatcher) Stop() {
	close(e.stopper)
	e.wg.Wait()
}

func (e *eventWatcher) setStartUpTime(t time.Time) {
	startUpTime = t
}
