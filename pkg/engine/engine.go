// Package engine composes the watcher, registry, and route evaluator into
// the single running process: it owns startup and shutdown ordering.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aluminyoom/kubesee/pkg/exporter"
	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/aluminyoom/kubesee/pkg/metrics"
	"github.com/aluminyoom/kubesee/pkg/registry"
	"github.com/aluminyoom/kubesee/pkg/sinks"
	"github.com/rs/zerolog/log"
	"k8s.io/client-go/rest"
)

// DefaultDrainTimeout is how long Shutdown waits for in-flight sends to
// finish before giving up and closing sinks anyway.
const DefaultDrainTimeout = 30 * time.Second

// Engine binds a route, a registry of sinks, and a Kubernetes event
// watcher into one supervised unit.
type Engine struct {
	config       *exporter.Config
	registry     *registry.Registry
	watcher      kube.Watcher
	drainTimeout time.Duration
}

// New builds an Engine from a validated config and a Kubernetes REST
// config. It registers every configured receiver's sink but does not yet
// start the watcher; call Start for that. drainTimeout <= 0 means
// DefaultDrainTimeout.
func New(cfg *exporter.Config, restConfig *rest.Config, metricsStore *metrics.Store, drainTimeout time.Duration) (*Engine, error) {
	reg := registry.New()
	for i := range cfg.Receivers {
		rc := cfg.Receivers[i]
		sink, err := sinks.New(&rc)
		if err != nil {
			return nil, fmt.Errorf("engine: building sink for receiver %q: %w", rc.Name, err)
		}
		reg.RegisterWithOptions(rc.Name, sink, registry.DefaultMaxQueueSize, registry.DefaultMaxConcurrency)
	}

	clusterName := cfg.ClusterName
	route := cfg.Route

	onEvent := func(ev *kube.EnhancedEvent) {
		stamped := ev.WithClusterName(clusterName)
		route.ProcessEvent(stamped, reg)
	}

	required, err := kube.NewEventWatcherRequired(
		kube.WithMetricsStore(metricsStore),
		kube.WithOnEventHandler(onEvent),
		kube.WithNamespace(cfg.Namespace),
		kube.WithMaxEventAgeSeconds(cfg.MaxEventAgeSeconds),
		kube.WithCacheSize(cfg.CacheSize),
		kube.WithMappingCacheSize(cfg.MappingCacheSize),
		kube.WithCacheTTL(cfg.CacheTTLDuration()),
		kube.WithOmitLookup(cfg.OmitLookup),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: building watcher options: %w", err)
	}

	watcher, err := kube.NewEventWatcher(restConfig, required)
	if err != nil {
		return nil, fmt.Errorf("engine: building watcher: %w", err)
	}

	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}

	return &Engine{config: cfg, registry: reg, watcher: watcher, drainTimeout: drainTimeout}, nil
}

// Start brings up the registry's receivers (already running) and the
// watcher, in that order.
func (e *Engine) Start(_ context.Context) {
	log.Info().Msg("starting watcher")
	e.watcher.Start()
}

// Shutdown runs the four-step ordered teardown: stop the watcher so no new
// events arrive, best-effort drain every receiver's queue, close every
// sink, then return. A failed drain is logged but does not abort the
// remaining steps.
func (e *Engine) Shutdown(_ context.Context) {
	log.Info().Msg("stopping watcher")
	e.watcher.Stop()

	log.Info().Dur("timeout", e.drainTimeout).Msg("draining receivers")
	if err := e.registry.DrainAll(e.drainTimeout); err != nil {
		log.Warn().Err(err).Msg("drain did not complete before timeout, closing sinks anyway")
	}

	log.Info().Msg("closing receivers")
	e.registry.Close()
}
