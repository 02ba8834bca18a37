package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/exporter-toolkit/web"
	"github.com/aluminyoom/kubesee/pkg/version"
)

// Store holds every counter/gauge kubesee exposes on /metrics. One Store is
// created per process from config.metricsNamePrefix; tests create throwaway
// stores with unique prefixes so they can run in parallel without colliding
// in prometheus's default registry.
type Store struct {
	EventsProcessed            prometheus.Counter
	EventsDiscarded            prometheus.Counter
	WatchErrors                prometheus.Counter
	SendErrors                 prometheus.Counter
	BuildInfo                  prometheus.GaugeFunc
	KubeApiReadCacheHits       prometheus.Counter
	KubeApiMappingCacheHits    prometheus.Counter
	KubeApiReadRequests        prometheus.Counter
	KubeApiMappingReadRequests prometheus.Counter
}

// parseLogLevel parses a textual log level and returns a slog.Level.
// On parse error or empty input it returns slog.LevelInfo as a safe fallback.
func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo
	}
	if err := (&lvl).UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Init wires up the prometheus default registry behind a /metrics endpoint,
// plus a landing page and /-/healthy and /-/ready probes, and starts serving
// in the background. addr and tlsConf follow exporter-toolkit/web's own
// flag conventions (tlsConf may be empty for plaintext).
func Init(addr string, tlsConf string, logLevel string) {
	prometheus.MustRegister(collectors.NewBuildInfoCollector())

	lvl := parseLogLevel(logLevel)
	handleOptions := slog.HandlerOptions{Level: lvl}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &handleOptions))

	metricsPath := "/metrics"

	// Expose the registered metrics via HTTP.
	http.Handle(metricsPath, promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	))

	landingConfig := web.LandingConfig{
		Name:        "kubesee",
		Description: "Watch Kubernetes events and route them to configured sinks",
		Links: []web.LandingLinks{
			{
				Address: metricsPath,
				Text:    "Metrics",
			},
		},
	}
	landingPage, err := web.NewLandingPage(landingConfig)
	if err != nil {
		slog.Error("Failed to create landing page", "error", err)
	}
	http.Handle("/", landingPage)

	http.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})
	http.HandleFunc("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	metricsServer := http.Server{
		ReadHeaderTimeout: 5 * time.Second}

	metricsFlags := web.FlagConfig{
		WebListenAddresses: &[]string{addr},
		WebSystemdSocket:   new(bool),
		WebConfigFile:      &tlsConf,
	}

	// start up the http listener to expose the metrics
	go func() {
		if err := web.ListenAndServe(&metricsServer, &metricsFlags, logger); err != nil {
			slog.Error("Failed to start metrics server", "error", err)
		}
	}()
}

// counterSpec names one counter in the Store alongside the metric-name
// suffix and help text it's registered with, so NewMetricsStore can build
// the repetitive ones from a table instead of eight near-identical
// promauto.NewCounter calls.
type counterSpec struct {
	dst  *prometheus.Counter
	name string
	help string
}

// NewMetricsStore registers a fresh set of counters/gauges under
// namePrefix and returns the Store wrapping them. Each call registers into
// prometheus's default registry, so two stores sharing a prefix will
// collide; callers that create throwaway stores (tests) must give each one
// a unique prefix and call DestroyMetricsStore when done.
func NewMetricsStore(namePrefix string) *Store {
	s := &Store{
		BuildInfo: promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: namePrefix + "build_info",
				Help: "A metric with a constant '1' value labeled by version, revision, goversion, goos, and goarch from which kubesee was built.",
				ConstLabels: prometheus.Labels{
					"version":   version.Version,
					"revision":  version.Revision(),
					"goversion": version.GoVersion,
					"goos":      version.GoOS,
					"goarch":    version.GoArch,
				},
			},
			func() float64 { return 1 },
		),
	}

	for _, c := range []counterSpec{
		{&s.EventsProcessed, "events_sent", "The total number of events processed"},
		{&s.EventsDiscarded, "events_discarded", "The total number of events discarded because of being older than the maxEventAgeSeconds specified"},
		{&s.WatchErrors, "watch_errors", "The total number of errors received from the informer"},
		{&s.SendErrors, "send_event_errors", "The total number of send event errors"},
		{&s.KubeApiReadCacheHits, "kube_api_read_cache_hits", "The total number of read requests served from cache when looking up object metadata"},
		{&s.KubeApiReadRequests, "kube_api_read_cache_misses", "The total number of read requests served from kube-apiserver when looking up object metadata"},
		{&s.KubeApiMappingCacheHits, "kube_api_mapping_cache_hits", "The total number of read requests served from cache when looking up object metadata mapping"},
		{&s.KubeApiMappingReadRequests, "kube_api_mapping_cache_misses", "The total number of read requests served from kube-apiserver when looking up object metadata mapping"},
	} {
		*c.dst = promauto.NewCounter(prometheus.CounterOpts{Name: namePrefix + c.name, Help: c.help})
	}

	return s
}

// DestroyMetricsStore unregisters every metric in store from the default
// registry. Used by tests between runs; production stores live for the
// process lifetime and are never destroyed.
func DestroyMetricsStore(store *Store) {
	for _, c := range []prometheus.Collector{
		store.EventsProcessed,
		store.EventsDiscarded,
		store.WatchErrors,
		store.SendErrors,
		store.BuildInfo,
		store.KubeApiReadCacheHits,
		store.KubeApiReadRequests,
		store.KubeApiMappingCacheHits,
		store.KubeApiMappingReadRequests,
	} {
		prometheus.Unregister(c)
	}
}
