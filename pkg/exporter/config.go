package exporter

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/aluminyoom/kubesee/pkg/sinks"
	"github.com/rs/zerolog/log"
	"k8s.io/client-go/rest"
)

const (
	DefaultCacheSize        = 1024
	DefaultMappingCacheSize = DefaultCacheSize / 4
	defaultCacheTTL         = 12 * time.Hour
	maxCacheTTL             = 30 * 24 * time.Hour
	// DefaultMetricsNamePrefix is applied when the config leaves
	// metricsNamePrefix unset.
	DefaultMetricsNamePrefix = "kubesee_"
)

// Config is the top-level shape of the YAML config file: the route tree,
// the receivers it dispatches to, and the watcher/cache/metrics tuning
// knobs that aren't part of either.
type Config struct {
	LogLevel          string `yaml:"logLevel"`
	LogFormat         string `yaml:"logFormat"`
	ClusterName       string `yaml:"clusterName,omitempty"`
	Namespace         string `yaml:"namespace"`
	MetricsNamePrefix string `yaml:"metricsNamePrefix,omitempty"`

	// CacheTTL bounds how long the involved-object metadata cache (labels,
	// annotations, owner references) keeps an entry before re-fetching it.
	CacheTTL       string                    `yaml:"cacheTTL,omitempty"`
	Route          Route                     `yaml:"route"`
	LeaderElection kube.LeaderElectionConfig `yaml:"leaderElection"`
	Receivers      []sinks.ReceiverConfig    `yaml:"receivers"`
	ThrottlePeriod int64                     `yaml:"throttlePeriod"`

	// MaxEventAgeSeconds drops events older than this, measured against the
	// event series' LastObservedTime if present, then LastTimestamp, then
	// EventTime.
	MaxEventAgeSeconds int64 `yaml:"maxEventAgeSeconds"`

	// KubeBurst is the number of requests the Kubernetes client can make in
	// a burst above KubeQPS.
	KubeBurst int `yaml:"kubeBurst,omitempty"`

	// CacheSize bounds the involved-object metadata cache's entry count.
	CacheSize int `yaml:"cacheSize,omitempty"`

	// MappingCacheSize is the size of the cache for storing REST mappings
	MappingCacheSize int `yaml:"mappingCacheSize,omitempty"`

	// cacheTTLDuration is the parsed duration of CacheTTL.
	// It must not exceed maxCacheTTL

	// It is not exposed in the YAML config, but set after parsing CacheTTL string
	cacheTTLDuration time.Duration `yaml:"-"`

	// KubeQPS is the maximum QPS to the Kubernetes API server
	KubeQPS float32 `yaml:"kubeQPS,omitempty"`

	// OmitLookup indicates whether to omit involved
	// object metadata (Labels, Annotations, OwnerReferences) lookups
	OmitLookup bool `yaml:"omitLookup,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
		log.Debug().Msg("setting config.cacheSize=1024 (default)")
	}

	if c.MappingCacheSize > 0 {
		log.Debug().Int("mappingCacheSize", c.MappingCacheSize).Msg("setting config.mappingCacheSize from config")
	} else {
		// Fallback to environment variable if set
		if v, ok := os.LookupEnv("MAPPING_CACHE_SIZE"); ok {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				c.MappingCacheSize = parsed
				log.Debug().Int("mappingCacheSizeOverride", parsed).Msg("using MAPPING_CACHE_SIZE from environment")
			} else {
				log.Warn().Str("MAPPING_CACHE_SIZE", v).Msg("invalid MAPPING_CACHE_SIZE value; expected positive integer")
			}
		} else {
			log.Debug().Msg("no mappingCacheSizeOverride set; using max of 1/4 cacheSize or 1024/4 (default)")
			c.MappingCacheSize = max(DefaultMappingCacheSize, c.CacheSize/4)
		}

	}

	if c.KubeBurst == 0 {
		c.KubeBurst = rest.DefaultBurst
		log.Debug().Msg(fmt.Sprintf("setting config.kubeBurst=%d (default)", rest.DefaultBurst))
	}

	if c.KubeQPS == 0 {
		c.KubeQPS = rest.DefaultQPS
		log.Debug().Msg(fmt.Sprintf("setting config.kubeQPS=%.2f (default)", rest.DefaultQPS))
	}

	if c.CacheTTL == "" {
		c.CacheTTL = defaultCacheTTL.String()
		log.Debug().Str("cacheTTL", c.CacheTTL).Msg("setting config.cacheTTL to default (12h)")
	}

	if c.MetricsNamePrefix == "" {
		c.MetricsNamePrefix = DefaultMetricsNamePrefix
		log.Debug().Str("metricsNamePrefix", c.MetricsNamePrefix).Msg("setting config.metricsNamePrefix to default")
	}
}

// Validate checks and finalizes the fields SetDefaults doesn't already
// handle (the ones with validation logic attached, not just a zero-value
// fallback), then precompiles every rule's regex patterns so routing
// evaluation never has to compile on the hot path.
func (c *Config) Validate() error {
	if err := c.validateMaxEventAgeSeconds(); err != nil {
		return err
	}
	if err := c.validateCacheTTL(); err != nil {
		return err
	}
	if err := c.validateMetricsNamePrefix(); err != nil {
		return err
	}

	return c.PreCompilePatterns()
}

// validateMaxEventAgeSeconds reconciles the deprecated ThrottlePeriod field
// with MaxEventAgeSeconds: at most one of them may be set, the deprecated
// one wins with a warning if it's the one present, and a fresh config gets
// the 5-second default.
func (c *Config) validateMaxEventAgeSeconds() error {
	// If both are set, that's an error.
	if c.ThrottlePeriod != 0 && c.MaxEventAgeSeconds != 0 {
		log.Error().Msg("cannot set both throttlePeriod (deprecated) and MaxEventAgeSeconds")
		return errors.New("validateMaxEventAgeSeconds failed")
	}

	// If throttlePeriod is set, use it but warn it's deprecated.
	if c.ThrottlePeriod != 0 {
		c.MaxEventAgeSeconds = c.ThrottlePeriod
		log.Warn().Msg("config.throttlePeriod is deprecated, consider using config.maxEventAgeSeconds instead")
	}

	// If still zero, set default.
	if c.MaxEventAgeSeconds == 0 {
		c.MaxEventAgeSeconds = 5
		log.Info().Int64("maxEventAgeSeconds", c.MaxEventAgeSeconds).Msg("setting config.maxEventAgeSeconds to default")
		return nil
	}

	// Final log of the effective value.
	log.Info().Int64("maxEventAgeSeconds", c.MaxEventAgeSeconds).Msg("config.maxEventAgeSeconds")
	return nil
}

// validateMetricsNamePrefix enforces prometheus's metric-name grammar on a
// non-empty prefix; an empty prefix only warns, since SetDefaults is what's
// responsible for filling it in before Validate ever runs.
func (c *Config) validateMetricsNamePrefix() error {
	if c.MetricsNamePrefix != "" {
		// https://prometheus.io/docs/concepts/data_model/#metric-names-and-labels
		checkResult, err := regexp.MatchString("^[a-zA-Z][a-zA-Z0-9_:]*_$", c.MetricsNamePrefix)
		if err != nil {
			return err
		}
		if checkResult {
			log.Info().Msg("config.metricsNamePrefix='" + c.MetricsNamePrefix + "'")
		} else {
			log.Error().Msg("config.metricsNamePrefix should match the regex: ^[a-zA-Z][a-zA-Z0-9_:]*_$")
			return errors.New("validateMetricsNamePrefix failed")
		}
	} else {
		log.Warn().Msg("metrics name prefix is empty; call SetDefaults before Validate to pick up config.metricsNamePrefix='" + DefaultMetricsNamePrefix + "'")
	}
	return nil
}

// validateCacheTTL parses CacheTTL into cacheTTLDuration, defaulting and
// bounding it along the way: empty falls back to defaultCacheTTL, and
// anything beyond maxCacheTTL (30 days) is rejected outright rather than
// silently clamped.
func (c *Config) validateCacheTTL() error {
	if c.CacheTTL == "" {
		c.CacheTTL = defaultCacheTTL.String()
		log.Info().Str("cacheTTL", c.CacheTTL).Msg("setting config.cacheTTL to default")
	}

	parsed, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		log.Error().Str("cacheTTL", c.CacheTTL).Err(err).Msg("invalid cacheTTL duration")
		return fmt.Errorf("validateCacheTTL failed parsing %q: %w", c.CacheTTL, err)
	}
	if parsed <= 0 {
		log.Error().Str("cacheTTL", c.CacheTTL).Msg("cacheTTL must be positive")
		return errors.New("validateCacheTTL failed: cacheTTL must be positive")
	}
	if parsed > maxCacheTTL {
		log.Error().Dur("cacheTTL", parsed).Msg("cacheTTL too large; max 30 days")
		return errors.New("validateCacheTTL failed: too large. cacheTTL must not exceed 30 days")
	}

	c.cacheTTLDuration = parsed
	log.Debug().Dur("cacheTTL", parsed).Msg("config.cacheTTL")
	return nil
}

// CacheTTLDuration returns the parsed form of CacheTTL; only valid once
// Validate has run.
func (c *Config) CacheTTLDuration() time.Duration {
	return c.cacheTTLDuration
}

// compilePattern compiles pattern, or returns a nil *regexp.Regexp for an
// empty pattern so callers can treat "unset" and "matches everything" the
// same way without a separate branch.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// compilePatternMap compiles every value in patterns, keeping the keys, for
// rule fields like Labels/Annotations that match against a set of keys
// rather than a single value.
func compilePatternMap(patterns map[string]string) (map[string]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	compiled := make(map[string]*regexp.Regexp, len(patterns))
	for k, v := range patterns {
		re, err := compilePattern(v)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern for key '%s': %w", k, err)
		}
		compiled[k] = re
	}
	return compiled, nil
}

// preCompilePatternsHelper precompiles every regex field on a rule. Each
// entry pairs the source pattern string with the compiled-pattern field it
// feeds; walking the list keeps this in sync with Rule's field list without
// repeating the same compile-and-check four times per field.
func (c *Config) preCompilePatternsHelper(rule *Rule) error {
	fields := []struct {
		dst **regexp.Regexp
		src string
	}{
		{&rule.apiVersionPattern, rule.APIVersion},
		{&rule.kindPattern, rule.Kind},
		{&rule.namespacePattern, rule.Namespace},
		{&rule.reasonPattern, rule.Reason},
		{&rule.typePattern, rule.Type},
		{&rule.componentPattern, rule.Component},
		{&rule.hostPattern, rule.Host},
		{&rule.messagePattern, rule.Message},
		{&rule.receiverPattern, rule.Receiver},
	}
	for _, f := range fields {
		compiled, err := compilePattern(f.src)
		if err != nil {
			return err
		}
		*f.dst = compiled
	}

	var err error
	rule.labelsPatterns, err = compilePatternMap(rule.Labels)
	if err != nil {
		return err
	}
	rule.annotationsPatterns, err = compilePatternMap(rule.Annotations)
	if err != nil {
		return err
	}
	return nil
}

// preCompileRoute precompiles regex patterns for all rules in a route, including nested routes
func (c *Config) preCompileRoute(route *Route) error {
	for i := range route.Drop {
		if err := c.preCompilePatternsHelper(&route.Drop[i]); err != nil {
			return err
		}
	}

	for i := range route.Match {
		if err := c.preCompilePatternsHelper(&route.Match[i]); err != nil {
			return err
		}
	}

	// Recursively compile patterns for nested Routes
	for i := range route.Routes {
		if err := c.preCompileRoute(&route.Routes[i]); err != nil {
			return err
		}
	}

	return nil
}

// PreCompilePatterns walks the whole route tree once at startup so every
// Rule.MatchesEvent call afterward hits an already-compiled pattern instead
// of falling back to matchString's per-call regexp.Compile.
func (c *Config) PreCompilePatterns() error {
	return c.preCompileRoute(&c.Route)
}
