// Command kubesee watches Kubernetes events and routes them to configured
// sinks (webhook, Kafka, Elasticsearch/OpenSearch, Loki, syslog, files,
// stdout, or an in-memory buffer for tests) according to a drop/match
// rule tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aluminyoom/kubesee/pkg/engine"
	"github.com/aluminyoom/kubesee/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	envConfig        = "KUBESEE_CONFIG"
	envLogLevel      = "KUBESEE_LOG_LEVEL"
	envMetricsPrefix = "KUBESEE_METRICS_PREFIX"
	envDrainTimeout  = "KUBESEE_DRAIN_TIMEOUT"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := os.Getenv(envConfig)
	if configPath == "" {
		fmt.Fprintf(os.Stderr, "%s is required\n", envConfig)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kubesee: %v\n", err)
		return 1
	}

	logLevel := os.Getenv(envLogLevel)
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	setupLogging(logLevel, cfg.LogFormat)

	metricsPrefix := os.Getenv(envMetricsPrefix)
	if metricsPrefix == "" {
		metricsPrefix = cfg.MetricsNamePrefix
	}
	metricsStore := metrics.NewMetricsStore(metricsPrefix)
	metrics.Init(":2112", "", logLevel)

	restConfig, err := buildRestConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to build Kubernetes client config")
		return 1
	}
	restConfig.QPS = cfg.KubeQPS
	restConfig.Burst = cfg.KubeBurst

	drainTimeout := engine.DefaultDrainTimeout
	if raw := os.Getenv(envDrainTimeout); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			log.Warn().Str(envDrainTimeout, raw).Msg("invalid drain timeout, using default")
		} else {
			drainTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	eng, err := engine.New(cfg, restConfig, metricsStore, drainTimeout)
	if err != nil {
		log.Error().Err(err).Msg("failed to build engine")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	log.Info().Msg("kubesee started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout+5*time.Second)
	defer cancel()
	eng.Shutdown(shutdownCtx)

	return 0
}

func setupLogging(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
