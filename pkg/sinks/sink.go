// Package sinks implements the uniform start/send/close façade over every
// delivery backend (stdout, file, pipe, syslog, webhook, loki,
// elasticsearch, opensearch, kafka, in-memory) plus the layout/dedot
// serialisation policy they all share.
package sinks

import (
	"context"
	"fmt"

	"github.com/aluminyoom/kubesee/pkg/kube"
)

// Sink is the contract every delivery backend implements. Send may block up
// to the sink's own timeout; Close is idempotent resource release.
type Sink interface {
	Send(ctx context.Context, ev *kube.EnhancedEvent) error
	Close()
}

// ReceiverConfig is one entry of the config's receivers list: a name plus
// exactly one sink-type configuration. Only one of the sink-type fields may
// be set; the config loader enforces that at validation time.
type ReceiverConfig struct {
	Name          string               `yaml:"name"`
	Stdout        *StdoutConfig        `yaml:"stdout"`
	File          *FileConfig          `yaml:"file"`
	Webhook       *WebhookConfig       `yaml:"webhook"`
	Pipe          *PipeConfig          `yaml:"pipe"`
	Syslog        *SyslogConfig        `yaml:"syslog"`
	Loki          *LokiConfig          `yaml:"loki"`
	Elasticsearch *ElasticsearchConfig `yaml:"elasticsearch"`
	Opensearch    *ElasticsearchConfig `yaml:"opensearch"`
	Kafka         *KafkaConfig         `yaml:"kafka"`
	InMemory      *InMemoryConfig      `yaml:"inMemory"`
}

// sinkTypes returns the names of the sink-type keys that are non-nil, in a
// deterministic order. Used both by validation (exactly one) and by New
// (dispatch to the matching constructor).
func (r *ReceiverConfig) sinkTypes() []string {
	var set []string
	if r.Stdout != nil {
		set = append(set, "stdout")
	}
	if r.File != nil {
		set = append(set, "file")
	}
	if r.Webhook != nil {
		set = append(set, "webhook")
	}
	if r.Pipe != nil {
		set = append(set, "pipe")
	}
	if r.Syslog != nil {
		set = append(set, "syslog")
	}
	if r.Loki != nil {
		set = append(set, "loki")
	}
	if r.Elasticsearch != nil {
		set = append(set, "elasticsearch")
	}
	if r.Opensearch != nil {
		set = append(set, "opensearch")
	}
	if r.Kafka != nil {
		set = append(set, "kafka")
	}
	if r.InMemory != nil {
		set = append(set, "in_memory")
	}
	return set
}

// Validate ensures the receiver has a name and exactly one sink-type key.
func (r *ReceiverConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("receiver is missing a name")
	}
	types := r.sinkTypes()
	if len(types) == 0 {
		return fmt.Errorf("receiver %q has no sink configuration", r.Name)
	}
	if len(types) > 1 {
		return fmt.Errorf("receiver %q has multiple sink configurations: %v", r.Name, types)
	}
	return nil
}

// New constructs the sink instance for a receiver. It is the single
// dispatch point from sink-type name to constructor: the factory's list is
// authoritative, there is no separate hard-coded subset.
func New(cfg *ReceiverConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case cfg.Stdout != nil:
		return NewStdout(cfg.Stdout)
	case cfg.File != nil:
		return NewFile(cfg.File)
	case cfg.Webhook != nil:
		return NewWebhook(cfg.Webhook)
	case cfg.Pipe != nil:
		return NewPipe(cfg.Pipe)
	case cfg.Syslog != nil:
		return NewSyslog(cfg.Syslog)
	case cfg.Loki != nil:
		return NewLoki(cfg.Loki)
	case cfg.Elasticsearch != nil:
		return NewElasticsearch(cfg.Elasticsearch, false)
	case cfg.Opensearch != nil:
		return NewElasticsearch(cfg.Opensearch, true)
	case cfg.Kafka != nil:
		return NewKafka(cfg.Kafka)
	case cfg.InMemory != nil:
		return NewInMemory(cfg.InMemory)
	default:
		return nil, fmt.Errorf("receiver %q: no sink type resolved", cfg.Name)
	}
}
