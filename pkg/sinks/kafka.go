package sinks

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/aluminyoom/kubesee/pkg/kube"
	"github.com/xdg-go/scram"
)

// KafkaConfig configures the kafka sink.
type KafkaConfig struct {
	Brokers     []string       `yaml:"brokers"`
	Topic       string         `yaml:"topic"`
	Layout      map[string]any `yaml:"layout"`
	DeDot       bool           `yaml:"deDot"`
	TLS         TLS            `yaml:"tls"`
	SASLEnabled bool           `yaml:"saslEnabled"`
	Username    string         `yaml:"username"`
	Password    string         `yaml:"password"`
	Mechanism   string         `yaml:"mechanism"` // "SCRAM-SHA-256" | "SCRAM-SHA-512" | "PLAIN"
	Codec       string         `yaml:"codec"` // "snappy" | "gzip" | "lz4" | "zstd" | "none" (default)
}

// kafkaCompressionCodecs maps the config's codec names to sarama's producer
// compression constants. An empty codec leaves compression off, matching
// sarama's own zero value; any name not in this table is rejected by
// NewKafka.
var kafkaCompressionCodecs = map[string]sarama.CompressionCodec{
	"snappy": sarama.CompressionSnappy,
	"gzip":   sarama.CompressionGZIP,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
	"none":   sarama.CompressionNone,
}

// Kafka publishes one message per event to a topic via a synchronous
// sarama producer, keyed by the event's UID (empty if unset) and placed by
// sarama's default hash partitioner.
type Kafka struct {
	cfg      *KafkaConfig
	producer sarama.SyncProducer
}

// NewKafka constructs the kafka sink.
func NewKafka(cfg *KafkaConfig) (Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5

	if cfg.Codec != "" {
		codec, ok := kafkaCompressionCodecs[cfg.Codec]
		if !ok {
			return nil, fmt.Errorf("kafka: unknown codec %q", cfg.Codec)
		}
		saramaCfg.Producer.Compression = codec
	}

	tlsClientConfig, err := setupTLS(&cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to setup TLS: %w", err)
	}
	if tlsClientConfig != nil && cfg.TLS != (TLS{}) {
		saramaCfg.Net.TLS.Enable = true
		saramaCfg.Net.TLS.Config = tlsClientConfig
	}

	if cfg.SASLEnabled {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.Username
		saramaCfg.Net.SASL.Password = cfg.Password

		switch cfg.Mechanism {
		case "SCRAM-SHA-512":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: scram.SHA512}
			}
		case "PLAIN":
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: scram.SHA256}
			}
		}
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to build producer: %w", err)
	}

	return &Kafka{cfg: cfg, producer: producer}, nil
}

func (k *Kafka) Send(_ context.Context, ev *kube.EnhancedEvent) error {
	body, err := serialize(ev, k.cfg.DeDot, k.cfg.Layout)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: k.cfg.Topic,
		Key:   sarama.StringEncoder(string(ev.UID)),
		Value: sarama.ByteEncoder(body),
	}

	_, _, err = k.producer.SendMessage(msg)
	return err
}

func (k *Kafka) Close() {
	_ = k.producer.Close()
}

// scramClient adapts xdg-go/scram to sarama's SCRAMClient interface.
type scramClient struct {
	*scram.Client
	scram.HashGeneratorFcn
	conversation *scram.ClientConversation
}

func (c *scramClient) Begin(userName, password, authzID string) error {
	client, err := c.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	c.Client = client
	c.conversation = c.Client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.conversation.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.conversation.Done()
}
