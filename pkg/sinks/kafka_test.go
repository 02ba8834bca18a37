package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(&KafkaConfig{Topic: "events"})
	assert.Error(t, err)
}

func TestKafkaRequiresTopic(t *testing.T) {
	_, err := NewKafka(&KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestKafkaRejectsUnknownCodec(t *testing.T) {
	_, err := NewKafka(&KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "events",
		Codec:   "bz2",
	})
	assert.Error(t, err)
}
