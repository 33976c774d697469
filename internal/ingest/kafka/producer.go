package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// DefaultTopic is the topic Producer publishes to and Consumer defaults to
// subscribing on.
const DefaultTopic = "cost-engine.usage"

// Producer publishes UsageMessage payloads for a downstream Consumer,
// grounded on the same async-producer config the teacher's
// messaging/kafka producer uses (ack-all, bounded retry, snappy
// compression).
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewProducer creates a producer bound to brokers, publishing to topic
// (DefaultTopic if empty).
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("ingest/kafka: creating producer: %w", err)
	}
	return &Producer{producer: producer, topic: topic}, nil
}

// Publish enqueues one usage message, keyed by organization so all of one
// org's usage lands on the same partition and preserves ingest order.
func (p *Producer) Publish(msg UsageMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ingest/kafka: marshaling usage message: %w", err)
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.OrganizationID),
		Value: sarama.ByteEncoder(payload),
	}
	return nil
}

// Successes returns the producer's success acknowledgement channel.
func (p *Producer) Successes() <-chan *sarama.ProducerMessage { return p.producer.Successes() }

// Errors returns the producer's error channel.
func (p *Producer) Errors() <-chan *sarama.ProducerError { return p.producer.Errors() }

// Close shuts the producer down.
func (p *Producer) Close() error { return p.producer.Close() }
