// Package kafka is the Kafka-backed audit publisher.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"repval/pkg/platform/audit"
	platformstrings "repval/pkg/platform/strings"
)

// Publisher writes audit events to a Kafka topic, keyed by execution ID
// so one run's events stay ordered within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the given brokers (comma-separated).
func NewPublisher(brokers, topic string) (*Publisher, error) {
	seeds := platformstrings.SplitList(brokers, ",")
	if len(seeds) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Publish(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ExecutionID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
