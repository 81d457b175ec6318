package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"stampd/internal/platform/kafka/producer"
)

// DefaultTopic is where issuance audit events are published.
const DefaultTopic = "stampd.issuance.audit"

// KafkaSink publishes audit events to a kafka topic, keyed by address so one
// wallet's history stays in partition order.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(_ context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(event.Address),
		Value: value,
		Headers: map[string]string{
			"action": string(event.Action),
		},
	})
}
