package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher emits critical audit entries to a Kafka topic keyed by
// deletion request, so downstream consumers see each request's critical
// events in order.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

type criticalEvent struct {
	EntryID           string         `json:"entryId"`
	DeletionRequestID string         `json:"deletionRequestId"`
	Action            Action         `json:"action"`
	PerformedBy       string         `json:"performedBy"`
	PerformedByType   ActorType      `json:"performedByType"`
	ActionDetails     string         `json:"actionDetails,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

func (p *KafkaPublisher) PublishCritical(ctx context.Context, entry *Entry) error {
	payload, err := json.Marshal(criticalEvent{
		EntryID:           entry.ID.String(),
		DeletionRequestID: entry.DeletionRequestID.String(),
		Action:            entry.Action,
		PerformedBy:       entry.PerformedBy,
		PerformedByType:   entry.PerformedByType,
		ActionDetails:     entry.ActionDetails,
		Metadata:          entry.Metadata,
		CreatedAt:         entry.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal critical event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.DeletionRequestID.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce critical event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
