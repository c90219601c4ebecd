package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	kafka "edihub/internal/broker"
	"edihub/pkg/models"
)

// KafkaNotifier publishes bundle-closed events for receiving actors that
// subscribe instead of polling peek.
type KafkaNotifier struct {
	producer kafka.Producer
	topic    string
}

func NewKafkaNotifier(producer kafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
	}
}

func (n *KafkaNotifier) BundleClosed(ctx context.Context, receiver Receiver, bundle *Bundle) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}

	closedAt := time.Now().UTC()
	if bundle.ClosedAt != nil {
		closedAt = *bundle.ClosedAt
	}
	event := models.BundleClosedEvent{
		EventType:      models.EventTypeBundleClosed,
		BundleID:       bundle.ID.String(),
		ReceiverNumber: receiver.ActorNumber,
		ReceiverRole:   string(receiver.ActorRole),
		DocumentType:   string(bundle.DocumentType),
		Category:       string(bundle.Category),
		MessageCount:   bundle.MessageCount,
		ClosedAt:       closedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle-closed event: %w", err)
	}

	envelope := models.MessageEnvelope{
		ID:        uuid.New().String(),
		Source:    "outbox-service",
		Timestamp: time.Now(),
		Payload:   payload,
	}
	return n.producer.Publish(ctx, n.topic, envelope)
}
