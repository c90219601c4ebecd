package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/broker"
	"edihub/internal/config"
	"edihub/internal/outbox"
	"edihub/pkg/models"
)

func TestKafkaIntake_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka round-trip in short mode")
	}

	infra := SetupTestInfraWithOptions(t, true, true, false)
	brokers := SetupKafka(t)

	svc, store := newTestService(t, infra)
	receiver := testReceiver(90)

	kafkaCfg := config.KafkaConfig{
		Brokers:    brokers,
		GroupID:    "edihub-intake-test",
		InputTopic: "outgoing_messages",
	}

	producer := broker.NewKafkaProducer(kafkaCfg, createTestLogger())
	t.Cleanup(func() { producer.Close() })

	consumer := broker.NewKafkaConsumer(kafkaCfg, createTestLogger())
	consumer.SetServiceName("outbox-service")
	t.Cleanup(func() { consumer.Close() })

	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	t.Cleanup(stopConsumer)
	go consumer.Consume(consumeCtx, kafkaCfg.InputTopic, svc.IntakeHandler())

	payload := models.OutgoingMessagePayload{
		ReceiverNumber: receiver.ActorNumber,
		ReceiverRole:   string(receiver.ActorRole),
		DocumentType:   string(outbox.DocumentNotifyAggregatedMeasureData),
		BusinessReason: string(outbox.ReasonBalanceFixing),
		ProcessType:    string(outbox.ProcessReceiveEnergyResults),
		GridAreaCode:   "543",
		ExternalID:     "intake-evt-1",
		Content:        []byte(`{"point":1}`),
	}
	envelope, err := models.NewMessageEnvelopeBuilder().
		WithID(uuid.NewString()).
		WithSource("calculation-engine").
		WithPayload(payload).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, producer.Publish(ctx, kafkaCfg.InputTopic, *envelope))

	queueReceiver := outbox.NormalizeQueueReceiver(receiver)
	require.Eventually(t, func() bool {
		queue, err := store.GetQueue(ctx, queueReceiver)
		if err != nil || queue == nil {
			return false
		}
		_, found, err := store.FindMessageID(ctx, queue.ID, "intake-evt-1")
		return err == nil && found
	}, 30*time.Second, 500*time.Millisecond, "message never landed in the queue")

	// Redelivery of the same event must not produce a second message.
	require.NoError(t, producer.Publish(ctx, kafkaCfg.InputTopic, *envelope))
	time.Sleep(2 * time.Second)

	queue, err := store.GetQueue(ctx, queueReceiver)
	require.NoError(t, err)
	_, found, err := store.FindMessageID(ctx, queue.ID, "intake-evt-1")
	require.NoError(t, err)
	assert.True(t, found)
}
