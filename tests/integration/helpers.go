package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"edihub/internal/config"
	"edihub/internal/constants"
	"edihub/internal/logger"
	"edihub/internal/outbox"
)

const (
	containerStartupTimeout = 60
	timestampDelay          = 10 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func testIdempotencyConfig() config.IdempotencyConfig {
	return config.IdempotencyConfig{
		Enabled:      true,
		TTLSeconds:   300,
		OnRedisError: constants.FallbackAllow,
	}
}

var testSender = outbox.Receiver{
	ActorNumber: "5790001330552",
	ActorRole:   outbox.RoleMeteredDataAdministrator,
}

func testReceiver(n int) outbox.Receiver {
	return outbox.Receiver{
		ActorNumber: fmt.Sprintf("579000000%04d", n),
		ActorRole:   outbox.RoleEnergySupplier,
	}
}

func createTestMessage(receiver outbox.Receiver, externalID string) *outbox.OutgoingMessage {
	return &outbox.OutgoingMessage{
		ID:             uuid.New(),
		Receiver:       receiver,
		DocumentType:   outbox.DocumentNotifyAggregatedMeasureData,
		BusinessReason: outbox.ReasonBalanceFixing,
		ProcessType:    outbox.ProcessReceiveEnergyResults,
		GridAreaCode:   "543",
		ExternalID:     externalID,
		Payload:        []byte(`{"points":[{"position":1,"quantity":"42.5"}]}`),
		CreatedAt:      time.Now().UTC(),
	}
}
