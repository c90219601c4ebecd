package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"edihub/internal/broker"
	"edihub/pkg/errors"
	"edihub/pkg/models"
)

// IntakeHandler adapts the Kafka intake topic to Enqueue. Malformed payloads
// come back as validation errors, which the consumer treats as fatal and
// routes to the DLQ instead of retrying.
func (s *Service) IntakeHandler() broker.HandlerFunc {
	return func(ctx context.Context, envelope models.MessageEnvelope) error {
		if err := models.ValidateMessageEnvelope(&envelope); err != nil {
			return errors.ErrValidation.WithCause(err)
		}

		var payload models.OutgoingMessagePayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return errors.ErrValidation.WithCause(err).
				WithDetail("message", "malformed outgoing message payload")
		}

		msg := &OutgoingMessage{
			Receiver: Receiver{
				ActorNumber: payload.ReceiverNumber,
				ActorRole:   ActorRole(payload.ReceiverRole),
			},
			DocumentType:   DocumentType(payload.DocumentType),
			BusinessReason: BusinessReason(payload.BusinessReason),
			ProcessType:    ProcessType(payload.ProcessType),
			GridAreaCode:   payload.GridAreaCode,
			ExternalID:     payload.ExternalID,
			Payload:        payload.Content,
			CreatedAt:      envelope.Timestamp.UTC(),
		}
		if msg.ExternalID == "" {
			msg.ExternalID = envelope.ID
		}
		if payload.RelatedToMessageID != "" {
			related, err := uuid.Parse(payload.RelatedToMessageID)
			if err != nil {
				return errors.ErrValidation.WithCause(err).
					WithDetail("field", "related_to_message_id")
			}
			msg.RelatedToMessageID = &related
		}

		_, err := s.Enqueue(ctx, msg)
		return err
	}
}
