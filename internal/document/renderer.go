package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edihub/internal/outbox"
)

// Factory picks the renderer for a document type. Every current type ships
// as a JSON envelope; CIM-XML and ebIX writers live outside this service and
// plug in here.
type Factory struct {
	renderers map[outbox.DocumentType]outbox.Renderer
	fallback  outbox.Renderer
}

func NewFactory() *Factory {
	return &Factory{
		renderers: make(map[outbox.DocumentType]outbox.Renderer),
		fallback:  &JSONEnvelopeRenderer{},
	}
}

func (f *Factory) Register(dt outbox.DocumentType, r outbox.Renderer) {
	f.renderers[dt] = r
}

func (f *Factory) For(dt outbox.DocumentType) outbox.Renderer {
	if r, ok := f.renderers[dt]; ok {
		return r
	}
	return f.fallback
}

type jsonEnvelope struct {
	MessageID          string    `json:"message_id"`
	DocumentType       string    `json:"document_type"`
	BusinessReason     string    `json:"business_reason"`
	SenderNumber       string    `json:"sender_number"`
	SenderRole         string    `json:"sender_role"`
	ReceiverNumber     string    `json:"receiver_number"`
	ReceiverRole       string    `json:"receiver_role"`
	RelatedToMessageID *string   `json:"related_to_message_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Series             [][]byte  `json:"series"`
}

// JSONEnvelopeRenderer wraps the payloads in a JSON header envelope. Output
// is deterministic for a given header and payload order, which peek
// idempotence depends on.
type JSONEnvelopeRenderer struct{}

func (r *JSONEnvelopeRenderer) Render(_ context.Context, header outbox.DocumentHeader, payloads [][]byte) ([]byte, error) {
	env := jsonEnvelope{
		MessageID:      header.MessageID.String(),
		DocumentType:   string(header.DocumentType),
		BusinessReason: string(header.BusinessReason),
		SenderNumber:   header.Sender.ActorNumber,
		SenderRole:     string(header.Sender.ActorRole),
		ReceiverNumber: header.Receiver.ActorNumber,
		ReceiverRole:   string(header.Receiver.ActorRole),
		CreatedAt:      header.CreatedAt.UTC(),
		Series:         payloads,
	}
	if header.RelatedToMessageID != nil {
		related := header.RelatedToMessageID.String()
		env.RelatedToMessageID = &related
	}

	content, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s document: %w", header.DocumentType, err)
	}
	return content, nil
}
