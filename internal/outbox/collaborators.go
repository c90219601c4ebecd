package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// External collaborators consumed by the engine. The engine owns these
// contracts; the implementations live in their own packages (and in other
// services entirely for rendering formats this repo does not ship).

// DelegationResolver returns the receiver a message must be delivered to,
// rewriting it when an active delegation grant covers the message.
type DelegationResolver interface {
	Resolve(ctx context.Context, msg *OutgoingMessage) (Receiver, error)
}

// PassthroughResolver never rewrites; used when delegation is disabled.
type PassthroughResolver struct{}

func (PassthroughResolver) Resolve(_ context.Context, msg *OutgoingMessage) (Receiver, error) {
	return msg.Receiver, nil
}

// DocumentHeader carries the document-level fields handed to a renderer.
// Receiver is the delivery identity after delegation.
type DocumentHeader struct {
	MessageID          uuid.UUID
	DocumentType       DocumentType
	BusinessReason     BusinessReason
	Sender             Receiver
	Receiver           Receiver
	RelatedToMessageID *uuid.UUID
	CreatedAt          time.Time
}

// Renderer turns the ordered serialized message contents of one bundle into
// a document byte stream. Contents are opaque; a renderer must preserve
// their order and produce identical output for identical input.
type Renderer interface {
	Render(ctx context.Context, header DocumentHeader, payloads [][]byte) ([]byte, error)
}

// RendererFactory picks the renderer for a document type.
type RendererFactory interface {
	For(dt DocumentType) Renderer
}

// ArchiveMetadata tags an archived document for audit and legal retention.
type ArchiveMetadata struct {
	MessageID          string
	EventIDs           []string
	DocumentType       DocumentType
	BusinessReason     BusinessReason
	Sender             Receiver
	Receiver           Receiver
	RelatedToMessageID *string
	CreatedAt          time.Time
}

// Archiver stores one immutable copy of a rendered document and returns a
// reference to it.
type Archiver interface {
	Store(ctx context.Context, meta ArchiveMetadata, content []byte) (string, error)
}

// Notifier tells the receiving actor that a bundle became ready to peek.
// Notification is best-effort; a failure never rolls back the close.
type Notifier interface {
	BundleClosed(ctx context.Context, receiver Receiver, bundle *Bundle) error
}

// NopNotifier is used when no notification transport is configured.
type NopNotifier struct{}

func (NopNotifier) BundleClosed(context.Context, Receiver, *Bundle) error { return nil }
