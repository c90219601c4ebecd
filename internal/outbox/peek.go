package outbox

import (
	"context"

	pkgerrors "edihub/pkg/errors"
	"edihub/pkg/metrics"
	"edihub/pkg/tracing"
)

// PeekResult is the bundle handed out by Peek: the opaque identifier the
// caller later dequeues with, and the rendered market document.
type PeekResult struct {
	BundleID string
	Content  []byte
}

// Peek returns the oldest closed bundle of the given category for the
// receiver, rendered as a market document. Repeated peeks without a dequeue
// return the same bundle with byte-identical content. A nil result means the
// queue has nothing ready.
//
// Any still-open bundle of the category is closed first: a receiver asking
// for messages should not wait out the flush threshold on a partial bundle.
func (s *Service) Peek(ctx context.Context, receiver Receiver, category MessageCategory) (*PeekResult, error) {
	ctx, span := tracing.GetTracer("outbox-service").Start(ctx, "outbox.peek")
	defer span.End()
	start := s.now()

	if !KnownCategory(category) {
		metrics.PeekRequestsTotal.WithLabelValues("error").Inc()
		return nil, pkgerrors.Wrap(ErrUnknownCategory, pkgerrors.ErrValidation)
	}
	queueReceiver := NormalizeQueueReceiver(receiver)

	queue, err := s.store.GetQueue(ctx, queueReceiver)
	if err != nil {
		metrics.PeekRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if queue == nil {
		metrics.PeekRequestsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	var (
		bundle   *Bundle
		doc      *MarketDocument
		messages []OutgoingMessage
		closed   int64
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx StoreTx) error {
		n, err := tx.ForceCloseOpenBundles(ctx, queue.ID, category, s.now().UTC())
		if err != nil {
			return err
		}
		closed = n

		bundle, err = tx.LockOldestClosedBundle(ctx, queue.ID, category)
		if err != nil || bundle == nil {
			return err
		}

		doc, err = tx.GetMarketDocument(ctx, bundle.ID)
		if err != nil || doc != nil {
			return err
		}
		messages, err = tx.ListBundleMessages(ctx, bundle.ID)
		return err
	})
	if err != nil {
		metrics.PeekRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if closed > 0 {
		metrics.BundlesClosedTotal.WithLabelValues(string(CloseReasonPeek)).Add(float64(closed))
	}
	if bundle == nil {
		metrics.PeekRequestsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	if doc == nil {
		// First peek of this bundle. Rendering and archiving run outside
		// the row lock; the ON CONFLICT insert below makes a concurrent
		// first peek converge on one persisted document.
		doc, err = s.materializeDocument(ctx, queue, bundle, messages)
		if err != nil {
			metrics.PeekRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	metrics.PeekRequestsTotal.WithLabelValues("bundle").Inc()
	metrics.ObservePeekDuration(s.now().Sub(start), "bundle")
	s.logger.InfowCtx(ctx, "Bundle peeked",
		"bundle_id", bundle.ID,
		"receiver", queueReceiver.String(),
		"category", string(category),
		"message_count", bundle.MessageCount,
		"rendered", messages != nil,
	)
	return &PeekResult{BundleID: bundle.ID.String(), Content: doc.Content}, nil
}

// materializeDocument renders, archives and persists the market document for
// a closed bundle, returning whichever document ends up persisted.
func (s *Service) materializeDocument(ctx context.Context, queue *ActorMessageQueue, bundle *Bundle, messages []OutgoingMessage) (*MarketDocument, error) {
	header := DocumentHeader{
		MessageID:          bundle.ID,
		DocumentType:       bundle.DocumentType,
		BusinessReason:     bundle.BusinessReason,
		Sender:             s.sender,
		Receiver:           queue.Receiver,
		RelatedToMessageID: bundle.RelatedToMessageID,
		CreatedAt:          bundle.CreatedAt,
	}
	payloads := make([][]byte, len(messages))
	eventIDs := make([]string, len(messages))
	for i := range messages {
		payloads[i] = messages[i].Payload
		eventIDs[i] = messages[i].ExternalID
	}

	content, err := s.renderers.For(bundle.DocumentType).Render(ctx, header, payloads)
	if err != nil {
		return nil, err
	}
	metrics.DocumentsRenderedTotal.WithLabelValues(string(bundle.DocumentType)).Inc()

	meta := ArchiveMetadata{
		MessageID:      bundle.ID.String(),
		EventIDs:       eventIDs,
		DocumentType:   bundle.DocumentType,
		BusinessReason: bundle.BusinessReason,
		Sender:         s.sender,
		Receiver:       queue.Receiver,
		CreatedAt:      s.now().UTC(),
	}
	if bundle.RelatedToMessageID != nil {
		related := bundle.RelatedToMessageID.String()
		meta.RelatedToMessageID = &related
	}
	archiveRef, err := s.archiver.Store(ctx, meta, content)
	if err != nil {
		metrics.DocumentsArchivedTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.DocumentsArchivedTotal.WithLabelValues("stored").Inc()

	doc := &MarketDocument{
		BundleID:   bundle.ID,
		Content:    content,
		ArchiveRef: archiveRef,
		CreatedAt:  s.now().UTC(),
	}
	var persisted *MarketDocument
	err = s.store.InTx(ctx, func(ctx context.Context, tx StoreTx) error {
		existing, err := tx.GetMarketDocument(ctx, bundle.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			persisted = existing
			return nil
		}
		if err := tx.InsertMarketDocument(ctx, doc); err != nil {
			return err
		}
		persisted = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

// Dequeue acknowledges a previously peeked bundle. It reports whether this
// call removed the bundle; an unknown, malformed or already dequeued id is
// simply not found, never an error.
func (s *Service) Dequeue(ctx context.Context, bundleID string) (bool, error) {
	ctx, span := tracing.GetTracer("outbox-service").Start(ctx, "outbox.dequeue")
	defer span.End()

	id, ok := ParseBundleID(bundleID)
	if !ok {
		metrics.DequeueRequestsTotal.WithLabelValues("not_found").Inc()
		return false, nil
	}

	removed, err := s.store.MarkBundleDequeued(ctx, id, s.now().UTC())
	if err != nil {
		metrics.DequeueRequestsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if !removed {
		metrics.DequeueRequestsTotal.WithLabelValues("not_found").Inc()
		return false, nil
	}

	metrics.DequeueRequestsTotal.WithLabelValues("dequeued").Inc()
	s.logger.InfowCtx(ctx, "Bundle dequeued", "bundle_id", id)
	return true, nil
}
