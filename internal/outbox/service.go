package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"edihub/internal/logger"
	pkgerrors "edihub/pkg/errors"
	"edihub/pkg/metrics"
	"edihub/pkg/tracing"
)

// Service implements the outgoing message queue operations: enqueue,
// peek and dequeue. The bundling close decision lives in Scheduler.
type Service struct {
	store     Store
	policies  *PolicyTable
	renderers RendererFactory
	archiver  Archiver
	resolver  DelegationResolver
	guard     IdempotencyGuard
	notifier  Notifier
	sender    Receiver
	logger    logger.Logger
	now       func() time.Time
}

type ServiceOption func(*Service)

func WithDelegation(resolver DelegationResolver) ServiceOption {
	return func(s *Service) { s.resolver = resolver }
}

func WithIdempotencyGuard(guard IdempotencyGuard) ServiceOption {
	return func(s *Service) { s.guard = guard }
}

func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, policies *PolicyTable, renderers RendererFactory, archiver Archiver, sender Receiver, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		policies:  policies,
		renderers: renderers,
		archiver:  archiver,
		resolver:  PassthroughResolver{},
		guard:     NopIdempotencyGuard{},
		notifier:  NopNotifier{},
		sender:    sender,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue records one outgoing message, idempotent under
// (receiver, external id). Delegation resolution runs first; the message is
// then attached to the open bundle matching its grouping key, opening a new
// one when none exists or the current one is full. Everything commits in one
// transaction or not at all.
func (s *Service) Enqueue(ctx context.Context, msg *OutgoingMessage) (uuid.UUID, error) {
	ctx, span := tracing.GetTracer("outbox-service").Start(ctx, "outbox.enqueue")
	defer span.End()
	start := s.now()

	if msg == nil {
		return uuid.Nil, pkgerrors.ErrValidation.WithDetail("message", "outgoing message is required")
	}
	if err := msg.Validate(); err != nil {
		metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues("error").Inc()
		return uuid.Nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	policy, err := s.policies.Lookup(msg.DocumentType)
	if err != nil {
		metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues("error").Inc()
		return uuid.Nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	deliveryReceiver, err := s.resolver.Resolve(ctx, msg)
	if err != nil {
		metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues("error").Inc()
		return uuid.Nil, err
	}

	delivery := *msg
	delivery.Receiver = deliveryReceiver
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = s.now().UTC()
	}
	queueReceiver := NormalizeQueueReceiver(deliveryReceiver)

	first, err := s.guard.FirstSeen(ctx, queueReceiver.String(), delivery.ExternalID)
	if err != nil {
		metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues("error").Inc()
		return uuid.Nil, err
	}
	if !first {
		// Existing message wins; a stale guard entry (an earlier attempt
		// that failed after SetNX) falls through to the real insert.
		if id, found, err := s.findExisting(ctx, queueReceiver, delivery.ExternalID); err != nil {
			metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues("error").Inc()
			return uuid.Nil, err
		} else if found {
			s.recordEnqueue(ctx, start, "duplicate", &delivery, id, uuid.Nil)
			return id, nil
		}
	}

	var (
		messageID    uuid.UUID
		bundleID     uuid.UUID
		outcome      = "enqueued"
		rolledBundle *Bundle
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx StoreTx) error {
		queue, err := tx.GetOrCreateQueue(ctx, queueReceiver)
		if err != nil {
			return err
		}

		if id, found, err := tx.FindMessageID(ctx, queue.ID, delivery.ExternalID); err != nil {
			return err
		} else if found {
			messageID = id
			outcome = "duplicate"
			return nil
		}

		key := GroupingKey{
			QueueID:            queue.ID,
			DocumentType:       delivery.DocumentType,
			BusinessReason:     delivery.BusinessReason,
			RelatedToMessageID: delivery.RelatedToMessageID,
		}

		bundle, err := tx.LockOpenBundle(ctx, key)
		if err != nil {
			return err
		}
		if bundle != nil && bundle.IsFull() {
			// Roll over: the full bundle stops accepting messages here so
			// at most one bundle per key stays open.
			if err := tx.CloseBundle(ctx, bundle.ID, s.now().UTC()); err != nil {
				return err
			}
			rolledBundle = bundle
			bundle = nil
		}
		if bundle == nil {
			bundle = NewBundle(key, policy.Category, policy.MaxSize)
			if err := tx.InsertBundle(ctx, bundle); err != nil {
				return err
			}
		}
		if err := bundle.Accepts(&delivery, key); err != nil {
			return pkgerrors.ErrInternal.WithCause(err)
		}

		if err := tx.InsertMessage(ctx, queue.ID, bundle.ID, &delivery); err != nil {
			return err
		}
		if err := tx.BumpBundleCount(ctx, bundle.ID); err != nil {
			return err
		}

		messageID = delivery.ID
		bundleID = bundle.ID
		return nil
	})
	if err != nil {
		// A concurrent enqueue of the same external id hits the unique
		// constraint; resolve to the winner's identity.
		if pkgerrors.IsConflict(err) {
			if id, found, ferr := s.findExisting(ctx, queueReceiver, delivery.ExternalID); ferr == nil && found {
				s.recordEnqueue(ctx, start, "duplicate", &delivery, id, uuid.Nil)
				return id, nil
			}
		}
		metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues("error").Inc()
		return uuid.Nil, err
	}

	if rolledBundle != nil {
		s.notifyClosed(ctx, queueReceiver, rolledBundle, CloseReasonFull)
	}

	s.recordEnqueue(ctx, start, outcome, &delivery, messageID, bundleID)
	return messageID, nil
}

func (s *Service) findExisting(ctx context.Context, queueReceiver Receiver, externalID string) (uuid.UUID, bool, error) {
	queue, err := s.store.GetQueue(ctx, queueReceiver)
	if err != nil {
		return uuid.Nil, false, err
	}
	if queue == nil {
		return uuid.Nil, false, nil
	}
	return s.store.FindMessageID(ctx, queue.ID, externalID)
}

func (s *Service) notifyClosed(ctx context.Context, receiver Receiver, bundle *Bundle, reason CloseReason) {
	metrics.BundlesClosedTotal.WithLabelValues(string(reason)).Inc()
	metrics.BundleSizeMessages.Observe(float64(bundle.MessageCount))
	if err := s.notifier.BundleClosed(ctx, receiver, bundle); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish bundle-closed notification",
			"bundle_id", bundle.ID,
			"receiver", receiver.String(),
			"error", err,
		)
	}
}

// recordEnqueue emits the observability record for one enqueue outcome.
func (s *Service) recordEnqueue(ctx context.Context, start time.Time, outcome string, msg *OutgoingMessage, messageID, bundleID uuid.UUID) {
	metrics.OutgoingMessagesEnqueuedTotal.WithLabelValues(outcome).Inc()
	metrics.ObserveEnqueueDuration(s.now().Sub(start), outcome)

	fields := []interface{}{
		"outcome", outcome,
		"message_id", messageID,
		"receiver", msg.Receiver.String(),
		"document_type", msg.DocumentType,
		"business_reason", msg.BusinessReason,
		"external_id", msg.ExternalID,
	}
	if bundleID != uuid.Nil {
		fields = append(fields, "bundle_id", bundleID)
	}
	s.logger.InfowCtx(ctx, "Outgoing message enqueued", fields...)
}
