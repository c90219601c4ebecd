package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "edihub/pkg/errors"
)

// Store is the transactional persistence contract for queues, messages,
// bundles and market documents. Absence is reported as a nil entity (or a
// false bool), never as an error; callers rely on that to tell "nothing to
// do" apart from failure.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error

	GetQueue(ctx context.Context, receiver Receiver) (*ActorMessageQueue, error)
	FindMessageID(ctx context.Context, queueID uuid.UUID, externalID string) (uuid.UUID, bool, error)
	GetMarketDocument(ctx context.Context, bundleID uuid.UUID) (*MarketDocument, error)
	ListOpenBundles(ctx context.Context) ([]OpenBundleRef, error)
	MarkBundleDequeued(ctx context.Context, bundleID uuid.UUID, at time.Time) (bool, error)
}

// StoreTx is the single-writer scope for one receiver's state. Open-bundle
// and oldest-closed-bundle lookups take row locks so enqueue, scheduler and
// peek serialize against each other per queue.
type StoreTx interface {
	GetOrCreateQueue(ctx context.Context, receiver Receiver) (*ActorMessageQueue, error)
	GetQueueByID(ctx context.Context, queueID uuid.UUID) (*ActorMessageQueue, error)
	FindMessageID(ctx context.Context, queueID uuid.UUID, externalID string) (uuid.UUID, bool, error)
	LockOpenBundle(ctx context.Context, key GroupingKey) (*Bundle, error)
	LockBundle(ctx context.Context, bundleID uuid.UUID) (*Bundle, error)
	InsertBundle(ctx context.Context, bundle *Bundle) error
	InsertMessage(ctx context.Context, queueID, bundleID uuid.UUID, msg *OutgoingMessage) error
	BumpBundleCount(ctx context.Context, bundleID uuid.UUID) error
	OldestMessageCreatedAt(ctx context.Context, bundleID uuid.UUID) (time.Time, bool, error)
	CloseBundle(ctx context.Context, bundleID uuid.UUID, at time.Time) error
	ForceCloseOpenBundles(ctx context.Context, queueID uuid.UUID, category MessageCategory, at time.Time) (int64, error)
	LockOldestClosedBundle(ctx context.Context, queueID uuid.UUID, category MessageCategory) (*Bundle, error)
	ListBundleMessages(ctx context.Context, bundleID uuid.UUID) ([]OutgoingMessage, error)
	GetMarketDocument(ctx context.Context, bundleID uuid.UUID) (*MarketDocument, error)
	InsertMarketDocument(ctx context.Context, doc *MarketDocument) error
}

// OpenBundleRef is the scheduler's work unit: one open bundle together with
// the receiver that will be notified when it closes.
type OpenBundleRef struct {
	BundleID     uuid.UUID
	QueueID      uuid.UUID
	Receiver     Receiver
	DocumentType DocumentType
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQueue(ctx context.Context, receiver Receiver) (*ActorMessageQueue, error) {
	return scanQueue(s.db.QueryRowContext(ctx, `
		SELECT id, actor_number, actor_role, created_at
		FROM actor_queues
		WHERE actor_number = $1 AND actor_role = $2
	`, receiver.ActorNumber, receiver.ActorRole))
}

func (s *PostgresStore) FindMessageID(ctx context.Context, queueID uuid.UUID, externalID string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM outgoing_messages
		WHERE queue_id = $1 AND external_id = $2
	`, queueID, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to look up message by external id: %w", err)
	}
	return id, true, nil
}

func (s *PostgresStore) GetMarketDocument(ctx context.Context, bundleID uuid.UUID) (*MarketDocument, error) {
	return getMarketDocument(ctx, s.db, bundleID)
}

func (s *PostgresStore) ListOpenBundles(ctx context.Context) ([]OpenBundleRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.queue_id, q.actor_number, q.actor_role, b.document_type
		FROM bundles b
		JOIN actor_queues q ON q.id = b.queue_id
		WHERE b.state = 'open'
		ORDER BY b.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open bundles: %w", err)
	}
	defer rows.Close()

	var refs []OpenBundleRef
	for rows.Next() {
		var ref OpenBundleRef
		if err := rows.Scan(&ref.BundleID, &ref.QueueID, &ref.Receiver.ActorNumber, &ref.Receiver.ActorRole, &ref.DocumentType); err != nil {
			return nil, fmt.Errorf("failed to scan open bundle: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// MarkBundleDequeued is a single conditional update so two concurrent
// acknowledgements of the same bundle cannot both report success.
func (s *PostgresStore) MarkBundleDequeued(ctx context.Context, bundleID uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bundles
		SET state = 'dequeued', dequeued_at = $2
		WHERE id = $1 AND state = 'closed'
	`, bundleID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark bundle dequeued: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetOrCreateQueue(ctx context.Context, receiver Receiver) (*ActorMessageQueue, error) {
	queue := NewActorMessageQueue(receiver)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO actor_queues (id, actor_number, actor_role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (actor_number, actor_role) DO NOTHING
	`, queue.ID, receiver.ActorNumber, receiver.ActorRole, queue.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}

	existing, err := scanQueue(t.tx.QueryRowContext(ctx, `
		SELECT id, actor_number, actor_role, created_at
		FROM actor_queues
		WHERE actor_number = $1 AND actor_role = $2
	`, receiver.ActorNumber, receiver.ActorRole))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("queue for %s missing after upsert", receiver)
	}
	return existing, nil
}

func (t *postgresTx) GetQueueByID(ctx context.Context, queueID uuid.UUID) (*ActorMessageQueue, error) {
	return scanQueue(t.tx.QueryRowContext(ctx, `
		SELECT id, actor_number, actor_role, created_at
		FROM actor_queues
		WHERE id = $1
	`, queueID))
}

func (t *postgresTx) FindMessageID(ctx context.Context, queueID uuid.UUID, externalID string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM outgoing_messages
		WHERE queue_id = $1 AND external_id = $2
	`, queueID, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to look up message by external id: %w", err)
	}
	return id, true, nil
}

const bundleColumns = `
	id, queue_id, document_type, business_reason, category,
	related_to_message_id, max_size, message_count, state,
	created_at, closed_at, dequeued_at`

func (t *postgresTx) LockOpenBundle(ctx context.Context, key GroupingKey) (*Bundle, error) {
	return scanBundle(t.tx.QueryRowContext(ctx, `
		SELECT`+bundleColumns+`
		FROM bundles
		WHERE queue_id = $1 AND document_type = $2 AND business_reason = $3
		  AND related_to_message_id IS NOT DISTINCT FROM $4
		  AND state = 'open'
		FOR UPDATE
	`, key.QueueID, key.DocumentType, key.BusinessReason, key.RelatedToMessageID))
}

func (t *postgresTx) LockBundle(ctx context.Context, bundleID uuid.UUID) (*Bundle, error) {
	return scanBundle(t.tx.QueryRowContext(ctx, `
		SELECT`+bundleColumns+`
		FROM bundles
		WHERE id = $1
		FOR UPDATE
	`, bundleID))
}

func (t *postgresTx) InsertBundle(ctx context.Context, b *Bundle) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bundles (id, queue_id, document_type, business_reason, category,
			related_to_message_id, max_size, message_count, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.QueueID, b.DocumentType, b.BusinessReason, b.Category,
		b.RelatedToMessageID, b.MaxSize, b.MessageCount, b.State, b.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", "open bundle already exists for grouping key")
		}
		return fmt.Errorf("failed to insert bundle: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertMessage(ctx context.Context, queueID, bundleID uuid.UUID, m *OutgoingMessage) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outgoing_messages (id, queue_id, bundle_id, document_type, business_reason,
			process_type, grid_area_code, related_to_message_id, external_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)
	`, m.ID, queueID, bundleID, m.DocumentType, m.BusinessReason,
		m.ProcessType, m.GridAreaCode, m.RelatedToMessageID, m.ExternalID, m.Payload, m.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).
				WithDetail("message", fmt.Sprintf("message with external id %q already enqueued", m.ExternalID))
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (t *postgresTx) BumpBundleCount(ctx context.Context, bundleID uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bundles
		SET message_count = message_count + 1
		WHERE id = $1 AND state = 'open' AND message_count < max_size
	`, bundleID)
	if err != nil {
		return fmt.Errorf("failed to bump bundle count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected != 1 {
		return ErrBundleClosed
	}
	return nil
}

func (t *postgresTx) OldestMessageCreatedAt(ctx context.Context, bundleID uuid.UUID) (time.Time, bool, error) {
	var oldest sql.NullTime
	err := t.tx.QueryRowContext(ctx, `
		SELECT MIN(created_at) FROM outgoing_messages WHERE bundle_id = $1
	`, bundleID).Scan(&oldest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read oldest message time: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, false, nil
	}
	return oldest.Time, true, nil
}

func (t *postgresTx) CloseBundle(ctx context.Context, bundleID uuid.UUID, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bundles
		SET state = 'closed', closed_at = $2
		WHERE id = $1 AND state = 'open'
	`, bundleID, at)
	if err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w: close of bundle %s", ErrInvalidTransition, bundleID)
	}
	return nil
}

func (t *postgresTx) ForceCloseOpenBundles(ctx context.Context, queueID uuid.UUID, category MessageCategory, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bundles
		SET state = 'closed', closed_at = $3
		WHERE queue_id = $1 AND category = $2 AND state = 'open'
	`, queueID, category, at)
	if err != nil {
		return 0, fmt.Errorf("failed to force-close open bundles: %w", err)
	}
	return res.RowsAffected()
}

func (t *postgresTx) LockOldestClosedBundle(ctx context.Context, queueID uuid.UUID, category MessageCategory) (*Bundle, error) {
	// Strict creation-order FIFO; content never influences ordering.
	return scanBundle(t.tx.QueryRowContext(ctx, `
		SELECT`+bundleColumns+`
		FROM bundles
		WHERE queue_id = $1 AND category = $2 AND state = 'closed'
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE
	`, queueID, category))
}

func (t *postgresTx) ListBundleMessages(ctx context.Context, bundleID uuid.UUID) ([]OutgoingMessage, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, document_type, business_reason, process_type,
			COALESCE(grid_area_code, ''), related_to_message_id, external_id, payload, created_at
		FROM outgoing_messages
		WHERE bundle_id = $1
		ORDER BY created_at, id
	`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle messages: %w", err)
	}
	defer rows.Close()

	var msgs []OutgoingMessage
	for rows.Next() {
		var m OutgoingMessage
		if err := rows.Scan(&m.ID, &m.DocumentType, &m.BusinessReason, &m.ProcessType,
			&m.GridAreaCode, &m.RelatedToMessageID, &m.ExternalID, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (t *postgresTx) GetMarketDocument(ctx context.Context, bundleID uuid.UUID) (*MarketDocument, error) {
	return getMarketDocument(ctx, t.tx, bundleID)
}

func (t *postgresTx) InsertMarketDocument(ctx context.Context, doc *MarketDocument) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO market_documents (bundle_id, content, archive_ref, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bundle_id) DO NOTHING
	`, doc.BundleID, doc.Content, doc.ArchiveRef, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert market document: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getMarketDocument(ctx context.Context, q rowQuerier, bundleID uuid.UUID) (*MarketDocument, error) {
	var doc MarketDocument
	err := q.QueryRowContext(ctx, `
		SELECT bundle_id, content, archive_ref, created_at
		FROM market_documents
		WHERE bundle_id = $1
	`, bundleID).Scan(&doc.BundleID, &doc.Content, &doc.ArchiveRef, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market document: %w", err)
	}
	return &doc, nil
}

func scanQueue(row *sql.Row) (*ActorMessageQueue, error) {
	var q ActorMessageQueue
	err := row.Scan(&q.ID, &q.Receiver.ActorNumber, &q.Receiver.ActorRole, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}
	return &q, nil
}

func scanBundle(row *sql.Row) (*Bundle, error) {
	var b Bundle
	err := row.Scan(&b.ID, &b.QueueID, &b.DocumentType, &b.BusinessReason, &b.Category,
		&b.RelatedToMessageID, &b.MaxSize, &b.MessageCount, &b.State,
		&b.CreatedAt, &b.ClosedAt, &b.DequeuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bundle: %w", err)
	}
	return &b, nil
}
