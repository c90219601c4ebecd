package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRole identifies the market role an actor acts in. An actor number may
// appear under several roles; each (number, role) pair owns its own queue.
type ActorRole string

const (
	RoleEnergySupplier           ActorRole = "energy_supplier"
	RoleGridAccessProvider       ActorRole = "grid_access_provider"
	RoleMeteredDataResponsible   ActorRole = "metered_data_responsible"
	RoleBalanceResponsibleParty  ActorRole = "balance_responsible_party"
	RoleSystemOperator           ActorRole = "system_operator"
	RoleMeteredDataAdministrator ActorRole = "metered_data_administrator"
	RoleDelegated                ActorRole = "delegated"
)

// Receiver pairs an actor number (GLN or EIC) with a role and identifies
// exactly one actor message queue.
type Receiver struct {
	ActorNumber string    `json:"actor_number"`
	ActorRole   ActorRole `json:"actor_role"`
}

func NewReceiver(number string, role ActorRole) Receiver {
	return Receiver{ActorNumber: number, ActorRole: role}
}

func (r Receiver) String() string {
	return fmt.Sprintf("%s/%s", r.ActorNumber, r.ActorRole)
}

// NormalizeQueueReceiver maps a receiver onto the identity of the queue it
// reads from. Metered data responsibles share the grid access provider
// queue; the split into two roles postdates the queue layout.
func NormalizeQueueReceiver(r Receiver) Receiver {
	if r.ActorRole == RoleMeteredDataResponsible {
		return Receiver{ActorNumber: r.ActorNumber, ActorRole: RoleGridAccessProvider}
	}
	return r
}

// DocumentType names the kind of market document a message belongs to.
type DocumentType string

const (
	DocumentNotifyAggregatedMeasureData        DocumentType = "NotifyAggregatedMeasureData"
	DocumentRejectRequestAggregatedMeasureData DocumentType = "RejectRequestAggregatedMeasureData"
	DocumentNotifyWholesaleServices            DocumentType = "NotifyWholesaleServices"
	DocumentRejectRequestWholesaleSettlement   DocumentType = "RejectRequestWholesaleSettlement"
	DocumentNotifyValidatedMeasureData         DocumentType = "NotifyValidatedMeasureData"
	DocumentAcknowledgement                    DocumentType = "Acknowledgement"
	DocumentReminderOfMissingMeasureData       DocumentType = "ReminderOfMissingMeasureData"
)

// MessageCategory is the coarse grouping actors peek by. A receiver can hold
// ready bundles in several categories at once.
type MessageCategory string

const (
	CategoryAggregations MessageCategory = "aggregations"
	CategoryWholesale    MessageCategory = "wholesale"
	CategoryMeasureData  MessageCategory = "measure_data"
)

// BusinessReason is the regulatory process the message was produced under.
type BusinessReason string

const (
	ReasonBalanceFixing    BusinessReason = "balance_fixing"
	ReasonWholesaleFixing  BusinessReason = "wholesale_fixing"
	ReasonPeriodicMetering BusinessReason = "periodic_metering"
	ReasonMoveIn           BusinessReason = "move_in"
	ReasonCorrection       BusinessReason = "correction"
)

// ProcessType names the business process that produced a message. Delegation
// grants are scoped by process type.
type ProcessType string

const (
	ProcessRequestEnergyResults    ProcessType = "request_energy_results"
	ProcessRequestWholesaleResults ProcessType = "request_wholesale_results"
	ProcessReceiveEnergyResults    ProcessType = "receive_energy_results"
	ProcessReceiveWholesaleResults ProcessType = "receive_wholesale_results"
	ProcessReceiveMeteredData      ProcessType = "receive_metered_data"
	ProcessMissingMeasurementLog   ProcessType = "missing_measurement_log"
)

// OutgoingMessage is an immutable unit of content produced by a business
// process, addressed to one receiver. ExternalID carries the originating
// event id and deduplicates upstream redeliveries per queue.
type OutgoingMessage struct {
	ID                 uuid.UUID
	Receiver           Receiver
	DocumentType       DocumentType
	BusinessReason     BusinessReason
	ProcessType        ProcessType
	GridAreaCode       string
	RelatedToMessageID *uuid.UUID
	ExternalID         string
	Payload            []byte
	CreatedAt          time.Time
}

// IsResponseToOwnRequest reports whether the message answers a request the
// receiver itself made. Such messages must reach the original requester and
// are exempt from delegation.
func (m *OutgoingMessage) IsResponseToOwnRequest() bool {
	return m.RelatedToMessageID != nil
}

func (m *OutgoingMessage) Validate() error {
	if m.Receiver.ActorNumber == "" || m.Receiver.ActorRole == "" {
		return errors.New("receiver actor number and role are required")
	}
	if m.DocumentType == "" {
		return errors.New("document type is required")
	}
	if m.BusinessReason == "" {
		return errors.New("business reason is required")
	}
	if m.ExternalID == "" {
		return errors.New("external id is required")
	}
	if len(m.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// ActorMessageQueue is the per-receiver queue. It holds no messages itself;
// membership is derived from bundles and messages keyed by queue id.
type ActorMessageQueue struct {
	ID        uuid.UUID
	Receiver  Receiver
	CreatedAt time.Time
}

func NewActorMessageQueue(receiver Receiver) *ActorMessageQueue {
	return &ActorMessageQueue{
		ID:        uuid.New(),
		Receiver:  receiver,
		CreatedAt: time.Now().UTC(),
	}
}

// GroupingKey is the bundle membership key: every message in a bundle shares
// it. RelatedToMessageID separates responses to distinct requests.
type GroupingKey struct {
	QueueID            uuid.UUID
	DocumentType       DocumentType
	BusinessReason     BusinessReason
	RelatedToMessageID *uuid.UUID
}

func (k GroupingKey) Matches(other GroupingKey) bool {
	if k.QueueID != other.QueueID ||
		k.DocumentType != other.DocumentType ||
		k.BusinessReason != other.BusinessReason {
		return false
	}
	switch {
	case k.RelatedToMessageID == nil && other.RelatedToMessageID == nil:
		return true
	case k.RelatedToMessageID != nil && other.RelatedToMessageID != nil:
		return *k.RelatedToMessageID == *other.RelatedToMessageID
	default:
		return false
	}
}

// BundleState is the bundle lifecycle: open -> closed -> dequeued.
// Peeking is not a state; document materialization is idempotent.
type BundleState string

const (
	BundleOpen     BundleState = "open"
	BundleClosed   BundleState = "closed"
	BundleDequeued BundleState = "dequeued"
)

// CloseReason records why a bundle stopped accepting messages.
type CloseReason string

const (
	CloseReasonFull CloseReason = "full"
	CloseReasonAged CloseReason = "aged"
	CloseReasonPeek CloseReason = "peek"
)

// Bundle is a capped, insertion-ordered batch of outgoing messages awaiting
// delivery to one actor. At most one bundle per grouping key is open at a
// time; the store enforces that with a partial unique index.
type Bundle struct {
	ID                 uuid.UUID
	QueueID            uuid.UUID
	DocumentType       DocumentType
	BusinessReason     BusinessReason
	Category           MessageCategory
	RelatedToMessageID *uuid.UUID
	MaxSize            int
	MessageCount       int
	State              BundleState
	CreatedAt          time.Time
	ClosedAt           *time.Time
	DequeuedAt         *time.Time
}

var (
	ErrBundleClosed        = errors.New("bundle no longer accepts messages")
	ErrBundleFull          = errors.New("bundle is at max size")
	ErrGroupingKeyMismatch = errors.New("message grouping key does not match bundle")
	ErrInvalidTransition   = errors.New("invalid bundle state transition")
	ErrUnknownCategory     = errors.New("unknown message category")
)

func NewBundle(key GroupingKey, category MessageCategory, maxSize int) *Bundle {
	return &Bundle{
		ID:                 uuid.New(),
		QueueID:            key.QueueID,
		DocumentType:       key.DocumentType,
		BusinessReason:     key.BusinessReason,
		Category:           category,
		RelatedToMessageID: key.RelatedToMessageID,
		MaxSize:            maxSize,
		MessageCount:       0,
		State:              BundleOpen,
		CreatedAt:          time.Now().UTC(),
	}
}

func (b *Bundle) Key() GroupingKey {
	return GroupingKey{
		QueueID:            b.QueueID,
		DocumentType:       b.DocumentType,
		BusinessReason:     b.BusinessReason,
		RelatedToMessageID: b.RelatedToMessageID,
	}
}

// Accepts reports whether the message may join the bundle. A violation of
// the grouping key is a data-integrity fault in the caller, not a normal
// "bundle full" outcome, so the two get distinct errors.
func (b *Bundle) Accepts(m *OutgoingMessage, key GroupingKey) error {
	if b.State != BundleOpen {
		return ErrBundleClosed
	}
	if b.MessageCount >= b.MaxSize {
		return ErrBundleFull
	}
	if !b.Key().Matches(key) {
		return fmt.Errorf("%w: bundle %s, message %s", ErrGroupingKeyMismatch, b.ID, m.ID)
	}
	return nil
}

func (b *Bundle) IsFull() bool {
	return b.MessageCount >= b.MaxSize
}

// Close transitions open -> closed. Closing twice is a transition error.
func (b *Bundle) Close(at time.Time) error {
	if b.State != BundleOpen {
		return fmt.Errorf("%w: close from %s", ErrInvalidTransition, b.State)
	}
	b.State = BundleClosed
	b.ClosedAt = &at
	return nil
}

// MarkDequeued transitions closed -> dequeued, the terminal state.
func (b *Bundle) MarkDequeued(at time.Time) error {
	if b.State != BundleClosed {
		return fmt.Errorf("%w: dequeue from %s", ErrInvalidTransition, b.State)
	}
	b.State = BundleDequeued
	b.DequeuedAt = &at
	return nil
}

// MarketDocument is the rendered byte stream for one bundle, created at most
// once and reused by every subsequent peek.
type MarketDocument struct {
	BundleID   uuid.UUID
	Content    []byte
	ArchiveRef string
	CreatedAt  time.Time
}

// ParseBundleID parses the opaque identifier an actor supplies on dequeue.
// The bool result distinguishes "malformed" from a valid id; a malformed id
// is a normal failure, never an error.
func ParseBundleID(opaque string) (uuid.UUID, bool) {
	id, err := uuid.Parse(opaque)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
