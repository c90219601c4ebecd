package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMessage() *OutgoingMessage {
	return &OutgoingMessage{
		ID:             uuid.New(),
		Receiver:       NewReceiver("5790000000001", RoleEnergySupplier),
		DocumentType:   DocumentNotifyAggregatedMeasureData,
		BusinessReason: ReasonBalanceFixing,
		ProcessType:    ProcessReceiveEnergyResults,
		GridAreaCode:   "543",
		ExternalID:     "evt-1",
		Payload:        []byte(`{}`),
		CreatedAt:      time.Now().UTC(),
	}
}

func TestNormalizeQueueReceiver(t *testing.T) {
	tests := []struct {
		name     string
		receiver Receiver
		want     Receiver
	}{
		{
			name:     "metered data responsible shares grid access provider queue",
			receiver: NewReceiver("5790000000001", RoleMeteredDataResponsible),
			want:     NewReceiver("5790000000001", RoleGridAccessProvider),
		},
		{
			name:     "energy supplier unchanged",
			receiver: NewReceiver("5790000000001", RoleEnergySupplier),
			want:     NewReceiver("5790000000001", RoleEnergySupplier),
		},
		{
			name:     "grid access provider unchanged",
			receiver: NewReceiver("5790000000001", RoleGridAccessProvider),
			want:     NewReceiver("5790000000001", RoleGridAccessProvider),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQueueReceiver(tt.receiver))
		})
	}
}

func TestOutgoingMessage_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*OutgoingMessage)
		wantError bool
	}{
		{name: "valid", mutate: func(*OutgoingMessage) {}},
		{name: "missing actor number", mutate: func(m *OutgoingMessage) { m.Receiver.ActorNumber = "" }, wantError: true},
		{name: "missing role", mutate: func(m *OutgoingMessage) { m.Receiver.ActorRole = "" }, wantError: true},
		{name: "missing document type", mutate: func(m *OutgoingMessage) { m.DocumentType = "" }, wantError: true},
		{name: "missing business reason", mutate: func(m *OutgoingMessage) { m.BusinessReason = "" }, wantError: true},
		{name: "missing external id", mutate: func(m *OutgoingMessage) { m.ExternalID = "" }, wantError: true},
		{name: "empty payload", mutate: func(m *OutgoingMessage) { m.Payload = nil }, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(msg)
			err := msg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutgoingMessage_IsResponseToOwnRequest(t *testing.T) {
	msg := validMessage()
	assert.False(t, msg.IsResponseToOwnRequest())

	related := uuid.New()
	msg.RelatedToMessageID = &related
	assert.True(t, msg.IsResponseToOwnRequest())
}

func TestGroupingKey_Matches(t *testing.T) {
	queueID := uuid.New()
	related := uuid.New()
	base := GroupingKey{
		QueueID:        queueID,
		DocumentType:   DocumentNotifyAggregatedMeasureData,
		BusinessReason: ReasonBalanceFixing,
	}

	tests := []struct {
		name  string
		other GroupingKey
		want  bool
	}{
		{name: "identical", other: base, want: true},
		{
			name: "different queue",
			other: GroupingKey{
				QueueID:        uuid.New(),
				DocumentType:   base.DocumentType,
				BusinessReason: base.BusinessReason,
			},
		},
		{
			name: "different document type",
			other: GroupingKey{
				QueueID:        queueID,
				DocumentType:   DocumentNotifyWholesaleServices,
				BusinessReason: base.BusinessReason,
			},
		},
		{
			name: "different business reason",
			other: GroupingKey{
				QueueID:        queueID,
				DocumentType:   base.DocumentType,
				BusinessReason: ReasonCorrection,
			},
		},
		{
			name: "related id on one side only",
			other: GroupingKey{
				QueueID:            queueID,
				DocumentType:       base.DocumentType,
				BusinessReason:     base.BusinessReason,
				RelatedToMessageID: &related,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Matches(tt.other))
		})
	}

	t.Run("matching related ids", func(t *testing.T) {
		a := base
		b := base
		idA := related
		idB := related
		a.RelatedToMessageID = &idA
		b.RelatedToMessageID = &idB
		assert.True(t, a.Matches(b))
	})
}

func TestBundle_Lifecycle(t *testing.T) {
	key := GroupingKey{
		QueueID:        uuid.New(),
		DocumentType:   DocumentNotifyAggregatedMeasureData,
		BusinessReason: ReasonBalanceFixing,
	}
	b := NewBundle(key, CategoryAggregations, 2)
	now := time.Now().UTC()

	assert.Equal(t, BundleOpen, b.State)
	assert.False(t, b.IsFull())

	msg := validMessage()
	require.NoError(t, b.Accepts(msg, key))

	b.MessageCount = 2
	assert.True(t, b.IsFull())
	assert.ErrorIs(t, b.Accepts(msg, key), ErrBundleFull)

	// Dequeue straight from open is not a legal transition.
	assert.ErrorIs(t, b.MarkDequeued(now), ErrInvalidTransition)

	require.NoError(t, b.Close(now))
	assert.Equal(t, BundleClosed, b.State)
	require.NotNil(t, b.ClosedAt)
	assert.ErrorIs(t, b.Accepts(msg, key), ErrBundleClosed)
	assert.ErrorIs(t, b.Close(now), ErrInvalidTransition)

	require.NoError(t, b.MarkDequeued(now))
	assert.Equal(t, BundleDequeued, b.State)
	require.NotNil(t, b.DequeuedAt)
	assert.ErrorIs(t, b.MarkDequeued(now), ErrInvalidTransition)
}

func TestBundle_Accepts_KeyMismatch(t *testing.T) {
	key := GroupingKey{
		QueueID:        uuid.New(),
		DocumentType:   DocumentNotifyAggregatedMeasureData,
		BusinessReason: ReasonBalanceFixing,
	}
	b := NewBundle(key, CategoryAggregations, 6)

	other := key
	other.BusinessReason = ReasonCorrection
	assert.ErrorIs(t, b.Accepts(validMessage(), other), ErrGroupingKeyMismatch)
}

func TestParseBundleID(t *testing.T) {
	id := uuid.New()

	parsed, ok := ParseBundleID(id.String())
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	_, ok = ParseBundleID("not-a-uuid")
	assert.False(t, ok)

	_, ok = ParseBundleID("")
	assert.False(t, ok)
}
