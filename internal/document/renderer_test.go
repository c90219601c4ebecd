package document

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/outbox"
)

func testHeader() outbox.DocumentHeader {
	return outbox.DocumentHeader{
		MessageID:      uuid.MustParse("7f6f1a8a-0000-4000-8000-000000000001"),
		DocumentType:   outbox.DocumentNotifyAggregatedMeasureData,
		BusinessReason: outbox.ReasonBalanceFixing,
		Sender:         outbox.NewReceiver("5790001330552", outbox.RoleMeteredDataAdministrator),
		Receiver:       outbox.NewReceiver("5790000000001", outbox.RoleEnergySupplier),
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestJSONEnvelopeRenderer_Deterministic(t *testing.T) {
	r := &JSONEnvelopeRenderer{}
	header := testHeader()
	payloads := [][]byte{[]byte(`{"point":1}`), []byte(`{"point":2}`)}

	first, err := r.Render(context.Background(), header, payloads)
	require.NoError(t, err)

	second, err := r.Render(context.Background(), header, payloads)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestJSONEnvelopeRenderer_HeaderFields(t *testing.T) {
	r := &JSONEnvelopeRenderer{}
	header := testHeader()

	content, err := r.Render(context.Background(), header, [][]byte{[]byte(`{}`)})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &got))

	assert.Equal(t, header.MessageID.String(), got["message_id"])
	assert.Equal(t, "NotifyAggregatedMeasureData", got["document_type"])
	assert.Equal(t, "balance_fixing", got["business_reason"])
	assert.Equal(t, "5790001330552", got["sender_number"])
	assert.Equal(t, "metered_data_administrator", got["sender_role"])
	assert.Equal(t, "5790000000001", got["receiver_number"])
	assert.Equal(t, "energy_supplier", got["receiver_role"])
	assert.Len(t, got["series"], 1)
	_, hasRelated := got["related_to_message_id"]
	assert.False(t, hasRelated)
}

func TestJSONEnvelopeRenderer_RelatedToMessageID(t *testing.T) {
	r := &JSONEnvelopeRenderer{}
	header := testHeader()
	related := uuid.New()
	header.RelatedToMessageID = &related

	content, err := r.Render(context.Background(), header, nil)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &got))
	assert.Equal(t, related.String(), got["related_to_message_id"])
}

type stubRenderer struct{}

func (stubRenderer) Render(context.Context, outbox.DocumentHeader, [][]byte) ([]byte, error) {
	return []byte("stub"), nil
}

func TestFactory_For(t *testing.T) {
	f := NewFactory()

	// Unregistered types fall back to the JSON envelope.
	_, ok := f.For(outbox.DocumentAcknowledgement).(*JSONEnvelopeRenderer)
	assert.True(t, ok)

	f.Register(outbox.DocumentNotifyValidatedMeasureData, stubRenderer{})
	content, err := f.For(outbox.DocumentNotifyValidatedMeasureData).Render(context.Background(), testHeader(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("stub"), content)
}
