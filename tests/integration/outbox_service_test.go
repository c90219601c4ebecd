package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/archive"
	"edihub/internal/document"
	"edihub/internal/outbox"
)

func newTestService(t *testing.T, infra *TestInfra, opts ...outbox.ServiceOption) (*outbox.Service, outbox.Store) {
	t.Helper()

	store := outbox.NewPostgresStore(infra.PostgresDB)
	policies, err := outbox.NewPolicyTable()
	require.NoError(t, err)

	archiver := archive.NewMongoStore(infra.MongoDB, "")
	require.NoError(t, archiver.EnsureIndexes(context.Background()))

	svc := outbox.NewService(store, policies, document.NewFactory(), archiver, testSender, createTestLogger(), opts...)
	return svc, store
}

func decodeDocument(t *testing.T, content []byte) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &doc))
	return doc
}

func TestOutboxService_Enqueue_Idempotent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, _ := newTestService(t, infra)
	receiver := testReceiver(1)

	first := createTestMessage(receiver, "ext-1")
	firstID, err := svc.Enqueue(ctx, first)
	require.NoError(t, err)

	retry := createTestMessage(receiver, "ext-1")
	retryID, err := svc.Enqueue(ctx, retry)
	require.NoError(t, err)

	assert.Equal(t, firstID, retryID)
}

func TestOutboxService_Enqueue_RedisGuard(t *testing.T) {
	infra := SetupTestInfra(t)

	ctx := context.Background()
	guard := outbox.NewRedisIdempotencyGuard(infra.RedisClient, testIdempotencyConfig(), createTestLogger())
	svc, _ := newTestService(t, infra, outbox.WithIdempotencyGuard(guard))
	receiver := testReceiver(2)

	firstID, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-guarded"))
	require.NoError(t, err)

	retryID, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-guarded"))
	require.NoError(t, err)
	assert.Equal(t, firstID, retryID)

	otherID, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-other"))
	require.NoError(t, err)
	assert.NotEqual(t, firstID, otherID)
}

func TestOutboxService_Peek_EmptyQueue(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	svc, _ := newTestService(t, infra)

	result, err := svc.Peek(context.Background(), testReceiver(3), outbox.CategoryAggregations)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestOutboxService_Peek_UnknownCategory(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	svc, _ := newTestService(t, infra)

	_, err := svc.Peek(context.Background(), testReceiver(4), outbox.MessageCategory("bogus"))
	require.Error(t, err)
}

func TestOutboxService_Peek_Idempotent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, _ := newTestService(t, infra)
	receiver := testReceiver(5)

	_, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-a"))
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, createTestMessage(receiver, "ext-b"))
	require.NoError(t, err)

	first, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.BundleID, second.BundleID)
	assert.Equal(t, first.Content, second.Content)

	doc := decodeDocument(t, first.Content)
	series := doc["series"].([]interface{})
	assert.Len(t, series, 2)
	assert.Equal(t, testSender.ActorNumber, doc["sender_number"])
	assert.Equal(t, receiver.ActorNumber, doc["receiver_number"])
}

func TestOutboxService_FullBundleRollsOver(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, _ := newTestService(t, infra)
	receiver := testReceiver(6)

	// Aggregation bundles cap at six messages; the seventh starts a new one.
	for i := 0; i < 7; i++ {
		_, err := svc.Enqueue(ctx, createTestMessage(receiver, fmt.Sprintf("ext-%d", i)))
		require.NoError(t, err)
	}

	first, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, first)
	firstDoc := decodeDocument(t, first.Content)
	assert.Len(t, firstDoc["series"].([]interface{}), 6)

	removed, err := svc.Dequeue(ctx, first.BundleID)
	require.NoError(t, err)
	require.True(t, removed)

	second, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotEqual(t, first.BundleID, second.BundleID)
	secondDoc := decodeDocument(t, second.Content)
	assert.Len(t, secondDoc["series"].([]interface{}), 1)
}

func TestOutboxService_Peek_FIFOAcrossBundles(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, _ := newTestService(t, infra)
	receiver := testReceiver(7)

	older := createTestMessage(receiver, "ext-older")
	_, err := svc.Enqueue(ctx, older)
	require.NoError(t, err)

	time.Sleep(timestampDelay)

	// Different document type, same category: lands in its own bundle.
	rejection := createTestMessage(receiver, "ext-rejection")
	rejection.DocumentType = outbox.DocumentRejectRequestAggregatedMeasureData
	_, err = svc.Enqueue(ctx, rejection)
	require.NoError(t, err)

	first, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, first)
	firstDoc := decodeDocument(t, first.Content)
	assert.Equal(t, string(outbox.DocumentNotifyAggregatedMeasureData), firstDoc["document_type"])

	removed, err := svc.Dequeue(ctx, first.BundleID)
	require.NoError(t, err)
	require.True(t, removed)

	second, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, second)
	secondDoc := decodeDocument(t, second.Content)
	assert.Equal(t, string(outbox.DocumentRejectRequestAggregatedMeasureData), secondDoc["document_type"])
}

func TestOutboxService_Dequeue(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, _ := newTestService(t, infra)
	receiver := testReceiver(8)

	_, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-1"))
	require.NoError(t, err)

	result, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, result)

	removed, err := svc.Dequeue(ctx, result.BundleID)
	require.NoError(t, err)
	assert.True(t, removed)

	// Second acknowledgement of the same bundle is a no-op.
	removed, err = svc.Dequeue(ctx, result.BundleID)
	require.NoError(t, err)
	assert.False(t, removed)

	after, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	assert.Nil(t, after)
}

func TestOutboxService_Dequeue_MalformedID(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	svc, _ := newTestService(t, infra)

	removed, err := svc.Dequeue(context.Background(), "not-a-bundle-id")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = svc.Dequeue(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestOutboxService_CategoriesAreSeparate(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, _ := newTestService(t, infra)
	receiver := testReceiver(9)

	wholesale := createTestMessage(receiver, "ext-wholesale")
	wholesale.DocumentType = outbox.DocumentNotifyWholesaleServices
	wholesale.BusinessReason = outbox.ReasonWholesaleFixing
	_, err := svc.Enqueue(ctx, wholesale)
	require.NoError(t, err)

	aggregations, err := svc.Peek(ctx, receiver, outbox.CategoryAggregations)
	require.NoError(t, err)
	assert.Nil(t, aggregations)

	result, err := svc.Peek(ctx, receiver, outbox.CategoryWholesale)
	require.NoError(t, err)
	require.NotNil(t, result)
}
