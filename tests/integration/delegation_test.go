package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/delegation"
	"edihub/internal/outbox"
)

func insertDelegation(t *testing.T, infra *TestInfra, from, to outbox.Receiver, gridArea string, process outbox.ProcessType, seq int) {
	t.Helper()

	_, err := infra.PostgresDB.Exec(`
		INSERT INTO delegations (id, delegated_by_number, delegated_by_role, delegated_to_number, delegated_to_role,
			process_type, grid_area_code, sequence_number, starts_at, stops_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.New(), from.ActorNumber, from.ActorRole, to.ActorNumber, to.ActorRole,
		process, gridArea, seq, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
}

func TestDelegation_RewritesReceiver(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	original := testReceiver(30)
	delegated := outbox.Receiver{ActorNumber: "5790009999999", ActorRole: outbox.RoleDelegated}
	insertDelegation(t, infra, original, delegated, "543", outbox.ProcessReceiveEnergyResults, 1)

	resolver := delegation.NewResolver(delegation.NewRepository(infra.PostgresDB), true, createTestLogger())
	svc, _ := newTestService(t, infra, outbox.WithDelegation(resolver))

	_, err := svc.Enqueue(ctx, createTestMessage(original, "ext-delegated"))
	require.NoError(t, err)

	// The grant moves the bundle to the delegated actor's queue.
	fromOriginal, err := svc.Peek(ctx, original, outbox.CategoryAggregations)
	require.NoError(t, err)
	assert.Nil(t, fromOriginal)

	fromDelegated, err := svc.Peek(ctx, delegated, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, fromDelegated)

	doc := decodeDocument(t, fromDelegated.Content)
	assert.Equal(t, delegated.ActorNumber, doc["receiver_number"])
}

func TestDelegation_OwnRequestExempt(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	original := testReceiver(31)
	delegated := outbox.Receiver{ActorNumber: "5790009999998", ActorRole: outbox.RoleDelegated}
	insertDelegation(t, infra, original, delegated, "543", outbox.ProcessReceiveEnergyResults, 1)

	resolver := delegation.NewResolver(delegation.NewRepository(infra.PostgresDB), true, createTestLogger())
	svc, _ := newTestService(t, infra, outbox.WithDelegation(resolver))

	requestID := uuid.New()
	msg := createTestMessage(original, "ext-own-request")
	msg.RelatedToMessageID = &requestID

	_, err := svc.Enqueue(ctx, msg)
	require.NoError(t, err)

	// A response to the actor's own request ignores the grant.
	fromOriginal, err := svc.Peek(ctx, original, outbox.CategoryAggregations)
	require.NoError(t, err)
	require.NotNil(t, fromOriginal)

	fromDelegated, err := svc.Peek(ctx, delegated, outbox.CategoryAggregations)
	require.NoError(t, err)
	assert.Nil(t, fromDelegated)
}

func TestDelegation_ExpiredGrantIgnored(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	original := testReceiver(32)
	delegated := outbox.Receiver{ActorNumber: "5790009999997", ActorRole: outbox.RoleDelegated}

	_, err := infra.PostgresDB.Exec(`
		INSERT INTO delegations (id, delegated_by_number, delegated_by_role, delegated_to_number, delegated_to_role,
			process_type, grid_area_code, sequence_number, starts_at, stops_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.New(), original.ActorNumber, original.ActorRole, delegated.ActorNumber, delegated.ActorRole,
		outbox.ProcessReceiveEnergyResults, "543", 1, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	resolver := delegation.NewResolver(delegation.NewRepository(infra.PostgresDB), true, createTestLogger())
	svc, _ := newTestService(t, infra, outbox.WithDelegation(resolver))

	_, err = svc.Enqueue(ctx, createTestMessage(original, "ext-expired"))
	require.NoError(t, err)

	fromOriginal, err := svc.Peek(ctx, original, outbox.CategoryAggregations)
	require.NoError(t, err)
	assert.NotNil(t, fromOriginal)
}
