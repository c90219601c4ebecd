package delegation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/logger"
	"edihub/internal/outbox"
	pkgerrors "edihub/pkg/errors"
)

type fakeRepository struct {
	delegation *Delegation
	err        error
	calls      int
}

func (f *fakeRepository) GetDelegationFor(_ context.Context, _ outbox.Receiver, _ string, _ outbox.ProcessType, _ time.Time) (*Delegation, error) {
	f.calls++
	return f.delegation, f.err
}

func delegableMessage() *outbox.OutgoingMessage {
	return &outbox.OutgoingMessage{
		ID:             uuid.New(),
		Receiver:       outbox.NewReceiver("5790000000001", outbox.RoleGridAccessProvider),
		DocumentType:   outbox.DocumentNotifyAggregatedMeasureData,
		BusinessReason: outbox.ReasonBalanceFixing,
		ProcessType:    outbox.ProcessReceiveEnergyResults,
		GridAreaCode:   "543",
		ExternalID:     "evt-1",
		Payload:        []byte(`{}`),
	}
}

func TestResolver_Disabled(t *testing.T) {
	repo := &fakeRepository{}
	resolver := NewResolver(repo, false, logger.NopLogger())

	msg := delegableMessage()
	got, err := resolver.Resolve(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.Receiver, got)
	assert.Zero(t, repo.calls)
}

func TestResolver_OwnRequestExempt(t *testing.T) {
	delegate := outbox.NewReceiver("5790000000099", outbox.RoleDelegated)
	repo := &fakeRepository{delegation: &Delegation{DelegatedTo: delegate}}
	resolver := NewResolver(repo, true, logger.NopLogger())

	msg := delegableMessage()
	related := uuid.New()
	msg.RelatedToMessageID = &related

	got, err := resolver.Resolve(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.Receiver, got)
	assert.Zero(t, repo.calls)
}

func TestResolver_NonDelegableProcess(t *testing.T) {
	repo := &fakeRepository{delegation: &Delegation{}}
	resolver := NewResolver(repo, true, logger.NopLogger())

	msg := delegableMessage()
	msg.ProcessType = outbox.ProcessRequestEnergyResults

	got, err := resolver.Resolve(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.Receiver, got)
	assert.Zero(t, repo.calls)
}

func TestResolver_MissingGridArea(t *testing.T) {
	repo := &fakeRepository{}
	resolver := NewResolver(repo, true, logger.NopLogger())

	msg := delegableMessage()
	msg.GridAreaCode = ""

	_, err := resolver.Resolve(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Zero(t, repo.calls)
}

func TestResolver_GrantApplied(t *testing.T) {
	delegate := outbox.NewReceiver("5790000000099", outbox.RoleDelegated)
	repo := &fakeRepository{delegation: &Delegation{
		ID:           uuid.New(),
		DelegatedBy:  outbox.NewReceiver("5790000000001", outbox.RoleGridAccessProvider),
		DelegatedTo:  delegate,
		GridAreaCode: "543",
		ProcessType:  outbox.ProcessReceiveEnergyResults,
	}}
	resolver := NewResolver(repo, true, logger.NopLogger())

	got, err := resolver.Resolve(context.Background(), delegableMessage())
	require.NoError(t, err)
	assert.Equal(t, delegate, got)
	assert.Equal(t, 1, repo.calls)
}

func TestResolver_NoGrant(t *testing.T) {
	repo := &fakeRepository{}
	resolver := NewResolver(repo, true, logger.NopLogger())

	msg := delegableMessage()
	got, err := resolver.Resolve(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.Receiver, got)
	assert.Equal(t, 1, repo.calls)
}

func TestResolver_RepoError(t *testing.T) {
	repo := &fakeRepository{err: errors.New("connection refused")}
	resolver := NewResolver(repo, true, logger.NopLogger())

	_, err := resolver.Resolve(context.Background(), delegableMessage())
	require.Error(t, err)
	assert.ErrorContains(t, err, "delegation lookup")
}

func TestDelegation_IsActiveAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	stop := start.AddDate(0, 1, 0)
	d := &Delegation{StartsAt: start, StopsAt: stop}

	assert.False(t, d.IsActiveAt(start.Add(-time.Second)))
	assert.True(t, d.IsActiveAt(start))
	assert.True(t, d.IsActiveAt(start.Add(time.Hour)))
	assert.False(t, d.IsActiveAt(stop))
}
