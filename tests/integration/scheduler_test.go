package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/outbox"
)

func newTestScheduler(t *testing.T, store outbox.Store, now func() time.Time) *outbox.Scheduler {
	t.Helper()

	policies, err := outbox.NewPolicyTable()
	require.NoError(t, err)

	opts := []outbox.SchedulerOption{}
	if now != nil {
		opts = append(opts, outbox.WithSchedulerClock(now))
	}
	return outbox.NewScheduler(store, policies, createTestLogger(), time.Hour, 2, opts...)
}

func TestScheduler_ClosesFullBundle(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, store := newTestService(t, infra)
	receiver := testReceiver(20)

	for i := 0; i < 6; i++ {
		_, err := svc.Enqueue(ctx, createTestMessage(receiver, fmt.Sprintf("ext-%d", i)))
		require.NoError(t, err)
	}

	open, err := store.ListOpenBundles(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	newTestScheduler(t, store, nil).RunOnce(ctx)

	open, err = store.ListOpenBundles(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestScheduler_ClosesAgedBundle(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, store := newTestService(t, infra)
	receiver := testReceiver(21)

	_, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-aged"))
	require.NoError(t, err)

	// Under the flush threshold: nothing to close yet.
	newTestScheduler(t, store, nil).RunOnce(ctx)
	open, err := store.ListOpenBundles(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	// Past the threshold the partial bundle flushes.
	future := func() time.Time { return time.Now().Add(2 * time.Minute) }
	newTestScheduler(t, store, future).RunOnce(ctx)
	open, err = store.ListOpenBundles(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestScheduler_LeavesFreshPartialBundleOpen(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	ctx := context.Background()
	svc, store := newTestService(t, infra)
	receiver := testReceiver(22)

	_, err := svc.Enqueue(ctx, createTestMessage(receiver, "ext-fresh"))
	require.NoError(t, err)

	newTestScheduler(t, store, nil).RunOnce(ctx)

	open, err := store.ListOpenBundles(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
