package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
)

type reconcilerFixture struct {
	cursors    *repository.MemoryCursorsRepository
	orders     *repository.MemoryOrdersRepository
	flags      *MemoryDriftFlags
	reconciler *CursorReconciler
}

func newReconcilerFixture(autoReset bool) *reconcilerFixture {
	f := &reconcilerFixture{
		cursors: repository.NewMemoryCursorsRepository(),
		orders:  repository.NewMemoryOrdersRepository(),
		flags:   NewMemoryDriftFlags(),
	}
	f.reconciler = NewCursorReconciler(f.cursors, f.orders, f.flags, autoReset, zap.NewNop())
	return f
}

func TestAdvance_CreatesCursorWhenMissing(t *testing.T) {
	f := newReconcilerFixture(false)

	require.NoError(t, f.reconciler.Advance(context.Background(), "t1", domain.JobNewOrders, "ORD-100"))

	cursor, err := f.cursors.GetCursor(context.Background(), "t1", domain.JobNewOrders)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "ORD-100", cursor.LastExternalID)
}

func TestAdvance_IsMonotonic(t *testing.T) {
	f := newReconcilerFixture(false)
	ctx := context.Background()

	require.NoError(t, f.reconciler.Advance(ctx, "t1", domain.JobNewOrders, "100"))
	// 更小或相等的值不回退游标
	require.NoError(t, f.reconciler.Advance(ctx, "t1", domain.JobNewOrders, "99"))
	require.NoError(t, f.reconciler.Advance(ctx, "t1", domain.JobNewOrders, "100"))

	cursor, err := f.cursors.GetCursor(ctx, "t1", domain.JobNewOrders)
	require.NoError(t, err)
	assert.Equal(t, "100", cursor.LastExternalID)

	require.NoError(t, f.reconciler.Advance(ctx, "t1", domain.JobNewOrders, "101"))
	cursor, err = f.cursors.GetCursor(ctx, "t1", domain.JobNewOrders)
	require.NoError(t, err)
	assert.Equal(t, "101", cursor.LastExternalID)
}

func TestAdvance_EmptyValueIsNoop(t *testing.T) {
	f := newReconcilerFixture(false)

	require.NoError(t, f.reconciler.Advance(context.Background(), "t1", domain.JobNewOrders, ""))
	cursor, err := f.cursors.GetCursor(context.Background(), "t1", domain.JobNewOrders)
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestAdvance_AbandonsOnConcurrentModification(t *testing.T) {
	f := newReconcilerFixture(false)
	ctx := context.Background()

	require.NoError(t, f.cursors.CreateCursor(ctx, &domain.SyncCursor{
		TenantID: "t1", JobType: domain.JobNewOrders, LastExternalID: "50",
	}))
	cursor, err := f.cursors.GetCursor(ctx, "t1", domain.JobNewOrders)
	require.NoError(t, err)

	// 另一个写者先动了游标：CAS 未命中，放弃推进
	ok, err := f.cursors.UpdateCursorCAS(ctx, "t1", domain.JobNewOrders, "60", cursor.UpdatedAt)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.cursors.UpdateCursorCAS(ctx, "t1", domain.JobNewOrders, "55", cursor.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, ok)

	current, err := f.cursors.GetCursor(ctx, "t1", domain.JobNewOrders)
	require.NoError(t, err)
	assert.Equal(t, "60", current.LastExternalID)
}

func TestReset_RewindsCursorAndClearsFlag(t *testing.T) {
	f := newReconcilerFixture(false)
	ctx := context.Background()

	require.NoError(t, f.reconciler.Advance(ctx, "t1", domain.JobNewOrders, "200"))
	require.NoError(t, f.flags.FlagDrift(ctx, "t1", "test drift"))

	require.NoError(t, f.reconciler.Reset(ctx, "t1", domain.JobNewOrders, "150"))

	cursor, err := f.cursors.GetCursor(ctx, "t1", domain.JobNewOrders)
	require.NoError(t, err)
	assert.Equal(t, "150", cursor.LastExternalID)

	flagged, _, err := f.flags.GetDrift(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestCheckDrift_FlagsWhenLocalExceedsUpstream(t *testing.T) {
	f := newReconcilerFixture(false)
	tenant := testTenant("t1", "shop-one")

	f.orders.InjectOrder(&domain.Order{
		TenantID: "t1", ExternalID: "150", Status: domain.StatusPending, CreatedAt: time.Now(),
	})
	client := newFakeStoreClient(rawOrder("120", "pending"))

	err := f.reconciler.CheckDrift(context.Background(), tenant, client)
	require.ErrorIs(t, err, ErrDriftDetected)

	flagged, note, err := f.flags.GetDrift(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, flagged)
	assert.Contains(t, note, "150")
}

func TestCheckDrift_NoDriftWhenUpstreamAhead(t *testing.T) {
	f := newReconcilerFixture(false)
	tenant := testTenant("t1", "shop-one")

	f.orders.InjectOrder(&domain.Order{
		TenantID: "t1", ExternalID: "100", Status: domain.StatusPending, CreatedAt: time.Now(),
	})
	client := newFakeStoreClient(rawOrder("120", "pending"))

	require.NoError(t, f.reconciler.CheckDrift(context.Background(), tenant, client))

	flagged, _, err := f.flags.GetDrift(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestCheckDrift_AutoResetRewindsToUpstreamMax(t *testing.T) {
	f := newReconcilerFixture(true)
	ctx := context.Background()
	tenant := testTenant("t1", "shop-one")

	require.NoError(t, f.reconciler.Advance(ctx, "t1", domain.JobNewOrders, "150"))
	f.orders.InjectOrder(&domain.Order{
		TenantID: "t1", ExternalID: "150", Status: domain.StatusPending, CreatedAt: time.Now(),
	})
	client := newFakeStoreClient(rawOrder("120", "pending"))

	// 自动修复开启：不返回错误，游标回退到上游最大值
	require.NoError(t, f.reconciler.CheckDrift(ctx, tenant, client))

	cursor, err := f.cursors.GetCursor(ctx, "t1", domain.JobNewOrders)
	require.NoError(t, err)
	assert.Equal(t, "120", cursor.LastExternalID)

	flagged, _, err := f.flags.GetDrift(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestCheckDrift_EmptyUpstreamWithLocalOrders(t *testing.T) {
	f := newReconcilerFixture(false)
	tenant := testTenant("t1", "shop-one")

	f.orders.InjectOrder(&domain.Order{
		TenantID: "t1", ExternalID: "10", Status: domain.StatusPending, CreatedAt: time.Now(),
	})
	client := newFakeStoreClient()

	err := f.reconciler.CheckDrift(context.Background(), tenant, client)
	assert.ErrorIs(t, err, ErrDriftDetected)
}
