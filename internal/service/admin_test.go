package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"keymint/internal/models"
	"keymint/internal/store"
)

func newTestAdmin(ls store.LicenseStore) (*Admin, *memAuditStore) {
	audit := &memAuditStore{}
	return NewAdmin(ls, audit), audit
}

func TestGenerateBatch(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	keys, err := admin.Generate(ctx, models.ClassTrial1Day, 3, "resale batch", "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, keys, 3)

	seen := map[string]bool{}
	for _, key := range keys {
		assert.False(t, seen[key], "keys must be distinct")
		seen[key] = true

		l, err := fake.GetByKey(ctx, key)
		require.NoError(t, err)
		assert.False(t, l.Activated)
		assert.Equal(t, "resale batch", l.Notes)
		require.NotNil(t, l.ExpiresAt)
		assert.WithinDuration(t, l.CreatedAt.AddDate(0, 0, 1), *l.ExpiresAt, time.Second)
	}
}

func TestGenerateLifetimeHasNoExpiry(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)

	keys, err := admin.Generate(context.Background(), models.ClassLifetime, 1, "", "10.0.0.1")
	require.NoError(t, err)

	l, err := fake.GetByKey(context.Background(), keys[0])
	require.NoError(t, err)
	assert.Nil(t, l.ExpiresAt)
}

func TestGenerateCountBounds(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	keys, err := admin.Generate(ctx, models.ClassWeekly, 0, "", "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	keys, err = admin.Generate(ctx, models.ClassWeekly, 250, "", "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, keys, MaxGenerateCount)
}

func TestGenerateWritesOneBatch(t *testing.T) {
	ls := new(MockLicenseStore)
	ls.On("CreateBatch", mock.Anything, mock.MatchedBy(func(batch []*models.License) bool {
		return len(batch) == 5
	})).Return(nil).Once()

	admin := NewAdmin(ls, &memAuditStore{})
	keys, err := admin.Generate(context.Background(), models.ClassYearly, 5, "", "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, keys, 5)

	// The batch is a single write, never one insert per key.
	ls.AssertExpectations(t)
	ls.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGenerateFailedBatchReturnsNoKeys(t *testing.T) {
	ls := new(MockLicenseStore)
	ls.On("CreateBatch", mock.Anything, mock.Anything).Return(store.ErrDuplicate)

	audit := &memAuditStore{}
	admin := NewAdmin(ls, audit)
	keys, err := admin.Generate(context.Background(), models.ClassWeekly, 3, "", "10.0.0.1")
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Nil(t, keys)

	entries, _ := audit.ListEntries(context.Background(), 10, "")
	assert.Empty(t, entries, "a failed batch must not be audited as generated")
}

func TestCreateBatchCollisionPersistsNothing(t *testing.T) {
	fake := newFakeLicenseStore()
	ctx := context.Background()

	require.NoError(t, fake.Create(ctx, &models.License{Key: "K-EXISTING", Class: models.ClassWeekly, CreatedAt: time.Now()}))

	err := fake.CreateBatch(ctx, []*models.License{
		{Key: "K-NEW-1", Class: models.ClassWeekly, CreatedAt: time.Now()},
		{Key: "K-EXISTING", Class: models.ClassWeekly, CreatedAt: time.Now()},
		{Key: "K-NEW-2", Class: models.ClassWeekly, CreatedAt: time.Now()},
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	count, err := fake.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a colliding batch must persist no rows")
	_, err = fake.GetByKey(ctx, "K-NEW-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExtendLifetimeNotExtensible(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	require.NoError(t, fake.Create(ctx, &models.License{Key: "K1", Class: models.ClassLifetime, CreatedAt: time.Now()}))

	_, err := admin.Extend(ctx, "K1", 7, "10.0.0.1")
	assert.ErrorIs(t, err, store.ErrNotExtensible)
}

func TestExtendExpiredRecomputesFromNow(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	lapsed := time.Now().AddDate(0, 0, -10)
	require.NoError(t, fake.Create(ctx, &models.License{
		Key: "K1", Class: models.ClassWeekly, CreatedAt: lapsed.AddDate(0, 0, -7), ExpiresAt: &lapsed,
	}))

	newExpiry, err := admin.Extend(ctx, "K1", 7, "10.0.0.1")
	require.NoError(t, err)
	// From now, not from the lapsed expiry.
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), newExpiry, time.Minute)
}

func TestExtendUnexpiredAdvancesExistingExpiry(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	current := time.Now().AddDate(0, 0, 5)
	require.NoError(t, fake.Create(ctx, &models.License{
		Key: "K1", Class: models.ClassWeekly, CreatedAt: time.Now(), ExpiresAt: &current,
	}))

	newExpiry, err := admin.Extend(ctx, "K1", 7, "10.0.0.1")
	require.NoError(t, err)
	assert.WithinDuration(t, current.AddDate(0, 0, 7), newExpiry, time.Second)
}

func TestResetDeviceAllowsRebind(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	engine := newTestEngine(fake)
	ctx := context.Background()

	require.NoError(t, fake.Create(ctx, &models.License{Key: "K1", Class: models.ClassLifetime, CreatedAt: time.Now()}))

	result, err := engine.Activate(ctx, "K1", "devA", "1.2.3.4")
	require.NoError(t, err)
	require.True(t, result.OK)

	require.NoError(t, admin.ResetDevice(ctx, "K1", "10.0.0.1"))

	l, err := fake.GetByKey(ctx, "K1")
	require.NoError(t, err)
	assert.Nil(t, l.DeviceID)
	assert.False(t, l.Activated)
	assert.Nil(t, l.ActivatedAt)

	result, err = engine.Activate(ctx, "K1", "devB", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestMutationsOnMissingKey(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	assert.ErrorIs(t, admin.Block(ctx, "MISSING", "10.0.0.1"), store.ErrNotFound)
	assert.ErrorIs(t, admin.Unblock(ctx, "MISSING", "10.0.0.1"), store.ErrNotFound)
	assert.ErrorIs(t, admin.ResetDevice(ctx, "MISSING", "10.0.0.1"), store.ErrNotFound)
	assert.ErrorIs(t, admin.Delete(ctx, "MISSING", "10.0.0.1"), store.ErrNotFound)
	_, err := admin.Extend(ctx, "MISSING", 7, "10.0.0.1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListStatusFilterUsesComputedStatus(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, _ := newTestAdmin(fake)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	dev := "devA"

	require.NoError(t, fake.Create(ctx, &models.License{Key: "ACT", Class: models.ClassMonthly, ExpiresAt: &future, Activated: true, DeviceID: &dev}))
	require.NoError(t, fake.Create(ctx, &models.License{Key: "EXP", Class: models.ClassMonthly, ExpiresAt: &past, Activated: true, DeviceID: &dev}))
	require.NoError(t, fake.Create(ctx, &models.License{Key: "BLK", Class: models.ClassMonthly, ExpiresAt: &past, Blocked: true}))
	require.NoError(t, fake.Create(ctx, &models.License{Key: "PND", Class: models.ClassMonthly, ExpiresAt: &future}))

	for status, wantKey := range map[models.LicenseStatus]string{
		models.StatusActive:  "ACT",
		models.StatusExpired: "EXP",
		models.StatusBlocked: "BLK",
		models.StatusPending: "PND",
	} {
		licenses, err := admin.List(ctx, models.ListFilter{Status: status})
		require.NoError(t, err)
		require.Len(t, licenses, 1, "status %s", status)
		assert.Equal(t, wantKey, licenses[0].Key)
	}
}

func TestGenerateAuditsBatch(t *testing.T) {
	fake := newFakeLicenseStore()
	admin, audit := newTestAdmin(fake)

	_, err := admin.Generate(context.Background(), models.ClassMonthly, 2, "", "10.0.0.1")
	require.NoError(t, err)

	// AsyncAudit writes in the background.
	assert.Eventually(t, func() bool {
		entries, _ := audit.ListEntries(context.Background(), 10, "")
		for _, e := range entries {
			if e.Action == models.ActionKeysGenerated {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
