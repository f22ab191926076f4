package recharges

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodcash/foodcash/internal/testutil"
)

func TestPostgresStore_RechargeLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	r := &Recharge{
		ID:        "11111111-2222-3333-4444-555555555555",
		StudentID: 1,
		Amount:    decimal.NewFromInt(50000),
		Status:    StatusPending,
	}
	require.NoError(t, store.Create(ctx, r))

	retrieved, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, retrieved.Status)
	assert.True(t, retrieved.Amount.Equal(decimal.NewFromInt(50000)))
	assert.Empty(t, retrieved.Reference)

	// First SetReference assigns, second keeps the original
	ref, err := store.SetReference(ctx, r.ID, "REC1111111111700000000")
	require.NoError(t, err)
	assert.Equal(t, "REC1111111111700000000", ref)

	ref, err = store.SetReference(ctx, r.ID, "RECotherreference")
	require.NoError(t, err)
	assert.Equal(t, "REC1111111111700000000", ref)

	byRef, err := store.GetByReference(ctx, "REC1111111111700000000")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byRef.ID)

	byRef.Status = StatusApproved
	byRef.TransactionID = "tx-abc"
	require.NoError(t, store.Update(ctx, byRef, StatusPending))

	retrieved, err = store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, retrieved.Status)
	assert.Equal(t, "tx-abc", retrieved.TransactionID)

	// A writer that still sees PENDIENTE loses the transition.
	stale := *retrieved
	stale.Status = StatusCanceled
	assert.ErrorIs(t, store.Update(ctx, &stale, StatusPending), ErrStatusConflict)

	retrieved, err = store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, retrieved.Status)

	_, err = store.Get(ctx, "missing-id")
	assert.ErrorIs(t, err, ErrRechargeNotFound)

	missing := &Recharge{ID: "missing-id", Status: StatusApproved, Amount: decimal.NewFromInt(1)}
	assert.ErrorIs(t, store.Update(ctx, missing, StatusPending), ErrRechargeNotFound)

	_, err = store.GetByReference(ctx, "RECnope")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestPostgresStore_ListByStudent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := &Recharge{
			ID:        "aaaaaaaa-0000-0000-0000-00000000000" + string(rune('0'+i)),
			StudentID: 7,
			Amount:    decimal.NewFromInt(int64(10000 * (i + 1))),
			Status:    StatusPending,
		}
		require.NoError(t, store.Create(ctx, r))
	}

	list, err := store.ListByStudent(ctx, 7, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = store.ListByStudent(ctx, 99, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
