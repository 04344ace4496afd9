package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

func TestMemoryStore_GetCreatesWithSignupBonus(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(5)
	userID := uuid.New()

	rec, err := store.Get(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, userID, rec.UserID)
	assert.Equal(t, ledger.PlanFree, rec.Plan)
	assert.EqualValues(t, 5, rec.CreditBalance)
	assert.EqualValues(t, 1, rec.Version)
	assert.Nil(t, rec.ProExpiresAt)
}

func TestMemoryStore_GetOrCreateIsRaceSafe(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(5)
	userID := uuid.New()

	const goroutines = 50
	var wg sync.WaitGroup
	records := make([]*ledger.Record, goroutines)

	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := store.Get(context.Background(), userID)
			require.NoError(t, err)
			records[i] = rec
		}()
	}
	wg.Wait()

	// Every concurrent first-time read must observe the same single record
	// with the bonus granted exactly once.
	for _, rec := range records {
		assert.EqualValues(t, 5, rec.CreditBalance)
		assert.EqualValues(t, 1, rec.Version)
	}
}

func TestMemoryStore_ApplyDelta(t *testing.T) {
	t.Parallel()

	t.Run("decrements balance and bumps version", func(t *testing.T) {
		t.Parallel()
		store := ledger.NewMemoryStore(3)
		userID := uuid.New()

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)

		updated, err := store.ApplyDelta(context.Background(), userID, ledger.Delta{AddCredits: -1}, rec.Version)
		require.NoError(t, err)
		assert.EqualValues(t, 2, updated.CreditBalance)
		assert.EqualValues(t, rec.Version+1, updated.Version)
	})

	t.Run("rejects stale version", func(t *testing.T) {
		t.Parallel()
		store := ledger.NewMemoryStore(3)
		userID := uuid.New()

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)

		_, err = store.ApplyDelta(context.Background(), userID, ledger.Delta{AddCredits: -1}, rec.Version)
		require.NoError(t, err)

		_, err = store.ApplyDelta(context.Background(), userID, ledger.Delta{AddCredits: -1}, rec.Version)
		assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	})

	t.Run("enforces non-negative balance floor", func(t *testing.T) {
		t.Parallel()
		store := ledger.NewMemoryStore(1)
		userID := uuid.New()

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)

		_, err = store.ApplyDelta(context.Background(), userID, ledger.Delta{AddCredits: -2}, rec.Version)
		assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

		// Failed delta must leave state untouched.
		after, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, after.CreditBalance)
		assert.Equal(t, rec.Version, after.Version)
	})

	t.Run("sets plan and expiry together", func(t *testing.T) {
		t.Parallel()
		store := ledger.NewMemoryStore(0)
		userID := uuid.New()

		rec, err := store.Get(context.Background(), userID)
		require.NoError(t, err)

		expires := time.Now().UTC().Add(30 * 24 * time.Hour)
		updated, err := store.ApplyDelta(context.Background(), userID, ledger.Delta{
			SetPlan:       ledger.PlanPro,
			ProExpiresAt:  &expires,
			Gateway:       ledger.GatewayLemonSqueezy,
			PaymentStatus: "paid",
		}, rec.Version)
		require.NoError(t, err)

		assert.Equal(t, ledger.PlanPro, updated.Plan)
		require.NotNil(t, updated.ProExpiresAt)
		assert.True(t, updated.ProExpiresAt.Equal(expires))
		assert.Equal(t, ledger.GatewayLemonSqueezy, updated.LastGateway)
		assert.Equal(t, "paid", updated.PaymentStatus)
	})

	t.Run("unknown user is reported as conflict", func(t *testing.T) {
		t.Parallel()
		store := ledger.NewMemoryStore(0)

		_, err := store.ApplyDelta(context.Background(), uuid.New(), ledger.Delta{AddCredits: 1}, 1)
		assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	})
}

func TestMemoryStore_ConcurrentDecrements(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(10)
	userID := uuid.New()
	ctx := context.Background()

	_, err := store.Get(ctx, userID)
	require.NoError(t, err)

	// 50 workers each try to consume one credit with a read-CAS loop.
	// Exactly 10 must succeed and the balance must end at zero.
	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, err := store.Get(ctx, userID)
				require.NoError(t, err)
				if rec.CreditBalance == 0 {
					return
				}
				_, err = store.ApplyDelta(ctx, userID, ledger.Delta{AddCredits: -1}, rec.Version)
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				if !assert.ErrorIs(t, err, ledger.ErrConcurrentModification) {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)

	final, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, final.CreditBalance)
}
