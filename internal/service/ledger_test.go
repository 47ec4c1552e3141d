package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
	"github.com/mmeshcher/shoeclean-loyalty/internal/repository"
)

func TestPointsLedger_BalanceInvariant(t *testing.T) {
	repo := newMemRepo()
	ledger := NewPointsLedger(repo, nil, nil)
	ctx := context.Background()

	rnd := rand.New(rand.NewSource(7))
	refTypes := []model.ReferenceType{
		model.ReferenceTypeReferral,
		model.ReferenceTypeRedemption,
		model.ReferenceTypeManualAdjustment,
	}

	for i := 0; i < 500; i++ {
		ledger.ApplyDelta(ctx, model.PointsDelta{
			CustomerID:    "C-1",
			Points:        rnd.Int63n(200) - 100,
			ReferenceType: refTypes[rnd.Intn(len(refTypes))],
			ReferenceID:   "INV",
		})

		a := repo.account("C-1")
		require.GreaterOrEqual(t, a.CurrentBalance, int64(0))
		require.Equal(t, a.TotalEarned-a.TotalRedeemed, a.CurrentBalance)
	}
}

func TestPointsLedger_EnsureAccountIdempotent(t *testing.T) {
	repo := newMemRepo().withBalance("C-1", 80)
	ledger := NewPointsLedger(repo, nil, nil)
	ctx := context.Background()

	a, err := ledger.EnsureAccount(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), a.CurrentBalance)

	b, err := ledger.EnsureAccount(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, *a, *b)

	fresh, err := ledger.EnsureAccount(ctx, "C-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.CurrentBalance)
	_, err = ledger.EnsureAccount(ctx, "C-2")
	require.NoError(t, err)
	assert.Len(t, repo.accounts, 2)
}

func TestPointsLedger_ApplyDeltaWritesTransaction(t *testing.T) {
	tests := []struct {
		name     string
		delta    model.PointsDelta
		wantType model.TransactionType
	}{
		{
			name:     "referral earn",
			delta:    model.PointsDelta{CustomerID: "C-1", Points: 10, ReferenceType: model.ReferenceTypeReferral, ReferenceID: "INV-1"},
			wantType: model.TransactionTypeEarned,
		},
		{
			name:     "redemption",
			delta:    model.PointsDelta{CustomerID: "C-1", Points: -30, ReferenceType: model.ReferenceTypeRedemption, ReferenceID: "INV-2"},
			wantType: model.TransactionTypeRedeemed,
		},
		{
			name:     "manual adjustment",
			delta:    model.PointsDelta{CustomerID: "C-1", Points: 5, ReferenceType: model.ReferenceTypeManualAdjustment, Description: "goodwill"},
			wantType: model.TransactionTypeAdjusted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo().withBalance("C-1", 50)
			ledger := NewPointsLedger(repo, nil, nil)

			require.True(t, ledger.ApplyDelta(context.Background(), tt.delta))

			txs := repo.transactionsFor("C-1")
			require.Len(t, txs, 1)
			assert.Equal(t, tt.wantType, txs[0].TransactionType)
			assert.Equal(t, tt.delta.Points, txs[0].PointsChange)
			assert.Equal(t, 50+tt.delta.Points, txs[0].BalanceAfter)
			assert.Equal(t, tt.delta.ReferenceType, txs[0].ReferenceType)
			if tt.delta.ReferenceID == "" {
				assert.Nil(t, txs[0].ReferenceID)
			} else {
				require.NotNil(t, txs[0].ReferenceID)
				assert.Equal(t, tt.delta.ReferenceID, *txs[0].ReferenceID)
			}
		})
	}
}

func TestPointsLedger_ApplyDeltaRejectsOverdraft(t *testing.T) {
	repo := newMemRepo().withBalance("C-1", 20)
	ledger := NewPointsLedger(repo, nil, nil)

	ok := ledger.ApplyDelta(context.Background(), model.PointsDelta{
		CustomerID: "C-1", Points: -21, ReferenceType: model.ReferenceTypeRedemption,
	})
	assert.False(t, ok)
	assert.Equal(t, int64(20), repo.account("C-1").CurrentBalance)
	assert.Empty(t, repo.transactionsFor("C-1"))
}

func TestPointsLedger_LogFailureIsNotFatal(t *testing.T) {
	repo := newMemRepo()
	repo.insertTxErr = &repository.SchemaError{Tables: []string{"points_transactions"}}
	ledger := NewPointsLedger(repo, nil, nil)

	ok := ledger.ApplyDelta(context.Background(), model.PointsDelta{
		CustomerID: "C-1", Points: 10, ReferenceType: model.ReferenceTypeReferral,
	})
	assert.True(t, ok)
	assert.Equal(t, int64(10), repo.account("C-1").CurrentBalance)
}

func TestPointsLedger_BalanceWriteFailure(t *testing.T) {
	repo := newMemRepo()
	repo.applyErr = errors.New("connection reset by peer")
	ledger := NewPointsLedger(repo, nil, nil)

	ok := ledger.ApplyDelta(context.Background(), model.PointsDelta{
		CustomerID: "C-1", Points: 10, ReferenceType: model.ReferenceTypeReferral,
	})
	assert.False(t, ok)
}

func TestPointsLedger_ApplyDeltaEdgeCases(t *testing.T) {
	repo := newMemRepo()
	ledger := NewPointsLedger(repo, nil, nil)
	ctx := context.Background()

	assert.True(t, ledger.ApplyDelta(ctx, model.PointsDelta{CustomerID: "C-1", Points: 0, ReferenceType: model.ReferenceTypeManualAdjustment}))
	assert.Empty(t, repo.transactionsFor("C-1"))
	assert.Contains(t, repo.accounts, "C-1")

	assert.False(t, ledger.ApplyDelta(ctx, model.PointsDelta{CustomerID: "", Points: 5, ReferenceType: model.ReferenceTypeReferral}))
	assert.False(t, ledger.ApplyDelta(ctx, model.PointsDelta{CustomerID: "C-1", Points: 5, ReferenceType: "bonus"}))
}

func TestPointsLedger_Transactions(t *testing.T) {
	repo := newMemRepo()
	ledger := NewPointsLedger(repo, nil, nil)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		require.True(t, ledger.ApplyDelta(ctx, model.PointsDelta{CustomerID: "C-1", Points: int64(i + 1), ReferenceType: model.ReferenceTypeReferral}))
	}

	txs, err := ledger.Transactions(ctx, "C-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 20)
	assert.Equal(t, int64(30), txs[0].PointsChange)

	txs, err = ledger.Transactions(ctx, "C-1", 1000, 25)
	require.NoError(t, err)
	assert.Len(t, txs, 5)
}

func TestPointsLedger_Account(t *testing.T) {
	repo := newMemRepo().withBalance("C-1", 5)
	ledger := NewPointsLedger(repo, nil, nil)

	a, err := ledger.Account(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.CurrentBalance)

	_, err = ledger.Account(context.Background(), "C-2")
	assert.ErrorIs(t, err, ErrNoPointsAccount)
}
