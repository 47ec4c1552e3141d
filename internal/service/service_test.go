package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

func TestService_AddPointsToCustomer(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	ok := svc.AddPointsToCustomer(ctx, model.PointsDelta{
		CustomerID:    "  C-7 ",
		Points:        25,
		ReferenceType: model.ReferenceTypeManualAdjustment,
		ReferenceID:   "ticket-12",
		Description:   "goodwill",
	})
	require.True(t, ok)
	assert.Equal(t, int64(25), repo.account("C-7").CurrentBalance)

	txs := repo.transactionsFor("C-7")
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].ReferenceID)
	assert.Equal(t, "ticket-12", *txs[0].ReferenceID)

	assert.False(t, svc.AddPointsToCustomer(ctx, model.PointsDelta{
		CustomerID: "C-7", Points: -100, ReferenceType: model.ReferenceTypeManualAdjustment,
	}))
	assert.False(t, svc.AddPointsToCustomer(ctx, model.PointsDelta{
		CustomerID: "   ", Points: 10, ReferenceType: model.ReferenceTypeManualAdjustment,
	}))
	assert.Equal(t, int64(25), repo.account("C-7").CurrentBalance)
}

func TestService_GetReferralUsages(t *testing.T) {
	repo := newMemRepo("R-1", "R-2")
	svc := newTestService(repo)
	ctx := context.Background()

	for _, c := range []struct{ invoice, customer, code string }{
		{"INV-1", "N-1", "R-1"},
		{"INV-2", "N-2", "R-1"},
		{"INV-3", "N-3", "R-2"},
	} {
		res := svc.ProcessOrderWithReferral(ctx, model.Order{InvoiceID: c.invoice, CustomerID: c.customer, TotalAmount: 10000}, c.code, 0)
		require.True(t, res.Success, c.invoice)
	}

	usages, err := svc.GetReferralUsages(ctx, "R-1")
	require.NoError(t, err)
	assert.Len(t, usages, 2)

	a, err := svc.GetPointsAccount(ctx, "R-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), a.CurrentBalance)

	txs, err := svc.GetPointsTransactions(ctx, "R-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestService_Settings(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	assert.Equal(t, model.DefaultReferralSettings().DiscountAmount, svc.GetSettings(ctx).DiscountAmount)

	s := model.DefaultReferralSettings()
	s.IsActive = false
	_, err := svc.UpdateSettings(ctx, s)
	require.NoError(t, err)

	quote, err := svc.ValidateReferralCode(ctx, "R-1", "C-1")
	assert.ErrorIs(t, err, ErrReferralInactive)
	assert.Zero(t, quote.DiscountAmount)

	_, err = svc.ValidatePointsRedemption(ctx, "C-1", 100)
	assert.ErrorIs(t, err, ErrRedemptionInactive)
}
