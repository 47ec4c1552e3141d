package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

func newTestReferralValidator(repo *memRepo, policy ReferralPolicy) *ReferralValidator {
	return NewReferralValidator(NewSettingsProvider(repo, nil), repo, repo, policy)
}

func TestReferralValidator_Valid(t *testing.T) {
	repo := newMemRepo("REF-1")
	v := newTestReferralValidator(repo, ReferralPolicy{})

	quote, err := v.Validate(context.Background(), " REF-1 ", "NEW-1")
	require.NoError(t, err)
	assert.Equal(t, ReferralQuote{ReferrerID: "REF-1", DiscountAmount: 5000, PointsAwarded: 10}, quote)
}

func TestReferralValidator_Rejections(t *testing.T) {
	inactive := model.DefaultReferralSettings()
	inactive.IsActive = false

	tests := []struct {
		name  string
		repo  func() *memRepo
		code  string
		newID string
		want  error
	}{
		{
			name:  "system inactive",
			repo:  func() *memRepo { return newMemRepo("REF-1").withSettings(inactive) },
			code:  "REF-1",
			newID: "NEW-1",
			want:  ErrReferralInactive,
		},
		{
			name:  "unknown code",
			repo:  func() *memRepo { return newMemRepo("REF-1") },
			code:  "NOPE",
			newID: "NEW-1",
			want:  ErrInvalidReferralCode,
		},
		{
			name:  "empty code",
			repo:  func() *memRepo { return newMemRepo("REF-1") },
			code:  "  ",
			newID: "NEW-1",
			want:  ErrInvalidReferralCode,
		},
		{
			name:  "own code",
			repo:  func() *memRepo { return newMemRepo("REF-1") },
			code:  "REF-1",
			newID: "REF-1",
			want:  ErrOwnReferralCode,
		},
		{
			name: "already used",
			repo: func() *memRepo {
				r := newMemRepo("REF-1")
				r.usages = append(r.usages, model.ReferralUsage{ReferralCode: "REF-1", ReferredCustomerID: "NEW-1"})
				return r
			},
			code:  "REF-1",
			newID: "NEW-1",
			want:  ErrReferralCodeUsed,
		},
		{
			name:  "missing customer",
			repo:  func() *memRepo { return newMemRepo("REF-1") },
			code:  "REF-1",
			newID: "",
			want:  ErrCustomerRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestReferralValidator(tt.repo(), ReferralPolicy{})
			_, err := v.Validate(context.Background(), tt.code, tt.newID)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestReferralValidator_DoesNotRequireReferredCustomerByDefault(t *testing.T) {
	repo := newMemRepo("REF-1")

	_, err := newTestReferralValidator(repo, ReferralPolicy{}).Validate(context.Background(), "REF-1", "NOT-YET-SAVED")
	assert.NoError(t, err)

	strict := newTestReferralValidator(repo, ReferralPolicy{RequireReferredCustomerExists: true})
	_, err = strict.Validate(context.Background(), "REF-1", "NOT-YET-SAVED")
	assert.ErrorIs(t, err, ErrReferredCustomerNotFound)

	repo.customers["NOT-YET-SAVED"] = true
	_, err = strict.Validate(context.Background(), "REF-1", "NOT-YET-SAVED")
	assert.NoError(t, err)
}

func TestReferralValidator_StorageFailureIsNotValidationError(t *testing.T) {
	repo := newMemRepo("REF-1")
	repo.usageExistsErr = errors.New("boom")

	_, err := newTestReferralValidator(repo, ReferralPolicy{}).Validate(context.Background(), "REF-1", "NEW-1")
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.Equal(t, "fallback", PublicMessage(err, "fallback"))
}

func TestReferralValidator_DoesNotWrite(t *testing.T) {
	repo := newMemRepo("REF-1")

	_, err := newTestReferralValidator(repo, ReferralPolicy{}).Validate(context.Background(), "REF-1", "NEW-1")
	require.NoError(t, err)
	assert.Empty(t, repo.usages)
	assert.Empty(t, repo.accounts)
}
