package service

import (
	"context"
	"strings"
)

// RedemptionQuote описывает допустимое списание баллов.
type RedemptionQuote struct {
	DiscountAmount int64 `json:"discount_amount"`
	PointsUsed     int64 `json:"points_used"`
	NewBalance     int64 `json:"new_balance"`
}

// RedemptionValidator решает, можно ли списать баллы в счёт заказа. Саму операцию не выполняет:
// баллы списываются журналом только после подтверждения заказа.
type RedemptionValidator struct {
	settings *SettingsProvider
	ledger   *PointsLedger
}

// NewRedemptionValidator создаёт валидатор списания баллов.
func NewRedemptionValidator(settings *SettingsProvider, ledger *PointsLedger) *RedemptionValidator {
	return &RedemptionValidator{settings: settings, ledger: ledger}
}

// Validate проверяет активность программы, минимум списания и достаточность баланса.
func (v *RedemptionValidator) Validate(ctx context.Context, customerID string, points int64) (RedemptionQuote, error) {
	customerID = strings.TrimSpace(customerID)

	settings := v.settings.Get(ctx)
	if !settings.IsActive {
		return RedemptionQuote{}, ErrRedemptionInactive
	}

	if points <= 0 || points < settings.RedemptionMinimum {
		return RedemptionQuote{}, belowMinimum(settings.RedemptionMinimum)
	}

	if customerID == "" {
		return RedemptionQuote{}, ErrCustomerRequired
	}

	account, err := v.ledger.Account(ctx, customerID)
	if err != nil {
		return RedemptionQuote{}, err
	}

	if account.CurrentBalance < points {
		return RedemptionQuote{}, ErrInsufficientPoints
	}

	return RedemptionQuote{
		DiscountAmount: points * settings.RedemptionValue,
		PointsUsed:     points,
		NewBalance:     account.CurrentBalance - points,
	}, nil
}
