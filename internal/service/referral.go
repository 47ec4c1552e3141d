package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

// CustomerDirectory проверяет существование клиента в основном приложении.
type CustomerDirectory interface {
	CustomerExists(ctx context.Context, customerID string) (bool, error)
}

// UsageChecker проверяет, использовал ли клиент реферальный код.
type UsageChecker interface {
	UsageExists(ctx context.Context, code, referredCustomerID string) (bool, error)
}

// ReferralPolicy задаёт необязательные проверки реферального кода.
type ReferralPolicy struct {
	// RequireReferredCustomerExists требует, чтобы приглашённый клиент уже был в справочнике.
	// По умолчанию выключено: новый клиент сохраняется только после успешного заказа.
	RequireReferredCustomerExists bool
}

// ReferralQuote описывает результат успешной проверки реферального кода.
type ReferralQuote struct {
	ReferrerID     string `json:"referrer_id"`
	DiscountAmount int64  `json:"discount_amount"`
	PointsAwarded  int64  `json:"points_awarded"`
}

// ReferralValidator решает, можно ли применить реферальный код для клиента. Ничего не записывает.
type ReferralValidator struct {
	settings  *SettingsProvider
	customers CustomerDirectory
	usages    UsageChecker
	policy    ReferralPolicy
}

// NewReferralValidator создаёт валидатор реферальных кодов.
func NewReferralValidator(settings *SettingsProvider, customers CustomerDirectory, usages UsageChecker, policy ReferralPolicy) *ReferralValidator {
	return &ReferralValidator{
		settings:  settings,
		customers: customers,
		usages:    usages,
		policy:    policy,
	}
}

// Validate проверяет код по порядку: программа активна, владелец кода существует,
// код не собственный, код ещё не использован этим клиентом.
func (v *ReferralValidator) Validate(ctx context.Context, code, newCustomerID string) (ReferralQuote, error) {
	code = strings.TrimSpace(code)
	newCustomerID = strings.TrimSpace(newCustomerID)

	settings := v.settings.Get(ctx)
	if !settings.IsActive {
		return ReferralQuote{}, ErrReferralInactive
	}

	if code == "" {
		return ReferralQuote{}, ErrInvalidReferralCode
	}
	if newCustomerID == "" {
		return ReferralQuote{}, ErrCustomerRequired
	}

	exists, err := v.customers.CustomerExists(ctx, code)
	if err != nil {
		return ReferralQuote{}, fmt.Errorf("lookup referrer: %w", err)
	}
	if !exists {
		return ReferralQuote{}, ErrInvalidReferralCode
	}

	if code == newCustomerID {
		return ReferralQuote{}, ErrOwnReferralCode
	}

	if v.policy.RequireReferredCustomerExists {
		exists, err := v.customers.CustomerExists(ctx, newCustomerID)
		if err != nil {
			return ReferralQuote{}, fmt.Errorf("lookup referred customer: %w", err)
		}
		if !exists {
			return ReferralQuote{}, ErrReferredCustomerNotFound
		}
	}

	used, err := v.usages.UsageExists(ctx, code, newCustomerID)
	if err != nil {
		return ReferralQuote{}, fmt.Errorf("check referral usage: %w", err)
	}
	if used {
		return ReferralQuote{}, ErrReferralCodeUsed
	}

	return ReferralQuote{
		ReferrerID:     code,
		DiscountAmount: settings.DiscountAmount,
		PointsAwarded:  settings.ReferrerPoints,
	}, nil
}

func referralUsage(order model.Order, quote ReferralQuote) model.ReferralUsage {
	return model.ReferralUsage{
		ReferralCode:       quote.ReferrerID,
		ReferrerCustomerID: quote.ReferrerID,
		ReferredCustomerID: order.CustomerID,
		OrderInvoiceID:     order.InvoiceID,
		DiscountApplied:    quote.DiscountAmount,
		PointsAwarded:      quote.PointsAwarded,
	}
}
