package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/shoeclean-loyalty/internal/metrics"
	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
	"github.com/mmeshcher/shoeclean-loyalty/internal/repository"
)

const (
	msgReferralUnavailable   = "referral code could not be verified, please try again"
	msgReferralNotRecorded   = "referral could not be applied, please try again"
	msgRedemptionUnavailable = "points could not be verified, please try again"
	msgRedemptionNotRecorded = "points could not be redeemed, please try again"
)

// OrderResult описывает результат применения реферального кода и баллов к заказу.
type OrderResult struct {
	Success          bool        `json:"success"`
	Order            model.Order `json:"updated_order"`
	ReferralDiscount int64       `json:"referral_discount"`
	PointsDiscount   int64       `json:"points_discount"`
	PointsAwarded    int64       `json:"points_awarded"`
	// PointsUsed содержит фактически списанные баллы, их и передают в Rollback.
	PointsUsed int64    `json:"points_used"`
	Errors     []string `json:"errors"`
}

// RollbackResult описывает результат компенсации для неудавшегося заказа.
type RollbackResult struct {
	PointsReturned         int64 `json:"points_returned"`
	AlreadyRolledBack      bool  `json:"already_rolled_back"`
	NothingRedeemed        bool  `json:"nothing_redeemed"`
	ManualAdjustmentNeeded bool  `json:"manual_adjustment_needed"`
}

// OrderReferralOrchestrator применяет реферальный код и списание баллов при оформлении заказа.
type OrderReferralOrchestrator struct {
	referrals   *ReferralValidator
	redemptions *RedemptionValidator
	ledger      *PointsLedger
	logger      *zap.Logger
	metrics     *metrics.LedgerMetrics
}

// NewOrderReferralOrchestrator создаёт оркестратор оформления заказа.
func NewOrderReferralOrchestrator(
	referrals *ReferralValidator,
	redemptions *RedemptionValidator,
	ledger *PointsLedger,
	logger *zap.Logger,
	m *metrics.LedgerMetrics,
) *OrderReferralOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderReferralOrchestrator{
		referrals:   referrals,
		redemptions: redemptions,
		ledger:      ledger,
		logger:      logger,
		metrics:     m,
	}
}

// ProcessOrder проверяет код и баллы, пересчитывает сумму заказа и фиксирует изменения балансов.
// Вызывается после того, как сам заказ сохранён. Success ложен, если хотя бы один шаг не удался;
// в этом случае из заказа убирается скидка того шага, который не был записан.
func (o *OrderReferralOrchestrator) ProcessOrder(ctx context.Context, order model.Order, referralCode string, pointsToRedeem int64) OrderResult {
	order.CustomerID = strings.TrimSpace(order.CustomerID)
	referralCode = strings.TrimSpace(referralCode)
	originalTotal := order.TotalAmount

	res := OrderResult{Order: order, Errors: []string{}}

	var referral *ReferralQuote
	if referralCode != "" {
		quote, err := o.referrals.Validate(ctx, referralCode, order.CustomerID)
		if err != nil {
			o.logValidation("referral validation failed", err, order)
			res.Errors = append(res.Errors, PublicMessage(err, msgReferralUnavailable))
		} else {
			referral = &quote
			res.ReferralDiscount = quote.DiscountAmount
			res.PointsAwarded = quote.PointsAwarded
			res.Order.ReferralCodeUsed = referralCode
			res.Order.ReferralDiscountAmount = quote.DiscountAmount
		}
	}

	var redemption *RedemptionQuote
	if pointsToRedeem > 0 {
		quote, err := o.redemptions.Validate(ctx, order.CustomerID, pointsToRedeem)
		if err != nil {
			o.logValidation("points redemption validation failed", err, order)
			res.Errors = append(res.Errors, PublicMessage(err, msgRedemptionUnavailable))
		} else {
			redemption = &quote
			res.PointsDiscount = quote.DiscountAmount
			res.Order.PointsUsed = quote.PointsUsed
			res.Order.PointsDiscountAmount = quote.DiscountAmount
		}
	}

	res.Order.TotalAmount = finalTotal(originalTotal, res.ReferralDiscount, res.PointsDiscount)

	if referral != nil {
		if _, err := o.ledger.awardReferral(ctx, referralUsage(res.Order, *referral)); err != nil {
			if errors.Is(err, repository.ErrUsageExists) {
				res.Errors = append(res.Errors, ErrReferralCodeUsed.Message)
			} else {
				res.Errors = append(res.Errors, msgReferralNotRecorded)
			}
			res.ReferralDiscount = 0
			res.PointsAwarded = 0
			res.Order.ReferralCodeUsed = ""
			res.Order.ReferralDiscountAmount = 0
		}
	}

	if redemption != nil {
		_, err := o.ledger.redeem(ctx, order.InvoiceID, order.CustomerID, redemption.PointsUsed)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				res.Errors = append(res.Errors, ErrInsufficientPoints.Message)
			} else {
				res.Errors = append(res.Errors, msgRedemptionNotRecorded)
			}
			res.PointsDiscount = 0
			res.Order.PointsUsed = 0
			res.Order.PointsDiscountAmount = 0
		} else {
			res.PointsUsed = redemption.PointsUsed
		}
	}

	res.Order.TotalAmount = finalTotal(originalTotal, res.ReferralDiscount, res.PointsDiscount)
	res.Success = len(res.Errors) == 0
	return res
}

// Rollback компенсирует изменения для заказа, который не удалось сохранить после ProcessOrder.
// Клиенту ручной корректировкой возвращаются только баллы, действительно списанные по этому заказу
// и ещё не возвращённые; запрошенное сверх этого игнорируется.
// Начисленные пригласившему баллы автоматически не отзываются: он мог их уже потратить,
// поэтому только пишется предупреждение для ручной корректировки.
func (o *OrderReferralOrchestrator) Rollback(ctx context.Context, order model.Order, pointsUsed, pointsAwarded int64) (RollbackResult, error) {
	var res RollbackResult

	if pointsUsed > 0 {
		if order.InvoiceID == "" {
			return res, fmt.Errorf("invoice id is required to roll back redeemed points")
		}
		customerID := strings.TrimSpace(order.CustomerID)
		if customerID == "" {
			return res, ErrCustomerRequired
		}

		returned, err := o.ledger.returnRedeemed(ctx, order.InvoiceID, customerID, pointsUsed)
		switch {
		case errors.Is(err, repository.ErrAlreadyRolledBack):
			o.metrics.IncRollback("duplicate")
			o.logger.Info("order already rolled back", zap.String("invoice", order.InvoiceID))
			res.AlreadyRolledBack = true
		case errors.Is(err, repository.ErrNothingRedeemed):
			o.metrics.IncRollback("nothing_redeemed")
			o.logger.Warn("rollback requested for order without redeemed points",
				zap.String("invoice", order.InvoiceID),
				zap.String("customerID", customerID),
				zap.Int64("points", pointsUsed))
			res.NothingRedeemed = true
		case err != nil:
			o.metrics.IncRollback("failed")
			return res, fmt.Errorf("return redeemed points: %w", err)
		default:
			if returned < pointsUsed {
				o.logger.Warn("rollback requested more points than were redeemed",
					zap.String("invoice", order.InvoiceID),
					zap.Int64("requested", pointsUsed),
					zap.Int64("returned", returned))
			}
			o.metrics.IncRollback("credited")
			res.PointsReturned = returned
		}
	}

	if pointsAwarded > 0 {
		o.metrics.IncRollback("manual_adjustment_needed")
		o.logger.Warn("referrer points awarded for failed order, manual adjustment needed",
			zap.String("invoice", order.InvoiceID),
			zap.String("referrerID", order.ReferralCodeUsed),
			zap.Int64("points", pointsAwarded))
		res.ManualAdjustmentNeeded = true
	}

	return res, nil
}

func (o *OrderReferralOrchestrator) logValidation(msg string, err error, order model.Order) {
	if IsValidationError(err) {
		o.logger.Info(msg, zap.String("reason", err.Error()), zap.String("invoice", order.InvoiceID))
		return
	}
	o.logger.Error(msg, zap.Error(err), zap.String("invoice", order.InvoiceID))
}

func finalTotal(total, referralDiscount, pointsDiscount int64) int64 {
	v := total - referralDiscount - pointsDiscount
	if v < 0 {
		return 0
	}
	return v
}
