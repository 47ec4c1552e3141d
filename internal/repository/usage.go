package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

// UsageExists сообщает, использовал ли клиент указанный реферальный код.
func (r *PostgresRepository) UsageExists(ctx context.Context, code, referredCustomerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM referral_usage WHERE referral_code = $1 AND referred_customer_id = $2)`,
		code, referredCustomerID,
	).Scan(&exists)
	if err != nil {
		return false, classify("check referral usage", err)
	}
	return exists, nil
}

// RecordReferral в одной транзакции сохраняет факт использования кода и начисляет баллы пригласившему.
// При нарушении уникальности (код, приглашённый) возвращает ErrUsageExists, баллы не начисляются.
func (r *PostgresRepository) RecordReferral(ctx context.Context, usage model.ReferralUsage) (*model.CustomerPointsAccount, error) {
	var account *model.CustomerPointsAccount
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO referral_usage
			     (id, referral_code, referrer_customer_id, referred_customer_id, order_invoice_id, discount_applied, points_awarded, used_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			usage.ID, usage.ReferralCode, usage.ReferrerCustomerID, usage.ReferredCustomerID,
			usage.OrderInvoiceID, usage.DiscountApplied, usage.PointsAwarded, usage.UsedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrUsageExists, usage.ReferralCode)
			}
			return classify("insert referral usage", err)
		}

		a, err := applyDelta(ctx, tx, usage.ReferrerCustomerID, usage.PointsAwarded)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ListUsagesByReferrer возвращает использования кодов, приглашённые указанным клиентом.
func (r *PostgresRepository) ListUsagesByReferrer(ctx context.Context, referrerID string) ([]model.ReferralUsage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, referral_code, referrer_customer_id, referred_customer_id, order_invoice_id, discount_applied, points_awarded, used_at
		 FROM referral_usage
		 WHERE referrer_customer_id = $1
		 ORDER BY used_at DESC`,
		referrerID,
	)
	if err != nil {
		return nil, classify("select referral usage", err)
	}
	defer rows.Close()

	var res []model.ReferralUsage
	for rows.Next() {
		var u model.ReferralUsage
		if err := rows.Scan(&u.ID, &u.ReferralCode, &u.ReferrerCustomerID, &u.ReferredCustomerID,
			&u.OrderInvoiceID, &u.DiscountApplied, &u.PointsAwarded, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan referral usage: %w", err)
		}
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
