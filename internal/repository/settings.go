package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

// settingsRowID идентификатор единственной строки настроек.
const settingsRowID = 1

// GetReferralSettings возвращает последние сохранённые настройки реферальной программы.
func (r *PostgresRepository) GetReferralSettings(ctx context.Context) (*model.ReferralSettings, error) {
	var s model.ReferralSettings
	err := r.pool.QueryRow(ctx,
		`SELECT id, discount_amount, referrer_points, redemption_minimum, redemption_value, is_active, updated_at
		 FROM referral_settings
		 ORDER BY updated_at DESC
		 LIMIT 1`,
	).Scan(&s.ID, &s.DiscountAmount, &s.ReferrerPoints, &s.RedemptionMinimum, &s.RedemptionValue, &s.IsActive, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, classify("get referral settings", err)
	}
	return &s, nil
}

// SaveReferralSettings сохраняет настройки в единственную строку таблицы.
func (r *PostgresRepository) SaveReferralSettings(ctx context.Context, s model.ReferralSettings) (*model.ReferralSettings, error) {
	saved := s
	err := r.pool.QueryRow(ctx,
		`INSERT INTO referral_settings (id, discount_amount, referrer_points, redemption_minimum, redemption_value, is_active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		     discount_amount = EXCLUDED.discount_amount,
		     referrer_points = EXCLUDED.referrer_points,
		     redemption_minimum = EXCLUDED.redemption_minimum,
		     redemption_value = EXCLUDED.redemption_value,
		     is_active = EXCLUDED.is_active,
		     updated_at = NOW()
		 RETURNING id, updated_at`,
		settingsRowID, s.DiscountAmount, s.ReferrerPoints, s.RedemptionMinimum, s.RedemptionValue, s.IsActive,
	).Scan(&saved.ID, &saved.UpdatedAt)
	if err != nil {
		return nil, classify("save referral settings", err)
	}
	return &saved, nil
}
