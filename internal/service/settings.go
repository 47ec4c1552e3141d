package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
	"github.com/mmeshcher/shoeclean-loyalty/internal/repository"
)

// SettingsStore описывает хранение настроек реферальной программы.
type SettingsStore interface {
	GetReferralSettings(ctx context.Context) (*model.ReferralSettings, error)
	SaveReferralSettings(ctx context.Context, s model.ReferralSettings) (*model.ReferralSettings, error)
}

// SettingsProvider выдаёт действующие настройки реферальной программы.
type SettingsProvider struct {
	store  SettingsStore
	logger *zap.Logger
}

// NewSettingsProvider создаёт провайдер настроек поверх хранилища.
func NewSettingsProvider(store SettingsStore, logger *zap.Logger) *SettingsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsProvider{store: store, logger: logger}
}

// Get читает настройки при каждом вызове. Если строки нет или чтение не удалось, возвращаются значения по умолчанию.
func (p *SettingsProvider) Get(ctx context.Context) model.ReferralSettings {
	s, err := p.store.GetReferralSettings(ctx)
	switch {
	case err == nil:
		return *s
	case errors.Is(err, repository.ErrSettingsNotFound):
		p.logger.Debug("referral settings not configured, using defaults")
	case repository.IsSchemaMissing(err):
		p.logger.Warn("referral settings table missing, using defaults", zap.Error(err))
	default:
		p.logger.Error("read referral settings failed, using defaults", zap.Error(err))
	}
	return model.DefaultReferralSettings()
}

// Update сохраняет настройки, изменённые администратором.
func (p *SettingsProvider) Update(ctx context.Context, s model.ReferralSettings) (*model.ReferralSettings, error) {
	if s.DiscountAmount < 0 || s.ReferrerPoints < 0 || s.RedemptionMinimum < 0 || s.RedemptionValue < 0 {
		return nil, ErrInvalidSettings
	}

	saved, err := p.store.SaveReferralSettings(ctx, s)
	if err != nil {
		p.logger.Error("save referral settings failed", zap.Error(err))
		return nil, err
	}

	p.logger.Info("referral settings updated",
		zap.Int64("discountAmount", saved.DiscountAmount),
		zap.Int64("referrerPoints", saved.ReferrerPoints),
		zap.Int64("redemptionMinimum", saved.RedemptionMinimum),
		zap.Int64("redemptionValue", saved.RedemptionValue),
		zap.Bool("active", saved.IsActive),
	)
	return saved, nil
}
