// Package service реализует реферальную программу и бонусные баллы сервиса чистки обуви.
package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/shoeclean-loyalty/internal/metrics"
	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

// Repository описывает контракт хранилища, используемый сервисом.
type Repository interface {
	Close() error
	SettingsStore
	UsageChecker
	PointsStore
	ListUsagesByReferrer(ctx context.Context, referrerID string) ([]model.ReferralUsage, error)
}

// Service объединяет компоненты программы в операции, доступные оформлению заказа и админке.
type Service struct {
	repo         Repository
	settings     *SettingsProvider
	referrals    *ReferralValidator
	ledger       *PointsLedger
	redemptions  *RedemptionValidator
	orchestrator *OrderReferralOrchestrator
}

// NewService собирает сервис из хранилища и справочника клиентов.
func NewService(repo Repository, customers CustomerDirectory, policy ReferralPolicy, logger *zap.Logger, m *metrics.LedgerMetrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := NewSettingsProvider(repo, logger.Named("settings"))
	ledger := NewPointsLedger(repo, logger.Named("ledger"), m)
	referrals := NewReferralValidator(settings, customers, repo, policy)
	redemptions := NewRedemptionValidator(settings, ledger)

	return &Service{
		repo:         repo,
		settings:     settings,
		referrals:    referrals,
		ledger:       ledger,
		redemptions:  redemptions,
		orchestrator: NewOrderReferralOrchestrator(referrals, redemptions, ledger, logger.Named("checkout"), m),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ValidateReferralCode проверяет, может ли клиент применить реферальный код.
func (s *Service) ValidateReferralCode(ctx context.Context, code, customerID string) (ReferralQuote, error) {
	return s.referrals.Validate(ctx, code, customerID)
}

// ValidatePointsRedemption проверяет, может ли клиент списать баллы.
func (s *Service) ValidatePointsRedemption(ctx context.Context, customerID string, points int64) (RedemptionQuote, error) {
	return s.redemptions.Validate(ctx, customerID, points)
}

// ProcessOrderWithReferral применяет код и баллы к сохранённому заказу.
func (s *Service) ProcessOrderWithReferral(ctx context.Context, order model.Order, code string, points int64) OrderResult {
	return s.orchestrator.ProcessOrder(ctx, order, code, points)
}

// RollbackOrderReferralChanges компенсирует изменения для неудавшегося заказа.
func (s *Service) RollbackOrderReferralChanges(ctx context.Context, order model.Order, pointsUsed, pointsAwarded int64) (RollbackResult, error) {
	return s.orchestrator.Rollback(ctx, order, pointsUsed, pointsAwarded)
}

// AddPointsToCustomer меняет баланс клиента, в том числе при ручной корректировке из админки.
func (s *Service) AddPointsToCustomer(ctx context.Context, d model.PointsDelta) bool {
	d.CustomerID = strings.TrimSpace(d.CustomerID)
	return s.ledger.ApplyDelta(ctx, d)
}

// GetPointsAccount возвращает бонусный счёт клиента.
func (s *Service) GetPointsAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	return s.ledger.Account(ctx, customerID)
}

// GetPointsTransactions возвращает журнал операций клиента.
func (s *Service) GetPointsTransactions(ctx context.Context, customerID string, limit, offset int) ([]model.PointsTransaction, error) {
	return s.ledger.Transactions(ctx, customerID, limit, offset)
}

// GetReferralUsages возвращает использования реферального кода клиента.
func (s *Service) GetReferralUsages(ctx context.Context, referrerID string) ([]model.ReferralUsage, error) {
	return s.repo.ListUsagesByReferrer(ctx, referrerID)
}

// GetSettings возвращает действующие настройки реферальной программы.
func (s *Service) GetSettings(ctx context.Context) model.ReferralSettings {
	return s.settings.Get(ctx)
}

// UpdateSettings сохраняет настройки реферальной программы.
func (s *Service) UpdateSettings(ctx context.Context, settings model.ReferralSettings) (*model.ReferralSettings, error) {
	return s.settings.Update(ctx, settings)
}
