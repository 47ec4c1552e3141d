package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/shoeclean-loyalty/internal/metrics"
	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
	"github.com/mmeshcher/shoeclean-loyalty/internal/repository"
)

const (
	defaultTransactionsLimit = 20
	maxTransactionsLimit     = 100
)

// PointsStore описывает хранение бонусных счетов и журнала операций.
type PointsStore interface {
	GetAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error)
	EnsureAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error)
	ApplyDelta(ctx context.Context, customerID string, delta int64) (*model.CustomerPointsAccount, error)
	RecordReferral(ctx context.Context, usage model.ReferralUsage) (*model.CustomerPointsAccount, error)
	RedeemPoints(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, error)
	ReturnRedeemedPoints(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, int64, error)
	InsertTransaction(ctx context.Context, t model.PointsTransaction) error
	ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]model.PointsTransaction, error)
}

// PointsLedger единственный, кто меняет балансы клиентов и пишет журнал операций.
type PointsLedger struct {
	store   PointsStore
	logger  *zap.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// NewPointsLedger создаёт журнал баллов поверх хранилища.
func NewPointsLedger(store PointsStore, logger *zap.Logger, m *metrics.LedgerMetrics) *PointsLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointsLedger{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureAccount возвращает счёт клиента, создавая его при первом обращении.
func (l *PointsLedger) EnsureAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	if customerID == "" {
		return nil, ErrCustomerRequired
	}
	return l.store.EnsureAccount(ctx, customerID)
}

// Account возвращает счёт клиента или ErrNoPointsAccount.
func (l *PointsLedger) Account(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	a, err := l.store.GetAccount(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNoPointsAccount
		}
		return nil, err
	}
	return a, nil
}

// Transactions возвращает журнал операций клиента, начиная с последних.
func (l *PointsLedger) Transactions(ctx context.Context, customerID string, limit, offset int) ([]model.PointsTransaction, error) {
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	if limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.ListTransactions(ctx, customerID, limit, offset)
}

// ApplyDelta меняет баланс клиента и дописывает журнал. Не паникует и не возвращает ошибок:
// false означает, что баланс не изменён. Сбой записи журнала на результат не влияет.
func (l *PointsLedger) ApplyDelta(ctx context.Context, d model.PointsDelta) bool {
	_, err := l.apply(ctx, d)
	return err == nil
}

func (l *PointsLedger) apply(ctx context.Context, d model.PointsDelta) (*model.CustomerPointsAccount, error) {
	if d.CustomerID == "" {
		return nil, ErrCustomerRequired
	}
	if !d.ReferenceType.IsValid() {
		l.logger.Error("unsupported points reference type",
			zap.String("customerID", d.CustomerID), zap.String("referenceType", string(d.ReferenceType)))
		return nil, fmt.Errorf("unsupported reference type %q", d.ReferenceType)
	}
	if d.Points == 0 {
		return l.store.EnsureAccount(ctx, d.CustomerID)
	}

	account, err := l.store.ApplyDelta(ctx, d.CustomerID, d.Points)
	if err != nil {
		l.balanceFailed(d, err)
		return nil, err
	}

	l.metrics.ObservePoints(string(d.ReferenceType), d.Points)
	l.appendLog(ctx, d, account.CurrentBalance)
	return account, nil
}

// awardReferral сохраняет использование кода и начисляет баллы пригласившему в одной транзакции хранилища.
func (l *PointsLedger) awardReferral(ctx context.Context, usage model.ReferralUsage) (*model.CustomerPointsAccount, error) {
	usage.ID = uuid.New()
	usage.UsedAt = l.now()

	account, err := l.store.RecordReferral(ctx, usage)
	if err != nil {
		if errors.Is(err, repository.ErrUsageExists) {
			l.metrics.IncReferral("duplicate")
			l.logger.Warn("referral usage already recorded, points not awarded",
				zap.String("code", usage.ReferralCode),
				zap.String("referredCustomerID", usage.ReferredCustomerID),
				zap.String("invoice", usage.OrderInvoiceID))
			return nil, err
		}
		l.metrics.IncReferral("failed")
		l.logger.Error("record referral usage failed",
			zap.Error(err),
			zap.String("code", usage.ReferralCode),
			zap.String("invoice", usage.OrderInvoiceID))
		return nil, err
	}

	l.metrics.IncReferral("applied")
	if usage.PointsAwarded != 0 {
		d := model.PointsDelta{
			CustomerID:    usage.ReferrerCustomerID,
			Points:        usage.PointsAwarded,
			ReferenceType: model.ReferenceTypeReferral,
			ReferenceID:   usage.OrderInvoiceID,
			Description:   fmt.Sprintf("Referral bonus for inviting customer %s", usage.ReferredCustomerID),
		}
		l.metrics.ObservePoints(string(d.ReferenceType), d.Points)
		l.appendLog(ctx, d, account.CurrentBalance)
	}
	return account, nil
}

// redeem списывает баллы по заказу. Списанное запоминается за заказом и ограничивает последующий возврат.
func (l *PointsLedger) redeem(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, error) {
	d := model.PointsDelta{
		CustomerID:    customerID,
		Points:        -points,
		ReferenceType: model.ReferenceTypeRedemption,
		ReferenceID:   invoiceID,
		Description:   fmt.Sprintf("Points redeemed on order %s", invoiceID),
	}
	if customerID == "" {
		return nil, ErrCustomerRequired
	}
	if invoiceID == "" {
		return nil, fmt.Errorf("invoice id is required to redeem points")
	}

	account, err := l.store.RedeemPoints(ctx, invoiceID, customerID, points)
	if err != nil {
		l.balanceFailed(d, err)
		return nil, err
	}

	l.metrics.ObservePoints(string(d.ReferenceType), d.Points)
	l.appendLog(ctx, d, account.CurrentBalance)
	return account, nil
}

// returnRedeemed возвращает клиенту ручной корректировкой баллы, списанные по заказу, не больше списанного.
// Возвращает фактически возвращённые баллы; заказ без списаний даёт repository.ErrNothingRedeemed,
// полностью возвращённый repository.ErrAlreadyRolledBack.
func (l *PointsLedger) returnRedeemed(ctx context.Context, invoiceID, customerID string, points int64) (int64, error) {
	d := model.PointsDelta{
		CustomerID:    customerID,
		Points:        points,
		ReferenceType: model.ReferenceTypeManualAdjustment,
		ReferenceID:   invoiceID,
		Description:   fmt.Sprintf("Redeemed points returned for failed order %s", invoiceID),
	}

	account, returned, err := l.store.ReturnRedeemedPoints(ctx, invoiceID, customerID, points)
	if err != nil {
		if !errors.Is(err, repository.ErrAlreadyRolledBack) && !errors.Is(err, repository.ErrNothingRedeemed) {
			l.balanceFailed(d, err)
		}
		return 0, err
	}

	d.Points = returned
	l.metrics.ObservePoints(string(d.ReferenceType), d.Points)
	l.appendLog(ctx, d, account.CurrentBalance)
	return returned, nil
}

func (l *PointsLedger) balanceFailed(d model.PointsDelta, err error) {
	reason := "storage"
	if errors.Is(err, repository.ErrInsufficientBalance) {
		reason = "insufficient_balance"
	}
	l.metrics.IncBalanceFailure(reason)
	l.logger.Error("points balance update failed",
		zap.Error(err),
		zap.String("customerID", d.CustomerID),
		zap.Int64("points", d.Points),
		zap.String("referenceType", string(d.ReferenceType)),
		zap.String("referenceID", d.ReferenceID))
}

// appendLog пишет строку журнала. Баланс уже сохранён и считается источником истины, поэтому ошибка только логируется.
func (l *PointsLedger) appendLog(ctx context.Context, d model.PointsDelta, balanceAfter int64) {
	t := model.PointsTransaction{
		ID:              uuid.New(),
		CustomerID:      d.CustomerID,
		TransactionType: d.TransactionType(),
		PointsChange:    d.Points,
		BalanceAfter:    balanceAfter,
		ReferenceType:   d.ReferenceType,
		ReferenceID:     optional(d.ReferenceID),
		Description:     optional(d.Description),
		CreatedAt:       l.now(),
	}

	if err := l.store.InsertTransaction(ctx, t); err != nil {
		l.metrics.IncLogFailure()
		msg := "points transaction log write failed"
		if repository.IsSchemaMissing(err) {
			msg = "points transaction log table missing"
		}
		l.logger.Warn(msg,
			zap.Error(err),
			zap.String("customerID", t.CustomerID),
			zap.Int64("pointsChange", t.PointsChange),
			zap.Int64("balanceAfter", t.BalanceAfter))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
