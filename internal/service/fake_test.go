package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
	"github.com/mmeshcher/shoeclean-loyalty/internal/repository"
)

type memRedemption struct {
	customerID string
	redeemed   int64
	returned   int64
}

// memRepo повторяет поведение PostgresRepository в памяти: условное изменение баланса,
// уникальность (код, приглашённый) и возврат не больше списанного по заказу.
type memRepo struct {
	mu sync.Mutex

	settings    *model.ReferralSettings
	settingsErr error

	customers    map[string]bool
	customersErr error

	accounts     map[string]*model.CustomerPointsAccount
	transactions []model.PointsTransaction
	usages       []model.ReferralUsage
	redemptions  map[string]*memRedemption

	applyErr       error
	recordErr      error
	insertTxErr    error
	usageExistsErr error
	ensureCalls    int
}

func newMemRepo(customers ...string) *memRepo {
	r := &memRepo{
		customers:   make(map[string]bool),
		accounts:    make(map[string]*model.CustomerPointsAccount),
		redemptions: make(map[string]*memRedemption),
	}
	for _, c := range customers {
		r.customers[c] = true
	}
	return r
}

func (r *memRepo) withBalance(customerID string, balance int64) *memRepo {
	r.accounts[customerID] = &model.CustomerPointsAccount{
		CustomerID:     customerID,
		CurrentBalance: balance,
		TotalEarned:    balance,
	}
	return r
}

func (r *memRepo) withSettings(s model.ReferralSettings) *memRepo {
	r.settings = &s
	return r
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) GetReferralSettings(ctx context.Context) (*model.ReferralSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settingsErr != nil {
		return nil, r.settingsErr
	}
	if r.settings == nil {
		return nil, repository.ErrSettingsNotFound
	}
	s := *r.settings
	return &s, nil
}

func (r *memRepo) SaveReferralSettings(ctx context.Context, s model.ReferralSettings) (*model.ReferralSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settingsErr != nil {
		return nil, r.settingsErr
	}
	s.ID = 1
	s.UpdatedAt = time.Now()
	r.settings = &s
	saved := s
	return &saved, nil
}

func (r *memRepo) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.customersErr != nil {
		return false, r.customersErr
	}
	return r.customers[customerID], nil
}

func (r *memRepo) UsageExists(ctx context.Context, code, referredCustomerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usageExistsErr != nil {
		return false, r.usageExistsErr
	}
	for _, u := range r.usages {
		if u.ReferralCode == code && u.ReferredCustomerID == referredCustomerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListUsagesByReferrer(ctx context.Context, referrerID string) ([]model.ReferralUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.ReferralUsage
	for _, u := range r.usages {
		if u.ReferrerCustomerID == referrerID {
			res = append(res, u)
		}
	}
	return res, nil
}

func (r *memRepo) GetAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[customerID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) EnsureAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCalls++
	cp := *r.ensureLocked(customerID)
	return &cp, nil
}

func (r *memRepo) ensureLocked(customerID string) *model.CustomerPointsAccount {
	a, ok := r.accounts[customerID]
	if !ok {
		a = &model.CustomerPointsAccount{CustomerID: customerID}
		r.accounts[customerID] = a
	}
	return a
}

func (r *memRepo) applyLocked(customerID string, delta int64) (*model.CustomerPointsAccount, error) {
	a := r.ensureLocked(customerID)
	if a.CurrentBalance+delta < 0 {
		return nil, repository.ErrInsufficientBalance
	}
	a.CurrentBalance += delta
	if delta > 0 {
		a.TotalEarned += delta
	} else {
		a.TotalRedeemed += -delta
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ApplyDelta(ctx context.Context, customerID string, delta int64) (*model.CustomerPointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, r.applyErr
	}
	return r.applyLocked(customerID, delta)
}

func (r *memRepo) RecordReferral(ctx context.Context, usage model.ReferralUsage) (*model.CustomerPointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return nil, r.recordErr
	}
	for _, u := range r.usages {
		if u.ReferralCode == usage.ReferralCode && u.ReferredCustomerID == usage.ReferredCustomerID {
			return nil, fmt.Errorf("%w: %s", repository.ErrUsageExists, usage.ReferralCode)
		}
	}
	a, err := r.applyLocked(usage.ReferrerCustomerID, usage.PointsAwarded)
	if err != nil {
		return nil, err
	}
	r.usages = append(r.usages, usage)
	return a, nil
}

func (r *memRepo) RedeemPoints(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, r.applyErr
	}
	red, ok := r.redemptions[invoiceID]
	if ok && red.customerID != customerID {
		return nil, repository.ErrInvoiceCustomerMismatch
	}
	a, err := r.applyLocked(customerID, -points)
	if err != nil {
		return nil, err
	}
	if !ok {
		red = &memRedemption{customerID: customerID}
		r.redemptions[invoiceID] = red
	}
	red.redeemed += points
	return a, nil
}

func (r *memRepo) ReturnRedeemedPoints(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return nil, 0, r.applyErr
	}
	red, ok := r.redemptions[invoiceID]
	if !ok || red.customerID != customerID {
		return nil, 0, repository.ErrNothingRedeemed
	}
	amount := min(points, red.redeemed-red.returned)
	if amount <= 0 {
		return nil, 0, repository.ErrAlreadyRolledBack
	}
	a, err := r.applyLocked(customerID, amount)
	if err != nil {
		return nil, 0, err
	}
	red.returned += amount
	return a, amount, nil
}

func (r *memRepo) InsertTransaction(ctx context.Context, t model.PointsTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertTxErr != nil {
		return r.insertTxErr
	}
	r.transactions = append(r.transactions, t)
	return nil
}

func (r *memRepo) ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]model.PointsTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.PointsTransaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		if r.transactions[i].CustomerID == customerID {
			res = append(res, r.transactions[i])
		}
	}
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memRepo) account(customerID string) model.CustomerPointsAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[customerID]
	if !ok {
		return model.CustomerPointsAccount{}
	}
	return *a
}

func (r *memRepo) transactionsFor(customerID string) []model.PointsTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.PointsTransaction
	for _, t := range r.transactions {
		if t.CustomerID == customerID {
			res = append(res, t)
		}
	}
	return res
}

func newTestService(repo *memRepo) *Service {
	return NewService(repo, repo, ReferralPolicy{}, nil, nil)
}
