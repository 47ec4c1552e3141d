// Package metrics содержит prometheus-метрики подсистемы бонусных баллов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics считает операции с баллами и реферальными кодами. Нулевое значение и nil безопасны.
type LedgerMetrics struct {
	points         *prometheus.CounterVec
	balanceFailure *prometheus.CounterVec
	logFailure     prometheus.Counter
	referrals      *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
}

// NewLedgerMetrics регистрирует метрики на переданном registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_points_applied_total",
		Help: "Points applied to customer balances, by reference type and direction.",
	}, []string{"reference_type", "direction"})
	balanceFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_balance_update_failures_total",
		Help: "Failed balance updates, by reason.",
	}, []string{"reason"})
	logFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_transaction_log_failures_total",
		Help: "Points transaction log rows that could not be written.",
	})
	referrals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_referrals_total",
		Help: "Referral code applications, by outcome.",
	}, []string{"outcome"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_rollbacks_total",
		Help: "Order referral rollbacks, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(points, balanceFailure, logFailure, referrals, rollbacks)
	return &LedgerMetrics{
		points:         points,
		balanceFailure: balanceFailure,
		logFailure:     logFailure,
		referrals:      referrals,
		rollbacks:      rollbacks,
	}
}

// ObservePoints учитывает применённое изменение баланса.
func (m *LedgerMetrics) ObservePoints(referenceType string, delta int64) {
	if m == nil || m.points == nil || delta == 0 {
		return
	}
	direction := "credit"
	if delta < 0 {
		direction = "debit"
		delta = -delta
	}
	m.points.WithLabelValues(normalizeLabel(referenceType), direction).Add(float64(delta))
}

// IncBalanceFailure учитывает неудачное изменение баланса.
func (m *LedgerMetrics) IncBalanceFailure(reason string) {
	if m == nil || m.balanceFailure == nil {
		return
	}
	m.balanceFailure.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncLogFailure учитывает незаписанную строку журнала.
func (m *LedgerMetrics) IncLogFailure() {
	if m == nil || m.logFailure == nil {
		return
	}
	m.logFailure.Inc()
}

// IncReferral учитывает результат применения реферального кода.
func (m *LedgerMetrics) IncReferral(outcome string) {
	if m == nil || m.referrals == nil {
		return
	}
	m.referrals.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRollback учитывает результат отката заказа.
func (m *LedgerMetrics) IncRollback(outcome string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
