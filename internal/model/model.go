// Package model содержит доменные сущности реферальной программы и бонусных баллов.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ReferralSettings описывает активную конфигурацию реферальной программы.
type ReferralSettings struct {
	ID                int64     `json:"id"`
	DiscountAmount    int64     `json:"discount_amount"`
	ReferrerPoints    int64     `json:"referrer_points"`
	RedemptionMinimum int64     `json:"redemption_minimum"`
	RedemptionValue   int64     `json:"redemption_value"`
	IsActive          bool      `json:"is_active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultReferralSettings возвращает настройки, которые действуют до первой настройки администратором.
func DefaultReferralSettings() ReferralSettings {
	return ReferralSettings{
		DiscountAmount:    5000,
		ReferrerPoints:    10,
		RedemptionMinimum: 50,
		RedemptionValue:   100,
		IsActive:          true,
	}
}

// CustomerPointsAccount содержит баланс бонусных баллов клиента.
type CustomerPointsAccount struct {
	CustomerID     string    `json:"customer_id"`
	CurrentBalance int64     `json:"current_balance"`
	TotalEarned    int64     `json:"total_earned"`
	TotalRedeemed  int64     `json:"total_redeemed"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TransactionType описывает вид операции с баллами.
type TransactionType string

const (
	TransactionTypeEarned   TransactionType = "earned"
	TransactionTypeRedeemed TransactionType = "redeemed"
	TransactionTypeAdjusted TransactionType = "adjusted"
)

// ReferenceType описывает источник операции с баллами.
type ReferenceType string

const (
	ReferenceTypeReferral         ReferenceType = "referral"
	ReferenceTypeRedemption       ReferenceType = "redemption"
	ReferenceTypeManualAdjustment ReferenceType = "manual_adjustment"
)

// IsValid сообщает, поддерживается ли источник операции.
func (r ReferenceType) IsValid() bool {
	switch r {
	case ReferenceTypeReferral, ReferenceTypeRedemption, ReferenceTypeManualAdjustment:
		return true
	}
	return false
}

// PointsTransaction описывает неизменяемую запись журнала операций с баллами.
type PointsTransaction struct {
	ID              uuid.UUID       `json:"id"`
	CustomerID      string          `json:"customer_id"`
	TransactionType TransactionType `json:"transaction_type"`
	PointsChange    int64           `json:"points_change"`
	BalanceAfter    int64           `json:"balance_after"`
	ReferenceType   ReferenceType   `json:"reference_type"`
	ReferenceID     *string         `json:"reference_id,omitempty"`
	Description     *string         `json:"description,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ReferralUsage фиксирует факт использования реферального кода приглашённым клиентом.
type ReferralUsage struct {
	ID                 uuid.UUID `json:"id"`
	ReferralCode       string    `json:"referral_code"`
	ReferrerCustomerID string    `json:"referrer_customer_id"`
	ReferredCustomerID string    `json:"referred_customer_id"`
	OrderInvoiceID     string    `json:"order_invoice_id"`
	DiscountApplied    int64     `json:"discount_applied"`
	PointsAwarded      int64     `json:"points_awarded"`
	UsedAt             time.Time `json:"used_at"`
}

// Order описывает заказ на чистку обуви в объёме, нужном реферальной программе.
type Order struct {
	InvoiceID              string `json:"invoice_id"`
	CustomerID             string `json:"customer_id"`
	Subtotal               int64  `json:"subtotal"`
	TotalAmount            int64  `json:"total_amount"`
	ReferralCodeUsed       string `json:"referral_code_used,omitempty"`
	ReferralDiscountAmount int64  `json:"referral_discount_amount"`
	PointsUsed             int64  `json:"points_used"`
	PointsDiscountAmount   int64  `json:"points_discount_amount"`
}

// PointsDelta описывает изменение баланса клиента.
type PointsDelta struct {
	CustomerID    string
	Points        int64
	ReferenceType ReferenceType
	ReferenceID   string
	Description   string
}

// TransactionType возвращает тип записи журнала для изменения баланса.
func (d PointsDelta) TransactionType() TransactionType {
	if d.ReferenceType == ReferenceTypeManualAdjustment {
		return TransactionTypeAdjusted
	}
	if d.Points < 0 {
		return TransactionTypeRedeemed
	}
	return TransactionTypeEarned
}
