package service

import (
	"errors"
	"fmt"
)

// ValidationError описывает ошибку проверки, текст которой показывается клиенту как есть.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is сравнивает ошибки проверки по коду, чтобы errors.Is работал и для ошибок с подставленными значениями.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	// ErrReferralInactive возвращается, если реферальная программа выключена.
	ErrReferralInactive = &ValidationError{Code: "referral_inactive", Message: "referral system is inactive"}
	// ErrInvalidReferralCode возвращается, если клиента с таким кодом нет.
	ErrInvalidReferralCode = &ValidationError{Code: "invalid_referral_code", Message: "referral code is invalid"}
	// ErrOwnReferralCode возвращается при попытке применить собственный код.
	ErrOwnReferralCode = &ValidationError{Code: "own_referral_code", Message: "you cannot use your own referral code"}
	// ErrReferralCodeUsed возвращается, если клиент уже использовал этот код.
	ErrReferralCodeUsed = &ValidationError{Code: "referral_code_used", Message: "referral code has already been used"}
	// ErrCustomerRequired возвращается, если не указан клиент.
	ErrCustomerRequired = &ValidationError{Code: "customer_required", Message: "customer id is required"}
	// ErrReferredCustomerNotFound возвращается при включённой политике обязательного наличия клиента.
	ErrReferredCustomerNotFound = &ValidationError{Code: "customer_not_found", Message: "customer not found"}
	// ErrRedemptionInactive возвращается, если списание баллов выключено.
	ErrRedemptionInactive = &ValidationError{Code: "redemption_inactive", Message: "points redemption is unavailable"}
	// ErrBelowMinimum возвращается, если баллов к списанию меньше минимума.
	ErrBelowMinimum = &ValidationError{Code: "below_minimum", Message: "points below redemption minimum"}
	// ErrNoPointsAccount возвращается, если у клиента нет бонусного счёта.
	ErrNoPointsAccount = &ValidationError{Code: "no_points_account", Message: "points account not found"}
	// ErrInsufficientPoints возвращается, если баллов на счёте недостаточно.
	ErrInsufficientPoints = &ValidationError{Code: "insufficient_points", Message: "insufficient points balance"}
	// ErrInvalidSettings возвращается при сохранении некорректных настроек.
	ErrInvalidSettings = &ValidationError{Code: "invalid_settings", Message: "referral settings must not be negative"}
)

func belowMinimum(minimum int64) error {
	return &ValidationError{
		Code:    ErrBelowMinimum.Code,
		Message: fmt.Sprintf("minimum redemption is %d points", minimum),
	}
}

// PublicMessage возвращает текст ошибки для клиента: ошибки проверки как есть, для остальных fallback.
func PublicMessage(err error, fallback string) string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	return fallback
}

// IsValidationError сообщает, является ли ошибка ошибкой проверки.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
