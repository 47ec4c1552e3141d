// Package handler содержит HTTP-обработчики API сервиса лояльности.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/shoeclean-loyalty/internal/middleware"
	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
	"github.com/mmeshcher/shoeclean-loyalty/internal/service"
	"github.com/mmeshcher/shoeclean-loyalty/internal/validation"
)

const defaultAdminName = "admin"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ValidateReferralCode(ctx context.Context, code, customerID string) (service.ReferralQuote, error)
	ValidatePointsRedemption(ctx context.Context, customerID string, points int64) (service.RedemptionQuote, error)
	ProcessOrderWithReferral(ctx context.Context, order model.Order, code string, points int64) service.OrderResult
	RollbackOrderReferralChanges(ctx context.Context, order model.Order, pointsUsed, pointsAwarded int64) (service.RollbackResult, error)
	AddPointsToCustomer(ctx context.Context, d model.PointsDelta) bool
	GetPointsAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error)
	GetPointsTransactions(ctx context.Context, customerID string, limit, offset int) ([]model.PointsTransaction, error)
	GetReferralUsages(ctx context.Context, referrerID string) ([]model.ReferralUsage, error)
	GetSettings(ctx context.Context) model.ReferralSettings
	UpdateSettings(ctx context.Context, s model.ReferralSettings) (*model.ReferralSettings, error)
}

// Handler реализует HTTP-обработчики API сервиса лояльности.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	serviceAuth    *middleware.APIKeyMiddleware
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. serviceAuth закрывает маршруты оформления заказа,
// metrics отдаётся по /metrics, если не nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, serviceAuth *middleware.APIKeyMiddleware, metrics http.Handler) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		serviceAuth:    serviceAuth,
		metrics:        metrics,
	}
}

type validationResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type referralValidateRequest struct {
	Code       string `json:"code" validate:"max=64"`
	CustomerID string `json:"customer_id" validate:"max=64"`
}

type referralValidateResponse struct {
	validationResponse
	*service.ReferralQuote
}

// ValidateReferral проверяет реферальный код для клиента без каких-либо изменений.
func (h *Handler) ValidateReferral(w http.ResponseWriter, r *http.Request) {
	var req referralValidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	quote, err := h.service.ValidateReferralCode(r.Context(), req.Code, req.CustomerID)
	if err != nil {
		h.logValidation("referral code rejected", err)
		writeJSON(w, http.StatusOK, referralValidateResponse{
			validationResponse: validationResponse{Error: service.PublicMessage(err, "referral code could not be verified")},
		})
		return
	}

	writeJSON(w, http.StatusOK, referralValidateResponse{
		validationResponse: validationResponse{Valid: true},
		ReferralQuote:      &quote,
	})
}

type pointsValidateRequest struct {
	CustomerID string `json:"customer_id" validate:"max=64"`
	Points     int64  `json:"points"`
}

type pointsValidateResponse struct {
	validationResponse
	*service.RedemptionQuote
}

// ValidatePoints проверяет, может ли клиент списать баллы.
func (h *Handler) ValidatePoints(w http.ResponseWriter, r *http.Request) {
	var req pointsValidateRequest
	if !h.decode(w, r, &req) {
		return
	}

	quote, err := h.service.ValidatePointsRedemption(r.Context(), req.CustomerID, req.Points)
	if err != nil {
		h.logValidation("points redemption rejected", err)
		writeJSON(w, http.StatusOK, pointsValidateResponse{
			validationResponse: validationResponse{Error: service.PublicMessage(err, "points could not be verified")},
		})
		return
	}

	writeJSON(w, http.StatusOK, pointsValidateResponse{
		validationResponse: validationResponse{Valid: true},
		RedemptionQuote:    &quote,
	})
}

type orderRequest struct {
	InvoiceID   string `json:"invoice_id" validate:"identifier"`
	CustomerID  string `json:"customer_id" validate:"identifier"`
	Subtotal    int64  `json:"subtotal" validate:"gte=0"`
	TotalAmount int64  `json:"total_amount" validate:"gte=0"`

	ReferralCodeUsed       string `json:"referral_code_used" validate:"max=64"`
	ReferralDiscountAmount int64  `json:"referral_discount_amount" validate:"gte=0"`
	PointsUsed             int64  `json:"points_used" validate:"gte=0"`
	PointsDiscountAmount   int64  `json:"points_discount_amount" validate:"gte=0"`
}

func (o orderRequest) toModel() model.Order {
	return model.Order{
		InvoiceID:              o.InvoiceID,
		CustomerID:             o.CustomerID,
		Subtotal:               o.Subtotal,
		TotalAmount:            o.TotalAmount,
		ReferralCodeUsed:       o.ReferralCodeUsed,
		ReferralDiscountAmount: o.ReferralDiscountAmount,
		PointsUsed:             o.PointsUsed,
		PointsDiscountAmount:   o.PointsDiscountAmount,
	}
}

type checkoutRequest struct {
	Order          orderRequest `json:"order"`
	ReferralCode   string       `json:"referral_code" validate:"max=64"`
	PointsToRedeem int64        `json:"points_to_redeem" validate:"gte=0"`
}

// ProcessCheckout применяет код и баллы к сохранённому заказу.
func (h *Handler) ProcessCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.service.ProcessOrderWithReferral(r.Context(), req.Order.toModel(), req.ReferralCode, req.PointsToRedeem)
	if !res.Success {
		h.logger.Info("checkout finished with errors",
			zap.String("invoice", req.Order.InvoiceID), zap.Strings("errors", res.Errors))
	}
	writeJSON(w, http.StatusOK, res)
}

type rollbackRequest struct {
	Order         orderRequest `json:"order"`
	PointsUsed    int64        `json:"points_used" validate:"gte=0"`
	PointsAwarded int64        `json:"points_awarded" validate:"gte=0"`
}

// RollbackCheckout компенсирует изменения для заказа, который не удалось завершить.
func (h *Handler) RollbackCheckout(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RollbackOrderReferralChanges(r.Context(), req.Order.toModel(), req.PointsUsed, req.PointsAwarded)
	if err != nil {
		h.logger.Error("checkout rollback error", zap.Error(err), zap.String("invoice", req.Order.InvoiceID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetPoints возвращает бонусный счёт клиента.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if !validation.IsIdentifier(customerID) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	account, err := h.service.GetPointsAccount(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, service.ErrNoPointsAccount) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get points account error", zap.Error(err), zap.String("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// GetTransactions возвращает журнал операций клиента, начиная с последних.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if !validation.IsIdentifier(customerID) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	txs, err := h.service.GetPointsTransactions(r.Context(), customerID, limit, offset)
	if err != nil {
		h.logger.Error("get points transactions error", zap.Error(err), zap.String("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.PointsTransaction{}
	}

	writeJSON(w, http.StatusOK, txs)
}

type adminLoginRequest struct {
	Secret string `json:"secret" validate:"required"`
	Name   string `json:"name" validate:"omitempty,alphanum,max=32"`
}

// AdminLogin выдаёт cookie администратора при совпадении общего секрета.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !h.authMiddleware.CheckSecret(req.Secret) {
		h.logger.Warn("admin login rejected", zap.String("remoteAddr", r.RemoteAddr))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	name := req.Name
	if name == "" {
		name = defaultAdminName
	}
	h.authMiddleware.SetAuthCookie(w, name)
	w.WriteHeader(http.StatusOK)
}

// GetSettings возвращает действующие настройки реферальной программы.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetSettings(r.Context()))
}

type settingsRequest struct {
	DiscountAmount    int64 `json:"discount_amount" validate:"gte=0"`
	ReferrerPoints    int64 `json:"referrer_points" validate:"gte=0"`
	RedemptionMinimum int64 `json:"redemption_minimum" validate:"gte=0"`
	RedemptionValue   int64 `json:"redemption_value" validate:"gte=0"`
	IsActive          *bool `json:"is_active" validate:"required"`
}

// UpdateSettings сохраняет настройки реферальной программы.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	saved, err := h.service.UpdateSettings(r.Context(), model.ReferralSettings{
		DiscountAmount:    req.DiscountAmount,
		ReferrerPoints:    req.ReferrerPoints,
		RedemptionMinimum: req.RedemptionMinimum,
		RedemptionValue:   req.RedemptionValue,
		IsActive:          *req.IsActive,
	})
	if err != nil {
		if service.IsValidationError(err) {
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: err.Error()})
			return
		}
		h.logger.Error("update referral settings error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	admin, _ := middleware.GetAdminFromContext(r.Context())
	h.logger.Info("referral settings updated by admin", zap.String("admin", admin))
	writeJSON(w, http.StatusOK, saved)
}

type adjustPointsRequest struct {
	CustomerID  string `json:"customer_id" validate:"identifier"`
	Points      int64  `json:"points" validate:"required"`
	ReferenceID string `json:"reference_id" validate:"max=64"`
	Description string `json:"description" validate:"max=255"`
}

// AdjustPoints выполняет ручную корректировку баланса клиента.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req adjustPointsRequest
	if !h.decode(w, r, &req) {
		return
	}

	admin, _ := middleware.GetAdminFromContext(r.Context())
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Manual adjustment by %s", admin)
	}

	ok := h.service.AddPointsToCustomer(r.Context(), model.PointsDelta{
		CustomerID:    req.CustomerID,
		Points:        req.Points,
		ReferenceType: model.ReferenceTypeManualAdjustment,
		ReferenceID:   req.ReferenceID,
		Description:   description,
	})
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: "points balance could not be adjusted"})
		return
	}

	account, err := h.service.GetPointsAccount(r.Context(), req.CustomerID)
	if err != nil {
		h.logger.Error("read adjusted account error", zap.Error(err), zap.String("customerID", req.CustomerID))
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetReferralUsages возвращает использования реферального кода клиента.
func (h *Handler) GetReferralUsages(w http.ResponseWriter, r *http.Request) {
	referrerID := chi.URLParam(r, "referrerID")
	if !validation.IsIdentifier(referrerID) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	usages, err := h.service.GetReferralUsages(r.Context(), referrerID)
	if err != nil {
		h.logger.Error("get referral usages error", zap.Error(err), zap.String("referrerID", referrerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(usages) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, usages)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := validation.DecodeJSON(r, dest)
	if err == nil {
		return true
	}

	var fieldsErr *validation.FieldsError
	if errors.As(err, &fieldsErr) {
		writeJSON(w, http.StatusBadRequest, struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}{Error: "validation failed", Fields: fieldsErr.Fields})
		return false
	}

	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	return false
}

func (h *Handler) logValidation(msg string, err error) {
	if service.IsValidationError(err) {
		h.logger.Debug(msg, zap.String("reason", err.Error()))
		return
	}
	h.logger.Error(msg, zap.Error(err))
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
