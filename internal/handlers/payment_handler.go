package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pabfc/membership-payments/internal/middleware"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/services"
)

type PaymentInitiator interface {
	Initiate(ctx context.Context, req services.InitiateRequest) (*services.InitiateResult, error)
	GetStatus(ctx context.Context, checkoutRequestID string, memberID int64) (*models.PaymentStatusView, error)
}

type PaymentHandler struct {
	service PaymentInitiator
}

func NewPaymentHandler(service PaymentInitiator) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// InitiateSTKPush starts a membership payment
// @Summary Initiate M-Pesa STK push
// @Description Send a payment prompt to the member's phone for the selected plan
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{planId=int64,contact=string} true "STK push request"
// @Success 200 {object} services.InitiateResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /payments/stk-push [post]
func (h *PaymentHandler) InitiateSTKPush(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	if claims.MemberID == 0 {
		services.SendErrorResponse(w, "Only members can pay for a membership", http.StatusForbidden, nil)
		return
	}

	var req services.InitiateRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	req.MemberID = claims.MemberID
	userID := claims.UserID
	req.UserID = &userID

	result, err := h.service.Initiate(r.Context(), req)
	if err != nil {
		writeInitiateError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func writeInitiateError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	var gwErr *mpesa.GatewayError
	switch {
	case errors.As(err, &verrs):
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
	case errors.Is(err, services.ErrPlanNotFound),
		errors.Is(err, mpesa.ErrInvalidPhone),
		errors.Is(err, mpesa.ErrInvalidAmount):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.As(err, &gwErr):
		services.SendErrorResponse(w, gwErr.UserMessage(), http.StatusBadGateway, nil)
	case errors.Is(err, services.ErrPaymentNotRecorded):
		services.SendErrorResponse(w, services.ErrPaymentNotRecorded.Error(), http.StatusInternalServerError, nil)
	default:
		log.Printf("[PAYMENT] Initiate failed: %v", err)
		services.SendErrorResponse(w, "Failed to initiate payment", http.StatusInternalServerError, nil)
	}
}

// GetSTKPushStatus returns the current state of a payment
// @Summary Get STK push status
// @Description Poll the status of a payment by its checkout request id
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param checkoutRequestId path string true "Checkout request id"
// @Success 200 {object} models.PaymentStatusView
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /payments/stk-push/{checkoutRequestId}/status [get]
func (h *PaymentHandler) GetSTKPushStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	checkoutRequestID := chi.URLParam(r, "checkoutRequestId")

	view, err := h.service.GetStatus(r.Context(), checkoutRequestID, claims.MemberID)
	if errors.Is(err, services.ErrMissingCheckoutID) {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err != nil {
		log.Printf("[PAYMENT] Status lookup failed for %s: %v", checkoutRequestID, err)
		services.SendErrorResponse(w, "Failed to load payment status", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}
