package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/services"
)

type CallbackProcessor interface {
	HandleCallback(ctx context.Context, raw []byte) (services.Ack, error)
}

type CallbackHandler struct {
	service CallbackProcessor
}

func NewCallbackHandler(service CallbackProcessor) *CallbackHandler {
	return &CallbackHandler{service: service}
}

// MpesaCallback receives STK push results from the gateway
// @Summary M-Pesa STK callback
// @Description Result notification for an STK push. Public; called by the gateway.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body object true "Daraja callback envelope"
// @Success 200 {object} services.Ack
// @Failure 400 {object} services.Ack
// @Failure 500 {object} services.Ack
// @Router /payments/mpesa/callback [post]
func (h *CallbackHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeAck(w, http.StatusBadRequest, services.Ack{ResultCode: 1, ResultDesc: "Invalid request body"})
		return
	}

	ack, err := h.service.HandleCallback(r.Context(), raw)
	switch {
	case errors.Is(err, mpesa.ErrMalformedCallback):
		writeAck(w, http.StatusBadRequest, services.Ack{ResultCode: 1, ResultDesc: "Malformed callback"})
	case err != nil:
		writeAck(w, http.StatusInternalServerError, services.Ack{ResultCode: 1, ResultDesc: "Temporary failure"})
	default:
		writeAck(w, http.StatusOK, ack)
	}
}

func writeAck(w http.ResponseWriter, status int, ack services.Ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ack)
}
