package services

import (
	"context"
	"fmt"
	"log"

	"github.com/pabfc/membership-payments/internal/audit"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/store"
)

// Ack is the body returned to the gateway.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var AcceptedAck = Ack{ResultCode: 0, ResultDesc: "Accepted"}

// SettlementTrigger starts settlement for a completed payment. It must be
// safe to call more than once for the same checkout id.
type SettlementTrigger interface {
	TriggerSettlement(ctx context.Context, checkoutRequestID, receipt string) error
}

type StatusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type OutcomeApplier interface {
	ApplyGatewayOutcome(ctx context.Context, o models.GatewayOutcome) (*store.TransitionResult, error)
}

// CallbackService reconciles gateway results into payment state.
type CallbackService struct {
	payments OutcomeApplier
	gateway  StatusQuerier
	trigger  SettlementTrigger
	verify   bool
	audit    *audit.AuditLogger
}

func NewCallbackService(payments OutcomeApplier, gateway StatusQuerier, trigger SettlementTrigger, verify bool, auditLogger *audit.AuditLogger) *CallbackService {
	return &CallbackService{
		payments: payments,
		gateway:  gateway,
		trigger:  trigger,
		verify:   verify,
		audit:    auditLogger,
	}
}

// HandleCallback processes one callback delivery. Malformed bodies return an
// error wrapping mpesa.ErrMalformedCallback; any other error is a storage
// fault the gateway should retry.
func (s *CallbackService) HandleCallback(ctx context.Context, raw []byte) (Ack, error) {
	cb, err := mpesa.ParseCallback(raw)
	if err != nil {
		log.Printf("[CALLBACK] Rejected callback: %v", err)
		return Ack{}, err
	}
	log.Printf("[CALLBACK] Received result %d for checkout %s: %s", cb.Code(), cb.CheckoutRequestID, cb.ResultDesc)

	outcome := models.GatewayOutcome{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.Code(),
		ResultDesc:        cb.ResultDesc,
		Payload:           raw,
	}

	if s.verify {
		q, err := s.gateway.QueryStatus(ctx, cb.CheckoutRequestID)
		if err != nil {
			log.Printf("[CALLBACK] Verification failed for %s, leaving pending: %v", cb.CheckoutRequestID, err)
			return AcceptedAck, nil
		}
		if q.Pending {
			log.Printf("[CALLBACK] Gateway still processing %s, leaving pending", cb.CheckoutRequestID)
			return AcceptedAck, nil
		}
		if q.ResultCode != outcome.ResultCode {
			log.Printf("[CALLBACK] Callback result %d for %s overridden by query result %d", outcome.ResultCode, cb.CheckoutRequestID, q.ResultCode)
		}
		outcome.ResultCode = q.ResultCode
		outcome.ResultDesc = q.ResultDesc
	}

	if _, err := s.Apply(ctx, outcome, cb.Receipt()); err != nil {
		return Ack{}, err
	}
	return AcceptedAck, nil
}

// Apply moves the payment to the status implied by the outcome and triggers
// settlement on the pending to completed transition. Callbacks and the
// reconciliation sweep share this path.
func (s *CallbackService) Apply(ctx context.Context, o models.GatewayOutcome, receipt string) (*store.TransitionResult, error) {
	res, err := s.payments.ApplyGatewayOutcome(ctx, o)
	if err != nil {
		log.Printf("[CALLBACK] Failed to apply result for %s: %v", o.CheckoutRequestID, err)
		s.audit.LogError("", o.CheckoutRequestID, err)
		return nil, fmt.Errorf("apply gateway outcome: %w", err)
	}

	switch {
	case !res.Found:
		log.Printf("[CALLBACK] Unknown checkout %s, dropping", o.CheckoutRequestID)
		return res, nil
	case !res.Changed:
		log.Printf("[CALLBACK] Checkout %s already %s, nothing to do", o.CheckoutRequestID, res.Previous)
		return res, nil
	}

	s.audit.LogTransition(res.PaymentID, o.CheckoutRequestID, string(models.PaymentPending), string(res.Status), o.ResultCode)
	log.Printf("[CALLBACK] Payment %s is now %s", res.PaymentID, res.Status)

	if res.Status == models.PaymentCompleted {
		if err := s.trigger.TriggerSettlement(ctx, o.CheckoutRequestID, receipt); err != nil {
			// the reconciler picks up completed but unsettled payments
			log.Printf("[CALLBACK] Failed to trigger settlement for %s: %v", o.CheckoutRequestID, err)
		}
	}
	return res, nil
}
