package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pabfc/membership-payments/internal/audit"
	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/store"
)

var (
	ErrPlanNotFound       = errors.New("membership plan not found or not available")
	ErrMissingCheckoutID  = errors.New("checkout request id is required")
	ErrPaymentNotRecorded = errors.New("payment prompt sent but could not be recorded")
)

const transactionDesc = "Membership"

// Gateway is the subset of the mobile-money adapter the services use.
type Gateway interface {
	InitiatePush(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type PaymentRepository interface {
	NextPaymentNo(ctx context.Context) (int64, error)
	CreateIntent(ctx context.Context, p *models.Payment, gr *models.GatewayRequest) error
	StatusView(ctx context.Context, checkoutRequestID string) (*models.PaymentStatusView, error)
	ApplyGatewayOutcome(ctx context.Context, o models.GatewayOutcome) (*store.TransitionResult, error)
}

type PlanReader interface {
	Get(ctx context.Context, id int64) (*models.MembershipPlan, error)
}

type BillingReader interface {
	Billing(ctx context.Context) (config.BillingSettings, error)
}

// InitiateRequest is a member's request to pay for a plan.
type InitiateRequest struct {
	MemberID int64  `json:"-" validate:"required,gt=0"`
	UserID   *int64 `json:"-"`
	PlanID   int64  `json:"planId" validate:"required,gt=0"`
	Contact  string `json:"contact" validate:"required,msisdn_ke"`
}

type InitiateResult struct {
	PaymentID           string `json:"paymentId"`
	CheckoutRequestID   string `json:"checkoutRequestId"`
	MerchantRequestID   string `json:"merchantRequestId"`
	CustomerMessage     string `json:"customerMessage"`
	ResponseDescription string `json:"responseDescription"`
}

type PaymentService struct {
	payments  PaymentRepository
	plans     PlanReader
	billing   BillingReader
	gateway   Gateway
	validator *ValidationHelper
	audit     *audit.AuditLogger
	now       func() time.Time
}

func NewPaymentService(payments PaymentRepository, plans PlanReader, billing BillingReader, gateway Gateway, auditLogger *audit.AuditLogger) *PaymentService {
	return &PaymentService{
		payments:  payments,
		plans:     plans,
		billing:   billing,
		gateway:   gateway,
		validator: NewValidationHelper(),
		audit:     auditLogger,
		now:       time.Now,
	}
}

// Initiate validates the request, prices the plan, sends the STK push and
// records the pending payment together with the gateway request.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	phone, _ := NormalizeMSISDN(req.Contact)

	plan, err := s.plans.Get(ctx, req.PlanID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if !plan.Purchasable(s.now()) {
		return nil, ErrPlanNotFound
	}

	billing, err := s.billing.Billing(ctx)
	if err != nil {
		return nil, err
	}
	vatType := billing.EffectiveVATType()
	tax := CalculateTax(plan.Price, vatType, billing.VATRate)
	if err := mpesa.ValidateAmount(tax.Gross); err != nil {
		log.Printf("[PAYMENT] Plan %d priced at %s cannot be pushed: %v", plan.ID, tax.Gross, err)
		return nil, err
	}

	paymentNo, err := s.payments.NextPaymentNo(ctx)
	if err != nil {
		return nil, err
	}
	reference := billing.FormatPaymentNo(paymentNo)

	log.Printf("[PAYMENT] Initiating STK push: member=%d plan=%d amount=%s ref=%s", req.MemberID, plan.ID, tax.Gross, reference)
	push, err := s.gateway.InitiatePush(ctx, mpesa.PushRequest{
		Amount:           tax.Gross,
		Phone:            phone,
		AccountReference: reference,
		Description:      transactionDesc,
	})
	if err != nil {
		log.Printf("[PAYMENT] STK push failed for member %d: %v", req.MemberID, err)
		return nil, err
	}

	now := s.now()
	payment := &models.Payment{
		ID:                uuid.NewString(),
		PaymentNo:         paymentNo,
		MemberID:          req.MemberID,
		PlanID:            plan.ID,
		Amount:            plan.Price,
		LineTotal:         tax.Net,
		TaxAmount:         tax.Tax,
		TotalAmount:       tax.Gross,
		VATType:           vatType,
		Currency:          models.CurrencyKES,
		Status:            models.PaymentPending,
		Method:            models.MethodMpesaSTK,
		Channel:           models.ChannelPortal,
		ExternalReference: push.CheckoutRequestID,
		CreatedByUserID:   req.UserID,
		PaymentDate:       now,
	}
	request := &models.GatewayRequest{
		MemberID:          req.MemberID,
		PaymentID:         payment.ID,
		PhoneNumber:       phone,
		Amount:            tax.Gross,
		Status:            models.GatewayPending,
		MerchantRequestID: push.MerchantRequestID,
		CheckoutRequestID: push.CheckoutRequestID,
		RawRequest:        push.RawRequest,
		RawResponse:       push.RawResponse,
		InitiatedChannel:  models.ChannelPortal,
		InitiatedByUserID: req.UserID,
	}

	if err := s.payments.CreateIntent(ctx, payment, request); err != nil {
		log.Printf("[PAYMENT] Failed to record payment for checkout %s: %v", push.CheckoutRequestID, err)
		s.audit.LogError(payment.ID, push.CheckoutRequestID, err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentNotRecorded, err)
	}

	s.audit.LogInitiated(payment.ID, push.CheckoutRequestID, req.MemberID, tax.Gross)
	log.Printf("[PAYMENT] Payment %s pending on checkout %s", payment.ID, push.CheckoutRequestID)

	return &InitiateResult{
		PaymentID:           payment.ID,
		CheckoutRequestID:   push.CheckoutRequestID,
		MerchantRequestID:   push.MerchantRequestID,
		CustomerMessage:     push.CustomerMessage,
		ResponseDescription: push.ResponseDescription,
	}, nil
}

// GetStatus returns the polling view of a payment. An unknown id is not an
// error; the view reports Exists=false. A non-zero memberID limits the lookup
// to that member's payments and anything else reads as unknown.
func (s *PaymentService) GetStatus(ctx context.Context, checkoutRequestID string, memberID int64) (*models.PaymentStatusView, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, ErrMissingCheckoutID
	}
	view, err := s.payments.StatusView(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if memberID != 0 && view.Exists && view.MemberID != memberID {
		log.Printf("[PAYMENT] Member %d asked for status of checkout %s owned by another member", memberID, checkoutRequestID)
		return &models.PaymentStatusView{}, nil
	}
	return view, nil
}
