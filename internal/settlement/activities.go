package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pabfc/membership-payments/internal/audit"
	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/events"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/notify"
	"github.com/pabfc/membership-payments/internal/store"
	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Application error types that stop the workflow without retrying.
const (
	ErrTypePaymentNotFound       = "PaymentNotFound"
	ErrTypePlanNotFound          = "PlanNotFound"
	ErrTypeLedgerMappingNotFound = "LedgerMappingNotFound"
)

type PaymentLoader interface {
	CompletedPayment(ctx context.Context, checkoutRequestID string) (*models.Payment, error)
	CallbackPayload(ctx context.Context, checkoutRequestID string) (json.RawMessage, error)
	MarkSettlementFailed(ctx context.Context, checkoutRequestID, reason string) error
}

type PlanLoader interface {
	Get(ctx context.Context, id int64) (*models.MembershipPlan, error)
	PreviousPlanID(ctx context.Context, memberID int64) (*int64, error)
}

type MemberLoader interface {
	Get(ctx context.Context, id int64) (*models.Member, error)
}

type AccountResolver interface {
	Exists(ctx context.Context, id int64) (bool, error)
	BankAccountID(ctx context.Context, name string, fallback int64) (int64, error)
}

type BillingReader interface {
	Billing(ctx context.Context) (config.BillingSettings, error)
}

type SettlementPoster interface {
	PostSettlement(ctx context.Context, p store.Posting) (*store.PostingResult, error)
}

type EventPublisher interface {
	PublishSettled(ctx context.Context, ev events.PaymentSettled) error
}

// PlanContext is what settlement needs to know about the purchased plan.
type PlanContext struct {
	PlanID           int64      `json:"planId"`
	PlanName         string     `json:"planName"`
	RevenueAccountID *int64     `json:"revenueAccountId,omitempty"`
	StartDate        time.Time  `json:"startDate"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	PreviousPlanID   *int64     `json:"previousPlanId,omitempty"`
}

type LedgerMappingInput struct {
	RevenueAccountID *int64          `json:"revenueAccountId,omitempty"`
	Tax              decimal.Decimal `json:"tax"`
}

type PostInput struct {
	Payment models.Payment       `json:"payment"`
	Plan    PlanContext          `json:"plan"`
	Mapping models.LedgerMapping `json:"mapping"`
	Receipt string               `json:"receipt,omitempty"`
}

// PostResult reports whether this run wrote the settlement. Posted is false
// when another run got there first.
type PostResult struct {
	Posted         bool   `json:"posted"`
	MembershipID   string `json:"membershipId,omitempty"`
	JournalEntryID string `json:"journalEntryId,omitempty"`
	Receipt        string `json:"receipt,omitempty"`
}

type FailureInput struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	ErrType           string `json:"errType"`
	Reason            string `json:"reason"`
}

type NotifyInput struct {
	MemberID int64           `json:"memberId"`
	Amount   decimal.Decimal `json:"amount"`
}

// Activities holds the dependencies of the settlement activities.
type Activities struct {
	payments    PaymentLoader
	plans       PlanLoader
	members     MemberLoader
	accounts    AccountResolver
	billing     BillingReader
	settlements SettlementPoster
	sms         notify.Sender
	events      EventPublisher
	audit       *audit.AuditLogger
}

// NewActivities wires the activities. publisher may be nil when settlement
// events are disabled.
func NewActivities(payments PaymentLoader, plans PlanLoader, members MemberLoader, accounts AccountResolver,
	billing BillingReader, settlements SettlementPoster, sms notify.Sender, publisher EventPublisher, auditLogger *audit.AuditLogger) *Activities {
	return &Activities{
		payments:    payments,
		plans:       plans,
		members:     members,
		accounts:    accounts,
		billing:     billing,
		settlements: settlements,
		sms:         sms,
		events:      publisher,
		audit:       auditLogger,
	}
}

// LoadPayment returns the completed payment for a checkout request. Settled
// payments are returned too so the workflow can stop early.
func (a *Activities) LoadPayment(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	p, err := a.payments.CompletedPayment(ctx, checkoutRequestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no completed payment for %s", checkoutRequestID), ErrTypePaymentNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPlanContext resolves the plan and computes the membership period,
// starting on the payment date.
func (a *Activities) LoadPlanContext(ctx context.Context, p models.Payment) (*PlanContext, error) {
	plan, err := a.plans.Get(ctx, p.PlanID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("plan %d not found", p.PlanID), ErrTypePlanNotFound, err)
	}
	if err != nil {
		return nil, err
	}

	previous, err := a.plans.PreviousPlanID(ctx, p.MemberID)
	if err != nil {
		return nil, err
	}

	start, end := models.PeriodFor(plan, p.PaymentDate)
	return &PlanContext{
		PlanID:           plan.ID,
		PlanName:         plan.Name,
		RevenueAccountID: plan.RevenueAccountID,
		StartDate:        start,
		EndDate:          end,
		PreviousPlanID:   previous,
	}, nil
}

// LoadLedgerMapping resolves the revenue, VAT and bank accounts.
func (a *Activities) LoadLedgerMapping(ctx context.Context, in LedgerMappingInput) (*models.LedgerMapping, error) {
	if in.RevenueAccountID == nil {
		return nil, mappingNotFound("plan has no revenue account")
	}
	ok, err := a.accounts.Exists(ctx, *in.RevenueAccountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, mappingNotFound(fmt.Sprintf("revenue account %d not found", *in.RevenueAccountID))
	}

	settings, err := a.billing.Billing(ctx)
	if err != nil {
		return nil, err
	}

	m := &models.LedgerMapping{RevenueAccountID: *in.RevenueAccountID}
	if in.Tax.IsPositive() {
		if settings.VATAccountID == nil {
			return nil, mappingNotFound("no VAT account configured")
		}
		m.VATAccountID = settings.VATAccountID
	}

	m.BankAccountID, err = a.accounts.BankAccountID(ctx, settings.BankAccountName, settings.FallbackBankAccountID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func mappingNotFound(msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, ErrTypeLedgerMappingNotFound, nil)
}

// PostSettlement writes the membership and journal entry and marks the
// payment settled, all in one transaction.
func (a *Activities) PostSettlement(ctx context.Context, in PostInput) (*PostResult, error) {
	logger := activity.GetLogger(ctx)

	receipt := in.Receipt
	if receipt == "" {
		receipt = a.storedReceipt(ctx, in.Payment.ExternalReference)
	}

	entry, err := BuildJournalEntry(in.Payment, in.Mapping, receipt)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeLedgerMappingNotFound, err)
	}

	posting := store.Posting{
		PaymentID: in.Payment.ID,
		Receipt:   receipt,
		Membership: models.MembershipPeriod{
			MemberID:                 in.Payment.MemberID,
			MembershipPlanID:         in.Plan.PlanID,
			StartDate:                in.Plan.StartDate,
			EndDate:                  in.Plan.EndDate,
			Status:                   models.MembershipActive,
			PriceCharged:             in.Payment.TotalAmount,
			PaymentID:                in.Payment.ID,
			PreviousMembershipPlanID: in.Plan.PreviousPlanID,
		},
		Entry: entry,
	}

	res, err := a.settlements.PostSettlement(ctx, posting)
	switch {
	case errors.Is(err, store.ErrAlreadySettled):
		logger.Info("Payment already settled", "PaymentID", in.Payment.ID)
		return &PostResult{Posted: false}, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("payment %s not found", in.Payment.ID), ErrTypePaymentNotFound, err)
	case err != nil:
		a.audit.LogError(in.Payment.ID, in.Payment.ExternalReference, err)
		return nil, err
	}

	a.audit.LogSettled(in.Payment.ID, in.Payment.ExternalReference, res.MembershipID, res.JournalEntryID, in.Payment.TotalAmount)
	return &PostResult{
		Posted:         true,
		MembershipID:   res.MembershipID,
		JournalEntryID: res.JournalEntryID,
		Receipt:        receipt,
	}, nil
}

// storedReceipt reads the receipt number out of the recorded callback. A
// missing receipt is not fatal; the payment reference is left as is.
func (a *Activities) storedReceipt(ctx context.Context, checkoutRequestID string) string {
	raw, err := a.payments.CallbackPayload(ctx, checkoutRequestID)
	if err != nil || len(raw) == 0 {
		return ""
	}
	cb, err := mpesa.ParseCallback(raw)
	if err != nil {
		activity.GetLogger(ctx).Warn("Stored callback unreadable", "CheckoutRequestID", checkoutRequestID, "Error", err)
		return ""
	}
	return cb.Receipt()
}

// RecordFailure marks the payment as failed to settle so the sweeper stops
// starting new runs for it.
func (a *Activities) RecordFailure(ctx context.Context, in FailureInput) error {
	activity.GetLogger(ctx).Error("Settlement failed permanently",
		"CheckoutRequestID", in.CheckoutRequestID, "Type", in.ErrType, "Reason", in.Reason)
	return a.payments.MarkSettlementFailed(ctx, in.CheckoutRequestID, in.ErrType+": "+in.Reason)
}

// Notify sends the payment confirmation SMS.
func (a *Activities) Notify(ctx context.Context, in NotifyInput) error {
	member, err := a.members.Get(ctx, in.MemberID)
	if err != nil {
		return err
	}
	if member.Contact == "" {
		return fmt.Errorf("member %d has no contact number", member.ID)
	}
	return a.sms.Send(ctx, notify.Message{
		To:   []string{member.Contact},
		Text: notify.PaymentCompletedText(member.FirstName, in.Amount),
	})
}

// PublishSettled emits the settlement event when a publisher is configured.
func (a *Activities) PublishSettled(ctx context.Context, ev events.PaymentSettled) error {
	if a.events == nil {
		return nil
	}
	return a.events.PublishSettled(ctx, ev)
}
