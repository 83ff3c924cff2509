package settlement

import (
	"errors"
	"slices"
	"time"

	"github.com/pabfc/membership-payments/internal/events"
	"github.com/pabfc/membership-payments/internal/models"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const TaskQueue = "PAYMENT_SETTLEMENT_TASK_QUEUE"

// WorkflowID is the settlement workflow id for a checkout request. One id per
// payment keeps duplicate triggers from starting parallel settlements.
func WorkflowID(checkoutRequestID string) string {
	return "settle-payment-" + checkoutRequestID
}

// SettlementEvent starts a settlement. Receipt may be empty; it is then read
// from the stored callback.
type SettlementEvent struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
	Receipt           string `json:"receipt,omitempty"`
}

type Outcome string

const (
	OutcomeSettled                   Outcome = "settled"
	OutcomeSettledNotificationFailed Outcome = "settled_notification_failed"
	OutcomeAlreadySettled            Outcome = "already_settled"
)

type SettlementResult struct {
	Outcome        Outcome `json:"outcome"`
	PaymentID      string  `json:"paymentId"`
	MembershipID   string  `json:"membershipId,omitempty"`
	JournalEntryID string  `json:"journalEntryId,omitempty"`
}

var settlementRetryPolicy = &temporal.RetryPolicy{
	InitialInterval:    time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    time.Minute,
	MaximumAttempts:    10,
	NonRetryableErrorTypes: permanentErrorTypes,
}

var permanentErrorTypes = []string{
	ErrTypePaymentNotFound,
	ErrTypePlanNotFound,
	ErrTypeLedgerMappingNotFound,
}

// failSettlement records err against the payment when retrying cannot fix it,
// then returns err unchanged.
func failSettlement(ctx workflow.Context, checkoutRequestID string, err error) error {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !slices.Contains(permanentErrorTypes, appErr.Type()) {
		return err
	}
	var a *Activities
	in := FailureInput{CheckoutRequestID: checkoutRequestID, ErrType: appErr.Type(), Reason: appErr.Message()}
	if recErr := workflow.ExecuteActivity(ctx, a.RecordFailure, in).Get(ctx, nil); recErr != nil {
		workflow.GetLogger(ctx).Error("Settlement failure not recorded", "CheckoutRequestID", checkoutRequestID, "Error", recErr)
	}
	return err
}

// SettlePaymentWorkflow turns a completed payment into an active membership
// and a balanced journal entry, then tells the member.
func SettlePaymentWorkflow(ctx workflow.Context, ev SettlementEvent) (SettlementResult, error) {
	logger := workflow.GetLogger(ctx)
	var a *Activities

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         settlementRetryPolicy,
	})

	var payment models.Payment
	if err := workflow.ExecuteActivity(ctx, a.LoadPayment, ev.CheckoutRequestID).Get(ctx, &payment); err != nil {
		return SettlementResult{}, failSettlement(ctx, ev.CheckoutRequestID, err)
	}
	result := SettlementResult{PaymentID: payment.ID}
	if payment.Settled() {
		logger.Info("Payment already settled", "PaymentID", payment.ID)
		result.Outcome = OutcomeAlreadySettled
		return result, nil
	}

	var plan PlanContext
	if err := workflow.ExecuteActivity(ctx, a.LoadPlanContext, payment).Get(ctx, &plan); err != nil {
		return SettlementResult{}, failSettlement(ctx, ev.CheckoutRequestID, err)
	}

	var mapping models.LedgerMapping
	mappingIn := LedgerMappingInput{RevenueAccountID: plan.RevenueAccountID, Tax: payment.TaxAmount}
	if err := workflow.ExecuteActivity(ctx, a.LoadLedgerMapping, mappingIn).Get(ctx, &mapping); err != nil {
		return SettlementResult{}, failSettlement(ctx, ev.CheckoutRequestID, err)
	}

	var posted PostResult
	postIn := PostInput{Payment: payment, Plan: plan, Mapping: mapping, Receipt: ev.Receipt}
	if err := workflow.ExecuteActivity(ctx, a.PostSettlement, postIn).Get(ctx, &posted); err != nil {
		return SettlementResult{}, failSettlement(ctx, ev.CheckoutRequestID, err)
	}
	if !posted.Posted {
		logger.Info("Settlement lost race, payment already settled", "PaymentID", payment.ID)
		result.Outcome = OutcomeAlreadySettled
		return result, nil
	}
	result.MembershipID = posted.MembershipID
	result.JournalEntryID = posted.JournalEntryID
	result.Outcome = OutcomeSettled

	// Side effects after the commit get a single attempt.
	bestEffort := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	notifyIn := NotifyInput{MemberID: payment.MemberID, Amount: payment.TotalAmount}
	if err := workflow.ExecuteActivity(bestEffort, a.Notify, notifyIn).Get(ctx, nil); err != nil {
		logger.Warn("Payment notification failed", "PaymentID", payment.ID, "Error", err)
		result.Outcome = OutcomeSettledNotificationFailed
	}

	settled := events.PaymentSettled{
		PaymentID:         payment.ID,
		PaymentNo:         payment.PaymentNo,
		MemberID:          payment.MemberID,
		PlanID:            payment.PlanID,
		MembershipID:      posted.MembershipID,
		JournalEntryID:    posted.JournalEntryID,
		CheckoutRequestID: ev.CheckoutRequestID,
		Receipt:           posted.Receipt,
		Amount:            payment.TotalAmount,
		SettledAt:         workflow.Now(ctx),
	}
	if err := workflow.ExecuteActivity(bestEffort, a.PublishSettled, settled).Get(ctx, nil); err != nil {
		logger.Warn("Settlement event not published", "PaymentID", payment.ID, "Error", err)
	}

	return result, nil
}
