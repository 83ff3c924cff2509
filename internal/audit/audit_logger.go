package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Event types written by the payment flow.
const (
	EventPaymentInitiated  = "PAYMENT_INITIATED"
	EventPaymentTransition = "PAYMENT_TRANSITION"
	EventPaymentSettled    = "PAYMENT_SETTLED"
	EventError             = "ERROR"
)

type AuditEvent struct {
	Timestamp         time.Time         `json:"timestamp"`
	EventType         string            `json:"event_type"`
	PaymentID         string            `json:"payment_id,omitempty"`
	CheckoutRequestID string            `json:"checkout_request_id,omitempty"`
	MemberID          int64             `json:"member_id,omitempty"`
	Amount            *decimal.Decimal  `json:"amount,omitempty"`
	Status            string            `json:"status"`
	Details           map[string]string `json:"details,omitempty"`
}

// AuditLogger writes one JSON line per money-moving event.
type AuditLogger struct {
	logger *log.Logger
	now    func() time.Time
}

func NewAuditLogger() *AuditLogger {
	return NewAuditLoggerTo(os.Stderr)
}

func NewAuditLoggerTo(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: log.New(w, "", log.LstdFlags), now: time.Now}
}

func (a *AuditLogger) LogInitiated(paymentID, checkoutRequestID string, memberID int64, amount decimal.Decimal) {
	a.log(AuditEvent{
		EventType:         EventPaymentInitiated,
		PaymentID:         paymentID,
		CheckoutRequestID: checkoutRequestID,
		MemberID:          memberID,
		Amount:            &amount,
		Status:            "pending",
	})
}

func (a *AuditLogger) LogTransition(paymentID, checkoutRequestID, from, to string, resultCode int) {
	a.log(AuditEvent{
		EventType:         EventPaymentTransition,
		PaymentID:         paymentID,
		CheckoutRequestID: checkoutRequestID,
		Status:            to,
		Details: map[string]string{
			"from":        from,
			"result_code": strconv.Itoa(resultCode),
		},
	})
}

func (a *AuditLogger) LogSettled(paymentID, checkoutRequestID, membershipID, journalEntryID string, amount decimal.Decimal) {
	a.log(AuditEvent{
		EventType:         EventPaymentSettled,
		PaymentID:         paymentID,
		CheckoutRequestID: checkoutRequestID,
		Amount:            &amount,
		Status:            "settled",
		Details: map[string]string{
			"membership_id":    membershipID,
			"journal_entry_id": journalEntryID,
		},
	})
}

func (a *AuditLogger) LogError(paymentID, checkoutRequestID string, err error) {
	a.log(AuditEvent{
		EventType:         EventError,
		PaymentID:         paymentID,
		CheckoutRequestID: checkoutRequestID,
		Status:            "FAILED",
		Details:           map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	if a == nil {
		return
	}
	event.Timestamp = a.now()
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}
