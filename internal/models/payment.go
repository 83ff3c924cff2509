package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment intent.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentTimeout   PaymentStatus = "timeout"
	PaymentCancelled PaymentStatus = "cancelled"
)

const (
	MethodMpesaSTK = "mpesa_stk"
	ChannelPortal  = "portal"
	CurrencyKES    = "KES"
)

// Gateway result codes with a dedicated meaning.
const (
	ResultCodeSuccess       = 0
	ResultCodeCancelledUser = 1032
	ResultCodeUnreachable   = 1037
)

var paymentTransitions = map[PaymentStatus]map[PaymentStatus]struct{}{
	PaymentPending: {
		PaymentCompleted: {},
		PaymentFailed:    {},
		PaymentTimeout:   {},
		PaymentCancelled: {},
	},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	next, ok := paymentTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminal reports whether no further transitions are possible.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentTimeout, PaymentCancelled:
		return true
	}
	return false
}

// StatusFromResultCode maps a gateway result code to the payment status it
// implies.
func StatusFromResultCode(code int) PaymentStatus {
	switch code {
	case ResultCodeSuccess:
		return PaymentCompleted
	case ResultCodeCancelledUser:
		return PaymentCancelled
	case ResultCodeUnreachable:
		return PaymentTimeout
	default:
		return PaymentFailed
	}
}

// Payment is a payment intent row.
type Payment struct {
	ID                string          `json:"id" db:"id"`
	PaymentNo         int64           `json:"payment_no" db:"payment_no"`
	MemberID          int64           `json:"member_id" db:"member_id"`
	PlanID            int64           `json:"plan_id" db:"plan_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	LineTotal         decimal.Decimal `json:"line_total" db:"line_total"`
	TaxAmount         decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount" db:"total_amount"`
	VATType           string          `json:"vat_type" db:"vat_type"`
	Currency          string          `json:"currency" db:"currency"`
	Status            PaymentStatus   `json:"status" db:"status"`
	Method            string          `json:"method" db:"method"`
	Channel           string          `json:"channel" db:"channel"`
	ExternalReference string          `json:"external_reference" db:"external_reference"`
	Reference         *string         `json:"reference,omitempty" db:"reference"`
	SettledAt         *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
	CreatedByUserID   *int64          `json:"created_by_user_id,omitempty" db:"created_by_user_id"`
	PaymentDate       time.Time       `json:"payment_date" db:"payment_date"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Settled reports whether the payment has already produced its membership and
// journal entry.
func (p *Payment) Settled() bool {
	return p.SettledAt != nil
}

// PaymentStatusView is the read-only projection served to polling clients.
type PaymentStatusView struct {
	Exists      bool             `json:"exists"`
	MemberID    int64            `json:"-"`
	Status      PaymentStatus    `json:"status,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PhoneNumber string           `json:"phoneNumber,omitempty"`
	Settled     bool             `json:"settled"`
}
