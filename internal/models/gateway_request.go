package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// GatewayStatus mirrors the payment status on the gateway request row.
type GatewayStatus string

const (
	GatewayPending   GatewayStatus = "pending"
	GatewaySuccess   GatewayStatus = "success"
	GatewayFailed    GatewayStatus = "failed"
	GatewayCancelled GatewayStatus = "cancelled"
	GatewayTimeout   GatewayStatus = "timeout"
)

// GatewayStatusFor returns the gateway request status matching a payment status.
func GatewayStatusFor(s PaymentStatus) GatewayStatus {
	switch s {
	case PaymentCompleted:
		return GatewaySuccess
	case PaymentFailed:
		return GatewayFailed
	case PaymentCancelled:
		return GatewayCancelled
	case PaymentTimeout:
		return GatewayTimeout
	default:
		return GatewayPending
	}
}

func (s GatewayStatus) IsTerminal() bool {
	return s != GatewayPending && s != ""
}

// GatewayRequest records one STK push attempt and its callback.
type GatewayRequest struct {
	ID                 int64           `json:"id" db:"id"`
	MemberID           int64           `json:"member_id" db:"member_id"`
	PaymentID          string          `json:"payment_id" db:"payment_id"`
	PhoneNumber        string          `json:"phone_number" db:"phone_number"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	Status             GatewayStatus   `json:"status" db:"status"`
	MerchantRequestID  string          `json:"merchant_request_id" db:"merchant_request_id"`
	CheckoutRequestID  string          `json:"checkout_request_id" db:"checkout_request_id"`
	RawRequest         json.RawMessage `json:"raw_request,omitempty" db:"raw_request"`
	RawResponse        json.RawMessage `json:"raw_response,omitempty" db:"raw_response"`
	CallbackPayload    json.RawMessage `json:"callback_payload,omitempty" db:"callback_payload"`
	ResultCode         *int            `json:"result_code,omitempty" db:"result_code"`
	ResultDesc         *string         `json:"result_desc,omitempty" db:"result_desc"`
	InitiatedChannel   string          `json:"initiated_channel" db:"initiated_channel"`
	InitiatedByUserID  *int64          `json:"initiated_by_user_id,omitempty" db:"initiated_by_user_id"`
	CallbackReceivedAt *time.Time      `json:"callback_received_at,omitempty" db:"callback_received_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// GatewayOutcome is a terminal result reported by the gateway, either through
// a callback or a status query.
type GatewayOutcome struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Payload           json.RawMessage
}
