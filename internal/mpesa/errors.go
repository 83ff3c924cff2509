package mpesa

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPhone      = errors.New("phone number must be in the format 254XXXXXXXXX")
	ErrInvalidAmount     = errors.New("amount must be a positive whole number")
	ErrMalformedCallback = errors.New("malformed stk callback")
)

// GatewayError is returned for any failed exchange with the Daraja API.
type GatewayError struct {
	Op          string
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("mpesa %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += " " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage is safe to show to the payer.
func (e *GatewayError) UserMessage() string {
	if e.Description != "" && e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.Description
	}
	return "M-Pesa is unavailable right now, please try again shortly"
}

func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
