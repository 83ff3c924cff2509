package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// VAT treatment applied to membership payments.
const (
	VATInclusive = "inclusive"
	VATExclusive = "exclusive"
	VATNone      = "none"
)

// Default values used when the billing settings row omits a field.
const (
	DefaultInvoicePrefix        = "REC"
	DefaultInvoiceNumberPadding = 6
	DefaultBankAccountName      = "cash at bank"
	DefaultBankAccountID        = 2
)

var DefaultVATRate = decimal.NewFromInt(16)

// BillingSettings is the typed form of the settings.billing jsonb column.
type BillingSettings struct {
	InvoicePrefix         string          `json:"invoicePrefix"`
	InvoiceNumberPadding  int             `json:"invoiceNumberPadding"`
	ApplyTaxToMembership  bool            `json:"applyTaxToMembership"`
	VATType               string          `json:"vatType"`
	VATRate               decimal.Decimal `json:"vatRate"`
	VATAccountID          *int64          `json:"vatAccountId"`
	BankAccountName       string          `json:"bankAccountName"`
	FallbackBankAccountID int64           `json:"fallbackBankAccountId"`
}

// DefaultBillingSettings returns the settings used when no row exists.
func DefaultBillingSettings() BillingSettings {
	return BillingSettings{
		InvoicePrefix:         DefaultInvoicePrefix,
		InvoiceNumberPadding:  DefaultInvoiceNumberPadding,
		VATType:               VATInclusive,
		VATRate:               DefaultVATRate,
		BankAccountName:       DefaultBankAccountName,
		FallbackBankAccountID: DefaultBankAccountID,
	}
}

// ParseBillingSettings decodes the raw jsonb value on top of the defaults and
// validates the result. Fields absent from the row keep their default; an
// explicit zero vatRate is kept.
func ParseBillingSettings(raw []byte) (BillingSettings, error) {
	s := DefaultBillingSettings()
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &s); err != nil {
			return BillingSettings{}, fmt.Errorf("decode billing settings: %w", err)
		}
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return BillingSettings{}, err
	}
	return s, nil
}

func (s *BillingSettings) normalize() {
	s.InvoicePrefix = strings.TrimSpace(s.InvoicePrefix)
	if s.InvoicePrefix == "" {
		s.InvoicePrefix = DefaultInvoicePrefix
	}
	if s.InvoiceNumberPadding == 0 {
		s.InvoiceNumberPadding = DefaultInvoiceNumberPadding
	}
	s.VATType = strings.ToLower(strings.TrimSpace(s.VATType))
	if s.VATType == "" {
		s.VATType = VATInclusive
	}
	if strings.TrimSpace(s.BankAccountName) == "" {
		s.BankAccountName = DefaultBankAccountName
	}
	if s.FallbackBankAccountID == 0 {
		s.FallbackBankAccountID = DefaultBankAccountID
	}
}

func (s BillingSettings) Validate() error {
	var errs []error
	switch s.VATType {
	case VATInclusive, VATExclusive, VATNone:
	default:
		errs = append(errs, fmt.Errorf("billing: unknown vat type %q", s.VATType))
	}
	if s.VATRate.IsNegative() || s.VATRate.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("billing: vat rate %s out of range", s.VATRate))
	}
	if s.InvoiceNumberPadding < 0 || s.InvoiceNumberPadding > 20 {
		errs = append(errs, fmt.Errorf("billing: invoice number padding %d out of range", s.InvoiceNumberPadding))
	}
	if s.ApplyTaxToMembership && s.VATType != VATNone && s.VATAccountID == nil {
		errs = append(errs, errors.New("billing: vatAccountId is required when tax applies to memberships"))
	}
	return errors.Join(errs...)
}

// EffectiveVATType is the treatment actually used for membership payments.
func (s BillingSettings) EffectiveVATType() string {
	if !s.ApplyTaxToMembership {
		return VATNone
	}
	return s.VATType
}

// FormatPaymentNo renders a payment number as PREFIX-000123.
func (s BillingSettings) FormatPaymentNo(paymentNo int64) string {
	n := fmt.Sprintf("%d", paymentNo)
	if s.InvoiceNumberPadding > 0 {
		n = fmt.Sprintf("%0*d", s.InvoiceNumberPadding, paymentNo)
	}
	if s.InvoicePrefix == "" {
		return n
	}
	return strings.ToUpper(s.InvoicePrefix) + "-" + n
}
