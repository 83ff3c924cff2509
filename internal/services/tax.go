package services

import (
	"github.com/pabfc/membership-payments/internal/config"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TaxBreakdown splits a charge into net, tax and gross. Net + Tax = Gross.
type TaxBreakdown struct {
	Net   decimal.Decimal
	Tax   decimal.Decimal
	Gross decimal.Decimal
}

// CalculateTax applies a percentage VAT rate to amount.
//
// inclusive: amount is gross, net = gross/(1+r) to 2dp.
// exclusive: tax = amount*r rounded to whole shillings, added on top.
// none: no tax.
func CalculateTax(amount decimal.Decimal, vatType string, ratePercent decimal.Decimal) TaxBreakdown {
	rate := ratePercent.Div(hundred)
	if !rate.IsPositive() {
		vatType = config.VATNone
	}

	switch vatType {
	case config.VATInclusive:
		net := amount.Div(decimal.NewFromInt(1).Add(rate)).Round(2)
		return TaxBreakdown{Net: net, Tax: amount.Sub(net), Gross: amount}
	case config.VATExclusive:
		tax := amount.Mul(rate).Round(0)
		return TaxBreakdown{Net: amount, Tax: tax, Gross: amount.Add(tax)}
	default:
		return TaxBreakdown{Net: amount, Tax: decimal.Zero, Gross: amount}
	}
}
