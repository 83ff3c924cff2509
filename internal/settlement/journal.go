package settlement

import (
	"errors"
	"fmt"

	"github.com/pabfc/membership-payments/internal/models"
)

var errMissingVATAccount = errors.New("tax charged but no VAT account mapped")

// BuildJournalEntry produces the entry for a membership payment: revenue
// credited with the net amount, VAT credited with the tax when there is any,
// and the bank debited with the gross amount.
func BuildJournalEntry(p models.Payment, m models.LedgerMapping, receipt string) (models.JournalEntry, error) {
	gross := p.TotalAmount
	tax := p.TaxAmount
	net := gross.Sub(tax)

	reference := receipt
	if reference == "" {
		reference = p.ExternalReference
	}

	e := models.JournalEntry{
		EntryDate:   p.PaymentDate,
		Reference:   reference,
		Source:      models.JournalSourcePlanPayment,
		SourceID:    p.ID,
		Description: fmt.Sprintf("Membership payment %d", p.PaymentNo),
	}

	e.Lines = append(e.Lines, models.JournalLine{
		AccountID: m.RevenueAccountID,
		DC:        models.Credit,
		Amount:    net,
		Memo:      "Membership revenue",
	})
	if tax.IsPositive() {
		if m.VATAccountID == nil {
			return models.JournalEntry{}, errMissingVATAccount
		}
		e.Lines = append(e.Lines, models.JournalLine{
			AccountID: *m.VATAccountID,
			DC:        models.Credit,
			Amount:    tax,
			Memo:      "VAT",
		})
	}
	e.Lines = append(e.Lines, models.JournalLine{
		AccountID: m.BankAccountID,
		DC:        models.Debit,
		Amount:    gross,
		Memo:      "M-Pesa " + reference,
	})

	for i := range e.Lines {
		e.Lines[i].LineNumber = i + 1
	}
	if !e.Balanced() {
		return models.JournalEntry{}, fmt.Errorf("payment %s: journal entry does not balance", p.ID)
	}
	return e, nil
}
