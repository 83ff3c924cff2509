package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a journal line.
type DC string

const (
	Debit  DC = "debit"
	Credit DC = "credit"
)

const JournalSourcePlanPayment = "plan payment"

type LedgerAccount struct {
	ID       int64  `json:"id" db:"id"`
	Code     string `json:"code" db:"code"`
	Name     string `json:"name" db:"name"`
	Type     string `json:"type" db:"type"`
	IsActive bool   `json:"is_active" db:"is_active"`
}

type JournalEntry struct {
	ID          string        `json:"id" db:"id"`
	EntryDate   time.Time     `json:"entry_date" db:"entry_date"`
	Reference   string        `json:"reference" db:"reference"`
	Source      string        `json:"source" db:"source"`
	SourceID    string        `json:"source_id" db:"source_id"`
	Description string        `json:"description" db:"description"`
	Lines       []JournalLine `json:"lines"`
}

type JournalLine struct {
	LineNumber int             `json:"line_number" db:"line_number"`
	AccountID  int64           `json:"account_id" db:"account_id"`
	DC         DC              `json:"dc" db:"dc"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Memo       string          `json:"memo" db:"memo"`
}

// Totals sums the debit and credit sides.
func (e *JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, l := range e.Lines {
		switch l.DC {
		case Debit:
			debit = debit.Add(l.Amount)
		case Credit:
			credit = credit.Add(l.Amount)
		}
	}
	return debit, credit
}

// Balanced reports whether the entry has lines, all positive, and equal sides.
func (e *JournalEntry) Balanced() bool {
	if len(e.Lines) == 0 {
		return false
	}
	for _, l := range e.Lines {
		if !l.Amount.IsPositive() {
			return false
		}
	}
	debit, credit := e.Totals()
	return debit.Equal(credit)
}

// LedgerMapping is the set of accounts a settlement posts to.
type LedgerMapping struct {
	RevenueAccountID int64  `json:"revenue_account_id"`
	VATAccountID     *int64 `json:"vat_account_id,omitempty"`
	BankAccountID    int64  `json:"bank_account_id"`
}
