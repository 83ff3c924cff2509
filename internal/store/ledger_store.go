package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pabfc/membership-payments/internal/models"
)

// LedgerStore writes journal entries inside a caller's transaction.
type LedgerStore struct{}

// InsertEntryTx writes the entry header and its lines. The entry must be
// balanced; the (source, source_id) unique key rejects a second entry for the
// same payment.
func (LedgerStore) InsertEntryTx(ctx context.Context, tx *sql.Tx, e *models.JournalEntry) (string, error) {
	if !e.Balanced() {
		return "", ErrUnbalancedEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries (id, entry_date, reference, source, source_id, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.EntryDate, e.Reference, e.Source, e.SourceID, e.Description)
	if err != nil {
		return "", fmt.Errorf("insert journal entry: %w", err)
	}

	for _, l := range e.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journal_lines (journal_entry_id, line_number, account_id, dc, amount, memo)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, l.LineNumber, l.AccountID, string(l.DC), l.Amount, l.Memo)
		if err != nil {
			return "", fmt.Errorf("insert journal line %d: %w", l.LineNumber, err)
		}
	}
	return e.ID, nil
}
