package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AccountDirectory resolves ledger accounts used by settlement.
type AccountDirectory struct {
	db *sql.DB
}

func NewAccountDirectory(db *sql.DB) *AccountDirectory {
	return &AccountDirectory{db: db}
}

// FindByName looks an active account up by case-insensitive name.
func (d *AccountDirectory) FindByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id FROM ledger_accounts
		WHERE lower(name) = lower($1) AND is_active
		ORDER BY id
		LIMIT 1`, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find account %q: %w", name, err)
	}
	return id, nil
}

// Exists reports whether an active account with the id exists.
func (d *AccountDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE id = $1 AND is_active)`, id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check account %d: %w", id, err)
	}
	return ok, nil
}

// BankAccountID resolves the bank account by name, falling back to the
// configured id when no account carries that name.
func (d *AccountDirectory) BankAccountID(ctx context.Context, name string, fallback int64) (int64, error) {
	id, err := d.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return id, err
}
