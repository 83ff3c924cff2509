package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pabfc/membership-payments/internal/config"
)

// SettingsStore reads the singleton settings row.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Billing returns the typed billing settings, or the defaults when no row
// has been saved yet.
func (s *SettingsStore) Billing(ctx context.Context) (config.BillingSettings, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT billing FROM settings ORDER BY id LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return config.DefaultBillingSettings(), nil
	}
	if err != nil {
		return config.BillingSettings{}, fmt.Errorf("load billing settings: %w", err)
	}
	return config.ParseBillingSettings(raw)
}
