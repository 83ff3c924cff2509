package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pabfc/membership-payments/internal/models"
)

// Posting is everything a settlement writes for one payment.
type Posting struct {
	PaymentID  string
	Receipt    string
	Membership models.MembershipPeriod
	Entry      models.JournalEntry
}

type PostingResult struct {
	MembershipID   string
	JournalEntryID string
}

// SettlementStore applies a settlement atomically.
type SettlementStore struct {
	db     *sql.DB
	ledger LedgerStore
}

func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

// PostSettlement locks the payment row, checks it is completed and not yet
// settled, then writes the membership, the journal entry and the settled
// marker in one transaction. A payment that is already settled, or loses a
// race on the membership or journal unique keys, yields ErrAlreadySettled.
func (s *SettlementStore) PostSettlement(ctx context.Context, p Posting) (*PostingResult, error) {
	if !p.Entry.Balanced() {
		return nil, ErrUnbalancedEntry
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.lockPayment(ctx, tx, p.PaymentID); err != nil {
		return nil, err
	}

	membershipID, err := s.insertMembership(ctx, tx, &p.Membership)
	if err != nil {
		return nil, err
	}

	entryID, err := s.ledger.InsertEntryTx(ctx, tx, &p.Entry)
	if isUniqueViolation(err) {
		return nil, ErrAlreadySettled
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET settled_at = now(), reference = COALESCE(NULLIF($2, ''), reference),
			settlement_failed_at = NULL, settlement_error = NULL, updated_at = now()
		WHERE id = $1`, p.PaymentID, p.Receipt)
	if err != nil {
		return nil, fmt.Errorf("mark payment settled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &PostingResult{MembershipID: membershipID, JournalEntryID: entryID}, nil
}

func (s *SettlementStore) lockPayment(ctx context.Context, tx *sql.Tx, paymentID string) error {
	var (
		status    string
		settledAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
		SELECT status, settled_at FROM payments
		WHERE id = $1
		FOR UPDATE`, paymentID,
	).Scan(&status, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock payment: %w", err)
	}
	if models.PaymentStatus(status) != models.PaymentCompleted || settledAt.Valid {
		return ErrAlreadySettled
	}
	return nil
}

func (s *SettlementStore) insertMembership(ctx context.Context, tx *sql.Tx, m *models.MembershipPeriod) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MembershipActive
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO member_memberships (id, member_id, membership_plan_id, start_date, end_date, status,
			auto_renew, price_charged, payment_id, previous_membership_plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.MemberID, m.MembershipPlanID, m.StartDate, m.EndDate, m.Status,
		m.AutoRenew, m.PriceCharged, m.PaymentID, m.PreviousMembershipPlanID)
	if isUniqueViolation(err) {
		return "", ErrAlreadySettled
	}
	if err != nil {
		return "", fmt.Errorf("insert membership: %w", err)
	}
	return m.ID, nil
}
