package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pabfc/membership-payments/internal/models"
)

type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) Get(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	var p models.MembershipPlan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, duration, is_session_based, session_count, active, valid_to, revenue_account_id
		FROM membership_plans
		WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Duration, &p.IsSessionBased, &p.SessionCount, &p.Active, &p.ValidTo, &p.RevenueAccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %d: %w", id, err)
	}
	return &p, nil
}

// PreviousPlanID returns the plan of the member's most recent membership,
// or nil for a first-time member.
func (s *PlanStore) PreviousPlanID(ctx context.Context, memberID int64) (*int64, error) {
	var planID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT membership_plan_id FROM member_memberships
		WHERE member_id = $1
		ORDER BY end_date DESC NULLS LAST, start_date DESC
		LIMIT 1`, memberID,
	).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load previous membership: %w", err)
	}
	return &planID, nil
}
