package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const MembershipActive = "active"

// MembershipPlan is a purchasable plan.
type MembershipPlan struct {
	ID               int64           `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Price            decimal.Decimal `json:"price" db:"price"`
	Duration         int             `json:"duration" db:"duration"`
	IsSessionBased   bool            `json:"is_session_based" db:"is_session_based"`
	SessionCount     *int            `json:"session_count,omitempty" db:"session_count"`
	Active           bool            `json:"active" db:"active"`
	ValidTo          *time.Time      `json:"valid_to,omitempty" db:"valid_to"`
	RevenueAccountID *int64          `json:"revenue_account_id,omitempty" db:"revenue_account_id"`
}

// Purchasable reports whether the plan can be sold at the given instant.
func (p *MembershipPlan) Purchasable(now time.Time) bool {
	if !p.Active || !p.Price.IsPositive() {
		return false
	}
	return p.ValidTo == nil || !p.ValidTo.Before(now)
}

// MembershipPeriod is an activated membership produced by a settled payment.
type MembershipPeriod struct {
	ID                       string          `json:"id" db:"id"`
	MemberID                 int64           `json:"member_id" db:"member_id"`
	MembershipPlanID         int64           `json:"membership_plan_id" db:"membership_plan_id"`
	StartDate                time.Time       `json:"start_date" db:"start_date"`
	EndDate                  *time.Time      `json:"end_date,omitempty" db:"end_date"`
	Status                   string          `json:"status" db:"status"`
	AutoRenew                bool            `json:"auto_renew" db:"auto_renew"`
	PriceCharged             decimal.Decimal `json:"price_charged" db:"price_charged"`
	PaymentID                string          `json:"payment_id" db:"payment_id"`
	PreviousMembershipPlanID *int64          `json:"previous_membership_plan_id,omitempty" db:"previous_membership_plan_id"`
}

// PeriodFor computes the membership window that starts on the payment date.
// Session based plans are open ended.
func PeriodFor(plan *MembershipPlan, start time.Time) (time.Time, *time.Time) {
	if plan.IsSessionBased {
		return start, nil
	}
	end := start.AddDate(0, 0, plan.Duration)
	return start, &end
}

// Member is the payer as far as settlement needs to know.
type Member struct {
	ID        int64  `json:"id" db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	Contact   string `json:"contact" db:"contact"`
}
