package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	terminal := []PaymentStatus{PaymentCompleted, PaymentFailed, PaymentTimeout, PaymentCancelled}

	for _, to := range terminal {
		assert.True(t, CanTransition(PaymentPending, to), "pending -> %s", to)
	}
	assert.False(t, CanTransition(PaymentPending, PaymentPending))

	for _, from := range terminal {
		assert.True(t, from.IsTerminal())
		for _, to := range append(terminal, PaymentPending) {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, PaymentPending.IsTerminal())
}

func TestStatusFromResultCode(t *testing.T) {
	tests := []struct {
		code int
		want PaymentStatus
	}{
		{0, PaymentCompleted},
		{1032, PaymentCancelled},
		{1037, PaymentTimeout},
		{1, PaymentFailed},
		{2001, PaymentFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFromResultCode(tt.code), "code %d", tt.code)
	}
}

func TestGatewayStatusFor(t *testing.T) {
	assert.Equal(t, GatewaySuccess, GatewayStatusFor(PaymentCompleted))
	assert.Equal(t, GatewayCancelled, GatewayStatusFor(PaymentCancelled))
	assert.Equal(t, GatewayTimeout, GatewayStatusFor(PaymentTimeout))
	assert.Equal(t, GatewayFailed, GatewayStatusFor(PaymentFailed))
	assert.Equal(t, GatewayPending, GatewayStatusFor(PaymentPending))
	assert.False(t, GatewayPending.IsTerminal())
	assert.True(t, GatewaySuccess.IsTerminal())
}

func TestPeriodFor(t *testing.T) {
	start := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("duration plan", func(t *testing.T) {
		s, e := PeriodFor(&MembershipPlan{Duration: 30}, start)
		assert.Equal(t, start, s)
		if assert.NotNil(t, e) {
			assert.Equal(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), *e)
		}
	})

	t.Run("session plan is open ended", func(t *testing.T) {
		_, e := PeriodFor(&MembershipPlan{Duration: 30, IsSessionBased: true}, start)
		assert.Nil(t, e)
	})
}

func TestMembershipPlanPurchasable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	assert.True(t, (&MembershipPlan{Active: true, Price: decimal.NewFromInt(1500)}).Purchasable(now))
	assert.False(t, (&MembershipPlan{Active: false, Price: decimal.NewFromInt(1500)}).Purchasable(now))
	assert.False(t, (&MembershipPlan{Active: true, Price: decimal.Zero}).Purchasable(now))
	assert.False(t, (&MembershipPlan{Active: true, Price: decimal.NewFromInt(1500), ValidTo: &past}).Purchasable(now))
}

func TestJournalEntryBalanced(t *testing.T) {
	vat := decimal.RequireFromString("206.90")
	net := decimal.RequireFromString("1293.10")
	gross := decimal.NewFromInt(1500)

	e := &JournalEntry{Lines: []JournalLine{
		{LineNumber: 1, AccountID: 401, DC: Credit, Amount: net},
		{LineNumber: 2, AccountID: 220, DC: Credit, Amount: vat},
		{LineNumber: 3, AccountID: 2, DC: Debit, Amount: gross},
	}}
	assert.True(t, e.Balanced())

	e.Lines[2].Amount = decimal.NewFromInt(1499)
	assert.False(t, e.Balanced())

	assert.False(t, (&JournalEntry{}).Balanced())

	zero := &JournalEntry{Lines: []JournalLine{
		{DC: Credit, Amount: decimal.Zero},
		{DC: Debit, Amount: decimal.Zero},
	}}
	assert.False(t, zero.Balanced())
}
