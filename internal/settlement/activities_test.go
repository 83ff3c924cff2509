package settlement

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/events"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/notify"
	"github.com/pabfc/membership-payments/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

const storedCallback = `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_1","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"Amount","Value":1500},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"PhoneNumber","Value":254712345678}]}}}}`

type activityDeps struct {
	payments    *MockPaymentLoader
	plans       *MockPlanLoader
	members     *MockMemberLoader
	accounts    *MockAccountResolver
	billing     *MockBillingReader
	settlements *MockSettlementPoster
	sms         *MockSender
	events      *MockEventPublisher
}

func newActivities(t *testing.T) (*Activities, *activityDeps, *testsuite.TestActivityEnvironment) {
	t.Helper()
	d := &activityDeps{
		payments:    new(MockPaymentLoader),
		plans:       new(MockPlanLoader),
		members:     new(MockMemberLoader),
		accounts:    new(MockAccountResolver),
		billing:     new(MockBillingReader),
		settlements: new(MockSettlementPoster),
		sms:         new(MockSender),
		events:      new(MockEventPublisher),
	}
	a := NewActivities(d.payments, d.plans, d.members, d.accounts, d.billing, d.settlements, d.sms, d.events, nil)

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(a)
	return a, d, env
}

func requireAppErrorType(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected application error, got %v", err)
	assert.Equal(t, want, appErr.Type())
	assert.True(t, appErr.NonRetryable())
}

func TestActivities_LoadPayment(t *testing.T) {
	t.Run("completed payment", func(t *testing.T) {
		a, d, env := newActivities(t)
		p := completedPayment()
		d.payments.On("CompletedPayment", mock.Anything, "ws_1").Return(&p, nil)

		val, err := env.ExecuteActivity(a.LoadPayment, "ws_1")
		require.NoError(t, err)
		var got models.Payment
		require.NoError(t, val.Get(&got))
		assert.Equal(t, "pay-1", got.ID)
		assert.False(t, got.Settled())
	})

	t.Run("missing payment is not retried", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.payments.On("CompletedPayment", mock.Anything, "ws_9").Return(nil, store.ErrNotFound)

		_, err := env.ExecuteActivity(a.LoadPayment, "ws_9")
		requireAppErrorType(t, err, ErrTypePaymentNotFound)
	})
}

func TestActivities_LoadPlanContext(t *testing.T) {
	t.Run("fixed duration plan", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.plans.On("Get", mock.Anything, int64(3)).Return(&models.MembershipPlan{
			ID: 3, Name: "Monthly", Price: decimal.NewFromInt(1500), Duration: 30, Active: true, RevenueAccountID: int64Ptr(401),
		}, nil)
		d.plans.On("PreviousPlanID", mock.Anything, int64(7)).Return(int64Ptr(2), nil)

		val, err := env.ExecuteActivity(a.LoadPlanContext, completedPayment())
		require.NoError(t, err)
		var pc PlanContext
		require.NoError(t, val.Get(&pc))
		assert.Equal(t, int64(3), pc.PlanID)
		assert.True(t, pc.StartDate.Equal(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)))
		require.NotNil(t, pc.EndDate)
		assert.True(t, pc.EndDate.Equal(time.Date(2025, 3, 31, 9, 30, 0, 0, time.UTC)))
		require.NotNil(t, pc.PreviousPlanID)
		assert.Equal(t, int64(2), *pc.PreviousPlanID)
		require.NotNil(t, pc.RevenueAccountID)
		assert.Equal(t, int64(401), *pc.RevenueAccountID)
	})

	t.Run("session plan is open ended", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.plans.On("Get", mock.Anything, int64(3)).Return(&models.MembershipPlan{
			ID: 3, Price: decimal.NewFromInt(500), IsSessionBased: true, Active: true,
		}, nil)
		d.plans.On("PreviousPlanID", mock.Anything, int64(7)).Return(nil, nil)

		val, err := env.ExecuteActivity(a.LoadPlanContext, completedPayment())
		require.NoError(t, err)
		var pc PlanContext
		require.NoError(t, val.Get(&pc))
		assert.Nil(t, pc.EndDate)
		assert.Nil(t, pc.PreviousPlanID)
	})

	t.Run("missing plan is not retried", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.plans.On("Get", mock.Anything, int64(3)).Return(nil, store.ErrNotFound)

		_, err := env.ExecuteActivity(a.LoadPlanContext, completedPayment())
		requireAppErrorType(t, err, ErrTypePlanNotFound)
	})
}

func TestActivities_LoadLedgerMapping(t *testing.T) {
	settings := config.DefaultBillingSettings()

	t.Run("no tax", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.accounts.On("Exists", mock.Anything, int64(401)).Return(true, nil)
		d.billing.On("Billing", mock.Anything).Return(settings, nil)
		d.accounts.On("BankAccountID", mock.Anything, "cash at bank", int64(2)).Return(int64(5), nil)

		val, err := env.ExecuteActivity(a.LoadLedgerMapping, LedgerMappingInput{RevenueAccountID: int64Ptr(401), Tax: decimal.Zero})
		require.NoError(t, err)
		var m models.LedgerMapping
		require.NoError(t, val.Get(&m))
		assert.Equal(t, int64(401), m.RevenueAccountID)
		assert.Equal(t, int64(5), m.BankAccountID)
		assert.Nil(t, m.VATAccountID)
	})

	t.Run("tax uses configured vat account", func(t *testing.T) {
		a, d, env := newActivities(t)
		s := settings
		s.ApplyTaxToMembership = true
		s.VATAccountID = int64Ptr(220)
		d.accounts.On("Exists", mock.Anything, int64(401)).Return(true, nil)
		d.billing.On("Billing", mock.Anything).Return(s, nil)
		d.accounts.On("BankAccountID", mock.Anything, "cash at bank", int64(2)).Return(int64(2), nil)

		val, err := env.ExecuteActivity(a.LoadLedgerMapping, LedgerMappingInput{RevenueAccountID: int64Ptr(401), Tax: decimal.RequireFromString("206.90")})
		require.NoError(t, err)
		var m models.LedgerMapping
		require.NoError(t, val.Get(&m))
		require.NotNil(t, m.VATAccountID)
		assert.Equal(t, int64(220), *m.VATAccountID)
	})

	t.Run("plan without revenue account", func(t *testing.T) {
		a, _, env := newActivities(t)
		_, err := env.ExecuteActivity(a.LoadLedgerMapping, LedgerMappingInput{})
		requireAppErrorType(t, err, ErrTypeLedgerMappingNotFound)
	})

	t.Run("inactive revenue account", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.accounts.On("Exists", mock.Anything, int64(401)).Return(false, nil)
		_, err := env.ExecuteActivity(a.LoadLedgerMapping, LedgerMappingInput{RevenueAccountID: int64Ptr(401)})
		requireAppErrorType(t, err, ErrTypeLedgerMappingNotFound)
	})

	t.Run("tax without vat account", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.accounts.On("Exists", mock.Anything, int64(401)).Return(true, nil)
		d.billing.On("Billing", mock.Anything).Return(settings, nil)

		_, err := env.ExecuteActivity(a.LoadLedgerMapping, LedgerMappingInput{RevenueAccountID: int64Ptr(401), Tax: decimal.NewFromInt(197)})
		requireAppErrorType(t, err, ErrTypeLedgerMappingNotFound)
	})
}

func postInput() PostInput {
	end := time.Date(2025, 3, 31, 9, 30, 0, 0, time.UTC)
	return PostInput{
		Payment: completedPayment(),
		Plan: PlanContext{
			PlanID:    3,
			StartDate: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
			EndDate:   &end,
		},
		Mapping: models.LedgerMapping{RevenueAccountID: 401, BankAccountID: 2},
		Receipt: "NLJ7RT61SV",
	}
}

func TestActivities_PostSettlement(t *testing.T) {
	t.Run("posts membership and balanced entry", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.settlements.On("PostSettlement", mock.Anything, mock.MatchedBy(func(p store.Posting) bool {
			return p.PaymentID == "pay-1" &&
				p.Receipt == "NLJ7RT61SV" &&
				p.Membership.MemberID == 7 &&
				p.Membership.MembershipPlanID == 3 &&
				p.Membership.PaymentID == "pay-1" &&
				p.Membership.PriceCharged.Equal(decimal.NewFromInt(1500)) &&
				p.Entry.Balanced() &&
				len(p.Entry.Lines) == 2
		})).Return(&store.PostingResult{MembershipID: "mem-1", JournalEntryID: "je-1"}, nil)

		val, err := env.ExecuteActivity(a.PostSettlement, postInput())
		require.NoError(t, err)
		var res PostResult
		require.NoError(t, val.Get(&res))
		assert.True(t, res.Posted)
		assert.Equal(t, "mem-1", res.MembershipID)
		assert.Equal(t, "je-1", res.JournalEntryID)
		assert.Equal(t, "NLJ7RT61SV", res.Receipt)
		d.payments.AssertNotCalled(t, "CallbackPayload", mock.Anything, mock.Anything)
	})

	t.Run("receipt read from stored callback", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.payments.On("CallbackPayload", mock.Anything, "ws_1").Return(json.RawMessage(storedCallback), nil)
		d.settlements.On("PostSettlement", mock.Anything, mock.MatchedBy(func(p store.Posting) bool {
			return p.Receipt == "NLJ7RT61SV" && p.Entry.Reference == "NLJ7RT61SV"
		})).Return(&store.PostingResult{MembershipID: "mem-1", JournalEntryID: "je-1"}, nil)

		in := postInput()
		in.Receipt = ""
		_, err := env.ExecuteActivity(a.PostSettlement, in)
		require.NoError(t, err)
		d.settlements.AssertExpectations(t)
	})

	t.Run("already settled is not an error", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.settlements.On("PostSettlement", mock.Anything, mock.Anything).Return(nil, store.ErrAlreadySettled)

		val, err := env.ExecuteActivity(a.PostSettlement, postInput())
		require.NoError(t, err)
		var res PostResult
		require.NoError(t, val.Get(&res))
		assert.False(t, res.Posted)
	})

	t.Run("transient failure is retryable", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.settlements.On("PostSettlement", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		_, err := env.ExecuteActivity(a.PostSettlement, postInput())
		require.Error(t, err)
		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.False(t, appErr.NonRetryable())
	})

	t.Run("missing payment row", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.settlements.On("PostSettlement", mock.Anything, mock.Anything).Return(nil, store.ErrNotFound)

		_, err := env.ExecuteActivity(a.PostSettlement, postInput())
		requireAppErrorType(t, err, ErrTypePaymentNotFound)
	})
}

func TestActivities_RecordFailure(t *testing.T) {
	a, d, env := newActivities(t)
	d.payments.On("MarkSettlementFailed", mock.Anything, "ws_1", "LedgerMappingNotFound: plan has no revenue account").
		Return(nil).Once()

	_, err := env.ExecuteActivity(a.RecordFailure, FailureInput{
		CheckoutRequestID: "ws_1",
		ErrType:           ErrTypeLedgerMappingNotFound,
		Reason:            "plan has no revenue account",
	})
	require.NoError(t, err)
	d.payments.AssertExpectations(t)
}

func TestActivities_Notify(t *testing.T) {
	t.Run("sends confirmation", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.members.On("Get", mock.Anything, int64(7)).Return(&models.Member{ID: 7, FirstName: "Jane", Contact: "0712345678"}, nil)
		d.sms.On("Send", mock.Anything, notify.Message{
			To:   []string{"0712345678"},
			Text: "Dear Jane, your payment of KES 1500.00 has been completed successfully. We're glad you're continuing with us",
		}).Return(nil)

		_, err := env.ExecuteActivity(a.Notify, NotifyInput{MemberID: 7, Amount: decimal.NewFromInt(1500)})
		require.NoError(t, err)
		d.sms.AssertExpectations(t)
	})

	t.Run("member without contact", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.members.On("Get", mock.Anything, int64(7)).Return(&models.Member{ID: 7, FirstName: "Jane"}, nil)

		_, err := env.ExecuteActivity(a.Notify, NotifyInput{MemberID: 7, Amount: decimal.NewFromInt(1500)})
		assert.Error(t, err)
		d.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("sender failure", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.members.On("Get", mock.Anything, int64(7)).Return(&models.Member{ID: 7, FirstName: "Jane", Contact: "0712345678"}, nil)
		d.sms.On("Send", mock.Anything, mock.Anything).Return(errors.New("provider down"))

		_, err := env.ExecuteActivity(a.Notify, NotifyInput{MemberID: 7, Amount: decimal.NewFromInt(1500)})
		assert.Error(t, err)
	})
}

func TestActivities_PublishSettled(t *testing.T) {
	t.Run("publishes", func(t *testing.T) {
		a, d, env := newActivities(t)
		d.events.On("PublishSettled", mock.Anything, mock.MatchedBy(func(ev events.PaymentSettled) bool {
			return ev.PaymentID == "pay-1"
		})).Return(nil)

		_, err := env.ExecuteActivity(a.PublishSettled, events.PaymentSettled{PaymentID: "pay-1"})
		require.NoError(t, err)
		d.events.AssertExpectations(t)
	})

	t.Run("disabled publisher", func(t *testing.T) {
		a := NewActivities(nil, nil, nil, nil, nil, nil, notify.Nop{}, nil, nil)
		var s testsuite.WorkflowTestSuite
		env := s.NewTestActivityEnvironment()
		env.RegisterActivity(a)

		_, err := env.ExecuteActivity(a.PublishSettled, events.PaymentSettled{PaymentID: "pay-1"})
		assert.NoError(t, err)
	})
}
