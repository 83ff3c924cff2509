package settlement

import (
	"context"
	"encoding/json"

	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/events"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/notify"
	"github.com/pabfc/membership-payments/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockPaymentLoader struct {
	mock.Mock
}

func (m *MockPaymentLoader) CompletedPayment(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	args := m.Called(ctx, checkoutRequestID)
	if p := args.Get(0); p != nil {
		return p.(*models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentLoader) CallbackPayload(ctx context.Context, checkoutRequestID string) (json.RawMessage, error) {
	args := m.Called(ctx, checkoutRequestID)
	if raw := args.Get(0); raw != nil {
		return raw.(json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPaymentLoader) MarkSettlementFailed(ctx context.Context, checkoutRequestID, reason string) error {
	return m.Called(ctx, checkoutRequestID, reason).Error(0)
}

type MockPlanLoader struct {
	mock.Mock
}

func (m *MockPlanLoader) Get(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*models.MembershipPlan), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlanLoader) PreviousPlanID(ctx context.Context, memberID int64) (*int64, error) {
	args := m.Called(ctx, memberID)
	if id := args.Get(0); id != nil {
		return id.(*int64), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockMemberLoader struct {
	mock.Mock
}

func (m *MockMemberLoader) Get(ctx context.Context, id int64) (*models.Member, error) {
	args := m.Called(ctx, id)
	if mem := args.Get(0); mem != nil {
		return mem.(*models.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockAccountResolver struct {
	mock.Mock
}

func (m *MockAccountResolver) Exists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountResolver) BankAccountID(ctx context.Context, name string, fallback int64) (int64, error) {
	args := m.Called(ctx, name, fallback)
	return args.Get(0).(int64), args.Error(1)
}

type MockBillingReader struct {
	mock.Mock
}

func (m *MockBillingReader) Billing(ctx context.Context) (config.BillingSettings, error) {
	args := m.Called(ctx)
	return args.Get(0).(config.BillingSettings), args.Error(1)
}

type MockSettlementPoster struct {
	mock.Mock
}

func (m *MockSettlementPoster) PostSettlement(ctx context.Context, p store.Posting) (*store.PostingResult, error) {
	args := m.Called(ctx, p)
	if r := args.Get(0); r != nil {
		return r.(*store.PostingResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishSettled(ctx context.Context, ev events.PaymentSettled) error {
	return m.Called(ctx, ev).Error(0)
}
