package services

import (
	"context"

	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) NextPaymentNo(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) CreateIntent(ctx context.Context, p *models.Payment, gr *models.GatewayRequest) error {
	args := m.Called(ctx, p, gr)
	return args.Error(0)
}

func (m *MockPaymentRepository) StatusView(ctx context.Context, checkoutRequestID string) (*models.PaymentStatusView, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentStatusView), args.Error(1)
}

func (m *MockPaymentRepository) ApplyGatewayOutcome(ctx context.Context, o models.GatewayOutcome) (*store.TransitionResult, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.TransitionResult), args.Error(1)
}

type MockPlanReader struct {
	mock.Mock
}

func (m *MockPlanReader) Get(ctx context.Context, id int64) (*models.MembershipPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MembershipPlan), args.Error(1)
}

type MockBillingReader struct {
	mock.Mock
}

func (m *MockBillingReader) Billing(ctx context.Context) (config.BillingSettings, error) {
	args := m.Called(ctx)
	return args.Get(0).(config.BillingSettings), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiatePush(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.PushResult), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.QueryResult), args.Error(1)
}

type MockSettlementTrigger struct {
	mock.Mock
}

func (m *MockSettlementTrigger) TriggerSettlement(ctx context.Context, checkoutRequestID, receipt string) error {
	args := m.Called(ctx, checkoutRequestID, receipt)
	return args.Error(0)
}
