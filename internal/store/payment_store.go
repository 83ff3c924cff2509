package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pabfc/membership-payments/internal/models"
	"github.com/shopspring/decimal"
)

// PaymentStore persists payment intents and their gateway requests.
type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// NextPaymentNo draws the next number from payment_no_seq.
func (s *PaymentStore) NextPaymentNo(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('payment_no_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("next payment number: %w", err)
	}
	return n, nil
}

// CreateIntent records an accepted push: the pending payment and the gateway
// request are written in one transaction.
func (s *PaymentStore) CreateIntent(ctx context.Context, p *models.Payment, gr *models.GatewayRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, payment_no, member_id, plan_id, amount, line_total, tax_amount, total_amount,
			vat_type, currency, status, method, channel, external_reference, created_by_user_id, payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.PaymentNo, p.MemberID, p.PlanID, p.Amount, p.LineTotal, p.TaxAmount, p.TotalAmount,
		p.VATType, p.Currency, string(p.Status), p.Method, p.Channel, p.ExternalReference, p.CreatedByUserID, p.PaymentDate)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO mpesa_stk_requests (member_id, payment_id, phone_number, amount, status, merchant_request_id,
			checkout_request_id, raw_request, raw_response, initiated_channel, initiated_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		gr.MemberID, gr.PaymentID, gr.PhoneNumber, gr.Amount, string(gr.Status), gr.MerchantRequestID,
		gr.CheckoutRequestID, nullJSON(gr.RawRequest), nullJSON(gr.RawResponse), gr.InitiatedChannel, gr.InitiatedByUserID,
	).Scan(&gr.ID)
	if err != nil {
		return fmt.Errorf("insert gateway request: %w", err)
	}

	return tx.Commit()
}

// StatusView returns the polling projection for a checkout request id.
func (s *PaymentStore) StatusView(ctx context.Context, checkoutRequestID string) (*models.PaymentStatusView, error) {
	view := &models.PaymentStatusView{}
	var (
		status string
		amount decimal.NullDecimal
		phone  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT p.status, p.total_amount, r.phone_number, p.settled_at IS NOT NULL, p.member_id
		FROM payments p
		LEFT JOIN mpesa_stk_requests r ON r.checkout_request_id = p.external_reference
		WHERE p.external_reference = $1`, checkoutRequestID,
	).Scan(&status, &amount, &phone, &view.Settled, &view.MemberID)
	if errors.Is(err, sql.ErrNoRows) {
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("payment status: %w", err)
	}

	view.Exists = true
	view.Status = models.PaymentStatus(status)
	if amount.Valid {
		view.Amount = &amount.Decimal
	}
	view.PhoneNumber = phone.String
	return view, nil
}

// TransitionResult describes what ApplyGatewayOutcome did.
type TransitionResult struct {
	Found     bool
	Changed   bool
	PaymentID string
	Previous  models.GatewayStatus
	Status    models.PaymentStatus
}

// ApplyGatewayOutcome moves a pending gateway request and its payment to the
// status implied by the gateway result. The gateway request row is locked for
// the duration so concurrent deliveries serialize; a terminal row is left
// untouched.
func (s *PaymentStore) ApplyGatewayOutcome(ctx context.Context, o models.GatewayOutcome) (*TransitionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		requestID int64
		paymentID sql.NullString
		current   string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, payment_id, status
		FROM mpesa_stk_requests
		WHERE checkout_request_id = $1
		FOR UPDATE`, o.CheckoutRequestID,
	).Scan(&requestID, &paymentID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return &TransitionResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock gateway request: %w", err)
	}

	res := &TransitionResult{
		Found:     true,
		PaymentID: paymentID.String,
		Previous:  models.GatewayStatus(current),
	}
	if res.Previous.IsTerminal() {
		return res, nil
	}

	next := models.StatusFromResultCode(o.ResultCode)
	res.Status = next

	_, err = tx.ExecContext(ctx, `
		UPDATE mpesa_stk_requests
		SET status = $2, callback_payload = $3, result_code = $4, result_desc = $5,
			callback_received_at = now(), updated_at = now()
		WHERE id = $1`,
		requestID, string(models.GatewayStatusFor(next)), nullJSON(o.Payload), o.ResultCode, o.ResultDesc)
	if err != nil {
		return nil, fmt.Errorf("update gateway request: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = $2, updated_at = now()
		WHERE external_reference = $1 AND status = 'pending'`,
		o.CheckoutRequestID, string(next))
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	res.Changed = affected > 0

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// ListStalePending returns checkout ids of gateway requests still pending
// since before the cutoff.
func (s *PaymentStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT checkout_request_id FROM mpesa_stk_requests
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, before, limit)
}

// ListUnsettled returns checkout ids of completed payments that have not been
// settled since before the cutoff. Payments whose settlement failed
// permanently are left out until the failure is cleared.
func (s *PaymentStore) ListUnsettled(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT external_reference FROM payments
		WHERE status = 'completed' AND settled_at IS NULL AND settlement_failed_at IS NULL AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, before, limit)
}

// MarkSettlementFailed records a settlement failure that retrying cannot fix.
// Settled payments are never marked.
func (s *PaymentStore) MarkSettlementFailed(ctx context.Context, checkoutRequestID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET settlement_failed_at = now(), settlement_error = $2, updated_at = now()
		WHERE external_reference = $1 AND settled_at IS NULL`, checkoutRequestID, reason)
	if err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	return nil
}

func (s *PaymentStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompletedPayment loads a completed payment by its checkout request id.
// Anything else, including a missing row, is ErrNotFound.
func (s *PaymentStore) CompletedPayment(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	var (
		p      models.Payment
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, payment_no, member_id, plan_id, amount, line_total, tax_amount, total_amount,
			vat_type, currency, status, external_reference, settled_at, payment_date
		FROM payments
		WHERE external_reference = $1 AND status = 'completed'`, checkoutRequestID,
	).Scan(&p.ID, &p.PaymentNo, &p.MemberID, &p.PlanID, &p.Amount, &p.LineTotal, &p.TaxAmount, &p.TotalAmount,
		&p.VATType, &p.Currency, &status, &p.ExternalReference, &p.SettledAt, &p.PaymentDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

// CallbackPayload returns the stored callback body for a checkout request, or
// nil if none was recorded.
func (s *PaymentStore) CallbackPayload(ctx context.Context, checkoutRequestID string) (json.RawMessage, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT callback_payload FROM mpesa_stk_requests WHERE checkout_request_id = $1`, checkoutRequestID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load callback payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return json.RawMessage(payload), nil
}
