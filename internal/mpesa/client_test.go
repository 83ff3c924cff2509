package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaraja struct {
	tokenCalls atomic.Int32
	pushCalls  atomic.Int32
	lastPush   stkPushBody
	pushStatus int
	pushBody   string
	queryBody  string
	queryCode  int
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ck" || pass != "cs" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		w.Write([]byte(`{"access_token":"tok-1","expires_in":"3599"}`))
	})
	mux.HandleFunc(pushPath, func(w http.ResponseWriter, r *http.Request) {
		f.pushCalls.Add(1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPush))
		if f.pushStatus != 0 {
			w.WriteHeader(f.pushStatus)
		}
		w.Write([]byte(f.pushBody))
	})
	mux.HandleFunc(queryPath, func(w http.ResponseWriter, r *http.Request) {
		if f.queryCode != 0 {
			w.WriteHeader(f.queryCode)
		}
		w.Write([]byte(f.queryBody))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDaraja) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		ShortCode:      "174379",
		PassKey:        "pk",
		CallbackURL:    "https://portal.example.com/api/v1/payments/mpesa/callback",
		HTTPClient:     srv.Client(),
	}, NewMemoryTokenCache())
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	return c
}

func TestInitiatePush(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := &fakeDaraja{pushBody: `{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`}
		c := newTestClient(t, f)

		res, err := c.InitiatePush(context.Background(), PushRequest{
			Amount: decimal.NewFromInt(1500),
			Phone:  "254712345678",
		})
		require.NoError(t, err)
		assert.Equal(t, "ws_1", res.CheckoutRequestID)
		assert.Equal(t, "m-1", res.MerchantRequestID)

		// 09:30 UTC is 12:30 in Nairobi.
		assert.Equal(t, "20250301123000", f.lastPush.Timestamp)
		want := base64.StdEncoding.EncodeToString([]byte("174379" + "pk" + "20250301123000"))
		assert.Equal(t, want, f.lastPush.Password)
		assert.Equal(t, "CustomerPayBillOnline", f.lastPush.TransactionType)
		assert.Equal(t, int64(1500), f.lastPush.Amount)
		assert.Equal(t, "254712345678", f.lastPush.PartyA)
		assert.Equal(t, "174379", f.lastPush.PartyB)
		assert.Equal(t, "DefaultRef", f.lastPush.AccountReference)
		assert.Equal(t, "Payment", f.lastPush.TransactionDesc)
		assert.NotContains(t, string(res.RawRequest), want)
	})

	t.Run("token is reused", func(t *testing.T) {
		f := &fakeDaraja{pushBody: `{"CheckoutRequestID":"ws_2","ResponseCode":"0"}`}
		c := newTestClient(t, f)
		for i := 0; i < 3; i++ {
			_, err := c.InitiatePush(context.Background(), PushRequest{Amount: decimal.NewFromInt(10), Phone: "254712345678", AccountReference: "REC-000001"})
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), f.tokenCalls.Load())
		assert.Equal(t, int32(3), f.pushCalls.Load())
		assert.Equal(t, "REC-000001", f.lastPush.AccountReference)
	})

	t.Run("validation happens before any network call", func(t *testing.T) {
		f := &fakeDaraja{}
		c := newTestClient(t, f)

		_, err := c.InitiatePush(context.Background(), PushRequest{Amount: decimal.NewFromInt(10), Phone: "0712345678"})
		assert.ErrorIs(t, err, ErrInvalidPhone)

		_, err = c.InitiatePush(context.Background(), PushRequest{Amount: decimal.RequireFromString("10.50"), Phone: "254712345678"})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = c.InitiatePush(context.Background(), PushRequest{Amount: decimal.Zero, Phone: "254712345678"})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		assert.Equal(t, int32(0), f.tokenCalls.Load())
		assert.Equal(t, int32(0), f.pushCalls.Load())
	})

	t.Run("gateway rejection", func(t *testing.T) {
		f := &fakeDaraja{
			pushStatus: http.StatusBadRequest,
			pushBody:   `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`,
		}
		c := newTestClient(t, f)

		_, err := c.InitiatePush(context.Background(), PushRequest{Amount: decimal.NewFromInt(10), Phone: "254712345678"})
		var gerr *GatewayError
		require.True(t, errors.As(err, &gerr))
		assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
		assert.Equal(t, "400.002.02", gerr.Code)
		assert.Equal(t, "Bad Request - Invalid PhoneNumber", gerr.UserMessage())
		assert.True(t, IsGatewayError(err))
	})

	t.Run("non zero response code", func(t *testing.T) {
		f := &fakeDaraja{pushBody: `{"ResponseCode":"1","ResponseDescription":"Rejected"}`}
		c := newTestClient(t, f)

		_, err := c.InitiatePush(context.Background(), PushRequest{Amount: decimal.NewFromInt(10), Phone: "254712345678"})
		var gerr *GatewayError
		require.True(t, errors.As(err, &gerr))
		assert.Equal(t, "1", gerr.Code)
	})
}

func TestQueryStatus(t *testing.T) {
	t.Run("final result", func(t *testing.T) {
		f := &fakeDaraja{queryBody: `{"ResponseCode":"0","ResponseDescription":"The service request has been accepted successsfully","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`}
		c := newTestClient(t, f)

		res, err := c.QueryStatus(context.Background(), "ws_1")
		require.NoError(t, err)
		assert.False(t, res.Pending)
		assert.Equal(t, 1032, res.ResultCode)
		assert.Equal(t, "Request cancelled by user", res.ResultDesc)
	})

	t.Run("still processing", func(t *testing.T) {
		f := &fakeDaraja{
			queryCode: http.StatusInternalServerError,
			queryBody: `{"requestId":"r-2","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`,
		}
		c := newTestClient(t, f)

		res, err := c.QueryStatus(context.Background(), "ws_1")
		require.NoError(t, err)
		assert.True(t, res.Pending)
	})

	t.Run("gateway down", func(t *testing.T) {
		f := &fakeDaraja{queryCode: http.StatusServiceUnavailable, queryBody: `upstream unavailable`}
		c := newTestClient(t, f)

		_, err := c.QueryStatus(context.Background(), "ws_1")
		assert.True(t, IsGatewayError(err))
	})
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost"}, nil)
	assert.Error(t, err)
}
