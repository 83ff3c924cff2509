package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	transactionType         = "CustomerPayBillOnline"
	defaultAccountReference = "DefaultRef"
	defaultTransactionDesc  = "Payment"

	// Daraja answers a status query with this code while the payer has not
	// yet responded on the handset.
	codeStillProcessing = "500.001.1001"

	tokenSafetyMargin = 60 * time.Second
	defaultTokenTTL   = 3599 * time.Second
	maxResponseBytes  = 1 << 20
)

// Kenya does not observe daylight saving, a fixed zone avoids a tzdata
// dependency in slim containers.
var nairobi = time.FixedZone("EAT", 3*60*60)

var phonePattern = regexp.MustCompile(`^254\d{9}$`)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	HTTPClient     *http.Client
}

// Client talks to the Daraja STK push API. It persists nothing.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passKey        string
	callbackURL    string

	httpClient *http.Client
	tokens     TokenCache
	now        func() time.Time

	// serializes token refreshes
	tokenMu sync.Mutex
}

func NewClient(cfg Config, tokens TokenCache) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" ||
		strings.TrimSpace(cfg.ConsumerKey) == "" ||
		strings.TrimSpace(cfg.ConsumerSecret) == "" ||
		strings.TrimSpace(cfg.ShortCode) == "" ||
		strings.TrimSpace(cfg.PassKey) == "" {
		return nil, errors.New("mpesa: base url, consumer key/secret, shortcode and passkey are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passKey:        cfg.PassKey,
		callbackURL:    cfg.CallbackURL,
		httpClient:     httpClient,
		tokens:         tokens,
		now:            time.Now,
	}, nil
}

type PushRequest struct {
	Amount           decimal.Decimal
	Phone            string
	AccountReference string
	Description      string
}

type PushResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	CustomerMessage     string
	ResponseDescription string
	RawRequest          json.RawMessage
	RawResponse         json.RawMessage
}

// QueryResult is the gateway's authoritative view of a push. Pending is set
// while the payer has not answered the prompt.
type QueryResult struct {
	ResultCode int
	ResultDesc string
	Pending    bool
	Raw        json.RawMessage
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string      `json:"ResponseCode"`
	ResponseDescription string      `json:"ResponseDescription"`
	ResultCode          *ResultCode `json:"ResultCode"`
	ResultDesc          string      `json:"ResultDesc"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// ValidatePhone checks the 254XXXXXXXXX format the gateway requires.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// ValidateAmount rejects zero, negative and fractional amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(0)) {
		return ErrInvalidAmount
	}
	return nil
}

// InitiatePush sends an STK push prompt to the payer's handset.
func (c *Client) InitiatePush(ctx context.Context, req PushRequest) (*PushResult, error) {
	if err := ValidatePhone(req.Phone); err != nil {
		return nil, err
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	body := stkPushBody{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            req.Amount.IntPart(),
		PartyA:            req.Phone,
		PartyB:            c.shortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  firstNonEmpty(req.AccountReference, defaultAccountReference),
		TransactionDesc:   firstNonEmpty(req.Description, defaultTransactionDesc),
	}

	status, raw, err := c.postJSON(ctx, pushPath, token, body)
	if err != nil {
		return nil, &GatewayError{Op: "stk push", Err: err}
	}
	if status == http.StatusUnauthorized {
		c.dropToken(ctx)
	}

	var out stkPushResponse
	if status < 200 || status > 299 {
		return nil, decodeGatewayError("stk push", status, raw)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Op: "stk push", StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.ResponseCode != "0" {
		return nil, &GatewayError{Op: "stk push", StatusCode: status, Code: out.ResponseCode, Description: out.ResponseDescription}
	}
	if out.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: "stk push", StatusCode: status, Description: "missing CheckoutRequestID"}
	}

	body.Password = "[redacted]"
	rawReq, _ := json.Marshal(body)

	log.Printf("[MPESA] STK push accepted: checkout=%s merchant=%s amount=%d", out.CheckoutRequestID, out.MerchantRequestID, body.Amount)
	return &PushResult{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		CustomerMessage:     out.CustomerMessage,
		ResponseDescription: out.ResponseDescription,
		RawRequest:          rawReq,
		RawResponse:         raw,
	}, nil
}

// QueryStatus asks the gateway for the final result of a push.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, errors.New("mpesa: checkout request id is required")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	status, raw, err := c.postJSON(ctx, queryPath, token, stkQueryBody{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return nil, &GatewayError{Op: "stk query", Err: err}
	}
	if status == http.StatusUnauthorized {
		c.dropToken(ctx)
	}
	if status < 200 || status > 299 {
		gerr := decodeGatewayError("stk query", status, raw)
		if gerr.Code == codeStillProcessing {
			return &QueryResult{Pending: true, ResultDesc: gerr.Description, Raw: raw}, nil
		}
		return nil, gerr
	}

	var out stkQueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &GatewayError{Op: "stk query", StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.ResponseCode != "" && out.ResponseCode != "0" {
		return nil, &GatewayError{Op: "stk query", StatusCode: status, Code: out.ResponseCode, Description: out.ResponseDescription}
	}
	if out.ResultCode == nil {
		return &QueryResult{Pending: true, ResultDesc: out.ResponseDescription, Raw: raw}, nil
	}
	return &QueryResult{ResultCode: int(*out.ResultCode), ResultDesc: out.ResultDesc, Raw: raw}, nil
}

// accessToken returns a cached token or fetches a new one. Refreshes are
// serialized so concurrent callers do not stampede the OAuth endpoint.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, ok, err := c.tokens.Get(ctx); err == nil && ok {
		return token, nil
	} else if err != nil {
		log.Printf("[MPESA] Token cache read failed, fetching a fresh token: %v", err)
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if token, ok, err := c.tokens.Get(ctx); err == nil && ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", &GatewayError{Op: "oauth", Err: err}
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Op: "oauth", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &GatewayError{Op: "oauth", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeGatewayError("oauth", resp.StatusCode, raw)
	}

	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &GatewayError{Op: "oauth", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", &GatewayError{Op: "oauth", StatusCode: resp.StatusCode, Description: "empty access_token"}
	}

	ttl := defaultTokenTTL
	if secs, err := out.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > tokenSafetyMargin {
		ttl -= tokenSafetyMargin
	}
	if err := c.tokens.Set(ctx, out.AccessToken, ttl); err != nil {
		log.Printf("[MPESA] Token cache write failed: %v", err)
	}
	return out.AccessToken, nil
}

func (c *Client) dropToken(ctx context.Context) {
	if err := c.tokens.Delete(ctx); err != nil {
		log.Printf("[MPESA] Token cache delete failed: %v", err)
	}
}

// password returns base64(shortcode+passkey+timestamp) and the timestamp used.
func (c *Client) password() (string, string) {
	timestamp := c.now().In(nairobi).Format("20060102150405")
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passKey + timestamp)), timestamp
}

func (c *Client) postJSON(ctx context.Context, path, token string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func decodeGatewayError(op string, status int, raw []byte) *GatewayError {
	gerr := &GatewayError{Op: op, StatusCode: status}
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && (body.ErrorCode != "" || body.ErrorMessage != "") {
		gerr.Code = body.ErrorCode
		gerr.Description = body.ErrorMessage
		return gerr
	}
	gerr.Description = strings.TrimSpace(string(raw))
	return gerr
}

func firstNonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// ResultCode accepts the result code as either a JSON number or a string;
// Daraja uses both depending on the endpoint.
type ResultCode int

func (r *ResultCode) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("result code %q: %w", s, err)
	}
	*r = ResultCode(n)
	return nil
}
