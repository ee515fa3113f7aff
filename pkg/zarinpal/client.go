package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://sandbox.zarinpal.com"
	requestPath                 = "pg/v4/payment/request.json"
	verifyPath                  = "pg/v4/payment/verify.json"
	inquiryPath                 = "pg/v4/payment/inquiry.json"
	reversePath                 = "pg/v4/payment/reverse.json"
	startPayPath                = "pg/StartPay"
	responseBodyReadLimit int64 = 1024

	codeSuccess         = 100
	codeAlreadyVerified = 101
)

var errMerchantRequired = errors.New("zarinpal merchant id is required")

// Inquiry statuses reported by the gateway.
const (
	StatusPaid     = "PAID"
	StatusVerified = "VERIFIED"
	StatusInBank   = "IN_BANK"
	StatusFailed   = "FAILED"
	StatusReversed = "REVERSED"
)

// Client talks to the Zarinpal v4 REST payment gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	merchantID string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the gateway host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func NewClient(merchantID string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(merchantID)
	if trimmed == "" {
		return nil, errMerchantRequired
	}

	client := &Client{
		merchantID: trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PaymentRequest opens a payment and returns the authority the payer is
// redirected with.
type PaymentRequest struct {
	Amount      int64
	Description string
	CallbackURL string
	Reference   string
}

type PaymentResponse struct {
	Authority   string
	RedirectURL string
	Fee         int64
}

type VerifyResponse struct {
	RefID           int64
	CardPan         string
	AlreadyVerified bool
}

// Request creates a payment at the gateway.
func (c *Client) Request(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zarinpal client not configured")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	body := map[string]any{
		"merchant_id":  c.merchantID,
		"amount":       req.Amount,
		"callback_url": req.CallbackURL,
		"description":  req.Description,
	}
	if req.Reference != "" {
		body["metadata"] = map[string]string{"order_id": req.Reference}
	}

	var data struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		Authority string `json:"authority"`
		Fee       int64  `json:"fee"`
	}
	if err := c.post(ctx, requestPath, body, &data); err != nil {
		return nil, err
	}
	if data.Code != codeSuccess || data.Authority == "" {
		return nil, declined(data.Code, data.Message, "payment request")
	}
	return &PaymentResponse{
		Authority:   data.Authority,
		RedirectURL: c.buildURL(fmt.Sprintf("%s/%s", startPayPath, data.Authority)),
		Fee:         data.Fee,
	}, nil
}

// Verify confirms a payment after the payer returns from the gateway. A
// repeated verification is reported with AlreadyVerified set.
func (c *Client) Verify(ctx context.Context, authority string, amount int64) (*VerifyResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zarinpal client not configured")
	}
	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		RefID   int64  `json:"ref_id"`
		CardPan string `json:"card_pan"`
	}
	body := map[string]any{
		"merchant_id": c.merchantID,
		"amount":      amount,
		"authority":   authority,
	}
	if err := c.post(ctx, verifyPath, body, &data); err != nil {
		return nil, err
	}
	switch data.Code {
	case codeSuccess, codeAlreadyVerified:
		return &VerifyResponse{RefID: data.RefID, CardPan: data.CardPan, AlreadyVerified: data.Code == codeAlreadyVerified}, nil
	default:
		return nil, declined(data.Code, data.Message, "verify")
	}
}

// Inquiry reports the gateway-side status of an authority.
func (c *Client) Inquiry(ctx context.Context, authority string) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "zarinpal client not configured")
	}
	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	body := map[string]any{"merchant_id": c.merchantID, "authority": authority}
	if err := c.post(ctx, inquiryPath, body, &data); err != nil {
		return "", err
	}
	if data.Code != codeSuccess {
		return "", declined(data.Code, data.Message, "inquiry")
	}
	return strings.ToUpper(data.Status), nil
}

// Reverse returns the full amount of a verified payment to the payer.
func (c *Client) Reverse(ctx context.Context, authority string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "zarinpal client not configured")
	}
	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	body := map[string]any{"merchant_id": c.merchantID, "authority": authority}
	if err := c.post(ctx, reversePath, body, &data); err != nil {
		return err
	}
	if data.Code != codeSuccess {
		return declined(data.Code, data.Message, "reverse")
	}
	return nil
}

// post sends a JSON request and decodes the "data" member. Gateway business
// errors arrive with HTTP 200 or 4xx and a populated "errors" member.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal zarinpal request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build zarinpal request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute zarinpal request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "zarinpal request failed")
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode zarinpal response")
	}

	if apiErr := decodeAPIError(envelope.Errors); apiErr != nil {
		return declined(apiErr.Code, apiErr.Message, path)
	}
	if len(envelope.Data) == 0 || envelope.Data[0] != '{' {
		return pkgerrors.New(pkgerrors.CodeDependency, "zarinpal response missing data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode zarinpal data")
	}
	return nil
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// decodeAPIError returns nil when "errors" is absent or an empty array.
func decodeAPIError(raw json.RawMessage) *apiError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var out apiError
	if err := json.Unmarshal(trimmed, &out); err != nil || out.Code == 0 {
		return nil
	}
	return &out
}

func declined(code int, message, op string) error {
	return pkgerrors.New(pkgerrors.CodeGatewayDeclined, fmt.Sprintf("zarinpal %s declined", op)).
		WithDetails(map[string]any{"gateway_code": code, "gateway_message": message})
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
