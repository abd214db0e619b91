package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"carrito-backend/internal/util"

	"go.uber.org/zap"
)

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

// GatewayError is a transport or protocol failure talking to the payment
// gateway. Distinct from a declined transaction.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("payment gateway error: %s", e.Message)
}

// DeclinedError means the gateway was reachable but rejected the
// transaction.
type DeclinedError struct {
	ResponseCode int
	Status       string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined: response_code=%d status=%s", e.ResponseCode, e.Status)
}

// InitResult is the redirect handed back to the frontend.
type InitResult struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// CardDetail carries the masked card number.
type CardDetail struct {
	CardNumber string `json:"card_number"`
}

// Confirmation is the result of committing a transaction. Immutable once
// received; downstream code treats it as ground truth.
type Confirmation struct {
	VCI                string     `json:"vci"`
	Amount             float64    `json:"amount"`
	Status             string     `json:"status"`
	BuyOrder           string     `json:"buy_order"`
	SessionID          string     `json:"session_id"`
	CardDetail         CardDetail `json:"card_detail"`
	AccountingDate     string     `json:"accounting_date"`
	TransactionDate    string     `json:"transaction_date"`
	AuthorizationCode  string     `json:"authorization_code"`
	PaymentTypeCode    string     `json:"payment_type_code"`
	ResponseCode       int        `json:"response_code"`
	InstallmentsAmount float64    `json:"installments_amount,omitempty"`
	InstallmentsNumber int        `json:"installments_number"`
	Balance            float64    `json:"balance,omitempty"`
}

// Approved reports whether the gateway authorized the transaction.
func (c *Confirmation) Approved() bool {
	return c.ResponseCode == 0
}

// Client talks to a Webpay-style payment gateway over REST.
type Client struct {
	baseURL      string
	commerceCode string
	apiKey       string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a payment gateway client.
func NewClient(baseURL, commerceCode, apiKey string) *Client {
	return &Client{
		baseURL:      baseURL,
		commerceCode: commerceCode,
		apiKey:       apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

type initRequest struct {
	BuyOrder  string  `json:"buy_order"`
	SessionID string  `json:"session_id"`
	Amount    float64 `json:"amount"`
	ReturnURL string  `json:"return_url"`
}

// Init creates a transaction and returns the redirect URL plus token.
func (c *Client) Init(ctx context.Context, buyOrder, sessionID string, amount float64, returnURL string) (*InitResult, error) {
	ctx, span := util.StartSpan(ctx, "payment.Init")
	defer span.End()

	body := initRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: returnURL,
	}

	var result InitResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+transactionsPath, body, &result); err != nil {
		util.PaymentRequestsTotal.WithLabelValues("init", "error").Inc()
		return nil, err
	}

	util.PaymentRequestsTotal.WithLabelValues("init", "ok").Inc()
	c.logger.Info("Payment transaction initiated",
		zap.String("buy_order", buyOrder),
		zap.Float64("amount", amount))
	return &result, nil
}

// Confirm commits a transaction. Idempotent at the gateway: confirming an
// already-confirmed token returns the same result, so retrying after a
// transient network failure is safe. A nonzero response code is returned as
// a regular confirmation; callers decide with Approved.
func (c *Client) Confirm(ctx context.Context, token string) (*Confirmation, error) {
	ctx, span := util.StartSpan(ctx, "payment.Confirm")
	defer span.End()

	var result Confirmation
	url := fmt.Sprintf("%s%s/%s", c.baseURL, transactionsPath, token)
	if err := c.do(ctx, http.MethodPut, url, nil, &result); err != nil {
		util.PaymentRequestsTotal.WithLabelValues("confirm", "error").Inc()
		return nil, err
	}

	util.PaymentRequestsTotal.WithLabelValues("confirm", "ok").Inc()
	if !result.Approved() {
		util.PaymentDeclinedTotal.Inc()
		c.logger.Warn("Payment declined",
			zap.String("buy_order", result.BuyOrder),
			zap.Int("response_code", result.ResponseCode))
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayError{StatusCode: resp.StatusCode, Message: gatewayMessage(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &GatewayError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected gateway response: %v", err)}
	}
	return nil
}

// gatewayMessage pulls the error_message field out of a gateway error body
// when present, otherwise returns the body as-is.
func gatewayMessage(data []byte) string {
	var body struct {
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.ErrorMessage != "" {
		return body.ErrorMessage
	}
	return string(data)
}
