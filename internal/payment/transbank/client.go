// Package transbank is a Webpay Plus REST client.
package transbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/payment"
)

const (
	IntegrationURL = "https://webpay3gint.transbank.cl"
	ProductionURL  = "https://webpay3g.transbank.cl"

	// Public Webpay Plus integration credentials.
	IntegrationCommerceCode = "597055555532"
	IntegrationAPIKey       = "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"
	method           = "webpay"
)

type Config struct {
	Environment  string
	CommerceCode string
	APIKey       string
	// BaseURL overrides the environment URL.
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	base         string
	commerceCode string
	apiKey       string
	http         *http.Client
}

var _ payment.Gateway = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	c := &Client{
		commerceCode: strings.TrimSpace(cfg.CommerceCode),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		http:         cfg.HTTPClient,
	}
	switch strings.ToLower(cfg.Environment) {
	case "production":
		if c.commerceCode == "" || c.apiKey == "" {
			return nil, errors.New("transbank: commerce code and api key are required in production")
		}
		c.base = ProductionURL
	case "", "integration":
		if c.commerceCode == "" {
			c.commerceCode = IntegrationCommerceCode
		}
		if c.apiKey == "" {
			c.apiKey = IntegrationAPIKey
		}
		c.base = IntegrationURL
	default:
		return nil, fmt.Errorf("transbank: unknown environment %q", cfg.Environment)
	}
	if cfg.BaseURL != "" {
		c.base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	return c, nil
}

func (c *Client) Method() string { return method }

type createBody struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type createResult struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (c *Client) Create(ctx context.Context, req payment.CreateRequest) (payment.CreateResponse, error) {
	var res createResult
	err := c.do(ctx, http.MethodPost, transactionsPath, createBody{
		BuyOrder: req.BuyOrder, SessionID: req.SessionID, Amount: req.Amount, ReturnURL: req.ReturnURL,
	}, &res)
	if err != nil {
		return payment.CreateResponse{}, err
	}
	out := payment.CreateResponse{Token: res.Token}
	if res.URL != "" && res.Token != "" {
		out.RedirectURL = res.URL + "?token_ws=" + url.QueryEscape(res.Token)
	}
	return out, nil
}

type transactionResult struct {
	VCI               string  `json:"vci"`
	Amount            float64 `json:"amount"`
	Status            string  `json:"status"`
	BuyOrder          string  `json:"buy_order"`
	SessionID         string  `json:"session_id"`
	AuthorizationCode string  `json:"authorization_code"`
	ResponseCode      int     `json:"response_code"`
	TransactionDate   string  `json:"transaction_date"`
	CardDetail        struct {
		CardNumber string `json:"card_number"`
	} `json:"card_detail"`
}

func (r transactionResult) date() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, r.TransactionDate)
	return t
}

func (c *Client) Commit(ctx context.Context, token string) (payment.CommitResponse, error) {
	var res transactionResult
	if err := c.do(ctx, http.MethodPut, c.tokenPath(token), nil, &res); err != nil {
		return payment.CommitResponse{}, err
	}
	return payment.CommitResponse{
		Status:            res.Status,
		Amount:            int64(res.Amount),
		BuyOrder:          res.BuyOrder,
		AuthorizationCode: res.AuthorizationCode,
		ResponseCode:      res.ResponseCode,
		CardLast4:         res.CardDetail.CardNumber,
		TransactionDate:   res.date(),
	}, nil
}

func (c *Client) Status(ctx context.Context, token string) (payment.StatusResponse, error) {
	var res transactionResult
	if err := c.do(ctx, http.MethodGet, c.tokenPath(token), nil, &res); err != nil {
		return payment.StatusResponse{}, err
	}
	return payment.StatusResponse{
		Status:          res.Status,
		Amount:          int64(res.Amount),
		BuyOrder:        res.BuyOrder,
		TransactionDate: res.date(),
	}, nil
}

type refundResult struct {
	Type              string  `json:"type"`
	AuthorizationCode string  `json:"authorization_code"`
	NullifiedAmount   float64 `json:"nullified_amount"`
	Balance           float64 `json:"balance"`
	ResponseCode      int     `json:"response_code"`
}

func (c *Client) Refund(ctx context.Context, token string, amount int64) (payment.RefundResponse, error) {
	var res refundResult
	if err := c.do(ctx, http.MethodPost, c.tokenPath(token)+"/refunds", map[string]int64{"amount": amount}, &res); err != nil {
		return payment.RefundResponse{}, err
	}
	return payment.RefundResponse{
		Type:              res.Type,
		AuthorizationCode: res.AuthorizationCode,
		NullifiedAmount:   int64(res.NullifiedAmount),
		Balance:           int64(res.Balance),
		ResponseCode:      res.ResponseCode,
	}, nil
}

func (c *Client) tokenPath(token string) string {
	return transactionsPath + "/" + url.PathEscape(token)
}

// APIError is a non-2xx answer from Webpay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transbank: http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, verb, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transbank: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, verb, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("transbank: build request: %w", err)
	}
	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transbank: %s %s: %w", verb, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("transbank: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			ErrorMessage string `json:"error_message"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.ErrorMessage == "" {
			e.ErrorMessage = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.ErrorMessage}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("transbank: decode response: %w", err)
	}
	return nil
}
