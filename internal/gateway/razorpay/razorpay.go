package razorpay

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

	"github.com/gigvault/escrow/internal/config"
	"github.com/gigvault/escrow/internal/gateway/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Client talks to a Razorpay-compatible REST gateway. Transient failures
// (network errors, 5xx) are retried with exponential backoff up to
// maxRetries; 4xx responses are surfaced immediately as ErrRejected.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	maxRetries int
	httpClient *http.Client
	log        *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	retries := cfg.GatewayMaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.GatewayBaseURL, "/"),
		keyID:      cfg.GatewayKeyID,
		keySecret:  cfg.GatewayKeySecret,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log.Named("gateway.razorpay"),
	}
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	body := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var out orderResponse
	if err := c.post(ctx, "/v1/orders", body, &out); err != nil {
		return nil, err
	}
	return &domain.Order{
		ID:       out.ID,
		Amount:   out.Amount,
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Status:   out.Status,
	}, nil
}

type payoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) CreatePayout(ctx context.Context, req domain.CreatePayoutRequest) (*domain.PayoutRef, error) {
	fund := map[string]any{
		"account_holder": req.AccountHolder,
	}
	if req.VPA != "" {
		fund["vpa"] = req.VPA
	} else {
		fund["account_number"] = req.AccountNumber
		fund["ifsc"] = req.IFSC
	}

	body := map[string]any{
		"amount":       req.Amount,
		"currency":     req.Currency,
		"reference_id": req.Reference,
		"narration":    req.Narration,
		"fund_account": fund,
	}

	var out payoutResponse
	if err := c.post(ctx, "/v1/payouts", body, &out); err != nil {
		return nil, err
	}
	return &domain.PayoutRef{ID: out.ID, Status: out.Status}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = c.doPost(ctx, path, encoded, out)
		if lastErr == nil {
			return nil
		}
		// Only transient failures are worth another attempt.
		if !isRetryable(lastErr) {
			return lastErr
		}
		c.log.Warn("gateway call failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return lastErr
}

func (c *Client) doPost(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRejected, resp.StatusCode, truncate(payload, 256))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
