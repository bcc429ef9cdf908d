package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/susu/internal/models"
)

// HTTPLedger calls a payment gateway over JSON/HTTP.
//
// Each call is a single POST to {baseURL}/v1/{operation} carrying the refID as the
// Idempotency-Key header. The gateway answers 2xx on success (including replays), 402 when
// the source account cannot cover the amount and 409 when the key was reused with a
// different body.
type HTTPLedger struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Ledger = (*HTTPLedger)(nil)

// NewHTTPLedger creates a gateway client. A nil client uses a 10s-timeout default.
func NewHTTPLedger(baseURL, apiKey string, client *http.Client) *HTTPLedger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type movement struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	RefID   string          `json:"ref_id"`
}

type gatewayError struct {
	Error string `json:"error"`
}

// Credit asks the gateway to credit account, keyed by refID.
func (l *HTTPLedger) Credit(ctx context.Context, account string, amount decimal.Decimal, refID string) error {
	return l.post(ctx, OpCredit, movement{Account: account, Amount: amount, RefID: refID})
}

// Disburse asks the gateway to pay amount out to account, keyed by refID.
func (l *HTTPLedger) Disburse(ctx context.Context, account string, amount decimal.Decimal, refID string) error {
	return l.post(ctx, OpDisburse, movement{Account: account, Amount: amount, RefID: refID})
}

func (l *HTTPLedger) post(ctx context.Context, op Operation, body movement) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v1/"+string(op), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", body.RefID)
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		slog.Warn("Wallet gateway unreachable", "operation", op, "ref_id", body.RefID, "error", err)
		return models.Errorf(models.KindProviderUnavailable, "The payment provider is unavailable. Please try again.")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	reason := readReason(resp.Body)
	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return models.Errorf(models.KindInsufficientFunds, "Insufficient funds: %s", reason)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("Wallet gateway failed", "operation", op, "ref_id", body.RefID, "status", resp.StatusCode, "reason", reason)
		return models.Errorf(models.KindProviderUnavailable, "The payment provider is unavailable. Please try again.")
	default:
		return fmt.Errorf("wallet %s rejected with status %d: %s", op, resp.StatusCode, reason)
	}
}

func readReason(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no reason given"
	}
	var ge gatewayError
	if json.Unmarshal(raw, &ge) == nil && ge.Error != "" {
		return ge.Error
	}
	return strings.TrimSpace(string(raw))
}
