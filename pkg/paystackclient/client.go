/**
 * @description
 * This package provides a client for the Paystack API, the external payment
 * gateway the settlement service reconciles against. It encapsulates
 * authenticated HTTP calls, request body construction, and response parsing.
 * All amounts cross this boundary in minor currency units (kobo).
 *
 * Every call here is blocking I/O with a bounded timeout. The client never
 * retries on its own: for operations with external side effects a failed
 * call must surface to the caller, who decides whether to retry with a fresh
 * reference.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package paystackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ErrorResponse represents a non-success response from the Paystack API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Status     bool   `json:"status"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error: %s", e.Message)
	}
	return fmt.Sprintf("paystack api error: status %d", e.StatusCode)
}

// InitializePaymentResult is the hosted payment page handle for a deposit.
type InitializePaymentResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyResult reports the gateway's authoritative view of a payment.
type VerifyResult struct {
	Status        string `json:"status"` // "success", "failed", "abandoned"
	AmountMinor   int64  `json:"amount"`
	GatewayStatus string `json:"gateway_response"`
}

// Successful reports whether the gateway settled the payment.
func (v *VerifyResult) Successful() bool {
	return v.Status == "success"
}

// ResolvedAccount is a bank account name resolution result.
type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// Bank is one entry of the gateway's bank directory.
type Bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// RecipientResult carries the gateway handle for a transfer destination.
type RecipientResult struct {
	RecipientCode string `json:"recipient_code"`
}

// TransferResult is the gateway's acceptance of an outbound transfer.
type TransferResult struct {
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

// envelope is Paystack's uniform {status, message, data} response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializePayment opens a hosted payment page for the given reference.
func (c *Client) InitializePayment(ctx context.Context, email, reference string, amountMinor int64) (*InitializePaymentResult, error) {
	payload := map[string]any{
		"email":     email,
		"amount":    amountMinor,
		"reference": reference,
		"currency":  "NGN",
	}
	var result InitializePaymentResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyByReference asks the gateway for the authoritative payment status.
// Webhook payload statuses must never be trusted without this call.
func (c *Client) VerifyByReference(ctx context.Context, reference string) (*VerifyResult, error) {
	var result VerifyResult
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveAccountName resolves a bank account number to its registered name.
func (c *Client) ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	var result ResolvedAccount
	path := fmt.Sprintf("/bank/resolve?account_number=%s&bank_code=%s",
		url.QueryEscape(accountNumber), url.QueryEscape(bankCode))
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListBanks returns the gateway's bank directory.
func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	var result []Bank
	if err := c.do(ctx, http.MethodGet, "/bank?currency=NGN", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateRecipient registers a transfer destination with the gateway.
func (c *Client) CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (*RecipientResult, error) {
	payload := map[string]any{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	}
	var result RecipientResult
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// InitiateTransfer asks the gateway to send money to a recipient. A nil
// error means the gateway has accepted the transfer for processing.
func (c *Client) InitiateTransfer(ctx context.Context, amountMinor int64, recipientCode, reference, reason string) (*TransferResult, error) {
	payload := map[string]any{
		"source":    "balance",
		"amount":    amountMinor,
		"recipient": recipientCode,
		"reference": reference,
		"reason":    reason,
	}
	var result TransferResult
	if err := c.do(ctx, http.MethodPost, "/transfer", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do executes one authenticated request and unmarshals the data envelope.
func (c *Client) do(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		log.Printf("level=warn component=paystack_client op=%s path=%s status=%d msg=\"unparsable response body\"", method, path, resp.StatusCode)
		return fmt.Errorf("failed to decode response (status %d)", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		log.Printf("level=warn component=paystack_client op=%s path=%s status=%d message=%q", method, path, resp.StatusCode, env.Message)
		return &ErrorResponse{StatusCode: resp.StatusCode, Status: env.Status, Message: env.Message}
	}

	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
