/**
 * @description
 * Webhook reconciler: the HTTP entry point for asynchronous gateway
 * callbacks. It authenticates each request by recomputing the HMAC-SHA512
 * signature of the raw body before any parsing happens, then demultiplexes
 * the event into the matching orchestrator confirmation call.
 *
 * Authenticated payloads are always acknowledged with 200 — even when
 * processing fails — so the gateway does not enter a retry storm; the
 * deferred verifier and the periodic sweep pick up anything missed. Only a
 * missing or invalid signature earns a 401.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha512, encoding/hex: signature verification.
 * - internal/app: confirmation operations.
 */

package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/kudipay/settlement-service/internal/app"
	"github.com/kudipay/settlement-service/internal/domain"
)

// SignatureHeader carries the gateway's hex HMAC-SHA512 of the raw body.
const SignatureHeader = "x-paystack-signature"

// SettlementConfirmer is the slice of the settlement service the reconciler
// drives.
type SettlementConfirmer interface {
	ConfirmDeposit(ctx context.Context, paymentReference, gatewayReference string) (*app.DepositConfirmation, error)
	ConfirmWithdrawal(ctx context.Context, transferReference, gatewayTransferCode string, isSuccessful bool) (*app.WithdrawalConfirmation, error)
}

// WebhookHandler processes incoming gateway callbacks.
type WebhookHandler struct {
	service SettlementConfirmer
	secret  string
}

// NewWebhookHandler creates a handler for the webhook endpoint.
func NewWebhookHandler(service SettlementConfirmer, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

// webhookEvent is the shape of a gateway callback payload. Amounts are in
// minor currency units.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference    string `json:"reference"`
		TransferCode string `json:"transfer_code"`
		Amount       int64  `json:"amount"`
		Status       string `json:"status"`
	} `json:"data"`
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !h.validSignature(r.Header.Get(SignatureHeader), body) {
		log.Printf("level=warn component=webhook outcome=reject reason=invalid_signature remote=%s", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=webhook outcome=ignored reason=invalid_json err=%v", err)
		// Authenticated but malformed: acknowledge so the gateway moves on.
		w.WriteHeader(http.StatusOK)
		return
	}

	h.dispatch(r, event)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook received"))
}

// dispatch routes one authenticated event. Processing failures are logged,
// never surfaced to the gateway.
func (h *WebhookHandler) dispatch(r *http.Request, event webhookEvent) {
	ctx := r.Context()
	reference := event.Data.Reference

	switch event.Event {
	case "charge.success":
		if !strings.HasPrefix(reference, app.DepositReferencePrefix) {
			log.Printf("level=info component=webhook event=%s reference=%s msg=\"not a settlement deposit; ignored\"", event.Event, reference)
			return
		}
		// The pending record carries the gateway reference to verify against.
		result, err := h.service.ConfirmDeposit(ctx, reference, "")
		h.logOutcome(event.Event, reference, err, result != nil && result.Settled)

	case "transfer.success":
		if !strings.HasPrefix(reference, app.WithdrawalReferencePrefix) {
			log.Printf("level=info component=webhook event=%s reference=%s msg=\"not a settlement withdrawal; ignored\"", event.Event, reference)
			return
		}
		result, err := h.service.ConfirmWithdrawal(ctx, reference, event.Data.TransferCode, true)
		h.logOutcome(event.Event, reference, err, result != nil && result.Settled)

	case "transfer.failed", "transfer.reversed":
		if !strings.HasPrefix(reference, app.WithdrawalReferencePrefix) {
			log.Printf("level=info component=webhook event=%s reference=%s msg=\"not a settlement withdrawal; ignored\"", event.Event, reference)
			return
		}
		result, err := h.service.ConfirmWithdrawal(ctx, reference, event.Data.TransferCode, false)
		h.logOutcome(event.Event, reference, err, result != nil && result.Reversed)

	default:
		log.Printf("level=info component=webhook event=%s msg=\"unhandled event type; ignored\"", event.Event)
	}
}

func (h *WebhookHandler) logOutcome(event, reference string, err error, finalized bool) {
	switch {
	case errors.Is(err, domain.ErrOperationExpired):
		log.Printf("level=info component=webhook event=%s reference=%s outcome=already_finalized_or_expired", event, reference)
	case err != nil:
		log.Printf("level=warn component=webhook event=%s reference=%s outcome=processing_failed err=%v", event, reference, err)
	default:
		log.Printf("level=info component=webhook event=%s reference=%s outcome=processed finalized=%t", event, reference, finalized)
	}
}

// validSignature recomputes hex(HMAC-SHA512(body, secret)) and compares it
// to the header in constant time. An empty header never validates.
func (h *WebhookHandler) validSignature(signatureHeader string, body []byte) bool {
	header := strings.TrimSpace(signatureHeader)
	if header == "" || h.secret == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(h.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, expected)
}
