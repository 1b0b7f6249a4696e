package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kudipay/settlement-service/internal/app"
	"github.com/kudipay/settlement-service/internal/domain"
)

const testWebhookSecret = "sk_test_secret"

type fakeConfirmer struct {
	depositCalls    []string
	withdrawalCalls []struct {
		reference  string
		successful bool
	}
	depositErr    error
	withdrawalErr error
}

func (f *fakeConfirmer) ConfirmDeposit(ctx context.Context, paymentReference, gatewayReference string) (*app.DepositConfirmation, error) {
	f.depositCalls = append(f.depositCalls, paymentReference)
	if f.depositErr != nil {
		return nil, f.depositErr
	}
	return &app.DepositConfirmation{Settled: true}, nil
}

func (f *fakeConfirmer) ConfirmWithdrawal(ctx context.Context, transferReference, gatewayTransferCode string, isSuccessful bool) (*app.WithdrawalConfirmation, error) {
	f.withdrawalCalls = append(f.withdrawalCalls, struct {
		reference  string
		successful bool
	}{transferReference, isSuccessful})
	if f.withdrawalErr != nil {
		return nil, f.withdrawalErr
	}
	return &app.WithdrawalConfirmation{Settled: isSuccessful, Reversed: !isSuccessful}, nil
}

func signBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_RejectsMissingOrInvalidSignature(t *testing.T) {
	confirmer := &fakeConfirmer{}
	handler := NewWebhookHandler(confirmer, testWebhookSecret)
	body := []byte(`{"event":"charge.success","data":{"reference":"DEP_1_abcd"}}`)

	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing signature", signature: ""},
		{name: "wrong signature", signature: signBody([]byte("different body"))},
		{name: "not hex", signature: "zzzz"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(t, handler, body, tc.signature)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}

	if len(confirmer.depositCalls) != 0 {
		t.Fatalf("unauthenticated payload reached the service: %v", confirmer.depositCalls)
	}
}

func TestWebhook_ChargeSuccessConfirmsDeposit(t *testing.T) {
	confirmer := &fakeConfirmer{}
	handler := NewWebhookHandler(confirmer, testWebhookSecret)
	body := []byte(`{"event":"charge.success","data":{"reference":"DEP_1_abcd","amount":100000}}`)

	rec := postWebhook(t, handler, body, signBody(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(confirmer.depositCalls) != 1 || confirmer.depositCalls[0] != "DEP_1_abcd" {
		t.Fatalf("expected one deposit confirmation for DEP_1_abcd, got %v", confirmer.depositCalls)
	}
}

func TestWebhook_TransferEventsConfirmWithdrawal(t *testing.T) {
	tests := []struct {
		name           string
		event          string
		wantSuccessful bool
	}{
		{name: "transfer success", event: "transfer.success", wantSuccessful: true},
		{name: "transfer failed", event: "transfer.failed", wantSuccessful: false},
		{name: "transfer reversed", event: "transfer.reversed", wantSuccessful: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			confirmer := &fakeConfirmer{}
			handler := NewWebhookHandler(confirmer, testWebhookSecret)
			body := []byte(`{"event":"` + tc.event + `","data":{"reference":"WTH_1_abcd","transfer_code":"TRF_x"}}`)

			rec := postWebhook(t, handler, body, signBody(body))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if len(confirmer.withdrawalCalls) != 1 {
				t.Fatalf("expected one withdrawal confirmation, got %d", len(confirmer.withdrawalCalls))
			}
			call := confirmer.withdrawalCalls[0]
			if call.reference != "WTH_1_abcd" || call.successful != tc.wantSuccessful {
				t.Fatalf("unexpected call %+v", call)
			}
		})
	}
}

func TestWebhook_ForeignReferencesAreIgnored(t *testing.T) {
	confirmer := &fakeConfirmer{}
	handler := NewWebhookHandler(confirmer, testWebhookSecret)
	body := []byte(`{"event":"charge.success","data":{"reference":"SUB_other_product"}}`)

	rec := postWebhook(t, handler, body, signBody(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(confirmer.depositCalls) != 0 {
		t.Fatal("foreign reference was dispatched")
	}
}

func TestWebhook_ProcessingFailureStillAcknowledges(t *testing.T) {
	confirmer := &fakeConfirmer{depositErr: errors.New("database down")}
	handler := NewWebhookHandler(confirmer, testWebhookSecret)
	body := []byte(`{"event":"charge.success","data":{"reference":"DEP_1_abcd"}}`)

	rec := postWebhook(t, handler, body, signBody(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite processing failure, got %d", rec.Code)
	}
}

func TestWebhook_ReplayedEventAcknowledges(t *testing.T) {
	confirmer := &fakeConfirmer{depositErr: domain.ErrOperationExpired}
	handler := NewWebhookHandler(confirmer, testWebhookSecret)
	body := []byte(`{"event":"charge.success","data":{"reference":"DEP_1_abcd"}}`)

	rec := postWebhook(t, handler, body, signBody(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for replayed event, got %d", rec.Code)
	}
}

func TestWebhook_UnknownEventAcknowledges(t *testing.T) {
	confirmer := &fakeConfirmer{}
	handler := NewWebhookHandler(confirmer, testWebhookSecret)
	body := []byte(`{"event":"subscription.create","data":{}}`)

	rec := postWebhook(t, handler, body, signBody(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown event, got %d", rec.Code)
	}
	if len(confirmer.depositCalls) != 0 || len(confirmer.withdrawalCalls) != 0 {
		t.Fatal("unknown event was dispatched")
	}
}
