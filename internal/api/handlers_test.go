package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kudipay/settlement-service/internal/domain"
)

func TestWriteDomainError_StatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{err: domain.ErrInvalidAmount, wantStatus: http.StatusBadRequest, wantKind: "validation"},
		{err: domain.ErrAccountNotFound, wantStatus: http.StatusNotFound, wantKind: "not_found"},
		{err: domain.ErrInvalidPIN, wantStatus: http.StatusUnauthorized, wantKind: "unauthorized"},
		{err: domain.ErrInsufficientFunds, wantStatus: http.StatusPaymentRequired, wantKind: "conflict"},
		{err: domain.ErrAccountInactive, wantStatus: http.StatusConflict, wantKind: "conflict"},
		{err: domain.ErrSameAccountTransfer, wantStatus: http.StatusConflict, wantKind: "conflict"},
		{err: fmt.Errorf("%w: connection refused", domain.ErrGateway), wantStatus: http.StatusBadGateway, wantKind: "gateway"},
		{err: domain.ErrOperationExpired, wantStatus: http.StatusGone, wantKind: "expired_or_unknown"},
		{err: errors.New("something unexpected"), wantStatus: http.StatusInternalServerError, wantKind: "internal"},
	}

	h := NewSettlementHandlers(nil)
	for _, tc := range tests {
		t.Run(tc.wantKind+"/"+tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeDomainError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Kind != tc.wantKind {
				t.Fatalf("expected kind %q, got %q", tc.wantKind, body.Kind)
			}
		})
	}
}

// Internal error text must never leak to clients.
func TestWriteDomainError_HidesInternalDetail(t *testing.T) {
	h := NewSettlementHandlers(nil)
	rec := httptest.NewRecorder()
	h.writeDomainError(rec, errors.New("pq: password authentication failed"))

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Error != "internal server error" {
		t.Fatalf("internal error detail leaked: %q", body.Error)
	}
}
