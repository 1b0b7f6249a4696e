/**
 * @description
 * HTTP handlers for the settlement API. Handlers parse the request, call the
 * settlement service, and map domain errors to protocol status codes; all
 * failures cross the boundary as a message plus an error kind, never as raw
 * internal error text.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain: service logic, models, and sentinel errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kudipay/settlement-service/internal/app"
	"github.com/kudipay/settlement-service/internal/domain"
)

// SettlementHandlers holds the application service that handlers use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

// writeDomainError maps a sentinel error to its protocol status and kind.
func (h *SettlementHandlers) writeDomainError(w http.ResponseWriter, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	message := "internal server error"

	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrNegativeAmount), errors.Is(err, domain.ErrCurrencyMismatch):
		status, kind, message = http.StatusBadRequest, "validation", err.Error()
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrUserNotFound):
		status, kind, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, domain.ErrInvalidPIN):
		status, kind, message = http.StatusUnauthorized, "unauthorized", err.Error()
	case errors.Is(err, domain.ErrInsufficientFunds):
		status, kind, message = http.StatusPaymentRequired, "conflict", err.Error()
	case errors.Is(err, domain.ErrAccountInactive), errors.Is(err, domain.ErrSameAccountTransfer):
		status, kind, message = http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, domain.ErrGateway):
		status, kind, message = http.StatusBadGateway, "gateway", "payment gateway error"
	case errors.Is(err, domain.ErrOperationExpired):
		status, kind, message = http.StatusGone, "expired_or_unknown", err.Error()
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
	}

	h.writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

func parseAccountID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "accountID"))
}

type directDepositRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	Amount      int64     `json:"amount"` // kobo
	Description string    `json:"description"`
}

// DirectDepositHandler credits an account without gateway involvement.
func (h *SettlementHandlers) DirectDepositHandler(w http.ResponseWriter, r *http.Request) {
	var req directDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "validation"})
		return
	}

	tx, err := h.service.DirectDeposit(r.Context(), req.AccountID, domain.NGN(req.Amount), req.Description)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

type initiateDepositRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	Amount      int64     `json:"amount"` // kobo
	Description string    `json:"description"`
	Email       string    `json:"email,omitempty"`
}

// InitiateDepositHandler opens a hosted payment page for a deposit.
func (h *SettlementHandlers) InitiateDepositHandler(w http.ResponseWriter, r *http.Request) {
	var req initiateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "validation"})
		return
	}

	initiation, err := h.service.InitiateDeposit(r.Context(), req.AccountID, domain.NGN(req.Amount), req.Description, req.Email)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, initiation)
}

type withdrawalRequest struct {
	AccountID                uuid.UUID `json:"account_id"`
	Amount                   int64     `json:"amount"` // kobo
	PIN                      string    `json:"pin"`
	BankCode                 string    `json:"bank_code"`
	DestinationAccountNumber string    `json:"destination_account_number"`
	DestinationAccountName   string    `json:"destination_account_name"`
	Description              string    `json:"description"`
}

// WithdrawalHandler initiates an external withdrawal. Domain failures come
// back as a structured body with the mapped status, not as a bare error.
func (h *SettlementHandlers) WithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "validation"})
		return
	}

	result, err := h.service.InitiateExternalWithdrawal(r.Context(), app.WithdrawalRequest{
		AccountID:                req.AccountID,
		Amount:                   domain.NGN(req.Amount),
		PIN:                      req.PIN,
		BankCode:                 req.BankCode,
		DestinationAccountNumber: req.DestinationAccountNumber,
		DestinationAccountName:   req.DestinationAccountName,
		Description:              req.Description,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !result.Success {
		status := http.StatusConflict
		kind := "conflict"
		switch {
		case errors.Is(result.FailureKind, domain.ErrInvalidPIN):
			status, kind = http.StatusUnauthorized, "unauthorized"
		case errors.Is(result.FailureKind, domain.ErrInvalidAmount):
			status, kind = http.StatusBadRequest, "validation"
		case errors.Is(result.FailureKind, domain.ErrInsufficientFunds):
			status = http.StatusPaymentRequired
		case errors.Is(result.FailureKind, domain.ErrGateway):
			status, kind = http.StatusBadGateway, "gateway"
		}
		h.writeJSON(w, status, errorResponse{Error: result.Message, Kind: kind})
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

type transferRequest struct {
	FromAccountID uuid.UUID `json:"from_account_id"`
	ToAccountID   uuid.UUID `json:"to_account_id"`
	Amount        int64     `json:"amount"` // kobo
	PIN           string    `json:"pin"`
	Description   string    `json:"description"`
}

// TransferHandler moves money between two local accounts.
func (h *SettlementHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "validation"})
		return
	}

	entries, err := h.service.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, domain.NGN(req.Amount), req.PIN, req.Description)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entries)
}

// BalanceHandler returns the account's current balance.
func (h *SettlementHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountID(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account id", Kind: "validation"})
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// TransactionsHandler returns a page of the account's ledger.
func (h *SettlementHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountID(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account id", Kind: "validation"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.service.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// ListBanksHandler returns the gateway's bank directory.
func (h *SettlementHandlers) ListBanksHandler(w http.ResponseWriter, r *http.Request) {
	banks, err := h.service.ListBanks(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, banks)
}

// ResolveAccountHandler resolves a destination account number to its name.
func (h *SettlementHandlers) ResolveAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountNumber := r.URL.Query().Get("account_number")
	bankCode := r.URL.Query().Get("bank_code")
	if accountNumber == "" || bankCode == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "account_number and bank_code are required", Kind: "validation"})
		return
	}

	resolved, err := h.service.VerifyAccount(r.Context(), accountNumber, bankCode)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resolved)
}
