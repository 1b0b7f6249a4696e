/**
 * @description
 * Deposit settlement flows. A gateway-collected deposit is a two-phase
 * operation: InitiateDeposit opens a hosted payment page and records a
 * pending deposit (no ledger mutation yet); ConfirmDeposit — driven by the
 * webhook reconciler, the deferred verifier, or the periodic sweep —
 * independently verifies the payment with the gateway and then finalizes the
 * ledger credit behind an atomic claim of the pending record, so concurrent
 * confirmations for the same reference can never double-credit.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kudipay/settlement-service/internal/cache"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/pkg/rabbitmq"
)

// DepositInitiation is returned to the caller after the hosted payment page
// has been opened.
type DepositInitiation struct {
	PaymentURL       string    `json:"payment_url"`
	AccessCode       string    `json:"access_code"`
	PaymentReference string    `json:"payment_reference"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// DepositConfirmation reports the outcome of a confirmation attempt.
type DepositConfirmation struct {
	Settled     bool                `json:"settled"`
	Message     string              `json:"message"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// InitiateDeposit opens a hosted payment page for the account and records
// the in-flight state. No ledger mutation happens until confirmation.
func (s *Service) InitiateDeposit(ctx context.Context, accountID uuid.UUID, amount domain.Money, description, email string) (*DepositInitiation, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, domain.ErrAccountInactive
	}

	if email == "" {
		owner, err := s.repo.FindUserByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve account owner: %w", err)
		}
		email = owner.Email
	}

	reference := newOperationReference(DepositReferencePrefix)

	// The payment page request has an external side effect; once it is in
	// flight the caller's cancellation must not abandon it, nor the pending
	// record that tracks it.
	opCtx := context.WithoutCancel(ctx)

	initResult, err := s.gateway.InitializePayment(opCtx, email, reference, amount.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	now := time.Now().UTC()
	record := domain.PendingDeposit{
		AccountID:        accountID,
		Amount:           amount,
		Description:      description,
		CustomerEmail:    email,
		PaymentReference: reference,
		GatewayReference: initResult.Reference,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.durations.DepositValidity),
	}
	if err := s.pending.Set(opCtx, cache.KeyPrefixPendingDeposit+reference, record, s.durations.DepositPendingTTL); err != nil {
		return nil, fmt.Errorf("failed to record pending deposit: %w", err)
	}

	// Fallback in case the gateway's webhook never arrives.
	gatewayReference := initResult.Reference
	s.scheduler.Schedule(s.durations.DepositVerifyDelay, func() {
		confirmCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.ConfirmDeposit(confirmCtx, reference, gatewayReference); err != nil {
			log.Printf("level=info component=settlement op=deferred_confirm reference=%s result=%v", reference, err)
		}
	})

	log.Printf("level=info component=settlement op=initiate_deposit account_id=%s reference=%s amount=%d", accountID, reference, amount.Amount)

	return &DepositInitiation{
		PaymentURL:       initResult.AuthorizationURL,
		AccessCode:       initResult.AccessCode,
		PaymentReference: reference,
		ExpiresAt:        record.ExpiresAt,
	}, nil
}

// ConfirmDeposit finalizes a pending deposit. It is idempotent: after the
// first successful confirmation the pending record is gone, so any later
// call fails with ErrOperationExpired and the balance is untouched.
func (s *Service) ConfirmDeposit(ctx context.Context, paymentReference, gatewayReference string) (*DepositConfirmation, error) {
	key := cache.KeyPrefixPendingDeposit + paymentReference

	var record domain.PendingDeposit
	found, err := s.pending.Get(ctx, key, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending deposit: %w", err)
	}
	if !found {
		return nil, domain.ErrOperationExpired
	}

	if gatewayReference == "" {
		gatewayReference = record.GatewayReference
	}

	// From the verification onward every step must run to completion even if
	// the inbound request is cancelled: a verified payment whose claim
	// succeeded but whose credit was aborted would be lost forever.
	settleCtx := context.WithoutCancel(ctx)

	// Never trust a webhook payload's status; ask the gateway directly.
	verification, err := s.gateway.VerifyByReference(settleCtx, gatewayReference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	if !verification.Successful() {
		// Leave the pending record in place: a genuine confirmation may
		// still arrive before the TTL expires.
		log.Printf("level=info component=settlement op=confirm_deposit reference=%s gateway_status=%q msg=\"verification not successful\"", paymentReference, verification.Status)
		return &DepositConfirmation{
			Settled: false,
			Message: fmt.Sprintf("payment not settled: %s", verification.Status),
		}, nil
	}

	// The gateway's word on the amount is authoritative; a payment settled
	// for a different amount than the one initiated must never be credited
	// as if it matched. The record stays for an operator to resolve.
	if verification.AmountMinor != record.Amount.Amount {
		log.Printf("level=error component=settlement op=confirm_deposit reference=%s msg=\"verified amount does not match pending record\" expected=%d verified=%d", paymentReference, record.Amount.Amount, verification.AmountMinor)
		return nil, fmt.Errorf("%w: verified amount %d does not match expected %d", domain.ErrGateway, verification.AmountMinor, record.Amount.Amount)
	}

	// Atomic claim: exactly one concurrent confirmation can pass this fence.
	claimed, err := s.pending.Claim(settleCtx, key, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending deposit: %w", err)
	}
	if !claimed {
		return nil, domain.ErrOperationExpired
	}

	entry, err := s.repo.MutateAccount(settleCtx, record.AccountID, func(account *domain.Account) (*domain.Transaction, error) {
		tx, err := account.Deposit(record.Amount, record.Description)
		if err != nil {
			return nil, err
		}
		tx.Reference = paymentReference
		return tx, nil
	})
	if err != nil {
		log.Printf("level=error component=settlement op=confirm_deposit reference=%s msg=\"ledger credit failed after claim\" err=%v", paymentReference, err)
		return nil, err
	}

	audit := domain.SettledOperation{
		Reference:     paymentReference,
		AccountID:     record.AccountID,
		Amount:        record.Amount,
		Outcome:       "completed",
		GatewayCode:   gatewayReference,
		TransactionID: entry.ID,
		SettledAt:     time.Now().UTC(),
	}
	if err := s.pending.Set(settleCtx, cache.KeyPrefixAudit+paymentReference, audit, s.durations.AuditTTL); err != nil {
		log.Printf("level=warn component=settlement op=confirm_deposit reference=%s msg=\"audit record write failed\" err=%v", paymentReference, err)
	}

	s.publishEvent(settleCtx, rabbitmq.RouteDepositSettled, rabbitmq.SettlementEvent{
		Reference:   paymentReference,
		AccountID:   record.AccountID,
		AmountMinor: record.Amount.Amount,
		Currency:    record.Amount.Currency,
		Outcome:     "completed",
	})

	log.Printf("level=info component=settlement op=confirm_deposit reference=%s outcome=settled amount=%d", paymentReference, record.Amount.Amount)

	return &DepositConfirmation{
		Settled:     true,
		Message:     "deposit settled",
		Transaction: entry,
	}, nil
}
