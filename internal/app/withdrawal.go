/**
 * @description
 * External withdrawal flows. The ordering here is the heart of the financial
 * consistency story: the gateway must accept the transfer BEFORE the local
 * debit is applied, so a crash between the two leaves money "sent but not
 * yet recorded" — recoverable from the gateway's books — never "recorded but
 * never sent". Confirmation later either finalizes the withdrawal or drives
 * a compensating reversal credit.
 *
 * Domain failures during initiation are returned as a structured result
 * instead of an error: a money movement with external side effects must
 * never be retried blindly by generic error-handling machinery.
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

// WithdrawalRequest carries everything needed to send money to an external
// bank account.
type WithdrawalRequest struct {
	AccountID                uuid.UUID
	Amount                   domain.Money
	PIN                      string
	BankCode                 string
	DestinationAccountNumber string
	DestinationAccountName   string
	Description              string
}

// WithdrawalResult is the structured outcome of a withdrawal initiation.
// Failure is a value, not a panic path: FailureKind holds the domain
// sentinel and Message a human-readable explanation.
type WithdrawalResult struct {
	Success             bool                `json:"success"`
	Message             string              `json:"message"`
	FailureKind         error               `json:"-"`
	TransferReference   string              `json:"transfer_reference,omitempty"`
	RecipientCode       string              `json:"recipient_code,omitempty"`
	GatewayTransferCode string              `json:"gateway_transfer_code,omitempty"`
	NewBalance          *domain.Money       `json:"new_balance,omitempty"`
	Transaction         *domain.Transaction `json:"transaction,omitempty"`
}

// WithdrawalConfirmation reports the outcome of reconciling a withdrawal.
type WithdrawalConfirmation struct {
	Settled     bool                `json:"settled"`
	Reversed    bool                `json:"reversed"`
	Message     string              `json:"message"`
	Balance     *domain.Money       `json:"balance,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

func withdrawalFailure(kind error, message string) *WithdrawalResult {
	return &WithdrawalResult{Success: false, Message: message, FailureKind: kind}
}

// InitiateExternalWithdrawal sends money to an external bank account. The
// local debit is applied only after the gateway has accepted the transfer.
func (s *Service) InitiateExternalWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	if !req.Amount.IsPositive() {
		return withdrawalFailure(domain.ErrInvalidAmount, "withdrawal amount must be greater than zero"), nil
	}

	account, err := s.repo.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	if err := verifyPIN(account, req.PIN); err != nil {
		if err == domain.ErrInvalidPIN {
			return withdrawalFailure(domain.ErrInvalidPIN, "transaction pin is incorrect"), nil
		}
		return nil, err
	}
	if !account.IsActive {
		return withdrawalFailure(domain.ErrAccountInactive, "account is inactive"), nil
	}
	if account.Balance.LessThan(req.Amount) {
		return withdrawalFailure(domain.ErrInsufficientFunds, "balance is insufficient for this withdrawal"), nil
	}

	resolved, err := s.VerifyAccount(ctx, req.DestinationAccountNumber, req.BankCode)
	if err != nil {
		return withdrawalFailure(domain.ErrGateway, "destination account could not be resolved"), nil
	}
	destinationName := resolved.AccountName
	if destinationName == "" {
		destinationName = req.DestinationAccountName
	}

	reference := newOperationReference(WithdrawalReferencePrefix)

	// From here on every step has, or records, an external side effect; run
	// them all to completion even if the inbound request is cancelled. Once
	// the gateway accepts the transfer, the debit and the pending record must
	// land no matter what the caller does.
	opCtx := context.WithoutCancel(ctx)

	recipient, err := s.gateway.CreateRecipient(opCtx, destinationName, req.DestinationAccountNumber, req.BankCode)
	if err != nil {
		log.Printf("level=warn component=settlement op=initiate_withdrawal reference=%s msg=\"recipient creation failed\" err=%v", reference, err)
		return withdrawalFailure(domain.ErrGateway, "gateway rejected the transfer recipient"), nil
	}

	transfer, err := s.gateway.InitiateTransfer(opCtx, req.Amount.Amount, recipient.RecipientCode, reference, req.Description)
	if err != nil {
		// No ledger mutation has happened; the caller may retry with a
		// fresh reference.
		log.Printf("level=warn component=settlement op=initiate_withdrawal reference=%s msg=\"gateway transfer rejected\" err=%v", reference, err)
		return withdrawalFailure(domain.ErrGateway, "gateway did not accept the transfer"), nil
	}

	// Gateway accepted: now, and only now, debit the account.
	var newBalance domain.Money
	entry, err := s.repo.MutateAccount(opCtx, req.AccountID, func(locked *domain.Account) (*domain.Transaction, error) {
		tx, err := locked.Withdraw(req.Amount, req.Description)
		if err != nil {
			return nil, err
		}
		tx.Reference = reference
		newBalance = locked.Balance
		return tx, nil
	})
	if err != nil {
		// The transfer is already on its way; this state is visible in the
		// gateway's books and must be reconciled by an operator.
		log.Printf("level=error component=settlement op=initiate_withdrawal reference=%s transfer_code=%s msg=\"CRITICAL: debit failed after gateway acceptance\" err=%v", reference, transfer.TransferCode, err)
		return nil, fmt.Errorf("debit failed after gateway acceptance: %w", err)
	}

	now := time.Now().UTC()
	record := domain.PendingWithdrawal{
		AccountID:                req.AccountID,
		Amount:                   req.Amount,
		Description:              req.Description,
		BankCode:                 req.BankCode,
		DestinationAccountNumber: req.DestinationAccountNumber,
		DestinationAccountName:   destinationName,
		TransferReference:        reference,
		RecipientCode:            recipient.RecipientCode,
		GatewayTransferCode:      transfer.TransferCode,
		CreatedAt:                now,
		ExpiresAt:                now.Add(s.durations.WithdrawalPendingTTL),
	}
	if err := s.pending.Set(opCtx, cache.KeyPrefixPendingWithdrawal+reference, record, s.durations.WithdrawalPendingTTL); err != nil {
		log.Printf("level=error component=settlement op=initiate_withdrawal reference=%s msg=\"pending record write failed; reconciliation will rely on gateway polling\" err=%v", reference, err)
	}

	log.Printf("level=info component=settlement op=initiate_withdrawal reference=%s account_id=%s amount=%d transfer_code=%s", reference, req.AccountID, req.Amount.Amount, transfer.TransferCode)

	return &WithdrawalResult{
		Success:             true,
		Message:             "withdrawal initiated",
		TransferReference:   reference,
		RecipientCode:       recipient.RecipientCode,
		GatewayTransferCode: transfer.TransferCode,
		NewBalance:          &newBalance,
		Transaction:         entry,
	}, nil
}

// ConfirmWithdrawal reconciles the gateway's final word on a transfer. On
// success the pending record becomes an audit record; on failure the debit
// is compensated with a reversal credit. The atomic claim guarantees a
// concurrent webhook and poller cannot both finalize the same reference.
func (s *Service) ConfirmWithdrawal(ctx context.Context, transferReference, gatewayTransferCode string, isSuccessful bool) (*WithdrawalConfirmation, error) {
	key := cache.KeyPrefixPendingWithdrawal + transferReference

	// After the claim succeeds the reconciliation outcome must be recorded
	// even if the inbound request is cancelled: the claim is the one-shot
	// fence, so an aborted finalization could never be retried.
	settleCtx := context.WithoutCancel(ctx)

	var record domain.PendingWithdrawal
	claimed, err := s.pending.Claim(settleCtx, key, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending withdrawal: %w", err)
	}
	if !claimed {
		return nil, domain.ErrOperationExpired
	}
	if gatewayTransferCode == "" {
		gatewayTransferCode = record.GatewayTransferCode
	}

	if isSuccessful {
		// The settlement is final the moment the claim passed; the audit
		// record and event go out before anything that could still fail.
		audit := domain.SettledOperation{
			Reference:   transferReference,
			AccountID:   record.AccountID,
			Amount:      record.Amount,
			Outcome:     "completed",
			GatewayCode: gatewayTransferCode,
			SettledAt:   time.Now().UTC(),
		}
		if err := s.pending.Set(settleCtx, cache.KeyPrefixAudit+transferReference, audit, s.durations.AuditTTL); err != nil {
			log.Printf("level=warn component=settlement op=confirm_withdrawal reference=%s msg=\"audit record write failed\" err=%v", transferReference, err)
		}

		s.publishEvent(settleCtx, rabbitmq.RouteWithdrawalSettled, rabbitmq.SettlementEvent{
			Reference:   transferReference,
			AccountID:   record.AccountID,
			AmountMinor: record.Amount.Amount,
			Currency:    record.Amount.Currency,
			Outcome:     "completed",
		})

		confirmation := &WithdrawalConfirmation{
			Settled: true,
			Message: "withdrawal settled",
		}
		if balance, err := s.GetBalance(settleCtx, record.AccountID); err != nil {
			log.Printf("level=warn component=settlement op=confirm_withdrawal reference=%s msg=\"balance read failed after settlement\" err=%v", transferReference, err)
		} else {
			confirmation.Balance = &balance
		}

		log.Printf("level=info component=settlement op=confirm_withdrawal reference=%s transfer_code=%s outcome=settled", transferReference, gatewayTransferCode)
		return confirmation, nil
	}

	return s.reverseWithdrawal(settleCtx, transferReference, gatewayTransferCode, record)
}

// reverseWithdrawal credits back a debit whose external transfer failed. The
// original withdrawal entry is marked failed so the ledger shows why the
// compensating credit exists.
func (s *Service) reverseWithdrawal(ctx context.Context, transferReference, gatewayTransferCode string, record domain.PendingWithdrawal) (*WithdrawalConfirmation, error) {
	if original, err := s.repo.FindTransactionByReference(ctx, transferReference); err == nil {
		if err := s.repo.UpdateTransactionStatus(ctx, original.ID, domain.TxStatusFailed); err != nil {
			log.Printf("level=warn component=settlement op=reverse_withdrawal reference=%s msg=\"status transition failed\" err=%v", transferReference, err)
		}
	}

	var newBalance domain.Money
	entry, err := s.repo.MutateAccount(ctx, record.AccountID, func(account *domain.Account) (*domain.Transaction, error) {
		tx, err := account.Deposit(record.Amount, "Reversal: "+record.Description)
		if err != nil {
			return nil, err
		}
		tx.Reference = "REV_" + transferReference
		newBalance = account.Balance
		return tx, nil
	})
	if err != nil {
		log.Printf("level=error component=settlement op=reverse_withdrawal reference=%s msg=\"CRITICAL: reversal credit failed\" err=%v", transferReference, err)
		return nil, err
	}

	audit := domain.SettledOperation{
		Reference:     transferReference,
		AccountID:     record.AccountID,
		Amount:        record.Amount,
		Outcome:       "reversed",
		GatewayCode:   gatewayTransferCode,
		TransactionID: entry.ID,
		SettledAt:     time.Now().UTC(),
	}
	if err := s.pending.Set(ctx, cache.KeyPrefixAudit+transferReference, audit, s.durations.AuditTTL); err != nil {
		log.Printf("level=warn component=settlement op=reverse_withdrawal reference=%s msg=\"audit record write failed\" err=%v", transferReference, err)
	}

	s.publishEvent(ctx, rabbitmq.RouteWithdrawalReversed, rabbitmq.SettlementEvent{
		Reference:   transferReference,
		AccountID:   record.AccountID,
		AmountMinor: record.Amount.Amount,
		Currency:    record.Amount.Currency,
		Outcome:     "reversed",
	})

	log.Printf("level=info component=settlement op=reverse_withdrawal reference=%s transfer_code=%s outcome=reversed amount=%d", transferReference, gatewayTransferCode, record.Amount.Amount)
	return &WithdrawalConfirmation{
		Settled:     false,
		Reversed:    true,
		Message:     "withdrawal failed at the gateway; funds returned",
		Balance:     &newBalance,
		Transaction: entry,
	}, nil
}
