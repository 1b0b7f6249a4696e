/**
 * @description
 * This file contains the settlement orchestrator. The `Service` struct
 * coordinates every money movement: direct and gateway-collected deposits,
 * external withdrawals with reversal on failure, and internal transfers. It
 * works against capability interfaces (store, gateway, pending-operation
 * cache, scheduler, event publisher) that the composition root injects —
 * nothing here reaches for ambient singletons.
 *
 * @dependencies
 * - github.com/google/uuid: entity ids.
 * - golang.org/x/crypto/bcrypt: transaction PIN verification.
 * - internal/domain, internal/store: aggregate and persistence contracts.
 * - pkg/paystackclient, pkg/rabbitmq: gateway response types and events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kudipay/settlement-service/internal/cache"
	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/paystackclient"
	"github.com/kudipay/settlement-service/pkg/rabbitmq"
)

// Gateway is the payment gateway capability the orchestrator depends on.
// paystackclient.Client satisfies it.
type Gateway interface {
	InitializePayment(ctx context.Context, email, reference string, amountMinor int64) (*paystackclient.InitializePaymentResult, error)
	VerifyByReference(ctx context.Context, reference string) (*paystackclient.VerifyResult, error)
	ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (*paystackclient.ResolvedAccount, error)
	ListBanks(ctx context.Context) ([]paystackclient.Bank, error)
	CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (*paystackclient.RecipientResult, error)
	InitiateTransfer(ctx context.Context, amountMinor int64, recipientCode, reference, reason string) (*paystackclient.TransferResult, error)
}

// PendingStore is the TTL'd key/value capability holding in-flight operation
// state. It must be shared across process instances; cache.PendingStore
// (Redis) satisfies it.
type PendingStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Remove(ctx context.Context, key string) (bool, error)
	Claim(ctx context.Context, key string, dest any) (bool, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest any, compute func() (any, error)) error
}

// Scheduler schedules a one-shot deferred call.
type Scheduler interface {
	Schedule(delay time.Duration, fn func())
}

// Timeouts and TTLs for pending and cached records.
type Durations struct {
	DepositPendingTTL    time.Duration // cache lifetime of a pending deposit
	DepositValidity      time.Duration // business validity shown to the payer
	WithdrawalPendingTTL time.Duration
	AuditTTL             time.Duration
	DepositVerifyDelay   time.Duration // deferred confirmation fallback delay
	BankListTTL          time.Duration
	AccountNameTTL       time.Duration
}

// DefaultDurations returns the standard operating windows.
func DefaultDurations() Durations {
	return Durations{
		DepositPendingTTL:    2 * time.Hour,
		DepositValidity:      1 * time.Hour,
		WithdrawalPendingTTL: 48 * time.Hour,
		AuditTTL:             30 * 24 * time.Hour,
		DepositVerifyDelay:   30 * time.Second,
		BankListTTL:          24 * time.Hour,
		AccountNameTTL:       60 * 24 * time.Hour,
	}
}

// Service orchestrates all settlement flows.
type Service struct {
	repo      store.Repository
	gateway   Gateway
	pending   PendingStore
	scheduler Scheduler
	events    rabbitmq.Publisher
	durations Durations
}

// NewService creates a new settlement service instance. events may be nil
// when no broker is configured.
func NewService(repo store.Repository, gateway Gateway, pending PendingStore, scheduler Scheduler, events rabbitmq.Publisher, durations Durations) *Service {
	return &Service{
		repo:      repo,
		gateway:   gateway,
		pending:   pending,
		scheduler: scheduler,
		events:    events,
		durations: durations,
	}
}

// DirectDeposit credits an account immediately, with no gateway involvement.
func (s *Service) DirectDeposit(ctx context.Context, accountID uuid.UUID, amount domain.Money, description string) (*domain.Transaction, error) {
	return s.repo.MutateAccount(ctx, accountID, func(account *domain.Account) (*domain.Transaction, error) {
		return account.Deposit(amount, description)
	})
}

// Transfer moves money between two local accounts. Both ledger entries are
// written in one store transaction so the pair is always both visible or
// both absent.
func (s *Service) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount domain.Money, pin, description string) ([]*domain.Transaction, error) {
	if fromID == toID {
		return nil, domain.ErrSameAccountTransfer
	}

	fromAccount, err := s.repo.GetAccount(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if err := verifyPIN(fromAccount, pin); err != nil {
		return nil, err
	}

	return s.repo.MutateAccountPair(ctx, fromID, toID, func(from, to *domain.Account) ([]*domain.Transaction, error) {
		debit, err := from.Transfer(to.ID, amount, description)
		if err != nil {
			return nil, err
		}
		credit, err := to.ReceiveTransfer(amount, from.ID, description)
		if err != nil {
			return nil, err
		}
		return []*domain.Transaction{debit, credit}, nil
	})
}

// GetBalance returns the account's current balance.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (domain.Money, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Money{}, err
	}
	return account.Balance, nil
}

// ListTransactions returns a page of the account's ledger, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, accountID, limit, offset)
}

// VerifyAccount resolves a destination bank account to its registered name.
// Results are cached for a long time because the mapping is stable.
func (s *Service) VerifyAccount(ctx context.Context, accountNumber, bankCode string) (*paystackclient.ResolvedAccount, error) {
	var resolved paystackclient.ResolvedAccount
	key := cache.KeyPrefixAccountName + bankCode + ":" + accountNumber
	err := s.pending.GetOrCompute(ctx, key, s.durations.AccountNameTTL, &resolved, func() (any, error) {
		result, err := s.gateway.ResolveAccountName(ctx, accountNumber, bankCode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return &resolved, nil
}

// ListBanks returns the gateway's bank directory, cached.
func (s *Service) ListBanks(ctx context.Context) ([]paystackclient.Bank, error) {
	var banks []paystackclient.Bank
	err := s.pending.GetOrCompute(ctx, cache.KeyPrefixBankList, s.durations.BankListTTL, &banks, func() (any, error) {
		result, err := s.gateway.ListBanks(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return banks, nil
}

// verifyPIN compares the supplied PIN against the account's stored hash.
func verifyPIN(account *domain.Account, pin string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(pin)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidPIN
		}
		return fmt.Errorf("pin verification failed: %w", err)
	}
	return nil
}

// publishEvent emits a settlement event; a publish failure never fails the
// settlement itself.
func (s *Service) publishEvent(ctx context.Context, routingKey string, event rabbitmq.SettlementEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := s.events.Publish(ctx, rabbitmq.SettlementEventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=settlement msg=\"event publish failed\" routing_key=%s reference=%s err=%v", routingKey, event.Reference, err)
	}
}
