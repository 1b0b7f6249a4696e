/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the settlement service needs. Keeping it an interface decouples the
 * orchestration logic from PostgreSQL and lets tests substitute in-memory
 * fakes.
 *
 * The two Mutate* methods are the only write paths for balances. They load
 * the account row(s) under a row-level lock, hand the hydrated aggregate to
 * the callback, and persist the new balance together with every ledger entry
 * the aggregate appended — all inside one database transaction, so balance
 * and ledger are always written atomically and concurrent mutations of the
 * same account are serialized.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/kudipay/settlement-service/internal/domain"
)

// MutateFn receives a locked, hydrated aggregate. It must perform all
// mutations through the aggregate's behavior methods and return the entry it
// wants reported to the caller.
type MutateFn func(account *domain.Account) (*domain.Transaction, error)

// MutatePairFn receives two locked aggregates for a transfer pair.
type MutatePairFn func(from, to *domain.Account) ([]*domain.Transaction, error)

// Repository defines the persistence operations used by the settlement service.
type Repository interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// MutateAccount runs fn against the account inside one transaction with
	// the account row locked FOR UPDATE. On error the transaction is rolled
	// back and nothing is persisted.
	MutateAccount(ctx context.Context, accountID uuid.UUID, fn MutateFn) (*domain.Transaction, error)

	// MutateAccountPair locks both rows (in ascending id order, to avoid
	// deadlocks) and persists both aggregates and all their entries in one
	// transaction, so a transfer pair is either fully visible or absent.
	MutateAccountPair(ctx context.Context, fromID, toID uuid.UUID, fn MutatePairFn) ([]*domain.Transaction, error)

	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error
}
