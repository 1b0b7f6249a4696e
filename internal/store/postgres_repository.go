/**
 * @description
 * PostgreSQL implementation of the `Repository` interface using pgx/v5. All
 * balance writes go through MutateAccount / MutateAccountPair, which lock the
 * account row(s) with SELECT ... FOR UPDATE so concurrent mutations of the
 * same account serialize at the database, then persist the new balance and
 * the appended ledger entries in the same transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - internal/domain: aggregate hydration and ledger models.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kudipay/settlement-service/internal/domain"
)

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, user_id, account_number, balance, currency, pin_hash, is_active`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		id, userID    uuid.UUID
		accountNumber string
		balance       int64
		currency      string
		pinHash       string
		isActive      bool
	)
	if err := row.Scan(&id, &userID, &accountNumber, &balance, &currency, &pinHash, &isActive); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	money, err := domain.NewMoney(balance, currency)
	if err != nil {
		return nil, fmt.Errorf("persisted balance is invalid: %w", err)
	}
	return domain.HydrateAccount(id, userID, accountNumber, money, pinHash, isActive), nil
}

// GetAccount loads an account without its ledger (read path).
func (r *PostgresRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// GetAccountByNumber loads an account by its globally unique number.
func (r *PostgresRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountNumber))
}

// AccountNumberExists reports whether an account number is already taken.
func (r *PostgresRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber).Scan(&exists)
	return exists, err
}

// FindUserByID resolves the account owner, used for deposit email fallback.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, COALESCE(full_name, '') FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.FullName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// MutateAccount applies fn to the locked aggregate and persists the result.
func (r *PostgresRepository) MutateAccount(ctx context.Context, accountID uuid.UUID, fn MutateFn) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	result, err := fn(account)
	if err != nil {
		return nil, err
	}

	if err := persistAccount(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit account mutation: %w", err)
	}
	return result, nil
}

// MutateAccountPair applies fn to both locked aggregates and persists both.
func (r *PostgresRepository) MutateAccountPair(ctx context.Context, fromID, toID uuid.UUID, fn MutatePairFn) ([]*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock in ascending id order regardless of transfer direction.
	firstID, secondID := fromID, toID
	if secondID.String() < firstID.String() {
		firstID, secondID = secondID, firstID
	}

	first, err := lockAccount(ctx, tx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := lockAccount(ctx, tx, secondID)
	if err != nil {
		return nil, err
	}

	from, to := first, second
	if from.ID != fromID {
		from, to = second, first
	}

	entries, err := fn(from, to)
	if err != nil {
		return nil, err
	}

	if err := persistAccount(ctx, tx, from); err != nil {
		return nil, err
	}
	if err := persistAccount(ctx, tx, to); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer pair: %w", err)
	}
	return entries, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, err
	}
	return account, nil
}

// persistAccount writes the aggregate's new balance and every ledger entry it
// appended during this unit of work.
func persistAccount(ctx context.Context, tx pgx.Tx, account *domain.Account) error {
	updateQuery := `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`
	if _, err := tx.Exec(ctx, updateQuery, account.Balance.Amount, account.ID); err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	insertQuery := `
		INSERT INTO transactions (id, account_id, related_account_id, type, amount, currency, description, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`
	for _, entry := range account.Transactions {
		_, err := tx.Exec(ctx, insertQuery,
			entry.ID, entry.AccountID, entry.RelatedAccountID, entry.Type,
			entry.Amount.Amount, entry.Amount.Currency, entry.Description,
			entry.Status, entry.Reference, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}
	account.Transactions = nil
	return nil
}

// ListTransactions returns an account's ledger ordered by creation time.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, account_id, related_account_id, type, amount, currency,
		       COALESCE(description, '') AS description, status, COALESCE(reference, '') AS reference, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var (
			entry    domain.Transaction
			amount   int64
			currency string
		)
		err := rows.Scan(
			&entry.ID, &entry.AccountID, &entry.RelatedAccountID, &entry.Type,
			&amount, &currency, &entry.Description, &entry.Status, &entry.Reference, &entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.Amount = domain.Money{Amount: amount, Currency: currency}
		transactions = append(transactions, entry)
	}
	return transactions, rows.Err()
}

// FindTransactionByReference looks up an entry by its unique reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `
		SELECT id, account_id, related_account_id, type, amount, currency,
		       COALESCE(description, '') AS description, status, COALESCE(reference, '') AS reference, created_at
		FROM transactions
		WHERE reference = $1
	`
	var (
		entry    domain.Transaction
		amount   int64
		currency string
	)
	err := r.db.QueryRow(ctx, query, reference).Scan(
		&entry.ID, &entry.AccountID, &entry.RelatedAccountID, &entry.Type,
		&amount, &currency, &entry.Description, &entry.Status, &entry.Reference, &entry.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrOperationExpired
		}
		return nil, err
	}
	entry.Amount = domain.Money{Amount: amount, Currency: currency}
	return &entry, nil
}

// UpdateTransactionStatus applies a reconciliation status transition. The
// WHERE clause enforces the completed -> failed/cancelled rule at the row.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	if status != domain.TxStatusFailed && status != domain.TxStatusCancelled {
		return domain.ErrIllegalTransition
	}
	query := `UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.Exec(ctx, query, status, transactionID, domain.TxStatusCompleted)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrIllegalTransition
	}
	return nil
}
