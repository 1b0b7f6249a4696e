/**
 * @description
 * Account is the aggregate that owns a balance and enforces every balance
 * invariant. The balance can only change through the behavior methods below
 * (Deposit, Withdraw, Transfer, ReceiveTransfer); each one validates first,
 * then mutates the balance and appends the matching ledger entry in a single
 * step, so a failed call leaves the aggregate untouched.
 *
 * HydrateAccount is the explicit path for rebuilding an aggregate from
 * persisted state. It bypasses the behavior methods because stored rows are
 * known-valid; it must never be used for new business mutations.
 */

package domain

import (
	"github.com/google/uuid"
)

// Account holds a customer's balance and its ordered ledger.
type Account struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AccountNumber string
	Balance       Money
	PINHash       string
	IsActive      bool

	// Transactions appended by behavior methods during this unit of work.
	// The store persists these alongside the new balance.
	Transactions []*Transaction
}

// HydrateAccount rebuilds an aggregate from known-valid persisted state.
func HydrateAccount(id, userID uuid.UUID, accountNumber string, balance Money, pinHash string, isActive bool) *Account {
	return &Account{
		ID:            id,
		UserID:        userID,
		AccountNumber: accountNumber,
		Balance:       balance,
		PINHash:       pinHash,
		IsActive:      isActive,
	}
}

// Deposit credits the account and records a completed deposit entry.
func (a *Account) Deposit(amount Money, description string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !a.IsActive {
		return nil, ErrAccountInactive
	}
	newBalance, err := a.Balance.Add(amount)
	if err != nil {
		return nil, err
	}
	a.Balance = newBalance
	tx := newTransaction(a.ID, TxTypeDeposit, amount, description)
	a.Transactions = append(a.Transactions, tx)
	return tx, nil
}

// Withdraw debits the account and records a withdrawal entry.
func (a *Account) Withdraw(amount Money, description string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !a.IsActive {
		return nil, ErrAccountInactive
	}
	if a.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}
	newBalance, err := a.Balance.Sub(amount)
	if err != nil {
		return nil, err
	}
	a.Balance = newBalance
	tx := newTransaction(a.ID, TxTypeWithdrawal, amount, description)
	a.Transactions = append(a.Transactions, tx)
	return tx, nil
}

// Transfer debits the account for an outgoing transfer to another account.
// The matching credit must be applied with ReceiveTransfer on the target
// aggregate inside the same store transaction.
func (a *Account) Transfer(toAccountID uuid.UUID, amount Money, description string) (*Transaction, error) {
	if toAccountID == a.ID {
		return nil, ErrSameAccountTransfer
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !a.IsActive {
		return nil, ErrAccountInactive
	}
	if a.Balance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}
	newBalance, err := a.Balance.Sub(amount)
	if err != nil {
		return nil, err
	}
	a.Balance = newBalance
	tx := newTransaction(a.ID, TxTypeTransfer, amount, description)
	tx.RelatedAccountID = &toAccountID
	a.Transactions = append(a.Transactions, tx)
	return tx, nil
}

// ReceiveTransfer credits the account for an incoming transfer.
func (a *Account) ReceiveTransfer(amount Money, fromAccountID uuid.UUID, description string) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !a.IsActive {
		return nil, ErrAccountInactive
	}
	newBalance, err := a.Balance.Add(amount)
	if err != nil {
		return nil, err
	}
	a.Balance = newBalance
	tx := newTransaction(a.ID, TxTypeTransferReceived, amount, description)
	tx.RelatedAccountID = &fromAccountID
	a.Transactions = append(a.Transactions, tx)
	return tx, nil
}
