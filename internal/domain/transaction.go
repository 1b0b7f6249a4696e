/**
 * @description
 * Transaction is the immutable ledger record for one balance-affecting event.
 * Rows map directly to the `transactions` table. Once created, the only legal
 * mutation is a status transition from completed to failed or cancelled.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types.
const (
	TxTypeDeposit          = "deposit"
	TxTypeWithdrawal       = "withdrawal"
	TxTypeTransfer         = "transfer"
	TxTypeTransferReceived = "transfer_received"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// Transaction represents a single entry in an account's ledger.
type Transaction struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        uuid.UUID  `json:"account_id"`
	RelatedAccountID *uuid.UUID `json:"related_account_id,omitempty"`
	Type             string     `json:"type"`
	Amount           Money      `json:"amount"`
	Description      string     `json:"description"`
	Status           string     `json:"status"`
	Reference        string     `json:"reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// newTransaction is used by the account aggregate; entries are born completed
// because the aggregate only records settled balance mutations.
func newTransaction(accountID uuid.UUID, txType string, amount Money, description string) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Status:      TxStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
}

// TransitionStatus applies the only legal status mutation: a completed entry
// may later be marked failed or cancelled during reconciliation.
func (t *Transaction) TransitionStatus(newStatus string) error {
	if t.Status != TxStatusCompleted {
		return ErrIllegalTransition
	}
	if newStatus != TxStatusFailed && newStatus != TxStatusCancelled {
		return ErrIllegalTransition
	}
	t.Status = newStatus
	return nil
}

// IsCredit reports whether this entry increases the account balance.
func (t *Transaction) IsCredit() bool {
	return t.Type == TxTypeDeposit || t.Type == TxTypeTransferReceived
}
