/**
 * @description
 * Pending records describe money movements that have crossed the boundary to
 * the payment gateway and are awaiting asynchronous confirmation. A record's
 * presence in the pending-operation store is the sole authority that the
 * operation is still in flight; claiming (removing) it is the commit point
 * that makes the matching ledger mutation final and non-repeatable.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the slim read model needed to resolve a deposit customer's email.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

// PendingDeposit tracks a hosted-payment-page deposit awaiting confirmation.
// Keyed by PaymentReference.
type PendingDeposit struct {
	AccountID        uuid.UUID `json:"account_id"`
	Amount           Money     `json:"amount"`
	Description      string    `json:"description"`
	CustomerEmail    string    `json:"customer_email"`
	PaymentReference string    `json:"payment_reference"`
	GatewayReference string    `json:"gateway_reference"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// PendingWithdrawal tracks a bank transfer that the gateway has accepted and
// whose local debit has been applied. Keyed by TransferReference.
type PendingWithdrawal struct {
	AccountID                uuid.UUID `json:"account_id"`
	Amount                   Money     `json:"amount"`
	Description              string    `json:"description"`
	BankCode                 string    `json:"bank_code"`
	DestinationAccountNumber string    `json:"destination_account_number"`
	DestinationAccountName   string    `json:"destination_account_name"`
	TransferReference        string    `json:"transfer_reference"`
	RecipientCode            string    `json:"recipient_code"`
	GatewayTransferCode      string    `json:"gateway_transfer_code"`
	CreatedAt                time.Time `json:"created_at"`
	ExpiresAt                time.Time `json:"expires_at"`
}

// SettledOperation is the long-lived audit record written once a pending
// operation has been finalized, for traceability after the pending record
// itself is gone.
type SettledOperation struct {
	Reference     string    `json:"reference"`
	AccountID     uuid.UUID `json:"account_id"`
	Amount        Money     `json:"amount"`
	Outcome       string    `json:"outcome"` // "completed" or "reversed"
	GatewayCode   string    `json:"gateway_code,omitempty"`
	TransactionID uuid.UUID `json:"transaction_id"`
	SettledAt     time.Time `json:"settled_at"`
}
