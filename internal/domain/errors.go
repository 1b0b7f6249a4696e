package domain

import "errors"

// Sentinel errors returned by the aggregate and the settlement service.
// The API layer maps each of these to a protocol status; no raw error text
// from dependencies crosses the external boundary.
var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrAccountNotFound     = errors.New("account not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSameAccountTransfer = errors.New("cannot transfer to the same account")
	ErrInvalidPIN          = errors.New("invalid transaction pin")
	ErrGateway             = errors.New("payment gateway error")
	ErrOperationExpired    = errors.New("pending operation expired or unknown")
	ErrIllegalTransition   = errors.New("illegal transaction status transition")
)
