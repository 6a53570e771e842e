package service

import "errors"

var (
	ErrNotFound            = errors.New("error not found")
	ErrAlreadyExists       = errors.New("error already exists")
	ErrMarketClosed        = errors.New("error market is closed")
	ErrInvalidQuantity     = errors.New("error quantity must be positive")
	ErrInvalidAmount       = errors.New("error amount must be positive")
	ErrInvalidPrice        = errors.New("error price must be positive")
	ErrInvalidSymbol       = errors.New("error symbol must not be empty")
	ErrInsufficientFunds   = errors.New("error insufficient funds")
	ErrInsufficientShares  = errors.New("error insufficient shares")
	ErrEventNotImplemented = errors.New("error market event has no defined effect")
	ErrLedgerUnavailable   = errors.New("error ledger service unavailable")
)

// IsRejected reports whether err is a recoverable rejection of the request
// that left all state untouched.
func IsRejected(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrMarketClosed,
		ErrInvalidQuantity,
		ErrInvalidAmount,
		ErrInvalidPrice,
		ErrInvalidSymbol,
		ErrInsufficientFunds,
		ErrInsufficientShares,
		ErrEventNotImplemented,
		ErrLedgerUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
