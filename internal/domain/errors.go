package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	// Read errors: the affected borrower, market or price is skipped.
	ErrOracleOrProtocol = errors.New("oracle or protocol error")
	ErrNoGasPrice       = errors.New("no gas price observed")

	// Preflight and execution failures.
	ErrGasPriceTooHigh     = errors.New("gas price too high")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrApprovalFailed      = errors.New("approval failed")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrReverted            = errors.New("transaction reverted")
)
