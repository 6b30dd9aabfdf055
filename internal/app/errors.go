/**
 * @description
 * This file defines the error taxonomy of the transaction engine. Sentinel errors
 * cover terminal validation failures; typed errors carry the data the API layer
 * needs to build its response bodies. Store-level sentinels (account not found,
 * insufficient funds) pass through unchanged and are matched with errors.Is.
 */

package app

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrSelfTransfer           = errors.New("cannot transfer to your own account")
	ErrRecipientNotFound      = errors.New("recipient account not found")
	ErrNegativeMinimumBalance = errors.New("minimum balance cannot be negative")
	ErrMissingFields          = errors.New("missing required fields")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidAccountType     = errors.New("invalid account type")
)

// ThresholdAboveBalanceError reports a rejected minimum-balance update. The
// account must first be funded above the proposed floor.
type ThresholdAboveBalanceError struct {
	CurrentBalance          int64
	AttemptedMinimumBalance int64
}

func (e *ThresholdAboveBalanceError) Error() string {
	return fmt.Sprintf("minimum balance %d exceeds current balance %d", e.AttemptedMinimumBalance, e.CurrentBalance)
}

// RolledBackError reports an operation whose mutations were fully reverted after
// a later step failed. The account state matches its pre-operation values.
type RolledBackError struct {
	Op    string
	Cause error
}

func (e *RolledBackError) Error() string {
	return fmt.Sprintf("%s rolled back: %v", e.Op, e.Cause)
}

func (e *RolledBackError) Unwrap() error { return e.Cause }

// ReconciliationRequiredError reports a compensating write that itself failed,
// leaving account state that no longer matches the ledger. This is a fatal
// inconsistency: it is surfaced distinctly, logged, and published for manual
// review — never mapped to an ordinary operation failure.
type ReconciliationRequiredError struct {
	Op         string
	AccountIDs []uuid.UUID
	Cause      error
}

func (e *ReconciliationRequiredError) Error() string {
	return fmt.Sprintf("%s requires manual reconciliation: %v", e.Op, e.Cause)
}

func (e *ReconciliationRequiredError) Unwrap() error { return e.Cause }

// RateLimitedError reports a mutating operation rejected by the per-account
// rate limiter.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many operations; retry in %ds", e.RetryAfterSeconds)
}
