/**
 * @description
 * This file defines the core domain models for the bank-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - Account balances are only ever mutated by the transaction engine; read paths
 *   never write them back.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Supported account types, mirroring the product's savings/current/fixed offering.
const (
	AccountTypeSavings = "Savings"
	AccountTypeCurrent = "Current"
	AccountTypeFixed   = "Fixed"
)

// Account represents a customer bank account, including the identity fields the
// customer registered with. This struct maps directly to the `accounts` table.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	CustomerID     string     `json:"customerId"`
	AccountNumber  string     `json:"accountNumber"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	Phone          *string    `json:"phone,omitempty"`
	DOB            *time.Time `json:"dob,omitempty"`
	Age            *int       `json:"age,omitempty"`
	AccountType    string     `json:"accountType"`
	Balance        int64      `json:"balance"`        // in cents
	MinimumBalance int64      `json:"minimumBalance"` // in cents, >= 0
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Ledger entry types.
const (
	EntryDeposit  = "deposit"
	EntryWithdraw = "withdraw"
	EntryTransfer = "transfer"
)

// LedgerEntry is the immutable record of one committed balance-affecting event.
// Deposit/withdraw amounts are always positive; transfer legs are signed
// (negative = outgoing leg, positive = incoming leg), recorded against each
// counterparty independently. Entries are never updated or deleted.
type LedgerEntry struct {
	ID                        uuid.UUID  `json:"id"`
	AccountID                 uuid.UUID  `json:"accountId"`
	Type                      string     `json:"type"`
	Amount                    int64      `json:"amount"` // in cents
	CounterpartyAccountID     *uuid.UUID `json:"counterpartyAccountId,omitempty"`
	CounterpartyAccountNumber *string    `json:"counterpartyAccountNumber,omitempty"`
	Description               *string    `json:"description,omitempty"`
	CreatedAt                 time.Time  `json:"createdAt"`
}

// RegisterRequest is the DTO for account registration.
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Role          string `json:"role,omitempty"`
	Phone         string `json:"phone,omitempty"`
	DOB           string `json:"dob,omitempty"` // YYYY-MM-DD
	CustomerID    string `json:"customerId,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	AccountType   string `json:"accountType,omitempty"`
}

// LoginRequest is the DTO for credential login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AmountRequest is the DTO shared by deposit and withdraw endpoints.
type AmountRequest struct {
	Amount int64 `json:"amount"` // in cents
}

// TransferRequest is the DTO for peer-to-peer transfers. The recipient is
// addressed by account number, not internal id.
type TransferRequest struct {
	RecipientAccountNumber string `json:"recipientAccountNumber"`
	Amount                 int64  `json:"amount"` // in cents
	Description            string `json:"description,omitempty"`
}

// MinimumBalanceRequest is the DTO for updating the minimum-balance threshold.
type MinimumBalanceRequest struct {
	MinimumBalance int64 `json:"minimumBalance"` // in cents
}

// UpdateContactRequest is the DTO for profile updates (name and email only).
type UpdateContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ConfirmationRequired carries the data the caller needs to re-issue a
// minimum-balance-gated operation with explicit confirmation. Returned without
// any state mutation.
type ConfirmationRequired struct {
	Action               string `json:"action"` // "withdraw" or "transfer"
	CurrentBalance       int64  `json:"currentBalance"`
	MinimumBalance       int64  `json:"minimumBalance"`
	AttemptedAmount      int64  `json:"-"`
	WouldResultInBalance int64  `json:"wouldResultInBalance"`
}

// OperationResult is the committed outcome of a single-account engine operation.
// Exactly one of Confirmation or (Account, Entry) is populated.
type OperationResult struct {
	Account      *Account
	Entry        *LedgerEntry
	Confirmation *ConfirmationRequired
}

// TransferResult is the committed outcome of a transfer. A committed transfer
// always carries both legs; a gated transfer carries only Confirmation.
type TransferResult struct {
	Sender         *Account
	Recipient      *Account
	SenderEntry    *LedgerEntry
	RecipientEntry *LedgerEntry
	Confirmation   *ConfirmationRequired
}

// LedgerEntryCreatedEvent is the payload published after an entry commits.
type LedgerEntryCreatedEvent struct {
	EntryID   uuid.UUID `json:"entry_id"`
	AccountID uuid.UUID `json:"account_id"`
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// ReconciliationRequiredEvent is published when a compensating write failed and
// an account pair needs manual review. This must never be silently dropped.
type ReconciliationRequiredEvent struct {
	AccountIDs []uuid.UUID `json:"account_ids"`
	Operation  string      `json:"operation"`
	Amount     int64       `json:"amount"`
	Cause      string      `json:"cause"`
	Timestamp  time.Time   `json:"timestamp"`
}
