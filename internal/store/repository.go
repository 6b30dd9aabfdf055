/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the bank-service. By defining an interface,
 * we decouple the transaction engine from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/lumenbank/bank-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
//
// Balance-mutating methods are atomic per account: DebitAccount runs its
// funds/minimum checks under a row lock, CreditAccount is a single atomic
// increment, and AdjustBalance is the unconditional variant reserved for
// compensating writes. No method ever locks two account rows at once.
type Repository interface {
	// Account store
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	UpdateAccountContact(ctx context.Context, accountID uuid.UUID, name, email string) (*domain.Account, error)

	// Balance mutations
	CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Account, error)
	DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, enforceMinimum bool) (*domain.Account, error)
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (*domain.Account, error)
	SetMinimumBalance(ctx context.Context, accountID uuid.UUID, threshold int64) (*domain.Account, error)

	// Ledger
	AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	AppendTransferLegs(ctx context.Context, senderLeg, recipientLeg *domain.LedgerEntry) (*domain.LedgerEntry, *domain.LedgerEntry, error)
	ListLedgerEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error)
}
