/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for the accounts table (the account store) and the
 * ledger_entries table (the append-only transaction ledger).
 *
 * Balance mutations use short single-row transactions: DebitAccount locks exactly
 * one account row with FOR UPDATE, runs the funds and minimum-balance checks under
 * that lock, and commits the decrement. Because no method ever holds locks on two
 * account rows simultaneously, concurrent opposite-direction transfers cannot
 * deadlock.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lumenbank/bank-service/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrMinimumBalanceBlocked = errors.New("withdrawal would breach minimum balance")
	ErrThresholdAboveBalance = errors.New("minimum balance threshold exceeds current balance")
	ErrEmailTaken            = errors.New("email already registered")
	ErrAccountNumberTaken    = errors.New("account number already in use")
)

const accountColumns = `id, customer_id, account_number, name, email, password_hash, role,
	phone, dob, age, account_type, balance, minimum_balance, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.CustomerID, &a.AccountNumber, &a.Name, &a.Email, &a.PasswordHash, &a.Role,
		&a.Phone, &a.DOB, &a.Age, &a.AccountType, &a.Balance, &a.MinimumBalance, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account row. Unique violations on email and account
// number are mapped to sentinel errors so the caller can report them distinctly.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (
			id, customer_id, account_number, name, email, password_hash, role,
			phone, dob, age, account_type, balance, minimum_balance
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + accountColumns
	row := r.db.QueryRow(ctx, query,
		account.ID, account.CustomerID, account.AccountNumber, account.Name, account.Email,
		account.PasswordHash, account.Role, account.Phone, account.DOB, account.Age,
		account.AccountType, account.Balance, account.MinimumBalance,
	)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "accounts_email_key":
				return nil, ErrEmailTaken
			case "accounts_account_number_key":
				return nil, ErrAccountNumberTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

// FindAccountByID retrieves an account by its internal id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindAccountByNumber retrieves an account by its public account number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountNumber))
}

// FindAccountByEmail retrieves an account by email (case-insensitive).
func (r *PostgresRepository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower(btrim($1))`
	return scanAccount(r.db.QueryRow(ctx, query, email))
}

// ListAccounts returns all accounts, newest first. Admin surface only.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountContact updates the mutable profile fields (name and email).
func (r *PostgresRepository) UpdateAccountContact(ctx context.Context, accountID uuid.UUID, name, email string) (*domain.Account, error) {
	query := `
		UPDATE accounts SET name = $2, email = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	updated, err := scanAccount(r.db.QueryRow(ctx, query, accountID, name, email))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return updated, nil
}

// CreditAccount performs an atomic credit on an account. Used for the simple
// deposit path and the recipient leg of transfers; no pre-check is needed.
func (r *PostgresRepository) CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Account, error) {
	query := `
		UPDATE accounts SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, accountID, amount))
}

// DebitAccount performs an atomic debit on an account. The funds check, and the
// minimum-balance check when enforceMinimum is set, run under a FOR UPDATE row
// lock so two concurrent withdrawals can never both pass a check their combined
// effect would violate.
func (r *PostgresRepository) DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, enforceMinimum bool) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance, minimum int64
	err = tx.QueryRow(ctx, "SELECT balance, minimum_balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).
		Scan(&balance, &minimum)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if balance < amount {
		return nil, ErrInsufficientFunds
	}
	if enforceMinimum && balance-amount < minimum {
		return nil, ErrMinimumBalanceBlocked
	}

	query := `
		UPDATE accounts SET balance = balance - $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	updated, err := scanAccount(tx.QueryRow(ctx, query, accountID, amount))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// AdjustBalance applies an unconditional signed delta to an account balance.
// Reserved for compensating writes that restore a pre-operation balance; normal
// operation paths go through CreditAccount/DebitAccount.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (*domain.Account, error) {
	query := `
		UPDATE accounts SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, accountID, delta))
}

// SetMinimumBalance persists a new minimum-balance threshold. The
// threshold-above-balance rule is checked under the row lock, so a racing
// withdrawal cannot slip the balance below a threshold being installed.
func (r *PostgresRepository) SetMinimumBalance(ctx context.Context, accountID uuid.UUID, threshold int64) (*domain.Account, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if balance < threshold {
		return nil, ErrThresholdAboveBalance
	}

	query := `
		UPDATE accounts SET minimum_balance = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	updated, err := scanAccount(tx.QueryRow(ctx, query, accountID, threshold))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

const ledgerColumns = `id, account_id, type, amount, counterparty_account_id,
	counterparty_account_number, description, created_at`

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(
		&e.ID, &e.AccountID, &e.Type, &e.Amount,
		&e.CounterpartyAccountID, &e.CounterpartyAccountNumber, &e.Description, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendLedgerEntry persists a single ledger entry, assigning the id if absent
// and letting the database stamp created_at when the entry carries none.
func (r *PostgresRepository) AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO ledger_entries (
			id, account_id, type, amount, counterparty_account_id,
			counterparty_account_number, description, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + ledgerColumns
	return scanLedgerEntry(r.db.QueryRow(ctx, query,
		entry.ID, entry.AccountID, entry.Type, entry.Amount,
		entry.CounterpartyAccountID, entry.CounterpartyAccountNumber, entry.Description, entry.CreatedAt,
	))
}

// AppendTransferLegs persists both legs of a transfer in one database
// transaction. Either both legs commit or neither does, so a one-sided transfer
// is never observable in the ledger.
func (r *PostgresRepository) AppendTransferLegs(ctx context.Context, senderLeg, recipientLeg *domain.LedgerEntry) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	query := `
		INSERT INTO ledger_entries (
			id, account_id, type, amount, counterparty_account_id,
			counterparty_account_number, description, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + ledgerColumns

	legs := [2]*domain.LedgerEntry{senderLeg, recipientLeg}
	out := [2]*domain.LedgerEntry{}
	for i, leg := range legs {
		if leg.ID == uuid.Nil {
			leg.ID = uuid.New()
		}
		if leg.CreatedAt.IsZero() {
			leg.CreatedAt = now
		}
		inserted, err := scanLedgerEntry(tx.QueryRow(ctx, query,
			leg.ID, leg.AccountID, leg.Type, leg.Amount,
			leg.CounterpartyAccountID, leg.CounterpartyAccountNumber, leg.Description, leg.CreatedAt,
		))
		if err != nil {
			return nil, nil, err
		}
		out[i] = inserted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return out[0], out[1], nil
}

// ListLedgerEntriesByAccount returns all entries for an account, newest first.
// The id tiebreak keeps the order stable for legs stamped in the same instant.
func (r *PostgresRepository) ListLedgerEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
