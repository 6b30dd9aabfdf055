/**
 * @description
 * This file contains the core business logic for the bank-service. The `Service`
 * struct is the transaction engine: it orchestrates the account store, the ledger,
 * and the balance policy to perform deposits, withdrawals, transfers, and
 * minimum-balance updates, with explicit compensation when a multi-step operation
 * fails partway.
 *
 * Key features:
 * - Policy evaluation happens twice: once up front to build the user-facing
 *   decision (including the needs-confirmation payload), and once inside the
 *   store's row-locked debit so racing operations cannot both pass a check.
 * - Transfers debit the sender, credit the recipient, then append both ledger
 *   legs in one atomic write. If the paired append fails, both balances are
 *   restored; if restoring them fails, the operation surfaces a distinct
 *   reconciliation-required error and publishes an event for manual review.
 * - Account lifecycle (register/login/profile) lives here too, but credential
 *   handling is delegated to the Authenticator capability; no engine operation
 *   touches it.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For account and entry ids.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/bank-service/internal/domain"
	"github.com/lumenbank/bank-service/internal/store"
	"github.com/lumenbank/bank-service/pkg/rabbitmq"
)

const (
	eventEntryCreated           = "ledger.entry.created"
	eventReconciliationRequired = "transfer.reconciliation_required"
)

// Authenticator is the credential capability used by registration and login.
// Engine operations (deposit/withdraw/transfer/minimum-balance) never touch it.
type Authenticator interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash, password string) error
	IssueToken(accountID uuid.UUID, role string) (string, error)
}

// OperationRateLimiter caps mutating operations per account. Implementations
// must be safe for concurrent use; a nil limiter disables the cap.
type OperationRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for accounts and transactions.
type Service struct {
	repo          store.Repository
	authn         Authenticator
	events        rabbitmq.Publisher
	eventExchange string

	limiter                OperationRateLimiter
	mutationLimitPerMinute int
}

// NewService creates a new bank service instance.
func NewService(repo store.Repository, authn Authenticator, events rabbitmq.Publisher, eventExchange string) *Service {
	return &Service{
		repo:          repo,
		authn:         authn,
		events:        events,
		eventExchange: eventExchange,
	}
}

// SetRateLimiter installs a per-account mutation rate limiter. A zero or
// negative limit leaves rate limiting disabled.
func (s *Service) SetRateLimiter(limiter OperationRateLimiter, limitPerMinute int) {
	s.limiter = limiter
	s.mutationLimitPerMinute = limitPerMinute
}

// Register creates a new account with a zero balance. The customer id and
// account number are generated server-side when the client omits them; age is
// derived from the date of birth.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrMissingFields)
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleCustomer
	}

	accountType := strings.TrimSpace(req.AccountType)
	if accountType == "" {
		accountType = domain.AccountTypeSavings
	}
	switch accountType {
	case domain.AccountTypeSavings, domain.AccountTypeCurrent, domain.AccountTypeFixed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccountType, accountType)
	}

	hash, err := s.authn.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &domain.Account{
		ID:            uuid.New(),
		CustomerID:    strings.TrimSpace(req.CustomerID),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		AccountType:   accountType,
		Balance:       0,
	}
	if account.CustomerID == "" {
		account.CustomerID = generateCustomerID()
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		account.Phone = &phone
	}
	if dobStr := strings.TrimSpace(req.DOB); dobStr != "" {
		dob, err := time.Parse("2006-01-02", dobStr)
		if err != nil {
			return nil, fmt.Errorf("%w: dob must be YYYY-MM-DD", ErrMissingFields)
		}
		age := deriveAge(dob, time.Now().UTC())
		account.DOB = &dob
		account.Age = &age
	}

	// Retry account-number collisions; the keyspace makes more than one retry
	// vanishingly unlikely.
	for attempt := 0; attempt < 3; attempt++ {
		if account.AccountNumber == "" {
			account.AccountNumber = generateAccountNumber()
		}
		created, err := s.repo.CreateAccount(ctx, account)
		if err == nil {
			log.Printf("level=info component=accounts msg=\"account registered\" account_id=%s account_number=%s", created.ID, created.AccountNumber)
			return created, nil
		}
		if errors.Is(err, store.ErrAccountNumberTaken) && strings.TrimSpace(req.AccountNumber) == "" {
			account.AccountNumber = ""
			continue
		}
		return nil, err
	}
	return nil, store.ErrAccountNumberTaken
}

// Login verifies credentials and mints a session token. Lookup and password
// failures are reported identically so the endpoint does not leak which emails
// are registered.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (string, *domain.Account, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return "", nil, fmt.Errorf("%w: email and password are required", ErrMissingFields)
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := s.authn.VerifyPassword(account.PasswordHash, req.Password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.authn.IssueToken(account.ID, account.Role)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, account, nil
}

// GetAccount retrieves a single account by id.
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, accountID)
}

// UpdateContact updates an account's name and email.
func (s *Service) UpdateContact(ctx context.Context, accountID uuid.UUID, req domain.UpdateContactRequest) (*domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrMissingFields)
	}
	return s.repo.UpdateAccountContact(ctx, accountID, name, email)
}

// ListAccounts returns every account. Admin surface only; authorization happens
// at the API layer.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.repo.ListAccounts(ctx)
}

// Deposit credits an account and records a deposit ledger entry. The credit is
// a single atomic increment; if the ledger append fails afterwards, the credit
// is reverted before the error is reported.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.OperationResult, error) {
	if decision := evaluateBalancePolicy(0, 0, amount, OpDeposit, false); decision.Outcome == PolicyDeny {
		return nil, decision.Reason
	}
	if err := s.checkMutationRate(ctx, accountID); err != nil {
		return nil, err
	}

	account, err := s.repo.CreditAccount(ctx, accountID, amount)
	if err != nil {
		return nil, err
	}

	entry, err := s.repo.AppendLedgerEntry(ctx, &domain.LedgerEntry{
		AccountID: accountID,
		Type:      domain.EntryDeposit,
		Amount:    amount,
	})
	if err != nil {
		if _, compErr := s.repo.AdjustBalance(ctx, accountID, -amount); compErr != nil {
			return nil, s.reconciliationRequired(ctx, "deposit", amount, compErr, accountID)
		}
		log.Printf("level=warn component=engine op=deposit outcome=rolled_back account_id=%s err=%v", accountID, err)
		return nil, &RolledBackError{Op: "deposit", Cause: err}
	}

	s.publishEntryCreated(ctx, entry)
	return &domain.OperationResult{Account: account, Entry: entry}, nil
}

// Withdraw debits an account and records a withdraw ledger entry. When the
// projected balance would fall below the account's minimum-balance threshold
// and the caller has not confirmed, the decision is returned without mutating
// any state; re-invoking with confirmed=true skips the gate.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount int64, confirmed bool) (*domain.OperationResult, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	decision := evaluateBalancePolicy(account.Balance, account.MinimumBalance, amount, OpWithdraw, confirmed)
	switch decision.Outcome {
	case PolicyDeny:
		return nil, decision.Reason
	case PolicyNeedsConfirmation:
		return &domain.OperationResult{Confirmation: &domain.ConfirmationRequired{
			Action:               "withdraw",
			CurrentBalance:       account.Balance,
			MinimumBalance:       account.MinimumBalance,
			AttemptedAmount:      amount,
			WouldResultInBalance: decision.WouldResultInBalance,
		}}, nil
	}

	if err := s.checkMutationRate(ctx, accountID); err != nil {
		return nil, err
	}

	updated, err := s.repo.DebitAccount(ctx, accountID, amount, !confirmed)
	if err != nil {
		// A racing operation may have moved the balance between the policy
		// pre-check and the locked debit; rebuild the deterministic response
		// from current state.
		if errors.Is(err, store.ErrMinimumBalanceBlocked) {
			return s.rebuildWithdrawConfirmation(ctx, accountID, amount)
		}
		return nil, err
	}

	entry, err := s.repo.AppendLedgerEntry(ctx, &domain.LedgerEntry{
		AccountID: accountID,
		Type:      domain.EntryWithdraw,
		Amount:    amount,
	})
	if err != nil {
		if _, compErr := s.repo.AdjustBalance(ctx, accountID, amount); compErr != nil {
			return nil, s.reconciliationRequired(ctx, "withdraw", amount, compErr, accountID)
		}
		log.Printf("level=warn component=engine op=withdraw outcome=rolled_back account_id=%s err=%v", accountID, err)
		return nil, &RolledBackError{Op: "withdraw", Cause: err}
	}

	s.publishEntryCreated(ctx, entry)
	return &domain.OperationResult{Account: updated, Entry: entry}, nil
}

func (s *Service) rebuildWithdrawConfirmation(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.OperationResult, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.OperationResult{Confirmation: &domain.ConfirmationRequired{
		Action:               "withdraw",
		CurrentBalance:       account.Balance,
		MinimumBalance:       account.MinimumBalance,
		AttemptedAmount:      amount,
		WouldResultInBalance: account.Balance - amount,
	}}, nil
}

// Transfer moves funds between two accounts and records a paired set of ledger
// legs (negative against the sender, positive against the recipient). The
// minimum-balance gate is evaluated against the sender only. If the paired
// ledger append fails after both balances moved, both accounts are restored to
// their pre-operation balances; a failed restore is surfaced as a
// reconciliation-required error, never as an ordinary failure.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest, confirmed bool) (*domain.TransferResult, error) {
	sender, err := s.repo.FindAccountByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	recipientNumber := strings.TrimSpace(req.RecipientAccountNumber)
	if recipientNumber == "" {
		return nil, fmt.Errorf("%w: recipient account number is required", ErrMissingFields)
	}
	recipient, err := s.repo.FindAccountByNumber(ctx, recipientNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	decision := evaluateBalancePolicy(sender.Balance, sender.MinimumBalance, req.Amount, OpTransfer, confirmed)
	switch decision.Outcome {
	case PolicyDeny:
		return nil, decision.Reason
	case PolicyNeedsConfirmation:
		return &domain.TransferResult{Confirmation: &domain.ConfirmationRequired{
			Action:               "transfer",
			CurrentBalance:       sender.Balance,
			MinimumBalance:       sender.MinimumBalance,
			AttemptedAmount:      req.Amount,
			WouldResultInBalance: decision.WouldResultInBalance,
		}}, nil
	}

	if err := s.checkMutationRate(ctx, senderID); err != nil {
		return nil, err
	}

	debitedSender, err := s.repo.DebitAccount(ctx, sender.ID, req.Amount, !confirmed)
	if err != nil {
		if errors.Is(err, store.ErrMinimumBalanceBlocked) {
			return s.rebuildTransferConfirmation(ctx, sender.ID, req.Amount)
		}
		return nil, err
	}

	creditedRecipient, err := s.repo.CreditAccount(ctx, recipient.ID, req.Amount)
	if err != nil {
		if _, compErr := s.repo.AdjustBalance(ctx, sender.ID, req.Amount); compErr != nil {
			return nil, s.reconciliationRequired(ctx, "transfer", req.Amount, compErr, sender.ID, recipient.ID)
		}
		log.Printf("level=warn component=engine op=transfer outcome=rolled_back sender_id=%s recipient_id=%s err=%v", sender.ID, recipient.ID, err)
		return nil, &RolledBackError{Op: "transfer", Cause: err}
	}

	var description *string
	if d := strings.TrimSpace(req.Description); d != "" {
		description = &d
	}
	senderLeg := &domain.LedgerEntry{
		AccountID:                 sender.ID,
		Type:                      domain.EntryTransfer,
		Amount:                    -req.Amount,
		CounterpartyAccountID:     &recipient.ID,
		CounterpartyAccountNumber: &recipient.AccountNumber,
		Description:               description,
	}
	recipientLeg := &domain.LedgerEntry{
		AccountID:                 recipient.ID,
		Type:                      domain.EntryTransfer,
		Amount:                    req.Amount,
		CounterpartyAccountID:     &sender.ID,
		CounterpartyAccountNumber: &sender.AccountNumber,
		Description:               description,
	}

	senderEntry, recipientEntry, err := s.repo.AppendTransferLegs(ctx, senderLeg, recipientLeg)
	if err != nil {
		var compErr error
		if _, e := s.repo.AdjustBalance(ctx, sender.ID, req.Amount); e != nil {
			compErr = e
		}
		if _, e := s.repo.AdjustBalance(ctx, recipient.ID, -req.Amount); e != nil && compErr == nil {
			compErr = e
		}
		if compErr != nil {
			return nil, s.reconciliationRequired(ctx, "transfer", req.Amount, compErr, sender.ID, recipient.ID)
		}
		log.Printf("level=warn component=engine op=transfer outcome=rolled_back sender_id=%s recipient_id=%s err=%v", sender.ID, recipient.ID, err)
		return nil, &RolledBackError{Op: "transfer", Cause: err}
	}

	s.publishEntryCreated(ctx, senderEntry)
	s.publishEntryCreated(ctx, recipientEntry)

	return &domain.TransferResult{
		Sender:         debitedSender,
		Recipient:      creditedRecipient,
		SenderEntry:    senderEntry,
		RecipientEntry: recipientEntry,
	}, nil
}

func (s *Service) rebuildTransferConfirmation(ctx context.Context, senderID uuid.UUID, amount int64) (*domain.TransferResult, error) {
	sender, err := s.repo.FindAccountByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return &domain.TransferResult{Confirmation: &domain.ConfirmationRequired{
		Action:               "transfer",
		CurrentBalance:       sender.Balance,
		MinimumBalance:       sender.MinimumBalance,
		AttemptedAmount:      amount,
		WouldResultInBalance: sender.Balance - amount,
	}}, nil
}

// SetMinimumBalance updates the account's minimum-balance threshold. The
// threshold must be non-negative and must not exceed the current balance.
func (s *Service) SetMinimumBalance(ctx context.Context, accountID uuid.UUID, threshold int64) (*domain.Account, error) {
	if threshold < 0 {
		return nil, ErrNegativeMinimumBalance
	}
	if err := s.checkMutationRate(ctx, accountID); err != nil {
		return nil, err
	}

	updated, err := s.repo.SetMinimumBalance(ctx, accountID, threshold)
	if err != nil {
		if errors.Is(err, store.ErrThresholdAboveBalance) {
			account, readErr := s.repo.FindAccountByID(ctx, accountID)
			if readErr != nil {
				return nil, readErr
			}
			return nil, &ThresholdAboveBalanceError{
				CurrentBalance:          account.Balance,
				AttemptedMinimumBalance: threshold,
			}
		}
		return nil, err
	}
	return updated, nil
}

// ListTransactions returns the account's ledger entries, newest first. Pure
// read path: every call re-reads committed state, no caching.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	if _, err := s.repo.FindAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntriesByAccount(ctx, accountID)
}

func (s *Service) checkMutationRate(ctx context.Context, accountID uuid.UUID) error {
	if s.limiter == nil || s.mutationLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "mutation", accountID.String(), s.mutationLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting is advisory; a limiter outage must not block money movement.
		log.Printf("level=warn component=engine msg=\"rate limiter unavailable\" account_id=%s err=%v", accountID, err)
		return nil
	}
	if count > s.mutationLimitPerMinute {
		return &RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishEntryCreated(ctx context.Context, entry *domain.LedgerEntry) {
	if s.events == nil {
		return
	}
	event := domain.LedgerEntryCreatedEvent{
		EntryID:   entry.ID,
		AccountID: entry.AccountID,
		Type:      entry.Type,
		Amount:    entry.Amount,
		Timestamp: entry.CreatedAt,
	}
	if err := s.events.Publish(ctx, s.eventExchange, eventEntryCreated, event); err != nil {
		log.Printf("level=warn component=engine msg=\"entry event publish failed\" entry_id=%s err=%v", entry.ID, err)
	}
}

func (s *Service) reconciliationRequired(ctx context.Context, op string, amount int64, cause error, accountIDs ...uuid.UUID) error {
	ids := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		ids[i] = id.String()
	}
	log.Printf("CRITICAL: %s compensation failed; accounts %s require manual reconciliation: %v", op, strings.Join(ids, ","), cause)

	if s.events != nil {
		event := domain.ReconciliationRequiredEvent{
			AccountIDs: accountIDs,
			Operation:  op,
			Amount:     amount,
			Cause:      cause.Error(),
			Timestamp:  time.Now().UTC(),
		}
		if err := s.events.Publish(ctx, s.eventExchange, eventReconciliationRequired, event); err != nil {
			log.Printf("CRITICAL: reconciliation event publish failed for accounts %s: %v", strings.Join(ids, ","), err)
		}
	}

	return &ReconciliationRequiredError{Op: op, AccountIDs: accountIDs, Cause: cause}
}

// generateCustomerID returns a customer reference like "CUS-9F2C41D7".
func generateCustomerID() string {
	id := uuid.New()
	return fmt.Sprintf("CUS-%08X", id.ID())
}

// generateAccountNumber returns a 10-digit account number that never starts
// with zero.
func generateAccountNumber() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9_000_000_000))
	if err != nil {
		// crypto/rand failure is effectively unreachable; fall back to a
		// uuid-derived number rather than aborting registration.
		return strconv.FormatUint(uint64(uuid.New().ID())%9_000_000_000+1_000_000_000, 10)
	}
	return strconv.FormatInt(n.Int64()+1_000_000_000, 10)
}

// deriveAge computes whole years between dob and now.
func deriveAge(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}
