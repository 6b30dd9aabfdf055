package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/bank-service/internal/domain"
	"github.com/lumenbank/bank-service/internal/store"
)

// memRepo is an in-memory Repository used to exercise the engine without a
// database. Mutations follow the same atomicity contract as the Postgres
// implementation: per-account balance updates and an all-or-nothing paired
// ledger append.
type memRepo struct {
	store.Repository

	accounts map[uuid.UUID]*domain.Account
	entries  []domain.LedgerEntry
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (m *memRepo) addAccount(a *domain.Account) *domain.Account {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.accounts[a.ID] = a
	return a
}

func (m *memRepo) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, account.Email) {
			return nil, store.ErrEmailTaken
		}
		if existing.AccountNumber == account.AccountNumber {
			return nil, store.ErrAccountNumberTaken
		}
	}
	cp := *account
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (m *memRepo) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	for _, a := range m.accounts {
		if a.AccountNumber == accountNumber {
			out := *a
			return &out, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (m *memRepo) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, strings.TrimSpace(email)) {
			out := *a
			return &out, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (m *memRepo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memRepo) UpdateAccountContact(ctx context.Context, accountID uuid.UUID, name, email string) (*domain.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	a.Name = name
	a.Email = email
	out := *a
	return &out, nil
}

func (m *memRepo) CreditAccount(ctx context.Context, accountID uuid.UUID, amount int64) (*domain.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	a.Balance += amount
	out := *a
	return &out, nil
}

func (m *memRepo) DebitAccount(ctx context.Context, accountID uuid.UUID, amount int64, enforceMinimum bool) (*domain.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if a.Balance < amount {
		return nil, store.ErrInsufficientFunds
	}
	if enforceMinimum && a.Balance-amount < a.MinimumBalance {
		return nil, store.ErrMinimumBalanceBlocked
	}
	a.Balance -= amount
	out := *a
	return &out, nil
}

func (m *memRepo) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (*domain.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	a.Balance += delta
	out := *a
	return &out, nil
}

func (m *memRepo) SetMinimumBalance(ctx context.Context, accountID uuid.UUID, threshold int64) (*domain.Account, error) {
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if a.Balance < threshold {
		return nil, store.ErrThresholdAboveBalance
	}
	a.MinimumBalance = threshold
	out := *a
	return &out, nil
}

func (m *memRepo) AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	cp := *entry
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, cp)
	out := cp
	return &out, nil
}

func (m *memRepo) AppendTransferLegs(ctx context.Context, senderLeg, recipientLeg *domain.LedgerEntry) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	s, err := m.AppendLedgerEntry(ctx, senderLeg)
	if err != nil {
		return nil, nil, err
	}
	r, err := m.AppendLedgerEntry(ctx, recipientLeg)
	if err != nil {
		return nil, nil, err
	}
	return s, r, nil
}

func (m *memRepo) ListLedgerEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) totalBalance() int64 {
	var total int64
	for _, a := range m.accounts {
		total += a.Balance
	}
	return total
}

// fakeAuthn satisfies Authenticator without real hashing or signing.
type fakeAuthn struct{}

func (fakeAuthn) HashPassword(password string) (string, error) { return "hashed:" + password, nil }

func (fakeAuthn) VerifyPassword(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func (fakeAuthn) IssueToken(accountID uuid.UUID, role string) (string, error) {
	return "token-" + accountID.String(), nil
}

func newTestService(repo store.Repository) *Service {
	return NewService(repo, fakeAuthn{}, nil, "bank.events")
}

func seedAccount(repo *memRepo, balance, minimum int64) *domain.Account {
	id := uuid.New()
	return repo.addAccount(&domain.Account{
		ID:             id,
		CustomerID:     "CUS-" + id.String()[:8],
		AccountNumber:  "10000" + id.String()[:5],
		Name:           "Test Holder",
		Email:          id.String() + "@example.com",
		PasswordHash:   "hashed:pw",
		Role:           domain.RoleCustomer,
		AccountType:    domain.AccountTypeSavings,
		Balance:        balance,
		MinimumBalance: minimum,
	})
}

func TestDepositCreditsBalanceAndAppendsEntry(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 0, 0)
	svc := newTestService(repo)

	result, err := svc.Deposit(context.Background(), acct.ID, 50000)
	if err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}
	if result.Account.Balance != 50000 {
		t.Fatalf("expected balance 50000, got %d", result.Account.Balance)
	}
	if result.Entry.Type != domain.EntryDeposit || result.Entry.Amount != 50000 {
		t.Fatalf("unexpected ledger entry: %+v", result.Entry)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(repo.entries))
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 0, 0)
	svc := newTestService(repo)

	for _, amount := range []int64{0, -100} {
		if _, err := svc.Deposit(context.Background(), acct.ID, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if len(repo.entries) != 0 {
		t.Fatalf("rejected deposits must not append ledger entries")
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 10000, 0)
	svc := newTestService(repo)

	_, err := svc.Withdraw(context.Background(), acct.ID, 10001, false)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if repo.accounts[acct.ID].Balance != 10000 {
		t.Fatalf("denied withdrawal must not change the balance")
	}
}

func TestWithdrawNeedsConfirmationThenConfirmed(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 50000, 20000)
	svc := newTestService(repo)

	result, err := svc.Withdraw(context.Background(), acct.ID, 40000, false)
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	c := result.Confirmation
	if c == nil {
		t.Fatalf("expected a confirmation decision, got %+v", result)
	}
	if c.Action != "withdraw" || c.CurrentBalance != 50000 || c.MinimumBalance != 20000 ||
		c.AttemptedAmount != 40000 || c.WouldResultInBalance != 10000 {
		t.Fatalf("unexpected confirmation payload: %+v", c)
	}
	if repo.accounts[acct.ID].Balance != 50000 || len(repo.entries) != 0 {
		t.Fatalf("gated withdrawal must not mutate state")
	}

	confirmed, err := svc.Withdraw(context.Background(), acct.ID, 40000, true)
	if err != nil {
		t.Fatalf("confirmed Withdraw returned error: %v", err)
	}
	if confirmed.Confirmation != nil {
		t.Fatalf("confirmed withdrawal must not gate again")
	}
	if confirmed.Account.Balance != 10000 {
		t.Fatalf("expected balance 10000 after confirmed withdrawal, got %d", confirmed.Account.Balance)
	}
	if confirmed.Entry.Type != domain.EntryWithdraw || confirmed.Entry.Amount != 40000 {
		t.Fatalf("unexpected ledger entry: %+v", confirmed.Entry)
	}
}

func TestWithdrawEntireBalanceWithZeroMinimum(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 10000, 0)
	svc := newTestService(repo)

	result, err := svc.Withdraw(context.Background(), acct.ID, 10000, false)
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if result.Confirmation != nil {
		t.Fatalf("zero-minimum full withdrawal must not require confirmation")
	}
	if result.Account.Balance != 0 {
		t.Fatalf("expected zero balance, got %d", result.Account.Balance)
	}
}

type failingEntryRepo struct {
	*memRepo
	appendErr error
	adjustErr error
}

func (f *failingEntryRepo) AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	return f.memRepo.AppendLedgerEntry(ctx, entry)
}

func (f *failingEntryRepo) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (*domain.Account, error) {
	if f.adjustErr != nil {
		return nil, f.adjustErr
	}
	return f.memRepo.AdjustBalance(ctx, accountID, delta)
}

func TestWithdrawRollsBackWhenAppendFails(t *testing.T) {
	mem := newMemRepo()
	acct := seedAccount(mem, 50000, 0)
	repo := &failingEntryRepo{memRepo: mem, appendErr: errors.New("ledger unavailable")}
	svc := newTestService(repo)

	_, err := svc.Withdraw(context.Background(), acct.ID, 20000, false)
	var rolledBack *RolledBackError
	if !errors.As(err, &rolledBack) {
		t.Fatalf("expected RolledBackError, got %v", err)
	}
	if mem.accounts[acct.ID].Balance != 50000 {
		t.Fatalf("balance must be restored after rollback, got %d", mem.accounts[acct.ID].Balance)
	}
	if len(mem.entries) != 0 {
		t.Fatalf("rolled-back withdrawal must not leave ledger entries")
	}
}

func TestWithdrawReconciliationRequiredWhenCompensationFails(t *testing.T) {
	mem := newMemRepo()
	acct := seedAccount(mem, 50000, 0)
	repo := &failingEntryRepo{
		memRepo:   mem,
		appendErr: errors.New("ledger unavailable"),
		adjustErr: errors.New("store down"),
	}
	svc := newTestService(repo)

	_, err := svc.Withdraw(context.Background(), acct.ID, 20000, false)
	var reconErr *ReconciliationRequiredError
	if !errors.As(err, &reconErr) {
		t.Fatalf("expected ReconciliationRequiredError, got %v", err)
	}
	if reconErr.Op != "withdraw" {
		t.Fatalf("expected op withdraw, got %q", reconErr.Op)
	}
	if len(reconErr.AccountIDs) != 1 || reconErr.AccountIDs[0] != acct.ID {
		t.Fatalf("expected affected account %s, got %v", acct.ID, reconErr.AccountIDs)
	}
}

func TestTransferMovesFundsAndPairsLegs(t *testing.T) {
	repo := newMemRepo()
	sender := seedAccount(repo, 100000, 0)
	recipient := seedAccount(repo, 5000, 0)
	svc := newTestService(repo)

	before := repo.totalBalance()
	result, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{
		RecipientAccountNumber: recipient.AccountNumber,
		Amount:                 30000,
		Description:            "rent",
	}, false)
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}

	if result.Sender.Balance != 70000 || result.Recipient.Balance != 35000 {
		t.Fatalf("unexpected balances: sender=%d recipient=%d", result.Sender.Balance, result.Recipient.Balance)
	}
	if repo.totalBalance() != before {
		t.Fatalf("transfer must conserve total balance: before=%d after=%d", before, repo.totalBalance())
	}

	if result.SenderEntry.Amount != -30000 || result.SenderEntry.AccountID != sender.ID {
		t.Fatalf("unexpected sender leg: %+v", result.SenderEntry)
	}
	if result.RecipientEntry.Amount != 30000 || result.RecipientEntry.AccountID != recipient.ID {
		t.Fatalf("unexpected recipient leg: %+v", result.RecipientEntry)
	}
	if result.SenderEntry.CounterpartyAccountID == nil || *result.SenderEntry.CounterpartyAccountID != recipient.ID {
		t.Fatalf("sender leg must reference the recipient")
	}
	if result.RecipientEntry.CounterpartyAccountID == nil || *result.RecipientEntry.CounterpartyAccountID != sender.ID {
		t.Fatalf("recipient leg must reference the sender")
	}
	if result.SenderEntry.Description == nil || *result.SenderEntry.Description != "rent" {
		t.Fatalf("expected description on sender leg")
	}
	if len(repo.entries) != 2 {
		t.Fatalf("expected exactly 2 ledger entries, got %d", len(repo.entries))
	}
}

func TestTransferToSelfRejected(t *testing.T) {
	repo := newMemRepo()
	sender := seedAccount(repo, 100000, 0)
	svc := newTestService(repo)

	_, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{
		RecipientAccountNumber: sender.AccountNumber,
		Amount:                 10000,
	}, false)
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestTransferRecipientNotFound(t *testing.T) {
	repo := newMemRepo()
	sender := seedAccount(repo, 100000, 0)
	svc := newTestService(repo)

	_, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{
		RecipientAccountNumber: "0000000000",
		Amount:                 10000,
	}, false)
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
}

func TestTransferNeedsConfirmationLeavesStateUntouched(t *testing.T) {
	repo := newMemRepo()
	sender := seedAccount(repo, 50000, 45000)
	recipient := seedAccount(repo, 0, 0)
	svc := newTestService(repo)

	result, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{
		RecipientAccountNumber: recipient.AccountNumber,
		Amount:                 10000,
	}, false)
	if err != nil {
		t.Fatalf("Transfer returned error: %v", err)
	}
	c := result.Confirmation
	if c == nil || c.Action != "transfer" || c.WouldResultInBalance != 40000 {
		t.Fatalf("unexpected confirmation payload: %+v", c)
	}
	if repo.accounts[sender.ID].Balance != 50000 || repo.accounts[recipient.ID].Balance != 0 {
		t.Fatalf("gated transfer must not move funds")
	}
	if len(repo.entries) != 0 {
		t.Fatalf("gated transfer must not append ledger entries")
	}
}

type failingLegsRepo struct {
	*memRepo
	legsErr     error
	adjustFails map[uuid.UUID]error
	adjustCalls []uuid.UUID
}

func (f *failingLegsRepo) AppendTransferLegs(ctx context.Context, senderLeg, recipientLeg *domain.LedgerEntry) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	if f.legsErr != nil {
		return nil, nil, f.legsErr
	}
	return f.memRepo.AppendTransferLegs(ctx, senderLeg, recipientLeg)
}

func (f *failingLegsRepo) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) (*domain.Account, error) {
	f.adjustCalls = append(f.adjustCalls, accountID)
	if err, ok := f.adjustFails[accountID]; ok {
		return nil, err
	}
	return f.memRepo.AdjustBalance(ctx, accountID, delta)
}

func TestTransferRollsBackBothBalancesWhenAppendFails(t *testing.T) {
	mem := newMemRepo()
	sender := seedAccount(mem, 100000, 0)
	recipient := seedAccount(mem, 5000, 0)
	repo := &failingLegsRepo{memRepo: mem, legsErr: errors.New("ledger unavailable")}
	svc := newTestService(repo)

	_, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{
		RecipientAccountNumber: recipient.AccountNumber,
		Amount:                 30000,
	}, false)
	var rolledBack *RolledBackError
	if !errors.As(err, &rolledBack) {
		t.Fatalf("expected RolledBackError, got %v", err)
	}
	if mem.accounts[sender.ID].Balance != 100000 {
		t.Fatalf("sender balance must be restored, got %d", mem.accounts[sender.ID].Balance)
	}
	if mem.accounts[recipient.ID].Balance != 5000 {
		t.Fatalf("recipient balance must be restored, got %d", mem.accounts[recipient.ID].Balance)
	}
	if len(mem.entries) != 0 {
		t.Fatalf("rolled-back transfer must not leave ledger entries")
	}
}

func TestTransferReconciliationRequiredWhenCompensationFails(t *testing.T) {
	mem := newMemRepo()
	sender := seedAccount(mem, 100000, 0)
	recipient := seedAccount(mem, 5000, 0)
	repo := &failingLegsRepo{
		memRepo:     mem,
		legsErr:     errors.New("ledger unavailable"),
		adjustFails: map[uuid.UUID]error{sender.ID: errors.New("store down")},
	}
	svc := newTestService(repo)

	_, err := svc.Transfer(context.Background(), sender.ID, domain.TransferRequest{
		RecipientAccountNumber: recipient.AccountNumber,
		Amount:                 30000,
	}, false)
	var reconErr *ReconciliationRequiredError
	if !errors.As(err, &reconErr) {
		t.Fatalf("expected ReconciliationRequiredError, got %v", err)
	}
	if reconErr.Op != "transfer" || len(reconErr.AccountIDs) != 2 {
		t.Fatalf("unexpected reconciliation error: %+v", reconErr)
	}
	// Both compensating writes must still be attempted.
	if len(repo.adjustCalls) != 2 {
		t.Fatalf("expected 2 compensation attempts, got %d", len(repo.adjustCalls))
	}
}

func TestSetMinimumBalance(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 50000, 0)
	svc := newTestService(repo)

	updated, err := svc.SetMinimumBalance(context.Background(), acct.ID, 20000)
	if err != nil {
		t.Fatalf("SetMinimumBalance returned error: %v", err)
	}
	if updated.MinimumBalance != 20000 {
		t.Fatalf("expected minimum balance 20000, got %d", updated.MinimumBalance)
	}
}

func TestSetMinimumBalanceAboveBalanceRejected(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 50000, 0)
	svc := newTestService(repo)

	_, err := svc.SetMinimumBalance(context.Background(), acct.ID, 60000)
	var thresholdErr *ThresholdAboveBalanceError
	if !errors.As(err, &thresholdErr) {
		t.Fatalf("expected ThresholdAboveBalanceError, got %v", err)
	}
	if thresholdErr.CurrentBalance != 50000 || thresholdErr.AttemptedMinimumBalance != 60000 {
		t.Fatalf("unexpected rejection payload: %+v", thresholdErr)
	}
	if repo.accounts[acct.ID].MinimumBalance != 0 {
		t.Fatalf("rejected update must not change the threshold")
	}
}

func TestSetMinimumBalanceNegativeRejected(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 50000, 0)
	svc := newTestService(repo)

	if _, err := svc.SetMinimumBalance(context.Background(), acct.ID, -1); !errors.Is(err, ErrNegativeMinimumBalance) {
		t.Fatalf("expected ErrNegativeMinimumBalance, got %v", err)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 0, 0)
	svc := newTestService(repo)

	base := time.Now().UTC().Add(-time.Hour)
	for i, amount := range []int64{10000, 20000, 30000} {
		repo.entries = append(repo.entries, domain.LedgerEntry{
			ID:        uuid.New(),
			AccountID: acct.ID,
			Type:      domain.EntryDeposit,
			Amount:    amount,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := svc.ListTransactions(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Amount != 30000 || entries[2].Amount != 10000 {
		t.Fatalf("expected newest-first ordering, got %v %v %v", entries[0].Amount, entries[1].Amount, entries[2].Amount)
	}
}

func TestListTransactionsUnknownAccount(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	if _, err := svc.ListTransactions(context.Background(), uuid.New()); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestRegisterGeneratesIdentifiersAndDerivesAge(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	account, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:     "Ada Bello",
		Email:    "ada@example.com",
		Password: "pw",
		DOB:      "1990-06-15",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !strings.HasPrefix(account.CustomerID, "CUS-") || len(account.CustomerID) != 12 {
		t.Fatalf("unexpected customer id %q", account.CustomerID)
	}
	if len(account.AccountNumber) != 10 {
		t.Fatalf("expected a 10-digit account number, got %q", account.AccountNumber)
	}
	if account.Balance != 0 || account.MinimumBalance != 0 {
		t.Fatalf("new accounts must start at zero balance and threshold")
	}
	if account.Role != domain.RoleCustomer || account.AccountType != domain.AccountTypeSavings {
		t.Fatalf("unexpected defaults: role=%q type=%q", account.Role, account.AccountType)
	}
	if account.Age == nil {
		t.Fatalf("expected derived age")
	}
	wantAge := deriveAge(time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), time.Now().UTC())
	if *account.Age != wantAge {
		t.Fatalf("expected age %d, got %d", wantAge, *account.Age)
	}
	if account.PasswordHash != "hashed:pw" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	tests := []struct {
		name string
		req  domain.RegisterRequest
		want error
	}{
		{
			name: "missing name",
			req:  domain.RegisterRequest{Email: "a@example.com", Password: "pw"},
			want: ErrMissingFields,
		},
		{
			name: "missing password",
			req:  domain.RegisterRequest{Name: "A", Email: "a@example.com"},
			want: ErrMissingFields,
		},
		{
			name: "bad account type",
			req:  domain.RegisterRequest{Name: "A", Email: "a@example.com", Password: "pw", AccountType: "Premium"},
			want: ErrInvalidAccountType,
		},
		{
			name: "bad dob format",
			req:  domain.RegisterRequest{Name: "A", Email: "a@example.com", Password: "pw", DOB: "15/06/1990"},
			want: ErrMissingFields,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 0, 0)
	svc := newTestService(repo)

	token, got, err := svc.Login(context.Background(), domain.LoginRequest{Email: acct.Email, Password: "pw"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token == "" || got.ID != acct.ID {
		t.Fatalf("unexpected login result: token=%q account=%+v", token, got)
	}

	if _, _, err := svc.Login(context.Background(), domain.LoginRequest{Email: acct.Email, Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "nobody@example.com", Password: "pw"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

type countingLimiter struct {
	count int
}

func (l *countingLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.count++
	return l.count, 30, nil
}

func TestMutationRateLimit(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 0, 0)
	svc := newTestService(repo)
	svc.SetRateLimiter(&countingLimiter{}, 2)

	for i := 0; i < 2; i++ {
		if _, err := svc.Deposit(context.Background(), acct.ID, 1000); err != nil {
			t.Fatalf("deposit %d returned error: %v", i, err)
		}
	}

	_, err := svc.Deposit(context.Background(), acct.ID, 1000)
	var rateErr *RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rateErr.RetryAfterSeconds != 30 {
		t.Fatalf("expected retry-after 30, got %d", rateErr.RetryAfterSeconds)
	}
}

type erroringLimiter struct{}

func (erroringLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return 0, 0, errors.New("redis down")
}

func TestLimiterOutageDoesNotBlockOperations(t *testing.T) {
	repo := newMemRepo()
	acct := seedAccount(repo, 0, 0)
	svc := newTestService(repo)
	svc.SetRateLimiter(erroringLimiter{}, 2)

	if _, err := svc.Deposit(context.Background(), acct.ID, 1000); err != nil {
		t.Fatalf("deposit must proceed when the limiter is unavailable, got %v", err)
	}
}
