/**
 * @description
 * This file contains the HTTP handlers for the bank-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * The response shapes here are part of the public contract: blocked withdrawals
 * and transfers return HTTP 200 with a requiresConfirmation payload (they are
 * decisions, not failures), insufficient funds maps to 402, self-transfers to
 * 409, and rejected minimum-balance updates carry the current balance alongside
 * the attempted threshold.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lumenbank/bank-service/internal/app"
	"github.com/lumenbank/bank-service/internal/domain"
	"github.com/lumenbank/bank-service/internal/store"
)

// BankHandlers holds the application service that handlers will use.
type BankHandlers struct {
	service *app.Service
}

// NewBankHandlers creates a new instance of BankHandlers.
func NewBankHandlers(service *app.Service) *BankHandlers {
	return &BankHandlers{service: service}
}

// RegisterHandler handles new account registration.
func (h *BankHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=register outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMissingFields), errors.Is(err, app.ErrInvalidAccountType):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrEmailTaken):
			h.writeError(w, http.StatusConflict, "An account with this email already exists")
		case errors.Is(err, store.ErrAccountNumberTaken):
			h.writeError(w, http.StatusConflict, "An account with this account number already exists")
		default:
			log.Printf("level=error component=api endpoint=register outcome=failed err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// LoginHandler handles credential verification and token issuance.
func (h *BankHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, account, err := h.service.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMissingFields):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
		default:
			log.Printf("level=error component=api endpoint=login outcome=failed err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"account": account,
	})
}

// ProfileHandler returns the authenticated account.
func (h *BankHandlers) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=profile outcome=failed account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// UpdateProfileHandler updates the authenticated account's contact details.
func (h *BankHandlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.UpdateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.UpdateContact(r.Context(), accountID, req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMissingFields):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, store.ErrEmailTaken):
			h.writeError(w, http.StatusConflict, "An account with this email already exists")
		default:
			log.Printf("level=error component=api endpoint=update_profile outcome=failed account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// DepositHandler handles requests to credit the authenticated account.
func (h *BankHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Deposit(r.Context(), accountID, req.Amount)
	if err != nil {
		h.writeOperationError(w, "deposit", accountID, err)
		return
	}

	log.Printf("level=info component=api endpoint=deposit outcome=success account_id=%s amount=%d", accountID, req.Amount)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Deposit successful",
		"balance":     result.Account.Balance,
		"transaction": result.Entry,
	})
}

// WithdrawHandler handles requests to debit the authenticated account. When the
// projected balance would fall below the minimum-balance threshold, the
// response is a 200 with a requiresConfirmation payload and no state change.
func (h *BankHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.handleWithdraw(w, r, false)
}

// ConfirmWithdrawHandler re-runs a withdrawal with the confirmation gate lifted.
func (h *BankHandlers) ConfirmWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.handleWithdraw(w, r, true)
}

func (h *BankHandlers) handleWithdraw(w http.ResponseWriter, r *http.Request, confirmed bool) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=withdraw outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Withdraw(r.Context(), accountID, req.Amount, confirmed)
	if err != nil {
		h.writeOperationError(w, "withdraw", accountID, err)
		return
	}

	if result.Confirmation != nil {
		c := result.Confirmation
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"requiresConfirmation": true,
			"action":               c.Action,
			"message":              "This withdrawal would put your balance below your minimum balance threshold. Confirm to proceed.",
			"currentBalance":       c.CurrentBalance,
			"minimumBalance":       c.MinimumBalance,
			"attemptedWithdrawal":  c.AttemptedAmount,
			"wouldResultInBalance": c.WouldResultInBalance,
		})
		return
	}

	log.Printf("level=info component=api endpoint=withdraw outcome=success account_id=%s amount=%d confirmed=%t", accountID, req.Amount, confirmed)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Withdrawal successful",
		"balance":     result.Account.Balance,
		"transaction": result.Entry,
	})
}

// TransferHandler handles requests to move funds to another account. The
// minimum-balance confirmation gate applies to the sender side only.
func (h *BankHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	h.handleTransfer(w, r, false)
}

// ConfirmTransferHandler re-runs a transfer with the confirmation gate lifted.
func (h *BankHandlers) ConfirmTransferHandler(w http.ResponseWriter, r *http.Request) {
	h.handleTransfer(w, r, true)
}

func (h *BankHandlers) handleTransfer(w http.ResponseWriter, r *http.Request, confirmed bool) {
	senderID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Transfer(r.Context(), senderID, req, confirmed)
	if err != nil {
		h.writeOperationError(w, "transfer", senderID, err)
		return
	}

	if result.Confirmation != nil {
		c := result.Confirmation
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"requiresConfirmation": true,
			"action":               c.Action,
			"message":              "This transfer would put your balance below your minimum balance threshold. Confirm to proceed.",
			"currentBalance":       c.CurrentBalance,
			"minimumBalance":       c.MinimumBalance,
			"attemptedTransfer":    c.AttemptedAmount,
			"wouldResultInBalance": c.WouldResultInBalance,
		})
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=success sender_id=%s recipient=%s amount=%d confirmed=%t", senderID, req.RecipientAccountNumber, req.Amount, confirmed)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":                "Transfer successful",
		"senderBalance":          result.Sender.Balance,
		"recipientBalance":       result.Recipient.Balance,
		"transaction":            result.SenderEntry,
		"recipientName":          result.Recipient.Name,
		"recipientAccountNumber": result.Recipient.AccountNumber,
	})
}

// SetMinimumBalanceHandler updates the authenticated account's minimum-balance
// threshold. A threshold above the current balance is rejected with the data
// the client needs to explain the rejection.
func (h *BankHandlers) SetMinimumBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	var req domain.MinimumBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.SetMinimumBalance(r.Context(), accountID, req.MinimumBalance)
	if err != nil {
		var thresholdErr *app.ThresholdAboveBalanceError
		if errors.As(err, &thresholdErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":                   "Minimum balance cannot exceed your current balance",
				"currentBalance":          thresholdErr.CurrentBalance,
				"attemptedMinimumBalance": thresholdErr.AttemptedMinimumBalance,
			})
			return
		}
		h.writeOperationError(w, "minimum_balance", accountID, err)
		return
	}

	log.Printf("level=info component=api endpoint=minimum_balance outcome=success account_id=%s threshold=%d", accountID, req.MinimumBalance)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Minimum balance updated",
		"minimumBalance": account.MinimumBalance,
		"currentBalance": account.Balance,
	})
}

// ListTransactionsHandler returns the authenticated account's ledger entries,
// newest first.
func (h *BankHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return
	}

	entries, err := h.service.ListTransactions(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=list_transactions outcome=failed account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
	})
}

// ListAccountsHandler returns every account. Admin only.
func (h *BankHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=list_accounts outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// GetAccountTransactionsHandler returns another account's ledger entries. Admin only.
func (h *BankHandlers) GetAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountIDStr := chi.URLParam(r, "id")
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID format")
		return
	}

	entries, err := h.service.ListTransactions(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=admin_transactions outcome=failed account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
	})
}

// writeOperationError maps engine errors to HTTP responses shared by the
// balance-affecting endpoints.
func (h *BankHandlers) writeOperationError(w http.ResponseWriter, endpoint string, accountID uuid.UUID, err error) {
	var rateErr *app.RateLimitedError
	var reconErr *app.ReconciliationRequiredError
	var rolledBack *app.RolledBackError

	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrMissingFields),
		errors.Is(err, app.ErrNegativeMinimumBalance):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrSelfTransfer):
		h.writeError(w, http.StatusConflict, "Cannot transfer to your own account")
	case errors.Is(err, app.ErrRecipientNotFound):
		h.writeError(w, http.StatusNotFound, "Recipient account not found")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many operations, please slow down")
	case errors.As(err, &reconErr):
		log.Printf("level=error component=api endpoint=%s outcome=reconciliation_required account_id=%s err=%v", endpoint, accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Operation could not be completed; the affected accounts are under review")
	case errors.As(err, &rolledBack):
		log.Printf("level=warn component=api endpoint=%s outcome=rolled_back account_id=%s err=%v", endpoint, accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Operation failed and was rolled back; no balances were changed")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed account_id=%s err=%v", endpoint, accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *BankHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BankHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
