/**
 * @description
 * This file contains the balance policy: the pure decision logic that determines
 * whether a balance-affecting operation may proceed, needs explicit confirmation
 * from the account holder, or must be denied. It has no side effects and no
 * dependencies on the store; the engine re-checks the same rules under a row lock
 * when it applies the mutation.
 */

package app

import "github.com/lumenbank/bank-service/internal/store"

// OperationKind identifies the balance-affecting operation being evaluated.
type OperationKind int

const (
	OpDeposit OperationKind = iota
	OpWithdraw
	OpTransfer
)

// PolicyOutcome is the decision of the balance policy.
type PolicyOutcome int

const (
	PolicyAllow PolicyOutcome = iota
	PolicyNeedsConfirmation
	PolicyDeny
)

// PolicyDecision is the result of evaluating the balance policy against an
// operation request and the account's current state.
type PolicyDecision struct {
	Outcome PolicyOutcome

	// Reason is set when Outcome is PolicyDeny.
	Reason error

	// WouldResultInBalance is the projected post-operation balance, set when
	// Outcome is PolicyNeedsConfirmation.
	WouldResultInBalance int64
}

// evaluateBalancePolicy applies the balance rules:
//   - any operation with a non-positive amount is denied;
//   - deposits are otherwise always allowed (no minimum-balance check on the
//     crediting side);
//   - withdrawals and the sender leg of transfers are denied when funds are
//     insufficient, and need confirmation when the projected balance would fall
//     below the account's minimum-balance threshold — unless the caller has
//     already confirmed, in which case only the funds check applies.
func evaluateBalancePolicy(balance, minimum, amount int64, kind OperationKind, confirmed bool) PolicyDecision {
	if amount <= 0 {
		return PolicyDecision{Outcome: PolicyDeny, Reason: ErrInvalidAmount}
	}
	if kind == OpDeposit {
		return PolicyDecision{Outcome: PolicyAllow}
	}

	if balance < amount {
		return PolicyDecision{Outcome: PolicyDeny, Reason: store.ErrInsufficientFunds}
	}

	projected := balance - amount
	if !confirmed && projected < minimum {
		return PolicyDecision{Outcome: PolicyNeedsConfirmation, WouldResultInBalance: projected}
	}

	return PolicyDecision{Outcome: PolicyAllow}
}
