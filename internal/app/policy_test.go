package app

import (
	"errors"
	"testing"

	"github.com/lumenbank/bank-service/internal/store"
)

func TestEvaluateBalancePolicy(t *testing.T) {
	tests := []struct {
		name          string
		balance       int64
		minimum       int64
		amount        int64
		kind          OperationKind
		confirmed     bool
		wantOutcome   PolicyOutcome
		wantReason    error
		wantProjected int64
	}{
		{
			name:        "deposit is always allowed",
			balance:     0,
			minimum:     100000,
			amount:      5000,
			kind:        OpDeposit,
			wantOutcome: PolicyAllow,
		},
		{
			name:        "zero amount is denied",
			balance:     100000,
			amount:      0,
			kind:        OpWithdraw,
			wantOutcome: PolicyDeny,
			wantReason:  ErrInvalidAmount,
		},
		{
			name:        "negative amount is denied",
			balance:     100000,
			amount:      -500,
			kind:        OpDeposit,
			wantOutcome: PolicyDeny,
			wantReason:  ErrInvalidAmount,
		},
		{
			name:        "withdrawal above balance is denied",
			balance:     10000,
			amount:      10001,
			kind:        OpWithdraw,
			wantOutcome: PolicyDeny,
			wantReason:  store.ErrInsufficientFunds,
		},
		{
			name:        "withdrawal of entire balance with zero minimum is allowed",
			balance:     10000,
			minimum:     0,
			amount:      10000,
			kind:        OpWithdraw,
			wantOutcome: PolicyAllow,
		},
		{
			name:          "withdrawal breaching minimum needs confirmation",
			balance:       50000,
			minimum:       20000,
			amount:        40000,
			kind:          OpWithdraw,
			wantOutcome:   PolicyNeedsConfirmation,
			wantProjected: 10000,
		},
		{
			name:        "withdrawal landing exactly on minimum is allowed",
			balance:     50000,
			minimum:     20000,
			amount:      30000,
			kind:        OpWithdraw,
			wantOutcome: PolicyAllow,
		},
		{
			name:        "confirmed withdrawal below minimum is allowed",
			balance:     50000,
			minimum:     20000,
			amount:      40000,
			kind:        OpWithdraw,
			confirmed:   true,
			wantOutcome: PolicyAllow,
		},
		{
			name:        "insufficient funds trumps confirmation gate",
			balance:     50000,
			minimum:     20000,
			amount:      60000,
			kind:        OpWithdraw,
			confirmed:   true,
			wantOutcome: PolicyDeny,
			wantReason:  store.ErrInsufficientFunds,
		},
		{
			name:          "transfer breaching sender minimum needs confirmation",
			balance:       50000,
			minimum:       45000,
			amount:        10000,
			kind:          OpTransfer,
			wantOutcome:   PolicyNeedsConfirmation,
			wantProjected: 40000,
		},
		{
			name:        "transfer within balance and minimum is allowed",
			balance:     50000,
			minimum:     10000,
			amount:      20000,
			kind:        OpTransfer,
			wantOutcome: PolicyAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluateBalancePolicy(tt.balance, tt.minimum, tt.amount, tt.kind, tt.confirmed)
			if got.Outcome != tt.wantOutcome {
				t.Fatalf("expected outcome=%d, got %d", tt.wantOutcome, got.Outcome)
			}
			if tt.wantReason != nil && !errors.Is(got.Reason, tt.wantReason) {
				t.Fatalf("expected reason %v, got %v", tt.wantReason, got.Reason)
			}
			if tt.wantOutcome == PolicyNeedsConfirmation && got.WouldResultInBalance != tt.wantProjected {
				t.Fatalf("expected projected balance %d, got %d", tt.wantProjected, got.WouldResultInBalance)
			}
		})
	}
}

func TestEvaluateBalancePolicyIsPure(t *testing.T) {
	// Same inputs must always produce the same decision.
	for i := 0; i < 3; i++ {
		got := evaluateBalancePolicy(50000, 20000, 40000, OpWithdraw, false)
		if got.Outcome != PolicyNeedsConfirmation || got.WouldResultInBalance != 10000 {
			t.Fatalf("run %d: unexpected decision %+v", i, got)
		}
	}
}
