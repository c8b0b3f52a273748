package engine

import (
	"errors"
	"testing"
)

func TestDefaultPolicyValidates(test *testing.T) {
	test.Parallel()
	if err := DefaultPolicy().Validate(); err != nil {
		test.Fatalf("default policy must validate: %v", err)
	}
}

func TestPolicyValidateRejections(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		mutate func(*Policy)
	}{
		{name: "missing currency", mutate: func(policy *Policy) { policy.Currency = "" }},
		{name: "empty fee schedule", mutate: func(policy *Policy) { policy.FeeSchedule = nil }},
		{
			name: "negative fee rate",
			mutate: func(policy *Policy) {
				policy.FeeSchedule[FeeKey{KindDeposit, ChannelBank}] = FeeRule{BasisPoints: -1, Minimum: MustMoney(0)}
			},
		},
		{
			name: "negative minimum fee",
			mutate: func(policy *Policy) {
				policy.FeeSchedule[FeeKey{KindDeposit, ChannelBank}] = FeeRule{BasisPoints: 100, Minimum: MustMoney(-1)}
			},
		},
		{
			name: "foreign fee currency",
			mutate: func(policy *Policy) {
				minimum, _ := NewMoney(10, "USD")
				policy.FeeSchedule[FeeKey{KindDeposit, ChannelBank}] = FeeRule{BasisPoints: 100, Minimum: minimum}
			},
		},
		{name: "negative urgent rate", mutate: func(policy *Policy) { policy.UrgentFeeBPS = -1 }},
		{
			name: "limit min above max",
			mutate: func(policy *Policy) {
				policy.DefaultLimits[KindDeposit] = KindLimit{
					MinAmount:  MustMoney(1000),
					MaxAmount:  MustMoney(100),
					DailyCap:   MustMoney(10_000),
					MonthlyCap: MustMoney(10_000),
				}
			},
		},
		{name: "review score zero", mutate: func(policy *Policy) { policy.ManualReviewScore = 0 }},
		{name: "review score above scale", mutate: func(policy *Policy) { policy.ManualReviewScore = 101 }},
		{name: "velocity lookback zero", mutate: func(policy *Policy) { policy.VelocityLookback = 0 }},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			policy := DefaultPolicy()
			testCase.mutate(&policy)
			if err := policy.Validate(); !errors.Is(err, ErrInvalidPolicy) {
				test.Fatalf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}
}

func TestLimitForPrefersPlan(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	account := testAccount(test, 0)
	account.Limits = PlanLimits{
		KindWithdrawal: {
			MinAmount:  MustMoney(500),
			MaxAmount:  MustMoney(5000),
			DailyCap:   MustMoney(5000),
			MonthlyCap: MustMoney(50_000),
		},
	}

	limit, bounded := policy.limitFor(account, KindWithdrawal)
	if !bounded {
		test.Fatalf("expected bounded kind")
	}
	if limit.MaxAmount.Units() != 5000 {
		test.Fatalf("expected plan max 5000, got %d", limit.MaxAmount.Units())
	}

	limit, bounded = policy.limitFor(account, KindDeposit)
	if !bounded {
		test.Fatalf("expected policy default for deposit")
	}
	if limit.MaxAmount.Units() != 1_000_000 {
		test.Fatalf("expected default max 1000000, got %d", limit.MaxAmount.Units())
	}

	if _, bounded = policy.limitFor(account, KindBonus); bounded {
		test.Fatalf("bonus should be unbounded")
	}
}
