package engine

import (
	"fmt"
	"time"
)

// FeeRule is one cell of the fee schedule: a percentage in basis points and a
// minimum absolute fee. totalFee = max(pct × amount, minimum) (+ urgent rate).
type FeeRule struct {
	BasisPoints int64
	Minimum     Money
}

// FeeKey addresses one fee schedule cell.
type FeeKey struct {
	Kind    EntryKind
	Channel Channel
}

// RiskWeights is the fixed rule table driving the deterministic risk score.
type RiskWeights struct {
	KYCUnverified   int
	NewAccount      int
	LargeAmount     int
	HighBalance     int
	VelocityPerHit  int
	VelocityCeiling int
}

// Policy is the explicit configuration snapshot an engine instance operates
// under. Callers construct one per deployment (or refresh interval) and pass
// it in; the engine holds no package-level mutable settings.
type Policy struct {
	Currency string

	FeeSchedule  map[FeeKey]FeeRule
	UrgentFeeBPS int64

	// DefaultLimits apply when the account's plan carries no bound for a kind.
	DefaultLimits PlanLimits

	// LargeWithdrawalWarn is advisory only: it produces a warning, never a block.
	LargeWithdrawalWarn Money

	Risk               RiskWeights
	NewAccountAge      time.Duration
	LargeAmount        Money
	HighBalance        Money
	VelocityLookback   time.Duration
	ManualReviewScore  int
	AutoApproveCeiling Money
	// WithdrawalsAutoApprove is false by platform policy: withdrawals always
	// settle through a reviewer.
	WithdrawalsAutoApprove bool
}

// DefaultPolicy returns the platform defaults in BDT. The concrete numbers
// are policy decisions, kept in one place so operators can supply their own.
func DefaultPolicy() Policy {
	return Policy{
		Currency: DefaultCurrency,
		FeeSchedule: map[FeeKey]FeeRule{
			{KindDeposit, ChannelBank}:      {BasisPoints: 100, Minimum: MustMoney(10)},
			{KindDeposit, ChannelMobile}:    {BasisPoints: 100, Minimum: MustMoney(2)},
			{KindDeposit, ChannelCrypto}:    {BasisPoints: 50, Minimum: MustMoney(5)},
			{KindDeposit, ChannelManual}:    {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindDeposit, ChannelSystem}:    {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindWithdrawal, ChannelBank}:   {BasisPoints: 200, Minimum: MustMoney(50)},
			{KindWithdrawal, ChannelMobile}: {BasisPoints: 150, Minimum: MustMoney(20)},
			{KindWithdrawal, ChannelCrypto}: {BasisPoints: 100, Minimum: MustMoney(30)},
			{KindWithdrawal, ChannelManual}: {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindWithdrawal, ChannelSystem}: {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindBonus, ChannelSystem}:      {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindBonus, ChannelManual}:      {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindProfit, ChannelSystem}:     {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindProfit, ChannelManual}:     {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindPenalty, ChannelSystem}:    {BasisPoints: 0, Minimum: MustMoney(0)},
			{KindPenalty, ChannelManual}:    {BasisPoints: 0, Minimum: MustMoney(0)},
		},
		UrgentFeeBPS: 50,
		DefaultLimits: PlanLimits{
			KindDeposit: {
				MinAmount:  MustMoney(100),
				MaxAmount:  MustMoney(1_000_000),
				DailyCap:   MustMoney(2_000_000),
				MonthlyCap: MustMoney(20_000_000),
			},
			KindWithdrawal: {
				MinAmount:  MustMoney(200),
				MaxAmount:  MustMoney(500_000),
				DailyCap:   MustMoney(500_000),
				MonthlyCap: MustMoney(5_000_000),
			},
		},
		LargeWithdrawalWarn: MustMoney(100_000),
		Risk: RiskWeights{
			KYCUnverified:   35,
			NewAccount:      20,
			LargeAmount:     15,
			HighBalance:     10,
			VelocityPerHit:  5,
			VelocityCeiling: 20,
		},
		NewAccountAge:          7 * 24 * time.Hour,
		LargeAmount:            MustMoney(100_000),
		HighBalance:            MustMoney(1_000_000),
		VelocityLookback:       24 * time.Hour,
		ManualReviewScore:      60,
		AutoApproveCeiling:     MustMoney(50_000),
		WithdrawalsAutoApprove: false,
	}
}

// Validate rejects inconsistent policy tables before the engine accepts them.
func (policy Policy) Validate() error {
	if policy.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidPolicy)
	}
	if len(policy.FeeSchedule) == 0 {
		return fmt.Errorf("%w: empty fee schedule", ErrInvalidPolicy)
	}
	for key, rule := range policy.FeeSchedule {
		if rule.BasisPoints < 0 {
			return fmt.Errorf("%w: negative fee rate for %s/%s", ErrInvalidPolicy, key.Kind, key.Channel)
		}
		if rule.Minimum.IsNegative() {
			return fmt.Errorf("%w: negative minimum fee for %s/%s", ErrInvalidPolicy, key.Kind, key.Channel)
		}
		if rule.Minimum.Currency() != policy.Currency {
			return fmt.Errorf("%w: fee currency for %s/%s", ErrInvalidPolicy, key.Kind, key.Channel)
		}
	}
	if policy.UrgentFeeBPS < 0 {
		return fmt.Errorf("%w: negative urgent rate", ErrInvalidPolicy)
	}
	for kind, limit := range policy.DefaultLimits {
		comparison, err := limit.MinAmount.Cmp(limit.MaxAmount)
		if err != nil {
			return fmt.Errorf("%w: limit currency for %s", ErrInvalidPolicy, kind)
		}
		if comparison > 0 {
			return fmt.Errorf("%w: min above max for %s", ErrInvalidPolicy, kind)
		}
	}
	if policy.ManualReviewScore <= 0 || policy.ManualReviewScore > maxRiskScore {
		return fmt.Errorf("%w: manual review score out of range", ErrInvalidPolicy)
	}
	if policy.VelocityLookback <= 0 {
		return fmt.Errorf("%w: velocity lookback must be positive", ErrInvalidPolicy)
	}
	return nil
}

// limitFor resolves the effective bound for a kind: the account's plan limit
// if present, the policy default otherwise.
func (policy Policy) limitFor(account Account, kind EntryKind) (KindLimit, bool) {
	if limit, ok := account.Limits[kind]; ok {
		return limit, true
	}
	limit, ok := policy.DefaultLimits[kind]
	return limit, ok
}
