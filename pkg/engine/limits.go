package engine

import (
	"fmt"
	"time"
)

// Limit rule names, stable identifiers surfaced in LimitViolation.Rule.
const (
	RuleMinAmount  = "min_amount"
	RuleMaxAmount  = "max_amount"
	RuleDailyCap   = "daily_cap"
	RuleMonthlyCap = "monthly_cap"
	RuleBalance    = "balance"
)

const (
	dailyWindow   = 24 * time.Hour
	monthlyWindow = 30 * 24 * time.Hour
)

// LimitReport is the outcome of a limit check: the exhaustive violation list
// plus advisory warnings that never block.
type LimitReport struct {
	Valid      bool
	Violations []LimitViolation
	Warnings   []string
}

// Err converts a failed report into a LimitError, nil when valid.
func (report LimitReport) Err() error {
	if report.Valid {
		return nil
	}
	return LimitError{Violations: report.Violations}
}

// PeriodUsage sums Approved and Pending entries of one kind inside a window.
// Derived on demand from the supplied history, never cached across checks.
func PeriodUsage(window []LedgerEntry, kind EntryKind, cutoffUnixUTC int64, currency string) Money {
	total := Money{units: 0, currency: currency}
	for _, entry := range window {
		if entry.Kind != kind || entry.CreatedUnixUTC < cutoffUnixUTC {
			continue
		}
		if entry.Status != StatusApproved && entry.Status != StatusPending {
			continue
		}
		if entry.Gross.Currency() != currency {
			continue
		}
		total.units += entry.Gross.units
	}
	return total
}

// CheckLimits validates a proposed amount against the account's per-kind
// bounds and period usage. Pure: the caller supplies the lookback entries.
// All failing checks are collected, not short-circuited.
//
// Two concurrent requests each individually under a period cap may jointly
// exceed it; that race is accepted as eventual-consistency noise bounded by
// the gap between requests, not fixed with locking.
func CheckLimits(policy Policy, account Account, kind EntryKind, proposed Money, window []LedgerEntry, now time.Time) LimitReport {
	report := LimitReport{Valid: true}
	fail := func(rule string, format string, args ...any) {
		report.Valid = false
		report.Violations = append(report.Violations, LimitViolation{
			Rule:    rule,
			Message: fmt.Sprintf(format, args...),
		})
	}

	limit, bounded := policy.limitFor(account, kind)
	if bounded {
		if comparison, err := proposed.Cmp(limit.MinAmount); err == nil && comparison < 0 {
			fail(RuleMinAmount, "%s below minimum %s", proposed, limit.MinAmount)
		}
		if comparison, err := proposed.Cmp(limit.MaxAmount); err == nil && comparison > 0 {
			fail(RuleMaxAmount, "%s above maximum %s", proposed, limit.MaxAmount)
		}

		dailyUsed := PeriodUsage(window, kind, now.Add(-dailyWindow).Unix(), proposed.Currency())
		if daily, err := dailyUsed.Add(proposed); err == nil {
			if comparison, err := daily.Cmp(limit.DailyCap); err == nil && comparison > 0 {
				fail(RuleDailyCap, "daily %s usage %s would exceed cap %s", kind, daily, limit.DailyCap)
			}
		}

		monthlyUsed := PeriodUsage(window, kind, now.Add(-monthlyWindow).Unix(), proposed.Currency())
		if monthly, err := monthlyUsed.Add(proposed); err == nil {
			if comparison, err := monthly.Cmp(limit.MonthlyCap); err == nil && comparison > 0 {
				fail(RuleMonthlyCap, "monthly %s usage %s would exceed cap %s", kind, monthly, limit.MonthlyCap)
			}
		}
	}

	if !kind.IsCredit() {
		if comparison, err := proposed.Cmp(account.Balance); err == nil && comparison > 0 {
			fail(RuleBalance, "%s exceeds current balance %s", proposed, account.Balance)
		}
	}

	if kind == KindWithdrawal {
		if comparison, err := proposed.Cmp(policy.LargeWithdrawalWarn); err == nil && comparison >= 0 {
			report.Warnings = append(report.Warnings, "large withdrawal may need manual review")
		}
	}

	return report
}
