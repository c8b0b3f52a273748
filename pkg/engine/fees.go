package engine

import "fmt"

// FeeBreakdown itemizes the cost of one operation.
type FeeBreakdown struct {
	BaseFee       Money
	PercentageFee Money
	UrgentFee     Money
	TotalFee      Money
	NetAmount     Money
}

// QuoteFee computes the fee for an operation kind, channel, and urgency flag.
// Pure: no I/O, deterministic for valid inputs. An unknown (kind, channel)
// cell is a configuration error, never a silent zero-fee fallback.
func QuoteFee(policy Policy, kind EntryKind, channel Channel, gross Money, urgent bool) (FeeBreakdown, error) {
	if !gross.IsPositive() {
		return FeeBreakdown{}, fmt.Errorf("%w: gross amount must be positive", ErrInvalidAmount)
	}
	rule, ok := policy.FeeSchedule[FeeKey{Kind: kind, Channel: channel}]
	if !ok {
		return FeeBreakdown{}, fmt.Errorf("%w: no fee rule for %s/%s", ErrUnknownChannel, kind, channel)
	}

	percentage := gross.MulBasisPoints(rule.BasisPoints)
	base, err := percentage.Max(rule.Minimum)
	if err != nil {
		return FeeBreakdown{}, err
	}

	urgentFee := Money{units: 0, currency: gross.Currency()}
	if urgent {
		urgentFee = gross.MulBasisPoints(policy.UrgentFeeBPS)
	}

	total, err := base.Add(urgentFee)
	if err != nil {
		return FeeBreakdown{}, err
	}
	net, err := gross.Sub(total)
	if err != nil {
		return FeeBreakdown{}, err
	}
	if net.IsNegative() {
		return FeeBreakdown{}, fmt.Errorf("%w: fee exceeds gross amount", ErrInvalidAmount)
	}
	return FeeBreakdown{
		BaseFee:       rule.Minimum,
		PercentageFee: percentage,
		UrgentFee:     urgentFee,
		TotalFee:      total,
		NetAmount:     net,
	}, nil
}
