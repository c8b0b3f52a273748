package engine

import (
	"errors"
	"testing"
)

func TestQuoteFeeBankWithdrawal(test *testing.T) {
	test.Parallel()
	// 2000 via bank at 2% min 50: max(40, 50) = 50, net 1950.
	fees, err := QuoteFee(DefaultPolicy(), KindWithdrawal, ChannelBank, MustMoney(2000), false)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if fees.PercentageFee.Units() != 40 {
		test.Fatalf("expected percentage fee 40, got %d", fees.PercentageFee.Units())
	}
	if fees.TotalFee.Units() != 50 {
		test.Fatalf("expected total fee 50, got %d", fees.TotalFee.Units())
	}
	if fees.NetAmount.Units() != 1950 {
		test.Fatalf("expected net 1950, got %d", fees.NetAmount.Units())
	}
}

func TestQuoteFeeMobileDeposit(test *testing.T) {
	test.Parallel()
	// 500 via mobile at 1% min 2: max(5, 2) = 5, net 495.
	fees, err := QuoteFee(DefaultPolicy(), KindDeposit, ChannelMobile, MustMoney(500), false)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if fees.TotalFee.Units() != 5 {
		test.Fatalf("expected total fee 5, got %d", fees.TotalFee.Units())
	}
	if fees.NetAmount.Units() != 495 {
		test.Fatalf("expected net 495, got %d", fees.NetAmount.Units())
	}
}

func TestQuoteFeeUrgentSurcharge(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	regular, err := QuoteFee(policy, KindWithdrawal, ChannelBank, MustMoney(10000), false)
	if err != nil {
		test.Fatalf("quote regular: %v", err)
	}
	urgent, err := QuoteFee(policy, KindWithdrawal, ChannelBank, MustMoney(10000), true)
	if err != nil {
		test.Fatalf("quote urgent: %v", err)
	}
	expectedSurcharge := MustMoney(10000).MulBasisPoints(policy.UrgentFeeBPS)
	if urgent.UrgentFee != expectedSurcharge {
		test.Fatalf("expected urgent fee %v, got %v", expectedSurcharge, urgent.UrgentFee)
	}
	if urgent.TotalFee.Units() != regular.TotalFee.Units()+expectedSurcharge.Units() {
		test.Fatalf("urgent total %d does not add surcharge to %d", urgent.TotalFee.Units(), regular.TotalFee.Units())
	}
}

func TestQuoteFeeUnknownChannel(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	delete(policy.FeeSchedule, FeeKey{Kind: KindDeposit, Channel: ChannelCrypto})
	if _, err := QuoteFee(policy, KindDeposit, ChannelCrypto, MustMoney(100), false); !errors.Is(err, ErrUnknownChannel) {
		test.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestQuoteFeeRejectsNonPositiveAmount(test *testing.T) {
	test.Parallel()
	if _, err := QuoteFee(DefaultPolicy(), KindDeposit, ChannelBank, MustMoney(0), false); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestQuoteFeeMonotonicity(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	amounts := []int64{200, 500, 1000, 2499, 2500, 2501, 10000, 99999, 100000}
	previous := int64(-1)
	for _, amount := range amounts {
		fees, err := QuoteFee(policy, KindWithdrawal, ChannelBank, MustMoney(amount), false)
		if err != nil {
			test.Fatalf("quote %d: %v", amount, err)
		}
		if fees.TotalFee.Units().Int64() < previous {
			test.Fatalf("fee decreased at amount %d: %d < %d", amount, fees.TotalFee.Units(), previous)
		}
		previous = fees.TotalFee.Units().Int64()
	}
}

func TestQuoteFeeZeroFeeSystemChannel(test *testing.T) {
	test.Parallel()
	fees, err := QuoteFee(DefaultPolicy(), KindBonus, ChannelSystem, MustMoney(300), false)
	if err != nil {
		test.Fatalf("quote: %v", err)
	}
	if fees.TotalFee.Units() != 0 {
		test.Fatalf("expected zero fee, got %d", fees.TotalFee.Units())
	}
	if fees.NetAmount.Units() != 300 {
		test.Fatalf("expected net 300, got %d", fees.NetAmount.Units())
	}
}
