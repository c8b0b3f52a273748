package engine

import (
	"errors"
	"testing"
)

func TestNewMoneyNormalizesCurrency(test *testing.T) {
	test.Parallel()
	money, err := NewMoney(100, " bdt ")
	if err != nil {
		test.Fatalf("new money: %v", err)
	}
	if money.Currency() != "BDT" {
		test.Fatalf("expected BDT, got %s", money.Currency())
	}
	if money.Units() != 100 {
		test.Fatalf("expected 100 units, got %d", money.Units())
	}
}

func TestNewMoneyRejectsBadCurrency(test *testing.T) {
	test.Parallel()
	if _, err := NewMoney(100, "taka"); !errors.Is(err, ErrInvalidCurrency) {
		test.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := NewMoney(100, ""); !errors.Is(err, ErrInvalidCurrency) {
		test.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestMoneyArithmetic(test *testing.T) {
	test.Parallel()
	left := MustMoney(700)
	right := MustMoney(300)

	sum, err := left.Add(right)
	if err != nil {
		test.Fatalf("add: %v", err)
	}
	if sum.Units() != 1000 {
		test.Fatalf("expected 1000, got %d", sum.Units())
	}

	difference, err := left.Sub(right)
	if err != nil {
		test.Fatalf("sub: %v", err)
	}
	if difference.Units() != 400 {
		test.Fatalf("expected 400, got %d", difference.Units())
	}

	if left.Neg().Units() != -700 {
		test.Fatalf("expected -700, got %d", left.Neg().Units())
	}
}

func TestMoneyCurrencyMismatch(test *testing.T) {
	test.Parallel()
	taka := MustMoney(100)
	dollars, err := NewMoney(100, "USD")
	if err != nil {
		test.Fatalf("new money: %v", err)
	}

	if _, err := taka.Add(dollars); !errors.Is(err, ErrCurrencyMismatch) {
		test.Fatalf("expected ErrCurrencyMismatch on add, got %v", err)
	}
	if _, err := taka.Cmp(dollars); !errors.Is(err, ErrCurrencyMismatch) {
		test.Fatalf("expected ErrCurrencyMismatch on cmp, got %v", err)
	}
}

func TestMulBasisPointsRoundsHalfUp(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		units    int64
		rate     int64
		expected int64
	}{
		{name: "exact", units: 2000, rate: 200, expected: 40},
		{name: "rounds up at half", units: 25, rate: 200, expected: 1},
		{name: "rounds down below half", units: 24, rate: 200, expected: 0},
		{name: "one percent", units: 500, rate: 100, expected: 5},
		{name: "half percent", units: 999, rate: 50, expected: 5},
		{name: "zero rate", units: 1000, rate: 0, expected: 0},
		{name: "negative rounds away from zero", units: -25, rate: 200, expected: -1},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got := MustMoney(testCase.units).MulBasisPoints(testCase.rate)
			if got.Units().Int64() != testCase.expected {
				test.Fatalf("expected %d, got %d", testCase.expected, got.Units())
			}
		})
	}
}

func TestMoneyMax(test *testing.T) {
	test.Parallel()
	larger, err := MustMoney(40).Max(MustMoney(50))
	if err != nil {
		test.Fatalf("max: %v", err)
	}
	if larger.Units() != 50 {
		test.Fatalf("expected 50, got %d", larger.Units())
	}
}

func TestMoneyCmp(test *testing.T) {
	test.Parallel()
	comparison, err := MustMoney(2000).Cmp(MustMoney(1000))
	if err != nil {
		test.Fatalf("cmp: %v", err)
	}
	if comparison != 1 {
		test.Fatalf("expected 1, got %d", comparison)
	}
	comparison, err = MustMoney(1000).Cmp(MustMoney(1000))
	if err != nil {
		test.Fatalf("cmp: %v", err)
	}
	if comparison != 0 {
		test.Fatalf("expected 0, got %d", comparison)
	}
}

func TestMulBasisPointsLargeAmounts(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		units    int64
		rate     int64
		expected int64
	}{
		{name: "quadrillion units", units: 1_000_000_000_000_000, rate: 150, expected: 15_000_000_000_000},
		{name: "quadrillion with remainder", units: 1_000_000_000_000_001, rate: 150, expected: 15_000_000_000_000},
		{name: "near int64 ceiling", units: 9_000_000_000_000_000_000, rate: 1, expected: 900_000_000_000_000},
		{name: "large negative", units: -1_000_000_000_000_000, rate: 150, expected: -15_000_000_000_000},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got := MustMoney(testCase.units).MulBasisPoints(testCase.rate)
			if got.Units().Int64() != testCase.expected {
				test.Fatalf("expected %d, got %d", testCase.expected, got.Units())
			}
		})
	}
}
