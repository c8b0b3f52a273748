package engine

import (
	"strings"
	"testing"
	"time"
)

func TestScoreRiskCleanAccount(test *testing.T) {
	test.Parallel()
	account := testAccount(test, 5000)
	assessment := ScoreRisk(DefaultPolicy(), account, MustMoney(1000), nil, testNow())
	if assessment.Score != 0 {
		test.Fatalf("expected score 0, got %d (%v)", assessment.Score, assessment.Factors)
	}
	if len(assessment.Factors) != 0 {
		test.Fatalf("expected no factors, got %v", assessment.Factors)
	}
}

func TestScoreRiskFactors(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()

	testCases := []struct {
		name     string
		mutate   func(*Account)
		amount   int64
		expected int
		factor   string
	}{
		{
			name:     "kyc unverified",
			mutate:   func(account *Account) { account.Verification.KYC = false },
			amount:   1000,
			expected: policy.Risk.KYCUnverified,
			factor:   FactorKYCUnverified,
		},
		{
			name: "new account",
			mutate: func(account *Account) {
				account.CreatedUnixUTC = testNow().Add(-time.Hour).Unix()
			},
			amount:   1000,
			expected: policy.Risk.NewAccount,
			factor:   FactorNewAccount,
		},
		{
			name:     "large amount",
			mutate:   func(account *Account) {},
			amount:   100_001,
			expected: policy.Risk.LargeAmount,
			factor:   FactorLargeAmount,
		},
		{
			name:     "high balance",
			mutate:   func(account *Account) { account.Balance = MustMoney(1_000_001) },
			amount:   1000,
			expected: policy.Risk.HighBalance,
			factor:   FactorHighBalance,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			account := testAccount(test, 5000)
			testCase.mutate(&account)
			assessment := ScoreRisk(policy, account, MustMoney(testCase.amount), nil, testNow())
			if assessment.Score != testCase.expected {
				test.Fatalf("expected score %d, got %d (%v)", testCase.expected, assessment.Score, assessment.Factors)
			}
			if len(assessment.Factors) != 1 || assessment.Factors[0] != testCase.factor {
				test.Fatalf("expected factor %s, got %v", testCase.factor, assessment.Factors)
			}
		})
	}
}

func TestScoreRiskVelocityCeiling(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	account := testAccount(test, 5000)
	var window []LedgerEntry
	for index := 0; index < 10; index++ {
		window = append(window, testEntry(test, account.ID, KindWithdrawal, int64(1000+index), StatusPending, testNow().Add(-time.Duration(index+1)*time.Minute)))
	}
	assessment := ScoreRisk(policy, account, MustMoney(1000), window, testNow())
	if assessment.Score != policy.Risk.VelocityCeiling {
		test.Fatalf("expected velocity capped at %d, got %d", policy.Risk.VelocityCeiling, assessment.Score)
	}
}

func TestScoreRiskVelocityIgnoresSettledAndOld(test *testing.T) {
	test.Parallel()
	account := testAccount(test, 5000)
	window := []LedgerEntry{
		testEntry(test, account.ID, KindDeposit, 500, StatusApproved, testNow().Add(-time.Hour)),
		testEntry(test, account.ID, KindWithdrawal, 600, StatusPending, testNow().Add(-30*time.Hour)),
	}
	assessment := ScoreRisk(DefaultPolicy(), account, MustMoney(1000), window, testNow())
	if assessment.Score != 0 {
		test.Fatalf("expected 0, got %d (%v)", assessment.Score, assessment.Factors)
	}
}

func TestScoreRiskClampsAtHundred(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	policy.Risk.KYCUnverified = 90
	policy.Risk.NewAccount = 90
	account := testAccount(test, 5000)
	account.Verification.KYC = false
	account.CreatedUnixUTC = testNow().Add(-time.Hour).Unix()
	assessment := ScoreRisk(policy, account, MustMoney(1000), nil, testNow())
	if assessment.Score != 100 {
		test.Fatalf("expected clamp at 100, got %d", assessment.Score)
	}
}

func TestRequiresReviewThreshold(test *testing.T) {
	test.Parallel()
	policy := DefaultPolicy()
	below := RiskAssessment{Score: policy.ManualReviewScore - 1}
	if below.RequiresReview(policy) {
		test.Fatalf("score below threshold must not require review")
	}
	at := RiskAssessment{Score: policy.ManualReviewScore}
	if !at.RequiresReview(policy) {
		test.Fatalf("score at threshold must require review")
	}
}

func TestEmbedAssessment(test *testing.T) {
	test.Parallel()
	metadata := mustMetadata(test, `{"note":"first"}`)
	merged, err := embedAssessment(metadata, RiskAssessment{Score: 35, Factors: []string{FactorKYCUnverified}})
	if err != nil {
		test.Fatalf("embed: %v", err)
	}
	payload := merged.String()
	if !strings.Contains(payload, `"note":"first"`) {
		test.Fatalf("original metadata lost: %s", payload)
	}
	if !strings.Contains(payload, `"score":35`) || !strings.Contains(payload, FactorKYCUnverified) {
		test.Fatalf("risk assessment missing: %s", payload)
	}
}

func TestEmbedAssessmentNullPayload(test *testing.T) {
	test.Parallel()
	// A literal-null blob no longer passes NewMetadataJSON, but values built
	// elsewhere must still merge without panicking.
	merged, err := embedAssessment(MetadataJSON{value: "null"}, RiskAssessment{Score: 10, Factors: []string{FactorNewAccount}})
	if err != nil {
		test.Fatalf("embed: %v", err)
	}
	if !strings.Contains(merged.String(), `"score":10`) {
		test.Fatalf("risk assessment missing: %s", merged.String())
	}
}
