package engine

import (
	"encoding/json"
	"time"
)

// Risk factor names embedded in entry metadata for audit.
const (
	FactorKYCUnverified = "kyc_unverified"
	FactorNewAccount    = "new_account"
	FactorLargeAmount   = "large_amount"
	FactorHighBalance   = "high_balance"
	FactorVelocity      = "velocity"
)

const maxRiskScore = 100

// RiskAssessment is an ephemeral score with its contributing factors. It is
// never persisted as its own record, only embedded into entry metadata.
type RiskAssessment struct {
	Score   int      `json:"score"`
	Factors []string `json:"factors"`
}

// RequiresReview reports whether the score forces manual-review routing
// regardless of amount.
func (assessment RiskAssessment) RequiresReview(policy Policy) bool {
	return assessment.Score >= policy.ManualReviewScore
}

// ScoreRisk produces a bounded score from account state, the proposed amount,
// and recent activity. Deterministic thresholded scoring from the policy's
// fixed rule table; nothing here is learned or random.
func ScoreRisk(policy Policy, account Account, proposed Money, window []LedgerEntry, now time.Time) RiskAssessment {
	assessment := RiskAssessment{Factors: []string{}}
	add := func(weight int, factor string) {
		assessment.Score += weight
		assessment.Factors = append(assessment.Factors, factor)
	}

	if !account.Verification.KYC {
		add(policy.Risk.KYCUnverified, FactorKYCUnverified)
	}
	accountAge := now.Sub(time.Unix(account.CreatedUnixUTC, 0))
	if accountAge < policy.NewAccountAge {
		add(policy.Risk.NewAccount, FactorNewAccount)
	}
	if comparison, err := proposed.Cmp(policy.LargeAmount); err == nil && comparison > 0 {
		add(policy.Risk.LargeAmount, FactorLargeAmount)
	}
	if comparison, err := account.Balance.Cmp(policy.HighBalance); err == nil && comparison > 0 {
		add(policy.Risk.HighBalance, FactorHighBalance)
	}

	velocityCutoff := now.Add(-policy.VelocityLookback).Unix()
	velocityScore := 0
	for _, entry := range window {
		if entry.CreatedUnixUTC < velocityCutoff {
			continue
		}
		if entry.Status != StatusPending && entry.Status != StatusFailed {
			continue
		}
		velocityScore += policy.Risk.VelocityPerHit
	}
	if velocityScore > policy.Risk.VelocityCeiling {
		velocityScore = policy.Risk.VelocityCeiling
	}
	if velocityScore > 0 {
		assessment.Score += velocityScore
		assessment.Factors = append(assessment.Factors, FactorVelocity)
	}

	if assessment.Score > maxRiskScore {
		assessment.Score = maxRiskScore
	}
	return assessment
}

// embedAssessment merges the risk assessment into the request metadata so the
// committed entry carries its own audit rationale.
func embedAssessment(metadata MetadataJSON, assessment RiskAssessment) (MetadataJSON, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(metadata.String()), &payload); err != nil {
		return MetadataJSON{}, WrapError(operationProcess, subjectRisk, codeMetadata, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["risk"] = assessment
	merged, err := json.Marshal(payload)
	if err != nil {
		return MetadataJSON{}, WrapError(operationProcess, subjectRisk, codeMetadata, err)
	}
	return NewMetadataJSON(string(merged))
}
