package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Settle resolves one pending entry with a reviewer decision. The guarded
// status transition inside Commit is the only defense against concurrent
// duplicate settlement: the loser of the race receives ErrSettlementConflict
// and applies no balance delta.
func (service *Service) Settle(ctx context.Context, request SettlementRequest) (Outcome, error) {
	outcome, operationError := service.settle(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation: operationSettle,
		AccountID: outcome.accountID,
		EntryID:   request.EntryID,
		ActorID:   request.ReviewerID.String(),
		Error:     operationError,
	})
	return outcome.Outcome, operationError
}

// settleOutcome carries the account id alongside the caller-facing outcome so
// the operation log names the account even though SettlementRequest does not.
type settleOutcome struct {
	Outcome
	accountID AccountID
}

func (service *Service) settle(ctx context.Context, request SettlementRequest) (settleOutcome, error) {
	if request.EntryID.String() == "" {
		return settleOutcome{}, fmt.Errorf("%w: missing entry id", ErrValidation)
	}
	if request.ReviewerID.String() == "" {
		return settleOutcome{}, fmt.Errorf("%w: missing reviewer id", ErrValidation)
	}
	if _, err := ParseDecision(string(request.Decision)); err != nil {
		return settleOutcome{}, err
	}

	entry, err := service.store.EntryByID(ctx, request.EntryID)
	if err != nil {
		return settleOutcome{}, WrapError(operationSettle, subjectEntry, codeLookup, err)
	}
	result := settleOutcome{accountID: entry.AccountID}
	if entry.Status != StatusPending {
		return result, WrapError(operationSettle, subjectSettlement, codeConflict,
			fmt.Errorf("%w: entry is %s, not pending", ErrSettlementConflict, entry.Status))
	}

	gross, fee, net := entry.Gross, entry.Fee, entry.Net
	transition := StatusTransition{
		EntryID:        request.EntryID,
		From:           StatusPending,
		ReviewerID:     request.ReviewerID.String(),
		DecisionNote:   request.Note,
		SettledUnixUTC: service.nowFn(),
	}
	delta := Money{units: 0, currency: gross.Currency()}
	var sideEffects []SideEffect

	switch request.Decision {
	case DecisionApprove:
		if request.AdjustedGross != nil {
			gross, fee, net, err = service.adjustAmounts(entry, *request.AdjustedGross)
			if err != nil {
				return result, err
			}
			transition.AdjustedGross = &gross
			transition.AdjustedFee = &fee
			transition.AdjustedNet = &net
		}
		transition.To = StatusApproved
		delta = settlementDelta(entry.Kind, gross, net)
		sideEffects = sideEffectsFromMetadata(entry)
	case DecisionReject:
		transition.To = StatusRejected
	}

	receipt, err := service.store.Commit(ctx, Commit{
		AccountID:    entry.AccountID,
		BalanceDelta: delta,
		Transition:   &transition,
		SideEffects:  sideEffects,
	})
	if err != nil {
		if errors.Is(err, ErrSettlementConflict) || errors.Is(err, ErrInsufficientBalance) {
			return result, err
		}
		return result, WrapError(operationSettle, subjectCommit, codeWrite,
			fmt.Errorf("%w: %v", ErrStoreCommitFailure, err))
	}

	fees := FeeBreakdown{
		BaseFee:       Money{units: 0, currency: gross.Currency()},
		PercentageFee: Money{units: 0, currency: gross.Currency()},
		UrgentFee:     Money{units: 0, currency: gross.Currency()},
		TotalFee:      fee,
		NetAmount:     net,
	}
	service.emitAudit(ctx, operationSettle, receipt.Entry, request.ReviewerID.String(), fees, RiskAssessment{})
	service.emitSettlement(ctx, receipt.Entry)

	newBalance := receipt.NewBalance
	result.Outcome = Outcome{
		EntryID:    receipt.Entry.EntryID,
		Status:     receipt.Entry.Status,
		Fees:       fees,
		Net:        net,
		NewBalance: &newBalance,
	}
	return result, nil
}

// SettleBatch resolves many entries, each as its own independent atomic unit.
// A failure on one entry never rolls back or blocks the others.
func (service *Service) SettleBatch(ctx context.Context, requests []SettlementRequest) BatchOutcome {
	batch := BatchOutcome{Results: make([]SettlementResult, 0, len(requests))}
	for _, request := range requests {
		outcome, err := service.Settle(ctx, request)
		if err != nil {
			batch.Failed++
		} else {
			batch.Succeeded++
		}
		batch.Results = append(batch.Results, SettlementResult{
			EntryID: request.EntryID,
			Outcome: outcome,
			Err:     err,
		})
	}
	return batch
}

// Cancel withdraws a pending entry before settlement locks it. Once
// settlement has begun the guarded transition already moved the entry out of
// pending, so a late cancel surfaces as a conflict.
func (service *Service) Cancel(ctx context.Context, entryID EntryID, actorID string, reason string) (Outcome, error) {
	outcome, operationError := service.cancel(ctx, entryID, actorID, reason)
	service.logOperation(ctx, OperationLog{
		Operation: operationCancel,
		AccountID: outcome.accountID,
		EntryID:   entryID,
		ActorID:   actorID,
		Error:     operationError,
	})
	return outcome.Outcome, operationError
}

func (service *Service) cancel(ctx context.Context, entryID EntryID, actorID string, reason string) (settleOutcome, error) {
	if entryID.String() == "" {
		return settleOutcome{}, fmt.Errorf("%w: missing entry id", ErrValidation)
	}
	entry, err := service.store.EntryByID(ctx, entryID)
	if err != nil {
		return settleOutcome{}, WrapError(operationCancel, subjectEntry, codeLookup, err)
	}
	result := settleOutcome{accountID: entry.AccountID}
	if entry.Status != StatusPending {
		return result, WrapError(operationCancel, subjectSettlement, codeConflict,
			fmt.Errorf("%w: entry is %s, cancellation is stale", ErrSettlementConflict, entry.Status))
	}

	note := "cancelled"
	if reason != "" {
		note = "cancelled: " + reason
	}
	transition := StatusTransition{
		EntryID:        entryID,
		From:           StatusPending,
		To:             StatusRejected,
		ReviewerID:     actorID,
		DecisionNote:   note,
		SettledUnixUTC: service.nowFn(),
	}
	receipt, err := service.store.Commit(ctx, Commit{
		AccountID:    entry.AccountID,
		BalanceDelta: Money{units: 0, currency: entry.Gross.Currency()},
		Transition:   &transition,
	})
	if err != nil {
		if errors.Is(err, ErrSettlementConflict) {
			return result, err
		}
		return result, WrapError(operationCancel, subjectCommit, codeWrite,
			fmt.Errorf("%w: %v", ErrStoreCommitFailure, err))
	}

	service.emitSettlement(ctx, receipt.Entry)
	result.Outcome = outcomeFromEntry(receipt.Entry, false)
	return result, nil
}

// adjustAmounts recomputes fee and net for a reviewer-adjusted reward amount.
// Only reward kinds accept adjustment; money movements keep what was quoted.
func (service *Service) adjustAmounts(entry LedgerEntry, adjusted Money) (Money, Money, Money, error) {
	if entry.Kind != KindBonus && entry.Kind != KindProfit {
		return Money{}, Money{}, Money{}, WrapError(operationSettle, subjectSettlement, codeConflict,
			fmt.Errorf("%w: %s", ErrAdjustmentRefused, entry.Kind))
	}
	if !adjusted.IsPositive() {
		return Money{}, Money{}, Money{}, fmt.Errorf("%w: adjusted amount must be positive", ErrValidation)
	}
	if adjusted.Currency() != entry.Gross.Currency() {
		return Money{}, Money{}, Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, adjusted.Currency(), entry.Gross.Currency())
	}
	fees, err := QuoteFee(service.policy, entry.Kind, entry.Channel, adjusted, false)
	if err != nil {
		// Reward kinds ride fee-free channels; a missing cell means the
		// original entry predates the current schedule.
		return Money{}, Money{}, Money{}, WrapError(operationSettle, subjectFees, codeLookup, err)
	}
	return adjusted, fees.TotalFee, fees.NetAmount, nil
}

// sideEffectsFromMetadata derives the auxiliary writes an approval applies.
// Reward entries reference their originating task or referral in metadata.
func sideEffectsFromMetadata(entry LedgerEntry) []SideEffect {
	if entry.Kind != KindBonus && entry.Kind != KindProfit {
		return nil
	}
	var payload struct {
		TaskID     string `json:"task_id"`
		ReferralID string `json:"referral_id"`
	}
	if err := json.Unmarshal([]byte(entry.MetadataJSON.String()), &payload); err != nil {
		return nil
	}
	var effects []SideEffect
	if payload.TaskID != "" {
		effects = append(effects, SideEffect{Kind: SideEffectTaskCompletion, TargetID: payload.TaskID})
	}
	if payload.ReferralID != "" {
		effects = append(effects, SideEffect{Kind: SideEffectReferralPaid, TargetID: payload.ReferralID})
	}
	return effects
}
