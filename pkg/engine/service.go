package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service is the transaction processor: it orchestrates one ledger operation
// end to end and issues exactly one atomic commit per accepted request.
type Service struct {
	store    Store
	policy   Policy
	nowFn    func() int64
	logger   OperationLogger
	audit    AuditSink
	notifier NotificationSink
}

// NewService wires a Service over a Store with an explicit policy snapshot.
func NewService(store Store, policy Policy, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidService)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidService)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	service := &Service{store: store, policy: policy, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Policy returns the configuration snapshot the service operates under.
func (service *Service) Policy() Policy {
	return service.policy
}

// Process runs one operation: eligibility gate, limit validation, fee and
// risk computation, then a single atomic commit. Every rejection before the
// commit step leaves storage untouched.
//
// A repeated correlation id for an already committed entry is a no-op success
// returning the original result, never a new write.
func (service *Service) Process(ctx context.Context, request OperationRequest) (Outcome, error) {
	outcome, operationError := service.process(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:     operationProcess,
		AccountID:     request.AccountID,
		EntryID:       outcome.EntryID,
		Kind:          request.Kind,
		Amount:        request.Gross,
		CorrelationID: request.CorrelationID,
		ActorID:       request.ActorID,
		Error:         operationError,
	})
	return outcome, operationError
}

func (service *Service) process(ctx context.Context, request OperationRequest) (Outcome, error) {
	if err := service.validateRequest(request); err != nil {
		return Outcome{}, err
	}
	nowUnixUTC := service.nowFn()
	now := time.Unix(nowUnixUTC, 0).UTC()

	// The replay pre-check runs before any gate: a retry of an already
	// committed correlation id returns the original outcome even when the
	// account has since been suspended or locked.
	if original, found, err := service.replay(ctx, request.AccountID, request.CorrelationID); err != nil {
		return Outcome{}, err
	} else if found {
		return original, nil
	}

	account, err := service.store.Account(ctx, request.AccountID)
	if err != nil {
		return Outcome{}, WrapError(operationProcess, subjectAccount, codeLookup, err)
	}
	if err := service.checkEligibility(account, request.Kind, nowUnixUTC); err != nil {
		return Outcome{}, err
	}

	windowStart := now.Add(-monthlyWindow).Unix()
	window, err := service.store.EntriesSince(ctx, request.AccountID, "", windowStart)
	if err != nil {
		return Outcome{}, WrapError(operationProcess, subjectEntry, codeLookup, err)
	}

	report := CheckLimits(service.policy, account, request.Kind, request.Gross, window, now)
	if !report.Valid {
		return Outcome{}, limitFailure(report)
	}

	fees, err := QuoteFee(service.policy, request.Kind, request.Channel, request.Gross, request.Urgent)
	if err != nil {
		return Outcome{}, WrapError(operationProcess, subjectFees, codeLookup, err)
	}

	assessment := ScoreRisk(service.policy, account, request.Gross, window, now)
	metadata, err := embedAssessment(request.Metadata, assessment)
	if err != nil {
		return Outcome{}, err
	}

	status := service.route(request.Kind, request.Gross, assessment)
	delta := Money{units: 0, currency: request.Gross.Currency()}
	if status == StatusApproved {
		delta = settlementDelta(request.Kind, request.Gross, fees.NetAmount)
	}

	draft := EntryDraft{
		AccountID:      request.AccountID,
		Kind:           request.Kind,
		Channel:        request.Channel,
		Gross:          request.Gross,
		Fee:            fees.TotalFee,
		Net:            fees.NetAmount,
		Status:         status,
		CorrelationID:  request.CorrelationID,
		MetadataJSON:   metadata,
		CreatedUnixUTC: nowUnixUTC,
	}
	receipt, err := service.store.Commit(ctx, Commit{
		AccountID:    request.AccountID,
		BalanceDelta: delta,
		Draft:        &draft,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCorrelation) {
			return service.resolveRace(ctx, request)
		}
		if errors.Is(err, ErrInsufficientBalance) {
			return Outcome{}, err
		}
		return Outcome{}, WrapError(operationProcess, subjectCommit, codeWrite, fmt.Errorf("%w: %v", ErrStoreCommitFailure, err))
	}

	service.emitAudit(ctx, operationProcess, receipt.Entry, request.ActorID, fees, assessment)
	if status.IsTerminal() {
		service.emitSettlement(ctx, receipt.Entry)
	}

	newBalance := receipt.NewBalance
	return Outcome{
		EntryID:    receipt.Entry.EntryID,
		Status:     receipt.Entry.Status,
		Fees:       fees,
		Net:        fees.NetAmount,
		NewBalance: &newBalance,
		Warnings:   report.Warnings,
	}, nil
}

func (service *Service) validateRequest(request OperationRequest) error {
	if request.AccountID.String() == "" {
		return fmt.Errorf("%w: missing account id", ErrValidation)
	}
	if request.CorrelationID.String() == "" {
		return fmt.Errorf("%w: missing correlation id", ErrValidation)
	}
	if _, err := ParseEntryKind(request.Kind.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseChannel(request.Channel.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !request.Gross.IsPositive() {
		return fmt.Errorf("%w: gross amount must be positive", ErrValidation)
	}
	if request.Gross.Currency() != service.policy.Currency {
		return fmt.Errorf("%w: unsupported currency %s", ErrValidation, request.Gross.Currency())
	}
	return nil
}

func (service *Service) checkEligibility(account Account, kind EntryKind, nowUnixUTC int64) error {
	if !account.Eligible(nowUnixUTC) {
		return WrapError(operationProcess, subjectAccount, codeEligibility,
			fmt.Errorf("%w: account status %s", ErrAccountNotEligible, account.Status))
	}
	switch kind {
	case KindDeposit:
		if !account.Verification.Email {
			return WrapError(operationProcess, subjectAccount, codeEligibility,
				fmt.Errorf("%w: email verification required", ErrAccountNotEligible))
		}
	case KindWithdrawal:
		if !account.Verification.Email || !account.Verification.Phone || !account.Verification.KYC {
			return WrapError(operationProcess, subjectAccount, codeEligibility,
				fmt.Errorf("%w: full verification required for withdrawals", ErrAccountNotEligible))
		}
	}
	return nil
}

// replay returns the original outcome for an already committed correlation id.
func (service *Service) replay(ctx context.Context, accountID AccountID, correlationID CorrelationID) (Outcome, bool, error) {
	entry, err := service.store.EntryByCorrelation(ctx, accountID, correlationID)
	if err != nil {
		if errors.Is(err, ErrUnknownEntry) {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, WrapError(operationProcess, subjectEntry, codeReplay, err)
	}
	return outcomeFromEntry(entry, true), true, nil
}

// resolveRace handles a correlation id that was committed between the replay
// pre-check and our commit: the race loser returns the winner's result.
func (service *Service) resolveRace(ctx context.Context, request OperationRequest) (Outcome, error) {
	entry, err := service.store.EntryByCorrelation(ctx, request.AccountID, request.CorrelationID)
	if err != nil {
		return Outcome{}, WrapError(operationProcess, subjectEntry, codeConflict,
			fmt.Errorf("%w: correlation id %s mid-flight", ErrSettlementConflict, request.CorrelationID))
	}
	return outcomeFromEntry(entry, true), nil
}

// route decides the initial entry status. Withdrawals are pending by platform
// policy; high-risk or large operations route to manual review; everything
// else settles immediately.
func (service *Service) route(kind EntryKind, gross Money, assessment RiskAssessment) EntryStatus {
	if kind == KindWithdrawal && !service.policy.WithdrawalsAutoApprove {
		return StatusPending
	}
	if assessment.RequiresReview(service.policy) {
		return StatusPending
	}
	if comparison, err := gross.Cmp(service.policy.AutoApproveCeiling); err == nil && comparison > 0 {
		return StatusPending
	}
	return StatusApproved
}

// settlementDelta is the signed balance movement an approved entry applies:
// net for credits, the full gross for debits (fees stay with the platform).
// LedgerEntry.SignedContribution exposes the same rule for committed entries,
// which keeps the reconciliation arithmetic and the applied delta identical.
func settlementDelta(kind EntryKind, gross Money, net Money) Money {
	if kind.IsCredit() {
		return net
	}
	return gross.Neg()
}

func limitFailure(report LimitReport) error {
	for _, violation := range report.Violations {
		if violation.Rule == RuleBalance {
			return fmt.Errorf("%w: %s", ErrInsufficientBalance, violation.Message)
		}
	}
	return LimitError{Violations: report.Violations}
}

// outcomeFromEntry rebuilds an Outcome for idempotent replays. The stored
// entry keeps only total fee and net, so the breakdown carries those two.
func outcomeFromEntry(entry LedgerEntry, duplicate bool) Outcome {
	zero := Money{units: 0, currency: entry.Gross.Currency()}
	outcome := Outcome{
		EntryID: entry.EntryID,
		Status:  entry.Status,
		Fees: FeeBreakdown{
			BaseFee:       zero,
			PercentageFee: zero,
			UrgentFee:     zero,
			TotalFee:      entry.Fee,
			NetAmount:     entry.Net,
		},
		Net:       entry.Net,
		Duplicate: duplicate,
	}
	if entry.Status == StatusApproved {
		balance := entry.BalanceAfter
		outcome.NewBalance = &balance
	}
	return outcome
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// emitAudit delivers the audit record best-effort, strictly after commit.
func (service *Service) emitAudit(ctx context.Context, operation string, entry LedgerEntry, actorID string, fees FeeBreakdown, assessment RiskAssessment) {
	if service.audit == nil {
		return
	}
	service.audit.RecordAudit(ctx, AuditRecord{
		Operation:     operation,
		AccountID:     entry.AccountID,
		EntryID:       entry.EntryID,
		Kind:          entry.Kind,
		ActorID:       actorID,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
		Fees:          fees,
		Risk:          assessment,
		Outcome:       entry.Status,
	})
}

// emitSettlement fires the settlement notification; failures stay in the sink.
func (service *Service) emitSettlement(ctx context.Context, entry LedgerEntry) {
	if service.notifier == nil {
		return
	}
	service.notifier.NotifySettlement(ctx, SettlementEvent{
		AccountID: entry.AccountID,
		EntryID:   entry.EntryID,
		Kind:      entry.Kind,
		Status:    entry.Status,
		Net:       entry.Net,
	})
}
