package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AccountID identifies a balance account.
type AccountID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// CorrelationID is the caller-supplied idempotency key scoping one logical
// attempt at an operation across retries.
type CorrelationID struct {
	value string
}

// ReviewerID identifies the admin resolving a pending entry.
type ReviewerID struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// NewEntryID validates and normalizes an entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// NewCorrelationID validates and normalizes a correlation id.
func NewCorrelationID(raw string) (CorrelationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CorrelationID{}, fmt.Errorf("%w: empty value", ErrInvalidCorrelation)
	}
	return CorrelationID{value: trimmed}, nil
}

// String returns the normalized key.
func (id CorrelationID) String() string {
	return id.value
}

// NewReviewerID validates and normalizes a reviewer id.
func NewReviewerID(raw string) (ReviewerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReviewerID{}, fmt.Errorf("%w: empty value", ErrInvalidReviewerID)
	}
	return ReviewerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReviewerID) String() string {
	return id.value
}

// NewMetadataJSON validates a metadata string (defaulting to "{}" for empty
// inputs). Only JSON objects are accepted: the entry metadata gets merged
// with engine-written keys later, so arrays, strings, and literal null have
// no place to merge into.
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(normalized), &payload); err != nil || payload == nil {
		return MetadataJSON{}, fmt.Errorf("%w: must be a json object", ErrInvalidMetadata)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal"
	KindBonus      EntryKind = "bonus"
	KindProfit     EntryKind = "profit"
	KindPenalty    EntryKind = "penalty"
)

// ParseEntryKind validates a stored kind value.
func ParseEntryKind(raw string) (EntryKind, error) {
	kind := EntryKind(raw)
	switch kind {
	case KindDeposit, KindWithdrawal, KindBonus, KindProfit, KindPenalty:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
}

// String returns the stored representation.
func (kind EntryKind) String() string {
	return string(kind)
}

// IsCredit reports whether an approved entry of this kind raises the balance.
func (kind EntryKind) IsCredit() bool {
	switch kind {
	case KindDeposit, KindBonus, KindProfit:
		return true
	}
	return false
}

// Channel enumerates the money-movement rails.
type Channel string

const (
	ChannelBank   Channel = "bank"
	ChannelMobile Channel = "mobile"
	ChannelCrypto Channel = "crypto"
	ChannelManual Channel = "manual"
	ChannelSystem Channel = "system"
)

// ParseChannel validates a stored channel value.
func ParseChannel(raw string) (Channel, error) {
	channel := Channel(raw)
	switch channel {
	case ChannelBank, ChannelMobile, ChannelCrypto, ChannelManual, ChannelSystem:
		return channel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChannel, raw)
}

// String returns the stored representation.
func (channel Channel) String() string {
	return string(channel)
}

// EntryStatus defines the ledger entry lifecycle.
type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusApproved   EntryStatus = "approved"
	StatusRejected   EntryStatus = "rejected"
	StatusProcessing EntryStatus = "processing"
	StatusFailed     EntryStatus = "failed"
)

// ParseEntryStatus validates a stored status value.
func ParseEntryStatus(raw string) (EntryStatus, error) {
	status := EntryStatus(raw)
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusProcessing, StatusFailed:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// String returns the stored representation.
func (status EntryStatus) String() string {
	return string(status)
}

// IsTerminal reports whether the status admits no further transition.
func (status EntryStatus) IsTerminal() bool {
	switch status {
	case StatusApproved, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// AccountStatus defines account standing.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountBanned    AccountStatus = "banned"
	AccountLocked    AccountStatus = "locked"
)

// ParseAccountStatus validates a stored account status value.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	status := AccountStatus(raw)
	switch status {
	case AccountActive, AccountSuspended, AccountBanned, AccountLocked:
		return status, nil
	}
	return "", fmt.Errorf("%w: account status %q", ErrInvalidStatus, raw)
}

// String returns the stored representation.
func (status AccountStatus) String() string {
	return string(status)
}

// VerificationFlags gate which operation kinds an account may perform.
type VerificationFlags struct {
	Email bool
	Phone bool
	KYC   bool
}

// KindLimit bounds one operation kind for a plan.
type KindLimit struct {
	MinAmount  Money
	MaxAmount  Money
	DailyCap   Money
	MonthlyCap Money
}

// PlanLimits maps each operation kind to its plan bounds. Kinds absent from
// the map are unlimited (system-initiated credits).
type PlanLimits map[EntryKind]KindLimit

// Account is the engine's read view of a balance account. Fully resolved by
// the caller-facing store before any pure component sees it.
type Account struct {
	ID                 AccountID
	Balance            Money
	Status             AccountStatus
	LockedUntilUnixUTC int64
	Limits             PlanLimits
	Verification       VerificationFlags
	CreatedUnixUTC     int64
}

// Eligible reports whether the account standing permits any operation now.
func (account Account) Eligible(nowUnixUTC int64) bool {
	switch account.Status {
	case AccountActive:
		return true
	case AccountLocked:
		return account.LockedUntilUnixUTC != 0 && account.LockedUntilUnixUTC <= nowUnixUTC
	}
	return false
}

// LedgerEntry is one immutable record of a monetary movement and its outcome.
type LedgerEntry struct {
	EntryID        EntryID
	AccountID      AccountID
	Kind           EntryKind
	Channel        Channel
	Gross          Money
	Fee            Money
	Net            Money
	Status         EntryStatus
	BalanceBefore  Money
	BalanceAfter   Money
	CorrelationID  CorrelationID
	ReviewerID     string
	DecisionNote   string
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
	SettledUnixUTC int64
}

// SignedContribution is the balance movement this entry applies once
// approved: net for credits, negative gross for debits. Fees on debits stay
// with the platform, so the debit side reconciles on gross rather than net.
// An account balance always equals its opening amount plus the signed
// contributions of its approved entries.
func (entry LedgerEntry) SignedContribution() Money {
	return settlementDelta(entry.Kind, entry.Gross, entry.Net)
}

// EntryDraft describes a ledger entry to be inserted by Commit. The store
// stamps balance snapshots from the row it locks, so drafts carry none.
type EntryDraft struct {
	AccountID      AccountID
	Kind           EntryKind
	Channel        Channel
	Gross          Money
	Fee            Money
	Net            Money
	Status         EntryStatus
	CorrelationID  CorrelationID
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
}

// SideEffectKind enumerates the auxiliary writes Commit can apply.
type SideEffectKind string

const (
	SideEffectTaskCompletion SideEffectKind = "task_completion"
	SideEffectReferralPaid   SideEffectKind = "referral_paid"
)

// SideEffect is one auxiliary write applied in the same atomic unit as the
// balance delta and ledger entry.
type SideEffect struct {
	Kind     SideEffectKind
	TargetID string
}

// StatusTransition is a guarded status flip: it succeeds only if the entry's
// status still equals From, which makes concurrent double settlement
// structurally impossible.
type StatusTransition struct {
	EntryID        EntryID
	From           EntryStatus
	To             EntryStatus
	ReviewerID     string
	DecisionNote   string
	SettledUnixUTC int64
	// AdjustedGross/Fee/Net replace the entry's amounts when a reviewer
	// adjusts a reward before approval. Nil leaves them unchanged.
	AdjustedGross *Money
	AdjustedFee   *Money
	AdjustedNet   *Money
}

// Commit is the store's single write primitive: balance delta plus exactly
// one of an entry insert or a guarded status transition, plus side effects,
// all or nothing.
type Commit struct {
	AccountID    AccountID
	BalanceDelta Money
	Draft        *EntryDraft
	Transition   *StatusTransition
	SideEffects  []SideEffect
}

// CommitReceipt reports the durable result of a Commit.
type CommitReceipt struct {
	Entry      LedgerEntry
	NewBalance Money
}

// Store is the persistence contract used by Service. Commit is the sole
// serialization point per account; reads never lock. EntriesSince with an
// empty kind matches all kinds; EntryByCorrelation and EntryByID report a
// missing row as ErrUnknownEntry.
type Store interface {
	Account(ctx context.Context, accountID AccountID) (Account, error)
	EntryByID(ctx context.Context, entryID EntryID) (LedgerEntry, error)
	EntryByCorrelation(ctx context.Context, accountID AccountID, correlationID CorrelationID) (LedgerEntry, error)
	EntriesSince(ctx context.Context, accountID AccountID, kind EntryKind, sinceUnixUTC int64) ([]LedgerEntry, error)
	Commit(ctx context.Context, commit Commit) (CommitReceipt, error)
}

// OperationRequest is the inbound contract built by route handlers.
type OperationRequest struct {
	AccountID     AccountID
	Kind          EntryKind
	Gross         Money
	Channel       Channel
	Urgent        bool
	CorrelationID CorrelationID
	Metadata      MetadataJSON
	// ActorID is the acting identity (user or admin) recorded for audit.
	ActorID string
}

// Outcome is the outbound result of Process and Settle.
type Outcome struct {
	EntryID    EntryID
	Status     EntryStatus
	Fees       FeeBreakdown
	Net        Money
	NewBalance *Money
	Warnings   []string
	// Duplicate marks an idempotent replay of an already committed attempt.
	Duplicate bool
}

// Decision is a reviewer's resolution of a pending entry.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision validates a reviewer decision.
func ParseDecision(raw string) (Decision, error) {
	decision := Decision(raw)
	switch decision {
	case DecisionApprove, DecisionReject:
		return decision, nil
	}
	return "", fmt.Errorf("%w: decision %q", ErrValidation, raw)
}

// SettlementRequest resolves one pending entry.
type SettlementRequest struct {
	EntryID       EntryID
	Decision      Decision
	ReviewerID    ReviewerID
	AdjustedGross *Money
	Note          string
}

// SettlementResult is the per-entry outcome of a batch settlement.
type SettlementResult struct {
	EntryID EntryID
	Outcome Outcome
	Err     error
}

// BatchOutcome summarizes a bulk settlement run.
type BatchOutcome struct {
	Results   []SettlementResult
	Succeeded int
	Failed    int
}
