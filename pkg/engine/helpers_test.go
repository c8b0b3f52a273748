package engine

import (
	"context"
	"fmt"
	"testing"
	"time"
)

const fixedNowUnixUTC = 1_700_000_000

func testNow() time.Time {
	return time.Unix(fixedNowUnixUTC, 0).UTC()
}

func testClock() int64 {
	return fixedNowUnixUTC
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return accountID
}

func mustEntryID(test *testing.T, raw string) EntryID {
	test.Helper()
	entryID, err := NewEntryID(raw)
	if err != nil {
		test.Fatalf("entry id %q: %v", raw, err)
	}
	return entryID
}

func mustCorrelationID(test *testing.T, raw string) CorrelationID {
	test.Helper()
	correlationID, err := NewCorrelationID(raw)
	if err != nil {
		test.Fatalf("correlation id %q: %v", raw, err)
	}
	return correlationID
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}

func testAccount(test *testing.T, balanceUnits int64) Account {
	test.Helper()
	return Account{
		ID:             mustAccountID(test, "acct-1"),
		Balance:        MustMoney(balanceUnits),
		Status:         AccountActive,
		Verification:   VerificationFlags{Email: true, Phone: true, KYC: true},
		CreatedUnixUTC: testNow().Add(-90 * 24 * time.Hour).Unix(),
	}
}

func testEntry(test *testing.T, accountID AccountID, kind EntryKind, grossUnits int64, status EntryStatus, createdAt time.Time) LedgerEntry {
	test.Helper()
	gross := MustMoney(grossUnits)
	return LedgerEntry{
		EntryID:        mustEntryID(test, fmt.Sprintf("entry-%s-%d-%d", kind, grossUnits, createdAt.Unix())),
		AccountID:      accountID,
		Kind:           kind,
		Channel:        ChannelBank,
		Gross:          gross,
		Fee:            MustMoney(0),
		Net:            gross,
		Status:         status,
		CreatedUnixUTC: createdAt.Unix(),
	}
}

// stubStore is an in-memory Store mirroring the durable store's commit
// semantics: currency guard, non-negative balance, unique correlation ids,
// and the guarded status transition.
type stubStore struct {
	accounts     map[string]Account
	entries      map[string]LedgerEntry
	correlations map[string]string
	tasks        map[string]int
	referralPaid map[string]bool

	commitCount int
	nextEntrySn int
	failCommit  error
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts:     map[string]Account{},
		entries:      map[string]LedgerEntry{},
		correlations: map[string]string{},
		tasks:        map[string]int{},
		referralPaid: map[string]bool{},
	}
}

func (store *stubStore) addAccount(account Account) {
	store.accounts[account.ID.String()] = account
}

func (store *stubStore) addEntry(entry LedgerEntry) {
	store.entries[entry.EntryID.String()] = entry
	store.correlations[store.correlationKey(entry.AccountID, entry.CorrelationID)] = entry.EntryID.String()
}

func (store *stubStore) correlationKey(accountID AccountID, correlationID CorrelationID) string {
	return accountID.String() + "/" + correlationID.String()
}

func (store *stubStore) Account(_ context.Context, accountID AccountID) (Account, error) {
	account, ok := store.accounts[accountID.String()]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return account, nil
}

func (store *stubStore) EntryByID(_ context.Context, entryID EntryID) (LedgerEntry, error) {
	entry, ok := store.entries[entryID.String()]
	if !ok {
		return LedgerEntry{}, ErrUnknownEntry
	}
	return entry, nil
}

func (store *stubStore) EntryByCorrelation(_ context.Context, accountID AccountID, correlationID CorrelationID) (LedgerEntry, error) {
	entryID, ok := store.correlations[store.correlationKey(accountID, correlationID)]
	if !ok {
		return LedgerEntry{}, ErrUnknownEntry
	}
	return store.entries[entryID], nil
}

func (store *stubStore) EntriesSince(_ context.Context, accountID AccountID, kind EntryKind, sinceUnixUTC int64) ([]LedgerEntry, error) {
	var matched []LedgerEntry
	for _, entry := range store.entries {
		if entry.AccountID != accountID || entry.CreatedUnixUTC < sinceUnixUTC {
			continue
		}
		if kind != "" && entry.Kind != kind {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

func (store *stubStore) Commit(_ context.Context, commit Commit) (CommitReceipt, error) {
	if store.failCommit != nil {
		return CommitReceipt{}, store.failCommit
	}
	if (commit.Draft == nil) == (commit.Transition == nil) {
		return CommitReceipt{}, fmt.Errorf("commit needs exactly one of draft or transition")
	}
	account, ok := store.accounts[commit.AccountID.String()]
	if !ok {
		return CommitReceipt{}, ErrUnknownAccount
	}
	newBalance, err := account.Balance.Add(commit.BalanceDelta)
	if err != nil {
		return CommitReceipt{}, err
	}
	if newBalance.IsNegative() {
		return CommitReceipt{}, fmt.Errorf("%w: balance would go negative", ErrInsufficientBalance)
	}

	var entry LedgerEntry
	if commit.Draft != nil {
		key := store.correlationKey(commit.Draft.AccountID, commit.Draft.CorrelationID)
		if _, exists := store.correlations[key]; exists {
			return CommitReceipt{}, ErrDuplicateCorrelation
		}
		store.nextEntrySn++
		entry = LedgerEntry{
			EntryID:        EntryID{value: fmt.Sprintf("entry-%d", store.nextEntrySn)},
			AccountID:      commit.Draft.AccountID,
			Kind:           commit.Draft.Kind,
			Channel:        commit.Draft.Channel,
			Gross:          commit.Draft.Gross,
			Fee:            commit.Draft.Fee,
			Net:            commit.Draft.Net,
			Status:         commit.Draft.Status,
			BalanceBefore:  account.Balance,
			BalanceAfter:   account.Balance,
			CorrelationID:  commit.Draft.CorrelationID,
			MetadataJSON:   commit.Draft.MetadataJSON,
			CreatedUnixUTC: commit.Draft.CreatedUnixUTC,
		}
		if entry.Status == StatusApproved {
			entry.BalanceAfter = newBalance
		}
		if entry.Status.IsTerminal() {
			entry.SettledUnixUTC = commit.Draft.CreatedUnixUTC
		}
		store.correlations[key] = entry.EntryID.String()
	} else {
		existing, exists := store.entries[commit.Transition.EntryID.String()]
		if !exists || existing.Status != commit.Transition.From {
			return CommitReceipt{}, ErrSettlementConflict
		}
		existing.Status = commit.Transition.To
		existing.ReviewerID = commit.Transition.ReviewerID
		existing.DecisionNote = commit.Transition.DecisionNote
		existing.SettledUnixUTC = commit.Transition.SettledUnixUTC
		if commit.Transition.AdjustedGross != nil {
			existing.Gross = *commit.Transition.AdjustedGross
		}
		if commit.Transition.AdjustedFee != nil {
			existing.Fee = *commit.Transition.AdjustedFee
		}
		if commit.Transition.AdjustedNet != nil {
			existing.Net = *commit.Transition.AdjustedNet
		}
		if commit.Transition.To == StatusApproved {
			existing.BalanceBefore = account.Balance
			existing.BalanceAfter = newBalance
		}
		entry = existing
	}

	for _, effect := range commit.SideEffects {
		switch effect.Kind {
		case SideEffectTaskCompletion:
			store.tasks[effect.TargetID]++
		case SideEffectReferralPaid:
			if store.referralPaid[effect.TargetID] {
				return CommitReceipt{}, fmt.Errorf("%w: referral already paid", ErrSettlementConflict)
			}
			store.referralPaid[effect.TargetID] = true
		}
	}

	account.Balance = newBalance
	store.accounts[account.ID.String()] = account
	store.entries[entry.EntryID.String()] = entry
	store.commitCount++
	return CommitReceipt{Entry: entry, NewBalance: newBalance}, nil
}
